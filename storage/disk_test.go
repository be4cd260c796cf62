package storage

import (
	"bytes"
	"chat-live/errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newDiskStore(t *testing.T, maxBytes int64) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(filepath.Join(t.TempDir(), "uploads"), maxBytes, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, err)
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return store
}

func TestDiskStore_Save_Png(t *testing.T) {
	req := require.New(t)
	store := newDiskStore(t, 1024)

	// When a real png is uploaded
	stored, err := store.Save("Cat.PNG", bytes.NewReader(pngHeader))

	// Then it is written under a time based name
	req.NoError(err)
	req.Equal("1700000000000.png", stored.Name)
	req.Equal("/uploads/1700000000000.png", stored.URL)
	req.Equal(".png", stored.Ext)
	req.Equal("image/png", stored.Mime)
	req.EqualValues(len(pngHeader), stored.Size)

	content, err := os.ReadFile(filepath.Join(store.Dir(), stored.Name))
	req.NoError(err)
	req.Equal(pngHeader, content)

	// Names stay unique within the same millisecond
	second, err := store.Save("dog.png", bytes.NewReader(pngHeader))
	req.NoError(err)
	req.NotEqual(stored.Name, second.Name)
}

func TestDiskStore_Save_Video_Subtypes(t *testing.T) {
	req := require.New(t)
	store := newDiskStore(t, 1024)
	m4v := append([]byte{0, 0, 0, 0x18}, []byte("ftypM4V \x00\x00\x00\x00M4V isom")...)
	mqt := append([]byte{0, 0, 0, 0x14}, []byte("ftypmqt \x00\x00\x00\x00mqt ")...)

	// When an iTunes video is uploaded as .mp4
	stored, err := store.Save("trailer.mp4", bytes.NewReader(m4v))

	// Then the more specific type is accepted
	req.NoError(err)
	req.Equal("video/x-m4v", stored.Mime)

	// And a mobile QuickTime file is accepted as .mov
	stored, err = store.Save("clip.MOV", bytes.NewReader(mqt))
	req.NoError(err)
	req.Equal(".mov", stored.Ext)
	req.Equal("video/quicktime", stored.Mime)

	// But an audio track is not a video
	_, err = store.Save("song.mp4", bytes.NewReader(append([]byte{0, 0, 0, 0x18}, []byte("ftypM4A \x00\x00\x00\x00")...)))
	req.ErrorIs(err, errors.ErrUnsupportedFile)
}

func TestDiskStore_Save_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
		err      error
	}{
		{name: "Executable extension", filename: "virus.exe", content: []byte("MZ"), err: errors.ErrUnsupportedFile},
		{name: "Text disguised as png", filename: "fake.png", content: []byte("hello world"), err: errors.ErrUnsupportedFile},
		{name: "Too large", filename: "big.png", content: append(pngHeader, make([]byte, 64)...), err: errors.ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			store := newDiskStore(t, 32)

			_, err := store.Save(tt.filename, bytes.NewReader(tt.content))

			req.ErrorIs(err, tt.err)
			entries, err := os.ReadDir(store.Dir())
			req.NoError(err)
			req.Empty(entries)
		})
	}
}

func TestDiskStore_Remove(t *testing.T) {
	req := require.New(t)
	store := newDiskStore(t, 1024)
	stored, err := store.Save("cat.png", bytes.NewReader(pngHeader))
	req.NoError(err)

	req.NoError(store.Remove(stored.URL))
	_, err = os.Stat(filepath.Join(store.Dir(), stored.Name))
	req.ErrorIs(err, os.ErrNotExist)

	// Removing twice is harmless
	req.NoError(store.Remove(stored.URL))
	req.ErrorIs(store.Remove("/uploads/"), errors.ErrValidation)
}
