// Package storage keeps uploaded files on the local disk and serves them under /uploads/.
package storage

import (
	"bytes"
	"chat-live/contract"
	"chat-live/domain/mimetypes"
	"chat-live/errors"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	PublicPrefix = "/uploads/"
	sniffSize    = 512
)

type DiskStore struct {
	dir      string
	maxBytes int64
	log      *slog.Logger
	now      func() time.Time
	seq      atomic.Uint64
}

func NewDiskStore(dir string, maxBytes int64, log *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes, log: log, now: time.Now}, nil
}

func (d *DiskStore) Dir() string {
	return d.dir
}

// Save checks the extension and the sniffed content of the upload before writing it.
// Stored names are derived from the upload time so the original name never reaches the disk.
func (d *DiskStore) Save(originalName string, r io.Reader) (contract.StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	expected, ok := mimetypes.ForExtension(ext)
	if !ok {
		return contract.StoredFile{}, fmt.Errorf("%w: extension %q", errors.ErrUnsupportedFile, ext)
	}

	// Cursor is reading the first bytes for sniffing
	head := make([]byte, sniffSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !stderrors.Is(err, io.ErrUnexpectedEOF) && !stderrors.Is(err, io.EOF) {
		return contract.StoredFile{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mime := mimetype.Detect(head)
	if !mimetypes.Matches(mime, expected) {
		return contract.StoredFile{}, fmt.Errorf("%w: %s content in %s file", errors.ErrUnsupportedFile, mime.String(), ext)
	}

	name := d.nextName(ext)
	path := filepath.Join(d.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return contract.StoredFile{}, fmt.Errorf("create %s: %w", name, err)
	}
	body := io.MultiReader(bytes.NewReader(head), r)
	size, err := io.Copy(f, io.LimitReader(body, d.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size > d.maxBytes {
		err = fmt.Errorf("%w: more than %d bytes", errors.ErrFileTooLarge, d.maxBytes)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			d.log.Warn("Unable to remove partial upload", "path", path, "error", rmErr)
		}
		return contract.StoredFile{}, err
	}

	d.log.Debug("Upload stored", "name", name, "mime", mime.String(), "size", size)
	return contract.StoredFile{
		Name: name,
		URL:  PublicPrefix + name,
		Ext:  ext,
		Mime: mime.String(),
		Size: size,
	}, nil
}

// Remove deletes the file behind a public URL. A missing file is not an error.
func (d *DiskStore) Remove(url string) error {
	name := filepath.Base(strings.TrimPrefix(url, PublicPrefix))
	if name == "." || name == "/" || name == "" {
		return fmt.Errorf("%w: invalid upload url %q", errors.ErrValidation, url)
	}
	if err := os.Remove(filepath.Join(d.dir, name)); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// nextName keeps names unique when two uploads share the same millisecond.
func (d *DiskStore) nextName(ext string) string {
	ms := strconv.FormatInt(d.now().UnixMilli(), 10)
	if seq := d.seq.Add(1) - 1; seq > 0 {
		return ms + "-" + strconv.FormatUint(seq, 10) + ext
	}
	return ms + ext
}
