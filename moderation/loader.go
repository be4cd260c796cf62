// Package moderation censors message contents.
package moderation

import (
	"bufio"
	"chat-live/errors"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/samber/lo"
)

//go:embed censored/*.txt
var embeddedDictionaries embed.FS

const dictionaryExt = ".txt"

// CensoredData is the merged content of every dictionary of a directory.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads one dictionary per language, named after its ISO code (en.txt, fr.txt).
type CensoredLoader struct {
	fs fs.FS
}

// NewCensoredLoader reads dictionaries from f, or from the embedded ones when f is nil.
func NewCensoredLoader(f fs.FS) *CensoredLoader {
	if f == nil {
		f = embeddedDictionaries
	}
	return &CensoredLoader{fs: f}
}

// LoadAll merges the dictionaries of dir into one sorted list of distinct words.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read dictionaries in %s: %w", dir, err)
	}

	data := &CensoredData{}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != dictionaryExt {
			continue
		}
		words, err := l.readDictionary(path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		data.Languages = append(data.Languages, strings.TrimSuffix(entry.Name(), dictionaryExt))
		data.Words = append(data.Words, words...)
	}

	data.Words = lo.Uniq(data.Words)
	if len(data.Words) == 0 {
		return nil, errors.ErrEmptyWords
	}
	slices.Sort(data.Words)
	return data, nil
}

// readDictionary returns the non blank lines of the file, CRLF endings included.
func (l *CensoredLoader) readDictionary(name string) ([]string, error) {
	f, err := l.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open dictionary %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if word := strings.TrimSpace(scanner.Text()); word != "" {
			words = append(words, word)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan dictionary %s: %w", name, err)
	}
	return words, nil
}
