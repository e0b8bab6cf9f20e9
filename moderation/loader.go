package moderation

import (
	"bufio"
	"bytes"
	"dm-lab/errors"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed censored/*.txt
var censoredFS embed.FS

const censoredDir = "censored"

// CensoredData carries the loaded words and the languages they came from.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads one word list per language ("en.txt", "fr.txt") from a filesystem.
type CensoredLoader struct {
	fs fs.FS
}

func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// DefaultLoader reads the word lists shipped with the binary.
func DefaultLoader() *CensoredLoader {
	return NewCensoredLoader(censoredFS)
}

// LoadAll parses every .txt file of dir into a unique, sorted list of words.
func (l *CensoredLoader) LoadAll(dir string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			return nil, errors.ErrOnlyCensoredFiles
		}
		if !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// Handles \n and \r\n alike
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return &CensoredData{Words: words, Languages: languages}, nil
}

// LoadDefault parses the word lists shipped with the binary.
func LoadDefault() (*CensoredData, error) {
	return DefaultLoader().LoadAll(censoredDir)
}
