package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrSourceNotFound is returned for files that are not in the library.
	ErrSourceNotFound = errors.New("source file not found")
	// ErrInvalidSourceName is returned for names with path elements or unsupported extensions.
	ErrInvalidSourceName = errors.New("invalid source file name")
)

// Supported source file extensions and their types
var extToType = map[string]string{
	".kmz": "KMZ",
	".kml": "KML",
}

// SourceService manages survey files under <data-dir>/sources.
type SourceService struct {
	sourcesDir string
	maxBytes   int64
}

// NewSourceService creates a new source service.
func NewSourceService(dataDir string) *SourceService {
	return &SourceService{
		sourcesDir: filepath.Join(dataDir, "sources"),
		maxBytes:   128 << 20,
	}
}

// List returns all available source files, sorted by name.
func (s *SourceService) List() ([]SourceFile, error) {
	entries, err := os.ReadDir(s.sourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SourceFile{}, nil
		}
		return nil, err
	}

	files := []SourceFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		fileType, ok := extToType[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, SourceFile{
			Name:     entry.Name(),
			Size:     formatSize(info.Size()),
			FileType: fileType,
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Open reads a source file.
func (s *SourceService) Open(name string) ([]byte, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

// Save stores r as name, replacing any existing file.
func (s *SourceService) Save(name string, r io.Reader) (SourceFile, error) {
	path, err := s.path(name)
	if err != nil {
		return SourceFile{}, err
	}
	if err := os.MkdirAll(s.sourcesDir, 0755); err != nil {
		return SourceFile{}, err
	}

	tmp, err := os.CreateTemp(s.sourcesDir, ".upload-*")
	if err != nil {
		return SourceFile{}, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return SourceFile{}, err
	}
	if n > s.maxBytes {
		return SourceFile{}, fmt.Errorf("%s exceeds %s", name, formatSize(s.maxBytes))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return SourceFile{}, err
	}

	return SourceFile{
		Name:     name,
		Size:     formatSize(n),
		FileType: extToType[strings.ToLower(filepath.Ext(name))],
	}, nil
}

func (s *SourceService) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSourceName, name)
	}
	if _, ok := extToType[strings.ToLower(filepath.Ext(name))]; !ok {
		return "", fmt.Errorf("%w: %q must end in .kmz or .kml", ErrInvalidSourceName, name)
	}
	return filepath.Join(s.sourcesDir, name), nil
}

// SourcesDir returns the path to the sources directory.
func (s *SourceService) SourcesDir() string {
	return s.sourcesDir
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
