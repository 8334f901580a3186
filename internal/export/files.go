package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sjsage522/bikecrawler/internal/model"
	"sjsage522/bikecrawler/internal/normalize"
)

// Format is an on-disk record format
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// FormatOf picks the format from a file extension
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
}

// Read decodes bikes in the given format
func Read(r io.Reader, format Format) ([]model.Bike, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatJSON:
		return ReadJSON(r)
	case FormatJSONL:
		return ReadJSONL(r)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// Write encodes bikes in the given format
func Write(w io.Writer, format Format, bikes []model.Bike) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, bikes)
	case FormatJSON:
		return WriteJSON(w, bikes)
	case FormatJSONL:
		return WriteJSONL(w, bikes)
	}
	return fmt.Errorf("unsupported format %q", format)
}

// ReadFile reads a CSV, JSON or JSON lines file, chosen by extension
func ReadFile(path string) ([]model.Bike, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	bikes, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bikes, nil
}

// WriteFile writes bikes to path in the format of its extension, creating parent directories
func WriteFile(path string, bikes []model.Bike) error {
	format, err := FormatOf(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := Write(f, format, bikes); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

// FindFiles lists the record files under the given paths; directories are walked
func FindFiles(paths ...string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", root, err)
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ferr := FormatOf(path); ferr == nil && !strings.HasPrefix(d.Name(), "progress") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}
	return files, nil
}

// Sink receives the bikes of a finished scrape unit
type Sink interface {
	Write(unit model.Unit, bikes []model.Bike) (string, error)
}

// FileSink writes one file per unit: <dir>/bikes_<year>_<brand>.<format>
type FileSink struct {
	Dir    string
	Format Format

	mu sync.Mutex
}

// NewFileSink creates a sink writing into dir
func NewFileSink(dir string, format Format) *FileSink {
	if format == "" {
		format = FormatCSV
	}
	return &FileSink{Dir: dir, Format: format}
}

// PathFor returns the file a unit is written to
func (s *FileSink) PathFor(unit model.Unit) string {
	name := fmt.Sprintf("bikes_%d_%s.%s", unit.Year, normalize.Slug(unit.Brand), s.Format)
	return filepath.Join(s.Dir, name)
}

// Write writes the unit's bikes, replacing an earlier file of the same unit
func (s *FileSink) Write(unit model.Unit, bikes []model.Bike) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PathFor(unit)
	if err := WriteFile(path, bikes); err != nil {
		return "", err
	}
	return path, nil
}
