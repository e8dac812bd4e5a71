package scene

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/trackraster/internal/fsutil"
)

// Source supplies scenes one at a time. Next returns io.EOF when exhausted.
type Source interface {
	Next(ctx context.Context) (*Scene, error)
}

// JSONReader streams scenes encoded as consecutive JSON objects, typically
// one per line.
type JSONReader struct {
	dec    *json.Decoder
	closer io.Closer
	name   string
	count  int
}

// NewJSONReader reads scenes from r. name is used in error messages.
func NewJSONReader(r io.Reader, name string) *JSONReader {
	return &JSONReader{dec: json.NewDecoder(bufio.NewReaderSize(r, 1<<20)), name: name}
}

// OpenFile opens a scene file. Files ending in .gz are decompressed.
func OpenFile(path string) (*JSONReader, error) {
	return OpenFileFS(fsutil.OSFileSystem{}, path)
}

// OpenFileFS is OpenFile reading through fsys.
func OpenFileFS(fsys fsutil.FileSystem, path string) (*JSONReader, error) {
	clean := filepath.Clean(path)
	f, err := fsutil.OrOS(fsys).Open(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene file: %w", err)
	}
	if !strings.HasSuffix(clean, ".gz") {
		r := NewJSONReader(f, clean)
		r.closer = f
		return r, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open gzip scene file %s: %w", clean, err)
	}
	r := NewJSONReader(gz, clean)
	r.closer = multiCloser{gz, f}
	return r, nil
}

// Next decodes the next scene.
func (r *JSONReader) Next(ctx context.Context) (*Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var s Scene
	if err := r.dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%s: scene %d: %w", r.name, r.count, err)
	}
	r.count++
	return &s, nil
}

// Close releases the underlying file, if any.
func (r *JSONReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SliceSource serves scenes from memory.
type SliceSource struct {
	Scenes []*Scene
	pos    int
}

// Next returns the next scene in the slice.
func (s *SliceSource) Next(ctx context.Context) (*Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.Scenes) {
		return nil, io.EOF
	}
	sc := s.Scenes[s.pos]
	s.pos++
	return sc, nil
}
