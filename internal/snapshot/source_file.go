package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source loads the latest snapshot document delivered by ingestion.
type Source interface {
	Load(ctx context.Context) (Document, error)
	Name() string
}

// FileSource reads a YAML or JSON snapshot document from disk.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return "file:" + s.path }

// Path is the watched document path.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Load(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Document{}, fmt.Errorf("read snapshot file %s: %w", s.path, err)
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".json":
		err = json.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("parse snapshot file %s: %w", s.path, err)
	}
	return doc, nil
}
