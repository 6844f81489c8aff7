package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

// File reads a JSON array of scraped items from disk.
type File struct {
	name string
	path string
}

// NewFile builds a File source. The path comes from cfg.Path, or cfg.URL as a fallback.
func NewFile(cfg Config) (*File, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = strings.TrimSpace(cfg.URL)
	}
	if path == "" {
		return nil, errors.New("path is required")
	}
	return &File{name: cfg.Name, path: path}, nil
}

// Name implements ingestion.Source.
func (f *File) Name() string {
	return f.name
}

// Fetch implements ingestion.Source.
func (f *File) Fetch(ctx context.Context) ([]domain.ScrapedItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}

	var items []domain.ScrapedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}

	for i := range items {
		if items[i].Source == "" {
			items[i].Source = f.name
		}
	}
	return items, nil
}
