// Package sources fetches raw job postings from the configured boards.
package sources

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/ingestion"
	"github.com/TomkerDev/Al-Moussaid/internal/logger"
)

const (
	TypeHTML     = "html"
	TypeJobBoard = "jobboard"
	TypeFile     = "file"

	userAgent       = "al-moussaid (+https://github.com/TomkerDev/Al-Moussaid)"
	acceptEncoding  = "gzip"
	defaultTimeout  = 20 * time.Second
	defaultMaxPages = 5
)

// Config describes one source entry of the configuration file.
type Config struct {
	Name    string         `mapstructure:"name"`
	Type    string         `mapstructure:"type"`
	URL     string         `mapstructure:"url"`
	Path    string         `mapstructure:"path"`
	Options map[string]any `mapstructure:"options"`
}

// Build turns the configured entries into sources. httpClient may be nil.
func Build(cfgs []Config, httpClient *http.Client, log *zap.Logger) ([]ingestion.Source, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	result := make([]ingestion.Source, 0, len(cfgs))
	for i, cfg := range cfgs {
		if strings.TrimSpace(cfg.Name) == "" {
			cfg.Name = fmt.Sprintf("%s-%d", cfg.Type, i)
		}
		log := logger.WithFields(logger.Component(log, "sources"), zap.String(logger.FieldSource, cfg.Name))

		var (
			src ingestion.Source
			err error
		)
		switch cfg.Type {
		case TypeHTML:
			src, err = NewHTML(cfg, httpClient, log)
		case TypeJobBoard:
			src, err = NewJobBoard(cfg, httpClient, log)
		case TypeFile:
			src, err = NewFile(cfg)
		default:
			err = fmt.Errorf("unknown source type %q", cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
		}
		result = append(result, src)
	}

	return result, nil
}

// decodeOptions fills target from a free-form options map.
func decodeOptions(options map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(options); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

// fetcher is the HTTP plumbing shared by the web sources.
type fetcher struct {
	client *http.Client
	logger *zap.Logger
}

func (f fetcher) get(ctx context.Context, url string, accept string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", acceptEncoding)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	f.logger.Debug("make request", zap.String("url", url))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	if resp.Header.Get("Content-Encoding") != "gzip" {
		return resp.Body, nil
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return gzipBody{Reader: gz, body: resp.Body}, nil
}

type gzipBody struct {
	*gzip.Reader
	body io.Closer
}

func (g gzipBody) Close() error {
	g.Reader.Close()
	return g.body.Close()
}
