package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

// ItemResponse is the paged envelope returned by job board APIs.
type ItemResponse struct {
	Items   []map[string]any `json:"items"`
	Found   int              `json:"found"`
	Pages   int              `json:"pages"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// JobBoardOptions tunes a JobBoard source.
type JobBoardOptions struct {
	// Query is added to every page request.
	Query map[string]string `mapstructure:"query"`
	// Fields renames item keys to the ScrapedItem json keys, e.g. {"name": "title"}.
	Fields   map[string]string `mapstructure:"fields"`
	MaxPages int               `mapstructure:"max_pages"`
}

// JobBoard reads a paged JSON API ("page" query parameter, zero-based).
type JobBoard struct {
	name    string
	url     string
	opts    JobBoardOptions
	fetcher fetcher
}

// NewJobBoard builds a JobBoard source from cfg.Options.
func NewJobBoard(cfg Config, client *http.Client, log *zap.Logger) (*JobBoard, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("url is required")
	}

	var opts JobBoardOptions
	if err := decodeOptions(cfg.Options, &opts); err != nil {
		return nil, err
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}

	return &JobBoard{name: cfg.Name, url: cfg.URL, opts: opts, fetcher: fetcher{client: client, logger: log}}, nil
}

// Name implements ingestion.Source.
func (j *JobBoard) Name() string {
	return j.name
}

// Fetch implements ingestion.Source. It walks the pages the API reports, up to MaxPages.
func (j *JobBoard) Fetch(ctx context.Context) ([]domain.ScrapedItem, error) {
	response, err := j.page(ctx, 0)
	if err != nil {
		return nil, err
	}

	j.fetcher.logger.Debug("got response from job board", zap.Int("pages", response.Pages), zap.Int("found", response.Found))

	raw := response.Items
	for response.Page < response.Pages-1 && response.Page+1 < j.opts.MaxPages {
		j.fetcher.logger.Debug("additional request needed", zap.String("reason", fmt.Sprintf(
			"current page (%d) < all page count (%d)", response.Page+1, response.Pages),
		))

		next := response.Page + 1
		response, err = j.page(ctx, next)
		if err != nil {
			return nil, err
		}
		if response.Page != next {
			// the board ignored the page parameter
			break
		}
		raw = append(raw, response.Items...)
	}

	return j.decodeItems(raw)
}

func (j *JobBoard) page(ctx context.Context, page int) (*ItemResponse, error) {
	u, err := url.Parse(j.url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for k, v := range j.opts.Query {
		q.Set(k, v)
	}
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	body, err := j.fetcher.get(ctx, u.String(), "application/json")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var response ItemResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	return &response, nil
}

func (j *JobBoard) decodeItems(raw []map[string]any) ([]domain.ScrapedItem, error) {
	renamed := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		out := make(map[string]any, len(item))
		for k, v := range item {
			if to, ok := j.opts.Fields[k]; ok {
				k = to
			}
			out[k] = v
		}
		renamed = append(renamed, out)
	}

	var items []domain.ScrapedItem
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &items,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(renamed); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}

	for i := range items {
		items[i].Source = j.name
	}
	return items, nil
}
