package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

// Selectors locate posting fields inside an HTML listing page. Field
// selectors are relative to Item; empty ones are skipped.
type Selectors struct {
	Item        string `mapstructure:"item"`
	Title       string `mapstructure:"title"`
	Company     string `mapstructure:"company"`
	Location    string `mapstructure:"location"`
	Description string `mapstructure:"description"`
	Link        string `mapstructure:"link"`
	// Next selects the link to the following listing page.
	Next     string `mapstructure:"next"`
	MaxPages int    `mapstructure:"max_pages"`
}

// HTML scrapes a listing page with CSS selectors.
type HTML struct {
	name      string
	url       string
	selectors Selectors
	fetcher   fetcher
}

// NewHTML builds an HTML source from cfg.Options.
func NewHTML(cfg Config, client *http.Client, log *zap.Logger) (*HTML, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("url is required")
	}

	var sel Selectors
	if err := decodeOptions(cfg.Options, &sel); err != nil {
		return nil, err
	}
	if sel.Item == "" {
		return nil, errors.New("options.item selector is required")
	}
	if sel.Title == "" && sel.Link == "" {
		sel.Title = sel.Item
	}
	if sel.MaxPages <= 0 {
		sel.MaxPages = defaultMaxPages
	}

	return &HTML{name: cfg.Name, url: cfg.URL, selectors: sel, fetcher: fetcher{client: client, logger: log}}, nil
}

// Name implements ingestion.Source.
func (h *HTML) Name() string {
	return h.name
}

// Fetch implements ingestion.Source. It follows the Next link up to MaxPages pages.
func (h *HTML) Fetch(ctx context.Context) ([]domain.ScrapedItem, error) {
	var items []domain.ScrapedItem

	pageURL := h.url
	for page := 0; page < h.selectors.MaxPages && pageURL != ""; page++ {
		doc, err := h.document(ctx, pageURL)
		if err != nil {
			if page > 0 {
				h.fetcher.logger.Warn("stopping pagination", zap.Int("page", page), zap.Error(err))
				break
			}
			return nil, err
		}

		base, _ := url.Parse(pageURL)
		items = append(items, h.extract(doc, base)...)
		pageURL = h.next(doc, base)
	}

	return items, nil
}

func (h *HTML) document(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := h.fetcher.get(ctx, pageURL, "text/html")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (h *HTML) extract(doc *goquery.Document, base *url.URL) []domain.ScrapedItem {
	var items []domain.ScrapedItem

	doc.Find(h.selectors.Item).Each(func(_ int, s *goquery.Selection) {
		item := domain.ScrapedItem{
			Title:       h.text(s, h.selectors.Title),
			Company:     h.text(s, h.selectors.Company),
			Location:    h.text(s, h.selectors.Location),
			Description: h.text(s, h.selectors.Description),
			Raw:         collapse(s.Text()),
			Source:      h.name,
		}

		if h.selectors.Link != "" {
			link := s.Find(h.selectors.Link).First()
			if item.Title == "" {
				item.Title = collapse(link.Text())
			}
			if href, ok := link.Attr("href"); ok {
				item.URL = resolve(base, href)
			}
		}

		if item.Title == "" && item.Raw == "" {
			return
		}
		items = append(items, item)
	})

	return items
}

func (h *HTML) text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	if selector == h.selectors.Item {
		return collapse(s.Text())
	}
	return collapse(s.Find(selector).First().Text())
}

func (h *HTML) next(doc *goquery.Document, base *url.URL) string {
	if h.selectors.Next == "" {
		return ""
	}
	href, ok := doc.Find(h.selectors.Next).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	return resolve(base, href)
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	ref, err := url.Parse(href)
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// collapse trims s and squeezes whitespace runs, keeping line breaks.
func collapse(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
