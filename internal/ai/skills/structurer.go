package skills

import (
	"context"
	_ "embed"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/ai"
	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

// NotSpecified fills company and location when neither the model nor the scrape has them.
const NotSpecified = "Non précisé"

// defaultStructureChars bounds the raw posting text sent for structuring.
const defaultStructureChars = 4000

//go:embed prompts/structure_posting.md
var structurePrompt string

// Structurer turns a scraped item into posting fields.
type Structurer struct {
	generator ai.Generator
	timeout   time.Duration
	maxChars  int
	maxLogLen int
	logger    *zap.Logger
}

// NewStructurer builds a Structurer on top of generator.
func NewStructurer(generator ai.Generator, cfg Config, log *zap.Logger) *Structurer {
	return &Structurer{
		generator: generator,
		timeout:   cfg.Timeout,
		maxChars:  defaultStructureChars,
		maxLogLen: maxLogLength(cfg.MaxLogLength),
		logger:    logger.Component(log, "structurer"),
	}
}

// Structure asks the model for title, company, location and description.
// Missing fields fall back to the scraped ones, then to NotSpecified (the
// description falls back to the raw text). A failed call or malformed answer
// marks the result Degraded but still returns usable fields. title is the
// dedup key and always wins over the model's title.
func (s *Structurer) Structure(ctx context.Context, item domain.ScrapedItem, title string) domain.StructuredPosting {
	raw := item.Text()
	fields := structuredFields{}
	degraded := false

	if prompt, ok := s.prompt(raw); ok {
		answer, err := generate(ctx, s.generator, s.timeout, prompt)
		switch {
		case err != nil:
			s.logger.Warn("posting structuring failed, using scraped fields",
				append(logger.PostingFields("", title), zap.Error(err))...)
			degraded = true
		default:
			parsed, perr := parseStructured(answer)
			if perr != nil {
				s.logger.Warn("posting structuring returned malformed output, using scraped fields",
					append(logger.PostingFields("", title),
						zap.Error(perr),
						zap.String("response_preview", utils.TruncateForLog(answer, s.maxLogLen)),
					)...)
				degraded = true
			} else {
				fields = parsed
			}
		}
	} else {
		degraded = true
	}

	return domain.StructuredPosting{
		Title:       firstNonEmpty(title, item.Title, fields.Title),
		Company:     firstNonEmpty(fields.Company, item.Company, NotSpecified),
		Location:    firstNonEmpty(fields.Location, item.Location, NotSpecified),
		Description: firstNonEmpty(fields.Description, item.Description, raw),
		Degraded:    degraded,
	}
}

func (s *Structurer) prompt(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || s.generator == nil {
		return "", false
	}
	raw, _ = utils.TruncateRunes(raw, s.maxChars)
	return strings.ReplaceAll(structurePrompt, "{{POSTING_TEXT}}", raw), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
