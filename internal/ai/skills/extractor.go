// Package skills holds the language-model calls of the matching core: skill
// extraction from profiles, structuring of scraped postings and cover letters.
package skills

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/ai"
	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

// DefaultMaxChars bounds the profile text sent for extraction.
const DefaultMaxChars = 1500

const defaultMaxLogLength = 200

//go:embed prompts/extract_skills.md
var extractPrompt string

// Config is shared by the model-backed components of this package.
type Config struct {
	// Timeout bounds one model call. Zero leaves the caller's deadline alone.
	Timeout      time.Duration
	MaxLogLength int
}

// Extractor turns free profile text into a skill summary.
type Extractor struct {
	generator ai.Generator
	timeout   time.Duration
	maxLogLen int
	logger    *zap.Logger
}

// NewExtractor builds an Extractor on top of generator.
func NewExtractor(generator ai.Generator, cfg Config, log *zap.Logger) *Extractor {
	return &Extractor{
		generator: generator,
		timeout:   cfg.Timeout,
		maxLogLen: maxLogLength(cfg.MaxLogLength),
		logger:    logger.Component(log, "skills"),
	}
}

// Extract returns the skills found in text, truncated to maxChars runes first.
// It never fails: a model error or an unusable answer yields a degraded summary
// with no skills, and callers fall back to embedding the raw text.
func (e *Extractor) Extract(ctx context.Context, text string, maxChars int) domain.SkillSummary {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	text, truncated := utils.TruncateRunes(strings.TrimSpace(text), maxChars)
	summary := domain.SkillSummary{Truncated: truncated}
	if text == "" {
		summary.Degraded = true
		return summary
	}

	prompt := strings.ReplaceAll(extractPrompt, "{{PROFILE_TEXT}}", text)

	e.logger.Debug("skill extraction request",
		zap.Int("text_length", utf8.RuneCountInString(text)),
		zap.Bool("truncated", truncated),
		zap.String("text_preview", utils.TruncateForLog(text, e.maxLogLen)),
	)

	raw, err := generate(ctx, e.generator, e.timeout, prompt)
	if err != nil {
		e.logger.Warn("skill extraction failed, continuing without skills", zap.Error(err))
		summary.Degraded = true
		return summary
	}

	summary.Raw = raw
	summary.Skills = parseSkills(raw)
	if summary.Empty() {
		e.logger.Warn("skill extraction returned no usable skills",
			zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
		)
		summary.Degraded = true
		return summary
	}

	e.logger.Debug("skills extracted", zap.Strings("skills", summary.Skills))
	return summary
}

// generate runs one model call under its own timeout.
func generate(ctx context.Context, generator ai.Generator, timeout time.Duration, prompt string) (string, error) {
	if generator == nil {
		return "", errors.New("no language model configured")
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return generator.GenerateContent(ctx, prompt)
}

func maxLogLength(v int) int {
	if v <= 0 {
		return defaultMaxLogLength
	}
	return v
}
