package skills

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/ai"
	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/logger"
)

//go:embed prompts/cover_letter.md
var letterPrompt string

// LetterWriter drafts cover letters for a posting.
type LetterWriter struct {
	generator ai.Generator
	timeout   time.Duration
	logger    *zap.Logger
}

// NewLetterWriter builds a LetterWriter on top of generator.
func NewLetterWriter(generator ai.Generator, cfg Config, log *zap.Logger) *LetterWriter {
	return &LetterWriter{
		generator: generator,
		timeout:   cfg.Timeout,
		logger:    logger.Component(log, "letter"),
	}
}

// Write drafts a letter for posting using the candidate's skills line.
func (w *LetterWriter) Write(ctx context.Context, posting domain.Posting, skills string) (string, error) {
	if strings.TrimSpace(posting.Title) == "" {
		return "", fmt.Errorf("%w: posting title is required", domain.ErrInvalidArgument)
	}

	replacer := strings.NewReplacer(
		"{{TITLE}}", strings.TrimSpace(posting.Title),
		"{{COMPANY}}", firstNonEmpty(posting.Company, NotSpecified),
		"{{LOCATION}}", firstNonEmpty(posting.Location, NotSpecified),
		"{{SKILLS}}", firstNonEmpty(skills, NotSpecified),
		"{{DESCRIPTION}}", strings.TrimSpace(posting.Description),
	)

	w.logger.Debug("cover letter request", logger.PostingFields(posting.ID, posting.Title)...)

	letter, err := generate(ctx, w.generator, w.timeout, replacer.Replace(letterPrompt))
	if err != nil {
		return "", fmt.Errorf("generate cover letter: %w", err)
	}

	letter = strings.TrimSpace(letter)
	if letter == "" {
		return "", errors.New("model returned an empty cover letter")
	}
	return letter, nil
}
