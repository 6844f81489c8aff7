// Package alerts delivers "new matching posting" notifications to subscribers
// at most once per (subscription, posting) pair.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/logger"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
)

// Notification is the minimal message handed to the delivery collaborator.
type Notification struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	SubscriptionID string `json:"subscription_id"`
	PostingID      string `json:"posting_id"`
}

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Report summarises one Dispatch call.
type Report struct {
	Sent    int
	Skipped int
	Failed  int
}

// Add accumulates other into r.
func (r *Report) Add(other Report) {
	r.Sent += other.Sent
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

// Dispatcher claims each pair in the ledger before notifying, and releases the
// claim when delivery fails.
type Dispatcher struct {
	notifier Notifier
	ledger   store.AlertLedger
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher builds a Dispatcher. Both the notifier and the ledger are required.
func NewDispatcher(notifier Notifier, ledger store.AlertLedger, timeout time.Duration, log *zap.Logger) (*Dispatcher, error) {
	if notifier == nil {
		return nil, errors.New("alert notifier is required")
	}
	if ledger == nil {
		return nil, errors.New("alert ledger is required")
	}
	return &Dispatcher{
		notifier: notifier,
		ledger:   ledger,
		timeout:  timeout,
		logger:   logger.Component(log, "alerts"),
	}, nil
}

// Dispatch notifies every matched subscriber about posting. A failure for one
// subscriber is logged and never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, posting domain.Posting, matches []store.SubscriptionMatch) Report {
	var report Report

	for _, m := range matches {
		sub := m.Subscription
		log := d.logger.With(append(logger.PostingFields(posting.ID, posting.Title),
			zap.String(logger.FieldSubscriptionID, sub.ID),
			zap.Float64("similarity", m.Similarity),
		)...)

		claimed, err := d.ledger.Claim(ctx, sub.ID, posting.ID)
		if err != nil {
			log.Warn("alert ledger unavailable, alert not sent", zap.Error(err))
			report.Failed++
			continue
		}
		if !claimed {
			log.Debug("alert already sent")
			report.Skipped++
			continue
		}

		if err := d.notify(ctx, compose(posting, m)); err != nil {
			log.Warn("alert delivery failed", zap.Error(err))
			report.Failed++

			if relErr := d.ledger.Release(ctx, sub.ID, posting.ID); relErr != nil {
				log.Warn("alert claim release failed", zap.Error(relErr))
			}
			continue
		}

		log.Info("alert sent")
		report.Sent++
	}

	return report
}

func (d *Dispatcher) notify(ctx context.Context, n Notification) error {
	if d.notifier == nil {
		return fmt.Errorf("%w: no notifier configured", domain.ErrNotification)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if err := d.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotification, err)
	}
	return nil
}

func compose(posting domain.Posting, m store.SubscriptionMatch) Notification {
	var body strings.Builder
	fmt.Fprintf(&body, "Une nouvelle offre correspond à votre profil (%d%%).\n\n", int(math.Round(m.Similarity*100)))
	fmt.Fprintf(&body, "%s\n", posting.Title)
	if posting.Company != "" {
		fmt.Fprintf(&body, "Entreprise : %s\n", posting.Company)
	}
	if posting.Location != "" {
		fmt.Fprintf(&body, "Lieu : %s\n", posting.Location)
	}
	if posting.SourceURL != "" {
		fmt.Fprintf(&body, "%s\n", posting.SourceURL)
	}

	return Notification{
		To:             m.Subscription.Email,
		Subject:        "Nouvelle offre : " + posting.Title,
		Body:           body.String(),
		SubscriptionID: m.Subscription.ID,
		PostingID:      posting.ID,
	}
}
