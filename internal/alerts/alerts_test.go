package alerts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/store"
	"github.com/TomkerDev/Al-Moussaid/internal/store/memory"
)

type recordingNotifier struct {
	sent   []Notification
	failTo map[string]bool
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	if r.failTo[n.To] {
		return errors.New("smtp unavailable")
	}
	r.sent = append(r.sent, n)
	return nil
}

type brokenLedger struct{}

func (brokenLedger) Claim(context.Context, string, string) (bool, error) {
	return false, errors.New("ledger down")
}

func (brokenLedger) Release(context.Context, string, string) error {
	return nil
}

func match(id, email string, sim float64) store.SubscriptionMatch {
	return store.SubscriptionMatch{
		Subscription: domain.Subscription{ID: id, Email: email, Threshold: 0.9},
		Similarity:   sim,
	}
}

var posting = domain.Posting{
	ID:        "p1",
	Title:     "Technicien Cisco",
	Company:   "Airtel Tchad",
	Location:  "N'Djamena",
	SourceURL: "https://emploi.example/td/123",
}

func TestDispatchSendsOncePerPair(t *testing.T) {
	notifier := &recordingNotifier{}
	dispatcher := newDispatcher(t, notifier, memory.NewLedger(), zap.NewNop())

	matches := []store.SubscriptionMatch{match("s1", "amina@example.com", 0.92)}

	first := dispatcher.Dispatch(context.Background(), posting, matches)
	second := dispatcher.Dispatch(context.Background(), posting, matches)

	if first.Sent != 1 || second.Sent != 0 || second.Skipped != 1 {
		t.Fatalf("unexpected reports: first=%+v second=%+v", first, second)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}

	n := notifier.sent[0]
	if n.To != "amina@example.com" || n.PostingID != "p1" || n.SubscriptionID != "s1" {
		t.Fatalf("unexpected notification %+v", n)
	}
	if !strings.Contains(n.Subject, "Technicien Cisco") || !strings.Contains(n.Body, "92%") || !strings.Contains(n.Body, posting.SourceURL) {
		t.Fatalf("unexpected content %q / %q", n.Subject, n.Body)
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	notifier := &recordingNotifier{failTo: map[string]bool{"down@example.com": true}}
	ledger := memory.NewLedger()
	dispatcher := newDispatcher(t, notifier, ledger, zap.New(core))

	report := dispatcher.Dispatch(context.Background(), posting, []store.SubscriptionMatch{
		match("s1", "down@example.com", 0.95),
		match("s2", "ok@example.com", 0.93),
	})

	if report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].To != "ok@example.com" {
		t.Fatalf("second subscriber must still be notified, got %+v", notifier.sent)
	}
	if logs.FilterMessage("alert delivery failed").Len() != 1 {
		t.Fatalf("expected delivery failure log, got %v", logs.All())
	}

	// the failed pair was released and can be retried later
	if ok, _ := ledger.Claim(context.Background(), "s1", "p1"); !ok {
		t.Fatal("failed delivery must release its claim")
	}
}

func TestDispatchLedgerFailureSkipsDelivery(t *testing.T) {
	notifier := &recordingNotifier{}
	dispatcher := newDispatcher(t, notifier, brokenLedger{}, nil)

	report := dispatcher.Dispatch(context.Background(), posting, []store.SubscriptionMatch{match("s1", "a@example.com", 0.95)})
	if report.Failed != 1 || len(notifier.sent) != 0 {
		t.Fatalf("unexpected report %+v, sent %d", report, len(notifier.sent))
	}
}

func newDispatcher(t *testing.T, notifier Notifier, ledger store.AlertLedger, log *zap.Logger) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(notifier, ledger, 0, log)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func TestNewDispatcherRequiresCollaborators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		notifier Notifier
		ledger   store.AlertLedger
	}{
		{name: "no ledger", notifier: &recordingNotifier{}},
		{name: "no notifier", ledger: memory.NewLedger()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if d, err := NewDispatcher(tt.notifier, tt.ledger, 0, nil); err == nil || d != nil {
				t.Fatalf("expected an error, got %v, %v", d, err)
			}
		})
	}
}

func TestReportAdd(t *testing.T) {
	r := Report{Sent: 1}
	r.Add(Report{Sent: 2, Skipped: 1, Failed: 3})
	if r != (Report{Sent: 3, Skipped: 1, Failed: 3}) {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	if err := n.Notify(context.Background(), Notification{To: "a@example.com", Subject: "Nouvelle offre", PostingID: "p1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := logs.FilterMessage("alert notification").All()
	if len(entries) != 1 || entries[0].ContextMap()["to"] != "a@example.com" {
		t.Fatalf("unexpected log entries %v", logs.All())
	}

	if err := n.Notify(context.Background(), Notification{}); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}

type fakeStream struct {
	args *redis.XAddArgs
	err  error
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = a
	return redis.NewStringResult("1-0", f.err)
}

func TestRedisNotifier(t *testing.T) {
	stream := &fakeStream{}
	n := NewRedisNotifier(stream, "", 1000)

	msg := Notification{To: "a@example.com", Subject: "s", Body: "b", SubscriptionID: "s1", PostingID: "p1"}
	if err := n.Notify(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stream.args.Stream != DefaultStream || stream.args.MaxLen != 1000 || !stream.args.Approx {
		t.Fatalf("unexpected xadd args %+v", stream.args)
	}
	values := stream.args.Values.(map[string]any)
	if values["to"] != "a@example.com" || values["posting_id"] != "p1" {
		t.Fatalf("unexpected values %v", values)
	}

	stream.err = errors.New("NOAUTH")
	if err := n.Notify(context.Background(), msg); err == nil {
		t.Fatal("expected redis error")
	}
}
