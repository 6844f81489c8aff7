package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/utils"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	c, err := New(Config{Endpoint: url + "/", APIKey: "secret"}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.backoff = utils.Backoff{Attempts: 2, Initial: time.Millisecond}
	return c
}

func TestEmbedPostsInputs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != embedPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization %q", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["inputs"] != "Cisco, réseau" {
			t.Errorf("unexpected inputs %v", body["inputs"])
		}

		_, _ = w.Write([]byte(`[[0.1, 0.2, 0.3]]`))
	}))
	defer srv.Close()

	values, err := newTestClient(t, srv.URL).Embed(context.Background(), "Cisco, réseau")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 3 || values[2] != 0.3 {
		t.Fatalf("unexpected values %v", values)
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings": [[1, 0]]}`))
	}))
	defer srv.Close()

	values, err := newTestClient(t, srv.URL).Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("unexpected values %v", values)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "input too long", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Embed(context.Background(), "text")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected single call, got %d", calls)
	}
}

func TestDecodeEmbedding(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "batch", raw: `[[1,2]]`, want: 2},
		{name: "single", raw: `[1,2,3]`, want: 3},
		{name: "envelope", raw: `{"embedding":[1]}`, want: 1},
		{name: "empty batch", raw: `[]`, wantErr: true},
		{name: "empty envelope", raw: `{}`, wantErr: true},
		{name: "garbage", raw: `"nope"`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeEmbedding(json.RawMessage(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d values, got %d", tc.want, len(got))
			}
		})
	}
}

func TestNewRequiresEndpoint(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for missing endpoint")
	}
}
