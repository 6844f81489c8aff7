package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

func TestDefaultsUnmarshal(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if config.Search.Threshold != 0.35 || config.Search.Limit != 20 || config.Search.MaxLimit != 100 {
		t.Fatalf("unexpected search defaults %+v", config.Search)
	}
	if config.Alerts.Threshold != 0.90 || config.Alerts.Notifier != "log" {
		t.Fatalf("unexpected alert defaults %+v", config.Alerts)
	}
	if config.Embedding.Dimension != 384 || config.Embedding.Sidecar == nil {
		t.Fatalf("unexpected embedding defaults %+v", config.Embedding)
	}
	if config.Ingestion.Delay != time.Second || config.Ingestion.ItemTimeout != 2*time.Minute || config.Ingestion.Schedule != "@every 6h" {
		t.Fatalf("unexpected ingestion defaults %+v", config.Ingestion)
	}
	if config.Timeouts.Embedding != 30*time.Second || config.Extraction.MaxChars != 1500 {
		t.Fatalf("unexpected timeouts %+v", config.Timeouts)
	}
}

func TestSourcesUnmarshal(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	err := v.ReadConfig(strings.NewReader(`
sources:
  - name: emploi-td
    type: html
    url: https://example.td/offres
    options:
      item: article.offre
      max-pages: 3
`))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(config.Sources) != 1 || config.Sources[0].Name != "emploi-td" || config.Sources[0].Options["item"] != "article.offre" {
		t.Fatalf("unexpected sources %+v", config.Sources)
	}
}

func TestRedacted(t *testing.T) {
	config := &Config{
		AI:    &AIConfig{Gemini: &GeminiConfig{APIKey: "secret", Model: "m"}},
		Store: &StoreConfig{DSN: "postgres://u:p@h/db"},
		Redis: &RedisConfig{URL: ""},
	}

	out := redacted(config)
	if out.AI.Gemini.APIKey != "***" || out.Store.DSN != "***" || out.Redis.URL != "" {
		t.Fatalf("secrets not masked: %+v %+v", out.AI.Gemini, out.Store)
	}
	if config.AI.Gemini.APIKey != "secret" || config.Store.DSN == "***" {
		t.Fatal("redacted must not modify the original config")
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, nil)
	if strings.TrimSpace(buf.String()) != noMatches {
		t.Fatalf("expected %q, got %q", noMatches, buf.String())
	}

	buf.Reset()
	printResults(&buf, []domain.MatchResult{
		{Posting: domain.Posting{ID: "a1", Title: "Technicien réseau", Company: "Airtel Tchad", Location: "N'Djamena"}, Similarity: 0.9234},
	})
	out := buf.String()
	for _, want := range []string{"MATCH", "92.3%", "Technicien réseau", "Airtel Tchad", "a1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestSortCounts(t *testing.T) {
	got := sortCounts(map[string]int{"Moundou": 2, "N'Djamena": 5, "Abéché": 2, "": 1})

	want := []locationCount{{"N'Djamena", 5}, {"Abéché", 2}, {"Moundou", 2}, {"", 1}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	var buf bytes.Buffer
	printCounts(&buf, got)
	if !strings.Contains(buf.String(), "total") || !strings.Contains(buf.String(), "10") {
		t.Fatalf("expected a total line, got %q", buf.String())
	}
}

func TestReadProfileText(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{Use: "test"}
		addProfileFlags(c)
		return c
	}

	c := newCmd()
	c.Flags().Set("text", "Cisco, VLAN")
	if got, err := readProfileText(c); err != nil || got != "Cisco, VLAN" {
		t.Fatalf("unexpected text %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "cv.txt")
	if err := os.WriteFile(path, []byte("Technicien réseau\nCCNA"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c = newCmd()
	c.Flags().Set("file", path)
	if got, err := readProfileText(c); err != nil || !strings.Contains(got, "CCNA") {
		t.Fatalf("unexpected file text %q, %v", got, err)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c = newCmd()
	c.Flags().Set("file", empty)
	if _, err := readProfileText(c); err == nil {
		t.Fatal("expected an error for an empty file")
	}
}
