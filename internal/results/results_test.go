package results

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

func sample() []domain.MatchResult {
	return []domain.MatchResult{
		{Posting: domain.Posting{ID: "1", Title: "Technicien réseau", Company: "Airtel Tchad", Location: "N'Djamena"}, Similarity: 0.912},
		{Posting: domain.Posting{ID: "2", Title: "Administrateur système", Company: "Airtel Tchad", Location: "Moundou"}, Similarity: 0.8},
		{Posting: domain.Posting{ID: "3", Title: "Comptable"}, Similarity: 0.4},
	}
}

func TestDumpToTmpFile(t *testing.T) {
	name, err := DumpToTmpFile(sample())
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	defer os.Remove(name)

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got []domain.MatchResult
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 3 || got[0].Posting.Title != "Technicien réseau" || got[2].Similarity != 0.4 {
		t.Fatalf("unexpected dump %+v", got)
	}
}

func TestDumpEmptyWritesArray(t *testing.T) {
	name, err := DumpToTmpFile(nil)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	defer os.Remove(name)

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "[]\n" {
		t.Fatalf("expected an empty array, got %q", data)
	}
}

func TestByCompany(t *testing.T) {
	report := ByCompany(sample())

	if len(report) != 2 {
		t.Fatalf("expected 2 companies, got %v", report)
	}
	airtel := report["Airtel Tchad"]
	if len(airtel) != 2 || airtel[0]["title"] != "Technicien réseau" || airtel[0]["match"] != "91.2%" {
		t.Fatalf("unexpected airtel group %v", airtel)
	}
	if report["-"][0]["id"] != "3" {
		t.Fatalf("postings without company must be grouped under -, got %v", report)
	}
}
