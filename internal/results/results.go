// Package results turns ranked matches into files and reports for the CLI.
package results

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
)

// DumpToTmpFile writes results as indented JSON to a new temporary file and returns its name.
func DumpToTmpFile(results []domain.MatchResult) (string, error) {
	file, err := os.CreateTemp("", "postings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if results == nil {
		results = []domain.MatchResult{}
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ByCompany groups results by company, keeping the ranking inside each group.
func ByCompany(results []domain.MatchResult) map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, r := range results {
		company := r.Posting.Company
		if company == "" {
			company = "-"
		}
		report[company] = append(report[company], map[string]string{
			"id":       r.Posting.ID,
			"title":    r.Posting.Title,
			"location": r.Posting.Location,
			"url":      r.Posting.SourceURL,
			"match":    fmt.Sprintf("%.1f%%", r.Similarity*100),
		})
	}
	return report
}
