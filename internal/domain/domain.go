// Package domain defines the records exchanged between the matching core and its collaborators.
package domain

import (
	"strings"
	"time"

	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

// SkillSummary is the normalized output of skill extraction.
type SkillSummary struct {
	Skills []string `json:"skills"`
	// Raw is the model output the skills were parsed from.
	Raw string `json:"-"`
	// Degraded is set when the model call failed or its output was unusable.
	Degraded bool `json:"degraded,omitempty"`
	// Truncated is set when the input was cut before extraction.
	Truncated bool `json:"truncated,omitempty"`
}

// Text renders the skills as the single line that gets embedded.
func (s SkillSummary) Text() string {
	return strings.Join(s.Skills, ", ")
}

// Empty reports whether no skill was extracted.
func (s SkillSummary) Empty() bool {
	return len(s.Skills) == 0
}

// Profile is a per-session candidate profile. It is never persisted on its own.
type Profile struct {
	RawText   string
	Skills    SkillSummary
	Embedding vector.Embedding
}

// Posting is a stored job offer. Title is the dedup key.
type Posting struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Company     string           `json:"company"`
	Location    string           `json:"location"`
	Description string           `json:"description"`
	SourceURL   string           `json:"source_url,omitempty"`
	Embedding   vector.Embedding `json:"-"`
	CreatedAt   time.Time        `json:"created_at"`
	// Seq is the store-assigned insertion order used to break similarity ties.
	Seq int64 `json:"-"`
}

// Subscription is a persisted alert request.
type Subscription struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Skills    string           `json:"competences_detectees"`
	Embedding vector.Embedding `json:"-"`
	Threshold float64          `json:"seuil_match"`
	CreatedAt time.Time        `json:"created_at"`
}

// MatchResult pairs a posting with its similarity to the query.
type MatchResult struct {
	Posting    Posting `json:"posting"`
	Similarity float64 `json:"similarity"`
}

// ScrapedItem is a raw posting as handed over by a source, before dedup and structuring.
type ScrapedItem struct {
	Title       string `json:"title"`
	Company     string `json:"company,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	// Raw is the full text of the item used for structuring.
	Raw    string `json:"raw,omitempty"`
	Source string `json:"source,omitempty"`
}

// Text returns the best raw text available for the item.
func (s ScrapedItem) Text() string {
	if raw := strings.TrimSpace(s.Raw); raw != "" {
		return raw
	}

	parts := make([]string, 0, 4)
	for _, p := range []string{s.Title, s.Company, s.Location, s.Description} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// StructuredPosting is the output of the posting structuring call.
type StructuredPosting struct {
	Title       string
	Company     string
	Location    string
	Description string
	// Degraded is set when the model output could not be used and fields come from the scrape.
	Degraded bool
}
