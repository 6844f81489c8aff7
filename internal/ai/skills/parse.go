package skills

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxSkillRunes drops sentences the model returned instead of skill names.
const maxSkillRunes = 80

// parseSkills reads a skill list out of a model answer. It accepts
// {"skills": [...]}, a bare JSON array, or a bulleted / comma separated list.
func parseSkills(raw string) []string {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned), &obj); err == nil {
		for _, key := range []string{"skills", "competences", "compétences"} {
			if v, ok := obj[key]; ok {
				return normalizeSkills(coerceList(v))
			}
		}
		return nil
	}

	var arr []any
	if err := json.Unmarshal([]byte(cleaned), &arr); err == nil {
		return normalizeSkills(coerceList(arr))
	}

	return normalizeSkills(listLines(cleaned))
}

// structuredFields is the JSON shape of a structured posting.
type structuredFields struct {
	Title       string
	Company     string
	Location    string
	Description string
}

func parseStructured(raw string) (structuredFields, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return structuredFields{}, fmt.Errorf("parse structured posting: %w", err)
	}

	return structuredFields{
		Title:       coerceString(data["title"]),
		Company:     coerceString(data["company"]),
		Location:    coerceString(data["location"]),
		Description: coerceString(data["description"]),
	}, nil
}

// extractJSON strips markdown fences and any prose around the first JSON value.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.TrimSpace(strings.Trim(raw, "`"))

	if json.Valid([]byte(raw)) {
		return raw
	}

	// "Voici le résultat : {...}" style answers.
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(raw, pair[0])
		end := strings.LastIndex(raw, pair[1])
		if start != -1 && end > start {
			if candidate := raw[start : end+1]; json.Valid([]byte(candidate)) {
				return candidate
			}
		}
	}

	return raw
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	case []any:
		return strings.Join(coerceList(val), ", ")
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			out = append(out, coerceString(item))
		}
		return out
	case string:
		return listLines(val)
	default:
		return nil
	}
}

// listLines splits free text into list items: one per bullet line, or per
// comma / semicolon when a line holds several.
func listLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		if strings.ContainsAny(line[:1], "{}[]") {
			continue
		}

		line = trimBullet(line)
		// "Réseaux : Cisco, VLAN" keeps the values after the label
		if idx := strings.Index(line, ":"); idx != -1 {
			line = line[idx+1:]
		}
		for _, part := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ';' }) {
			out = append(out, part)
		}
	}
	return out
}

func trimBullet(line string) string {
	line = strings.TrimLeft(line, "-*•·– \t")

	// "1." / "2)" numbering
	digits := strings.IndexFunc(line, func(r rune) bool { return !unicode.IsDigit(r) })
	if digits > 0 && digits < len(line) && (line[digits] == '.' || line[digits] == ')') {
		line = line[digits+1:]
	}

	return strings.TrimSpace(line)
}

// normalizeSkills trims, drops empty and sentence-length entries and removes
// case-insensitive duplicates while keeping the first spelling and order.
func normalizeSkills(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))

	for _, item := range items {
		item = strings.TrimSpace(strings.Trim(item, " .\"'`*"))
		if item == "" || utf8.RuneCountInString(item) > maxSkillRunes {
			continue
		}

		key := strings.ToLower(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
