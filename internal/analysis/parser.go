package analysis

import (
	"strings"

	"github.com/sagarmv/wildtrail/internal/photo"
)

// Result is the typed form of the model's free-text image analysis.
type Result struct {
	Subjects    []string
	Colors      []string
	Patterns    []string
	Season      string
	Environment string
	Description string
	Tags        []string
}

// Section labels the model is prompted to emit. Singular and plural forms
// are both accepted; matching is case-insensitive.
var sectionLabels = map[string]string{
	"subjects":    "subjects",
	"subject":     "subjects",
	"colors":      "colors",
	"color":       "colors",
	"patterns":    "patterns",
	"pattern":     "patterns",
	"season":      "season",
	"environment": "environment",
	"tags":        "tags",
	"tag":         "tags",
	"description": "description",
}

// ParseAnalysis turns the model's raw text response into a Result. It never
// fails: unknown sections are ignored, missing sections fall back to the
// documented sentinel values, and a completely unparseable response yields
// an all-defaulted Result.
func ParseAnalysis(raw string) Result {
	var res Result

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	for _, section := range splitSections(raw) {
		heading, body := splitHeading(section)
		label, inline, ok := matchLabel(heading)
		if !ok {
			continue
		}
		if inline != "" {
			if body == "" {
				body = inline
			} else {
				body = inline + " " + body
			}
		}
		body = strings.TrimSpace(body)

		switch label {
		case "subjects":
			res.Subjects = splitList(body)
		case "colors":
			res.Colors = splitList(body)
		case "patterns":
			res.Patterns = splitList(body)
		case "season":
			res.Season = body
		case "environment":
			res.Environment = body
		case "tags":
			res.Tags = splitList(body)
		case "description":
			res.Description = body
		}
	}

	applyDefaults(&res)
	return res
}

// splitSections breaks the response into blank-line separated blocks.
func splitSections(raw string) [][]string {
	var sections [][]string
	var current []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				sections = append(sections, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, current)
	}
	return sections
}

// splitHeading returns a section's first line and the rest joined by spaces.
func splitHeading(section []string) (heading, body string) {
	heading = strings.TrimSpace(section[0])
	if len(section) > 1 {
		rest := make([]string, 0, len(section)-1)
		for _, line := range section[1:] {
			rest = append(rest, strings.TrimSpace(line))
		}
		body = strings.Join(rest, " ")
	}
	return heading, body
}

// matchLabel matches a heading line against the known section labels.
// Headings may carry list numbering ("1. SUBJECTS") and inline content
// after a colon ("SUBJECTS: Tiger, Deer").
func matchLabel(heading string) (label, inline string, ok bool) {
	h := strings.TrimSpace(heading)
	h = strings.TrimLeft(h, "#*- ")

	// Strip leading numbering such as "1." or "2)".
	i := 0
	for i < len(h) && h[i] >= '0' && h[i] <= '9' {
		i++
	}
	if i > 0 && i < len(h) && (h[i] == '.' || h[i] == ')') {
		h = strings.TrimSpace(h[i+1:])
	}

	word := h
	rest := ""
	if idx := strings.IndexAny(h, ": \t"); idx >= 0 {
		word = h[:idx]
		rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h[idx:]), ":"))
	}
	word = strings.TrimSuffix(word, ":")
	word = strings.Trim(word, "*")

	canonical, found := sectionLabels[strings.ToLower(word)]
	if !found {
		return "", "", false
	}
	return canonical, rest, true
}

// splitList splits a comma-separated body into trimmed non-empty elements.
func splitList(body string) []string {
	if body == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(body, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyDefaults(res *Result) {
	if len(res.Subjects) == 0 {
		res.Subjects = []string{photo.UnknownSubject}
	}
	if len(res.Colors) == 0 {
		res.Colors = []string{photo.NoColors}
	}
	if len(res.Patterns) == 0 {
		res.Patterns = []string{photo.NoPatterns}
	}
	if len(res.Tags) == 0 {
		res.Tags = append([]string(nil), res.Subjects...)
	}
	if strings.TrimSpace(res.Description) == "" {
		res.Description = photo.NoDescription
	}
	if strings.TrimSpace(res.Environment) == "" {
		res.Environment = photo.UnknownEnvironment
	}
}
