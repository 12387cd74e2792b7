package server

import (
	"strings"

	"github.com/TFMV/specgraph/ingest"
	"github.com/TFMV/specgraph/models"
)

// Canned answers returned by the query endpoint.
const (
	AnswerEmptyQuery = "Please enter a valid question."
	AnswerNoMatch    = "Sorry, I couldn't find anything."
	AnswerError      = "Server error occurred."
)

const (
	snippetLimit     = 300
	sectionSeparator = "\n\n---\n\n"
)

// Answer matches query case-insensitively against each entry's text and
// title. Every matching entry is highlighted and contributes a section made
// of its own text followed by short snippets of its neighbors.
func Answer(ds *ingest.Dataset, snap *models.Snapshot, query string) models.QueryResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return models.QueryResult{Answer: AnswerEmptyQuery, Highlight: []string{}}
	}

	var sections []string
	highlight := []string{}
	for _, e := range ds.Entries {
		content := strings.ToLower(e.Text + " " + e.Title)
		if !strings.Contains(content, q) {
			continue
		}
		highlight = append(highlight, e.ID)

		var b strings.Builder
		b.WriteString("🔹 ")
		b.WriteString(titleOr(e))
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteString("\n\n")

		var snippets []string
		for _, id := range snap.Neighbors(e.ID) {
			n, ok := ds.Entry(id)
			if !ok || n.Text == "" {
				continue
			}
			snippets = append(snippets, "   ↪ "+titleOr(n)+": "+truncate(n.Text, snippetLimit))
		}
		b.WriteString(strings.Join(snippets, "\n"))
		sections = append(sections, b.String())
	}

	if len(sections) == 0 {
		return models.QueryResult{Answer: AnswerNoMatch, Highlight: []string{}}
	}
	return models.QueryResult{
		Answer:    strings.Join(sections, sectionSeparator),
		Highlight: highlight,
	}
}

func titleOr(e ingest.Entry) string {
	if e.Title != "" {
		return e.Title
	}
	return e.ID
}

// truncate shortens s to limit characters, marking the cut with "...".
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
