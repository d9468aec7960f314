package aisvc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trezcool/kalamu/core"
)

// Func adapts an ordinary function to core.AIService.
type Func func(ctx context.Context, req core.CompletionRequest) (string, error)

func (f Func) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	return f(ctx, req)
}

// Fake answers without any network call, from the lines of the prompt. Used for local development.
func Fake() core.AIService {
	return Func(func(_ context.Context, req core.CompletionRequest) (string, error) {
		lines := contentLines(req.Prompt)
		switch {
		case strings.Contains(req.Prompt, `"question"`):
			return fakeFlashcards(lines)
		case strings.Contains(req.Prompt, `"citation"`):
			return fakeReferences(lines)
		default:
			return fakeNotes(lines), nil
		}
	})
}

func contentLines(prompt string) []string {
	var lines []string
	for _, l := range strings.Split(prompt, "\n") {
		l = strings.TrimSpace(strings.TrimLeft(l, "#-* "))
		if l == "" || strings.HasPrefix(l, "---") || strings.HasSuffix(l, ":") {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

func fakeFlashcards(lines []string) (string, error) {
	type card struct {
		Question   string `json:"question"`
		Answer     string `json:"answer"`
		Difficulty string `json:"difficulty"`
	}
	difficulties := []string{"easy", "medium", "hard"}
	cards := make([]card, 0, len(lines))
	for i, l := range lines {
		cards = append(cards, card{
			Question:   fmt.Sprintf("What does the material say about %q?", core.Truncate(l, 60)),
			Answer:     l,
			Difficulty: difficulties[i%len(difficulties)],
		})
	}
	b, err := json.Marshal(cards)
	return string(b), err
}

func fakeReferences(lines []string) (string, error) {
	title := "Study notes"
	if len(lines) > 0 {
		title = lines[len(lines)-1]
	}
	refs := []map[string]interface{}{{
		"title":    core.Truncate(title, 80),
		"authors":  "Doe, J.",
		"year":     2020,
		"source":   "Offline Press",
		"citation": "Doe, J. (2020). " + core.Truncate(title, 80) + ". Offline Press.",
	}}
	b, err := json.Marshal(refs)
	return string(b), err
}

func fakeNotes(lines []string) string {
	var b strings.Builder
	b.WriteString("# Lecture notes\n\n")
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}
