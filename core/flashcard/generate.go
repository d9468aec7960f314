package flashcard

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/richtext"
)

var ErrNoCards = errors.New("no flashcards could be generated from these notes")

const systemPrompt = "You are an experienced teacher writing study flashcards for university students. " +
	"Questions are short and test one idea each; answers are precise and self-contained. " +
	"Reply with JSON only."

func buildPrompt(req GenerateRequest, notes []note.Note) string {
	var b strings.Builder
	if req.CardCount == FullSet {
		fmt.Fprintf(&b, "Create a complete set of flashcards (at most %d) covering every key concept of the study material below.\n", maxFullSet)
	} else {
		fmt.Fprintf(&b, "Create exactly %d flashcards from the study material below.\n", req.CardCount)
	}
	switch req.Difficulty {
	case DifficultyMixed:
		b.WriteString("Mix easy, medium and hard cards.\n")
	default:
		fmt.Fprintf(&b, "Every card must be of %s difficulty.\n", req.Difficulty)
	}
	b.WriteString(`Return a JSON array of objects with the keys "question", "answer" and "difficulty" ("easy", "medium" or "hard").` + "\n\n")
	b.WriteString("Study material:\n")

	var src strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&src, "\n### %s\n%s\n", n.Title, richtext.PlainText(n.Content))
	}
	b.WriteString(core.Truncate(src.String(), maxSourceRunes))
	return b.String()
}

type generatedCard struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Difficulty string `json:"difficulty"`
}

// parseCards reads the model reply; both a bare array and {"flashcards": [...]} are accepted.
func parseCards(reply string, req GenerateRequest) ([]Flashcard, error) {
	raw := core.ExtractJSON(reply)
	if raw == "" {
		return nil, ErrNoCards
	}

	var generated []generatedCard
	if strings.HasPrefix(raw, "{") {
		var wrapper struct {
			Flashcards []generatedCard `json:"flashcards"`
			Cards      []generatedCard `json:"cards"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return nil, errors.Wrap(err, "decoding flashcards")
		}
		generated = append(wrapper.Flashcards, wrapper.Cards...)
	} else if err := json.Unmarshal([]byte(raw), &generated); err != nil {
		return nil, errors.Wrap(err, "decoding flashcards")
	}

	limit := req.CardCount
	if limit == FullSet {
		limit = maxFullSet
	}

	cards := make([]Flashcard, 0, len(generated))
	for _, g := range generated {
		q, a := strings.TrimSpace(g.Question), strings.TrimSpace(g.Answer)
		if q == "" || a == "" {
			continue
		}
		d := Difficulty(strings.ToLower(strings.TrimSpace(g.Difficulty)))
		if req.Difficulty != DifficultyMixed {
			d = req.Difficulty
		} else if !d.Valid() {
			d = DifficultyMedium
		}
		cards = append(cards, Flashcard{
			Position:   len(cards),
			Question:   q,
			Answer:     a,
			Difficulty: d,
		})
		if len(cards) == limit {
			break
		}
	}
	if len(cards) == 0 {
		return nil, ErrNoCards
	}
	return cards, nil
}
