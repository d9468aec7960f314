package flashcard

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kalamu/core"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	// DifficultyMixed is only valid when generating a set.
	DifficultyMixed Difficulty = "mixed"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

const (
	// FullSet asks for as many cards as the material warrants.
	FullSet        = -1
	maxFullSet     = 50
	defaultCount   = 10
	maxSourceRunes = 60000
)

type Flashcard struct {
	ID           string     `json:"id"`
	SetID        string     `json:"set_id"`
	Position     int        `json:"position"`
	Question     string     `json:"question"`
	Answer       string     `json:"answer"`
	Difficulty   Difficulty `json:"difficulty"`
	ReviewCount  int        `json:"review_count"`
	CorrectCount int        `json:"correct_count"` // <= ReviewCount
	CreatedAt    time.Time  `json:"created_at"`    // UTC
}

type Set struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"-"`
	FolderID     string      `json:"module_id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Flashcards   []Flashcard `json:"flashcards"`
	StudiedCards int         `json:"studied_cards"`
	TotalCards   int         `json:"total_cards"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
	UpdatedAt    time.Time   `json:"updated_at"` // UTC
}

// Stats sums up the sets of a module for its overview.
type Stats struct {
	Sets         int `json:"sets"`
	Cards        int `json:"cards"`
	StudiedCards int `json:"studied_cards"`
}

func ComputeStats(sets []Set) Stats {
	st := Stats{Sets: len(sets)}
	for _, s := range sets {
		st.Cards += s.TotalCards
		st.StudiedCards += s.StudiedCards
	}
	return st
}

type GenerateRequest struct {
	NoteIDs    []string   `json:"note_ids" validate:"required,min=1,dive,required"`
	FolderID   string     `json:"module_id" validate:"required"`
	Title      string     `json:"title" validate:"required,notblank,max=200"`
	CardCount  int        `json:"card_count" validate:"oneof=-1 5 10 15 20"`
	Difficulty Difficulty `json:"difficulty_level" validate:"oneof=mixed easy medium hard"`
	Model      string     `json:"model,omitempty"`
}

func (gr *GenerateRequest) Validate(validate *validator.Validate) error {
	gr.Title = core.CleanString(gr.Title)
	gr.FolderID = core.CleanString(gr.FolderID)
	if gr.CardCount == 0 {
		gr.CardCount = defaultCount
	}
	if gr.Difficulty == "" {
		gr.Difficulty = DifficultyMixed
	}
	return validate.Struct(gr)
}

type Review struct {
	Correct bool `json:"correct"`
}
