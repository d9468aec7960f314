package reference

import "time"

type Style string

const (
	StyleAPA     Style = "apa"
	StyleMLA     Style = "mla"
	StyleChicago Style = "chicago"
	StyleHarvard Style = "harvard"
	StyleIEEE    Style = "ieee"
)

const DefaultStyle = StyleAPA

func (s Style) Valid() bool {
	switch s {
	case StyleAPA, StyleMLA, StyleChicago, StyleHarvard, StyleIEEE:
		return true
	}
	return false
}

// Reference is an academic source suggested for a note.
type Reference struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"note_id"`
	Position  int       `json:"position"`
	Title     string    `json:"title"`
	Authors   string    `json:"authors"`
	Year      int       `json:"year,omitempty"`
	Source    string    `json:"source"`
	URL       string    `json:"url,omitempty"`
	DOI       string    `json:"doi,omitempty"`
	Citation  string    `json:"citation"`
	Style     Style     `json:"style"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type FetchRequest struct {
	Style Style  `json:"citation_style" validate:"omitempty,oneof=apa mla chicago harvard ieee"`
	Model string `json:"model,omitempty"`
}
