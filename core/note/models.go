package note

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kalamu/core"
)

// DefaultTitle is the title of notes created empty.
const DefaultTitle = "Untitled Note"

const DefaultFolderColor = "#6366f1"

type Type string

const (
	TypeManual  Type = "manual"
	TypeLecture Type = "lecture"
)

type ExportFormat string

const (
	FormatHTML     ExportFormat = "html"
	FormatMarkdown ExportFormat = "md"
)

type Note struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"-"`
	FolderID       *string   `json:"folder_id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"` // sanitized HTML
	IsFavorite     bool      `json:"is_favorite"`
	Type           Type      `json:"type"`
	SourceFilename string    `json:"source_filename,omitempty"`
	PageCount      int       `json:"page_count,omitempty"`
	CreatedAt      time.Time `json:"created_at"` // UTC
	UpdatedAt      time.Time `json:"updated_at"` // UTC
}

// InFolder reports whether the note is assigned to folderID.
func (n Note) InFolder(folderID string) bool {
	return n.FolderID != nil && *n.FolderID == folderID
}

type Folder struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"-"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// NewNote contains information needed to create a new Note; every field is optional.
type NewNote struct {
	Title    string  `json:"title" validate:"max=300"`
	Content  string  `json:"content"`
	FolderID *string `json:"folder_id"`
	Type     Type    `json:"type" validate:"omitempty,oneof=manual lecture"`

	// set by the lecture pipeline
	SourceFilename string `json:"-"`
	PageCount      int    `json:"-"`
}

func (nn *NewNote) Validate(validate *validator.Validate) error {
	nn.Title = core.CleanString(nn.Title)
	if nn.FolderID != nil && core.CleanString(*nn.FolderID) == "" {
		nn.FolderID = nil
	}
	return validate.Struct(nn)
}

// NotePatch holds the fields to change on a Note; nil fields are left untouched.
// FolderID set to "" unassigns the note.
type NotePatch struct {
	Title      *string `json:"title,omitempty" validate:"omitempty,max=300"`
	Content    *string `json:"content,omitempty"`
	FolderID   *string `json:"folder_id,omitempty"`
	IsFavorite *bool   `json:"is_favorite,omitempty"`
}

func (p NotePatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.FolderID == nil && p.IsFavorite == nil
}

func (p *NotePatch) Validate(validate *validator.Validate) error {
	if p.Title != nil {
		t := core.CleanString(*p.Title)
		p.Title = &t
	}
	return validate.Struct(p)
}

// Apply returns n with the patch applied.
func (p NotePatch) Apply(n Note) Note {
	if p.Title != nil {
		n.Title = *p.Title
		if n.Title == "" {
			n.Title = DefaultTitle
		}
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.FolderID != nil {
		if *p.FolderID == "" {
			n.FolderID = nil
		} else {
			id := *p.FolderID
			n.FolderID = &id
		}
	}
	if p.IsFavorite != nil {
		n.IsFavorite = *p.IsFavorite
	}
	return n
}

type NewFolder struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Description string `json:"description" validate:"max=500"`
}

func (nf *NewFolder) Validate(validate *validator.Validate) error {
	nf.Name = core.CleanString(nf.Name)
	nf.Color = core.CleanString(nf.Color, true /* lower */)
	nf.Description = core.CleanString(nf.Description)
	return validate.Struct(nf)
}

type UpdateFolder struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,notblank,max=100"`
	Color       *string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

func (uf *UpdateFolder) Validate(validate *validator.Validate) error {
	return validate.Struct(uf)
}

type QueryFilter struct {
	FolderID   string `query:"folder_id"`
	Unassigned bool   `query:"unassigned"`
	Favorite   *bool  `query:"favorite"`
	Type       Type   `query:"type"`
	Search     string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.FolderID = core.CleanString(qf.FolderID)
	qf.Search = core.CleanString(qf.Search)
}

type SearchResult struct {
	Note    Note    `json:"note"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}
