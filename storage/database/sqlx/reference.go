package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/reference"
)

const referenceColumns = "id, note_id, position, title, authors, year, source, url, doi, citation, style, created_at"

type referenceRow struct {
	ID        string    `db:"id"`
	NoteID    string    `db:"note_id"`
	Position  int       `db:"position"`
	Title     string    `db:"title"`
	Authors   string    `db:"authors"`
	Year      int       `db:"year"`
	Source    string    `db:"source"`
	URL       string    `db:"url"`
	DOI       string    `db:"doi"`
	Citation  string    `db:"citation"`
	Style     string    `db:"style"`
	CreatedAt time.Time `db:"created_at"`
}

type referenceRepository struct {
	repository
}

var _ reference.Repository = (*referenceRepository)(nil) // interface compliance check

func NewReferenceRepository(exec core.DBExecutor) *referenceRepository {
	return &referenceRepository{repository{exec: exec}}
}

func (repo referenceRepository) QueryReferences(ctx context.Context, noteID string, exec ...core.DBExecutor) ([]reference.Reference, error) {
	exe := repo.getExec(exec)
	var rows []referenceRow
	err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(
		"SELECT "+referenceColumns+" FROM note_references WHERE note_id = ? ORDER BY created_at ASC, position ASC"), noteID)
	if err != nil {
		return nil, errors.Wrap(err, "querying references")
	}
	refs := make([]reference.Reference, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, reference.Reference{
			ID:        r.ID,
			NoteID:    r.NoteID,
			Position:  r.Position,
			Title:     r.Title,
			Authors:   r.Authors,
			Year:      r.Year,
			Source:    r.Source,
			URL:       r.URL,
			DOI:       r.DOI,
			Citation:  r.Citation,
			Style:     reference.Style(r.Style),
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return refs, nil
}

func (repo referenceRepository) ReplaceReferences(ctx context.Context, noteID string, refs []reference.Reference, exec ...core.DBExecutor) ([]reference.Reference, error) {
	exe := repo.getExec(exec)
	if _, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM note_references WHERE note_id = ?"), noteID); err != nil {
		return nil, errors.Wrap(err, "deleting references")
	}

	stored := make([]reference.Reference, 0, len(refs))
	for i, ref := range refs {
		ref.ID = uuid.New().String()
		ref.NoteID = noteID
		ref.Position = i
		ref.CreatedAt = ref.CreatedAt.UTC()
		_, err := sqlx.NamedExecContext(ctx, exe, `
			INSERT INTO note_references (`+referenceColumns+`)
			VALUES (:id, :note_id, :position, :title, :authors, :year, :source, :url, :doi, :citation, :style, :created_at)`,
			referenceRow{
				ID:        ref.ID,
				NoteID:    ref.NoteID,
				Position:  ref.Position,
				Title:     ref.Title,
				Authors:   ref.Authors,
				Year:      ref.Year,
				Source:    ref.Source,
				URL:       ref.URL,
				DOI:       ref.DOI,
				Citation:  ref.Citation,
				Style:     string(ref.Style),
				CreatedAt: ref.CreatedAt,
			})
		if err != nil {
			return nil, errors.Wrap(err, "inserting reference")
		}
		stored = append(stored, ref)
	}
	return stored, nil
}
