package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/note"
)

const noteColumns = "id, owner_id, folder_id, title, content, is_favorite, type, source_filename, page_count, created_at, updated_at"

var noteOrderings = map[string]string{
	"title":      "title",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type noteRow struct {
	ID             string      `db:"id"`
	OwnerID        string      `db:"owner_id"`
	FolderID       null.String `db:"folder_id"`
	Title          string      `db:"title"`
	Content        string      `db:"content"`
	IsFavorite     bool        `db:"is_favorite"`
	Type           string      `db:"type"`
	SourceFilename string      `db:"source_filename"`
	PageCount      int         `db:"page_count"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func toNoteRow(n note.Note) noteRow {
	return noteRow{
		ID:             n.ID,
		OwnerID:        n.OwnerID,
		FolderID:       null.StringFromPtr(n.FolderID),
		Title:          n.Title,
		Content:        n.Content,
		IsFavorite:     n.IsFavorite,
		Type:           string(n.Type),
		SourceFilename: n.SourceFilename,
		PageCount:      n.PageCount,
		CreatedAt:      n.CreatedAt.UTC(),
		UpdatedAt:      n.UpdatedAt.UTC(),
	}
}

func (r noteRow) note() note.Note {
	return note.Note{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		FolderID:       r.FolderID.Ptr(),
		Title:          r.Title,
		Content:        r.Content,
		IsFavorite:     r.IsFavorite,
		Type:           note.Type(r.Type),
		SourceFilename: r.SourceFilename,
		PageCount:      r.PageCount,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type folderRow struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	Name        string    `db:"name"`
	Color       string    `db:"color"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r folderRow) folder() note.Folder {
	return note.Folder{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Color:       r.Color,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type noteRepository struct {
	repository
}

var _ note.Repository = (*noteRepository)(nil) // interface compliance check

func NewNoteRepository(exec core.DBExecutor) *noteRepository {
	return &noteRepository{repository{exec: exec}}
}

func (repo noteRepository) QueryNotes(ctx context.Context, ownerID string, filter *note.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]note.Note, error) {
	query := "SELECT " + noteColumns + " FROM notes WHERE owner_id = ?"
	args := []interface{}{ownerID}

	if filter != nil {
		switch {
		case filter.FolderID != "":
			query += " AND folder_id = ?"
			args = append(args, filter.FolderID)
		case filter.Unassigned:
			query += " AND folder_id IS NULL"
		}
		if filter.Favorite != nil {
			query += " AND is_favorite = ?"
			args = append(args, *filter.Favorite)
		}
		if filter.Type != "" {
			query += " AND type = ?"
			args = append(args, string(filter.Type))
		}
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			query += " AND (LOWER(title) LIKE LOWER(?) OR LOWER(content) LIKE LOWER(?))"
			args = append(args, val, val)
		}
	}
	query += orderBy(ordering, noteOrderings, "updated_at DESC")

	exe := repo.getExec(exec)
	var rows []noteRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}
	notes := make([]note.Note, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.note())
	}
	return notes, nil
}

func (repo noteRepository) GetNote(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (note.Note, error) {
	exe := repo.getExec(exec)
	var row noteRow
	err := sqlx.GetContext(ctx, exe, &row,
		exe.Rebind("SELECT "+noteColumns+" FROM notes WHERE id = ? AND owner_id = ?"), id, ownerID)
	if err != nil {
		if err = trapNoRows(err, note.ErrNotFound); err == note.ErrNotFound {
			return note.Note{}, err
		}
		return note.Note{}, errors.Wrap(err, "getting note")
	}
	return row.note(), nil
}

func (repo noteRepository) CreateNote(ctx context.Context, n note.Note, exec ...core.DBExecutor) (note.Note, error) {
	n.ID = uuid.New().String()
	row := toNoteRow(n)
	_, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		INSERT INTO notes (`+noteColumns+`)
		VALUES (:id, :owner_id, :folder_id, :title, :content, :is_favorite, :type, :source_filename, :page_count,
			:created_at, :updated_at)`,
		row)
	if err != nil {
		return note.Note{}, errors.Wrap(err, "inserting note")
	}
	return row.note(), nil
}

func (repo noteRepository) UpdateNote(ctx context.Context, n note.Note, exec ...core.DBExecutor) (note.Note, error) {
	row := toNoteRow(n)
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		UPDATE notes SET folder_id = :folder_id, title = :title, content = :content, is_favorite = :is_favorite,
			updated_at = :updated_at
		WHERE id = :id AND owner_id = :owner_id`,
		row)
	if err != nil {
		return note.Note{}, errors.Wrap(err, "updating note")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return note.Note{}, note.ErrNotFound
	}
	return row.note(), nil
}

func (repo noteRepository) DeleteNote(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM notes WHERE id = ? AND owner_id = ?"), id, ownerID)
	if err != nil {
		return errors.Wrap(err, "deleting note")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return note.ErrNotFound
	}
	return nil
}

// embeddings are stored as JSON arrays so both engines share the schema
func (repo noteRepository) SetNoteEmbedding(ctx context.Context, id string, vec []float32, exec ...core.DBExecutor) error {
	val := null.String{}
	if len(vec) > 0 {
		b, err := json.Marshal(vec)
		if err != nil {
			return errors.Wrap(err, "encoding embedding")
		}
		val = null.StringFrom(string(b))
	}
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind("UPDATE notes SET embedding = ? WHERE id = ?"), val, id)
	return errors.Wrap(err, "storing embedding")
}

func (repo noteRepository) QueryNoteEmbeddings(ctx context.Context, ownerID string, exec ...core.DBExecutor) (map[string][]float32, error) {
	exe := repo.getExec(exec)
	var rows []struct {
		ID        string `db:"id"`
		Embedding string `db:"embedding"`
	}
	err := sqlx.SelectContext(ctx, exe, &rows,
		exe.Rebind("SELECT id, embedding FROM notes WHERE owner_id = ? AND embedding IS NOT NULL"), ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "querying embeddings")
	}
	vectors := make(map[string][]float32, len(rows))
	for _, r := range rows {
		var vec []float32
		if err := json.Unmarshal([]byte(r.Embedding), &vec); err != nil {
			return nil, errors.Wrapf(err, "decoding embedding of note %s", r.ID)
		}
		vectors[r.ID] = vec
	}
	return vectors, nil
}

func (repo noteRepository) QueryFolders(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]note.Folder, error) {
	exe := repo.getExec(exec)
	var rows []folderRow
	err := sqlx.SelectContext(ctx, exe, &rows,
		exe.Rebind("SELECT * FROM folders WHERE owner_id = ? ORDER BY created_at ASC, name ASC"), ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "querying folders")
	}
	folders := make([]note.Folder, 0, len(rows))
	for _, r := range rows {
		folders = append(folders, r.folder())
	}
	return folders, nil
}

func (repo noteRepository) GetFolder(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (note.Folder, error) {
	exe := repo.getExec(exec)
	var row folderRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind("SELECT * FROM folders WHERE id = ? AND owner_id = ?"), id, ownerID)
	if err != nil {
		if err = trapNoRows(err, note.ErrFolderNotFound); err == note.ErrFolderNotFound {
			return note.Folder{}, err
		}
		return note.Folder{}, errors.Wrap(err, "getting folder")
	}
	return row.folder(), nil
}

func (repo noteRepository) CreateFolder(ctx context.Context, f note.Folder, exec ...core.DBExecutor) (note.Folder, error) {
	f.ID = uuid.New().String()
	f.CreatedAt, f.UpdatedAt = f.CreatedAt.UTC(), f.UpdatedAt.UTC()
	row := folderRow(f)
	_, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		INSERT INTO folders (id, owner_id, name, color, description, created_at, updated_at)
		VALUES (:id, :owner_id, :name, :color, :description, :created_at, :updated_at)`,
		row)
	if err != nil {
		return note.Folder{}, errors.Wrap(err, "inserting folder")
	}
	return f, nil
}

func (repo noteRepository) UpdateFolder(ctx context.Context, f note.Folder, exec ...core.DBExecutor) (note.Folder, error) {
	f.UpdatedAt = f.UpdatedAt.UTC()
	res, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), `
		UPDATE folders SET name = :name, color = :color, description = :description, updated_at = :updated_at
		WHERE id = :id AND owner_id = :owner_id`,
		folderRow(f))
	if err != nil {
		return note.Folder{}, errors.Wrap(err, "updating folder")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return note.Folder{}, note.ErrFolderNotFound
	}
	return f, nil
}

func (repo noteRepository) DeleteFolder(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	now := note.NowFunc().UTC()
	if _, err := exe.ExecContext(ctx,
		exe.Rebind("UPDATE notes SET folder_id = NULL, updated_at = ? WHERE folder_id = ? AND owner_id = ?"),
		now, id, ownerID); err != nil {
		return errors.Wrap(err, "unassigning notes")
	}
	if _, err := exe.ExecContext(ctx,
		exe.Rebind("DELETE FROM flashcard_sets WHERE folder_id = ? AND owner_id = ?"), id, ownerID); err != nil {
		return errors.Wrap(err, "deleting flashcard sets")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM folders WHERE id = ? AND owner_id = ?"), id, ownerID)
	if err != nil {
		return errors.Wrap(err, "deleting folder")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return note.ErrFolderNotFound
	}
	return nil
}
