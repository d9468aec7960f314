package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/flashcard"
)

type setRow struct {
	ID           string    `db:"id"`
	OwnerID      string    `db:"owner_id"`
	FolderID     string    `db:"folder_id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	StudiedCards int       `db:"studied_cards"`
	TotalCards   int       `db:"total_cards"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r setRow) set() flashcard.Set {
	return flashcard.Set{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		FolderID:     r.FolderID,
		Title:        r.Title,
		Description:  r.Description,
		Flashcards:   []flashcard.Flashcard{},
		StudiedCards: r.StudiedCards,
		TotalCards:   r.TotalCards,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type cardRow struct {
	ID           string    `db:"id"`
	SetID        string    `db:"set_id"`
	Position     int       `db:"position"`
	Question     string    `db:"question"`
	Answer       string    `db:"answer"`
	Difficulty   string    `db:"difficulty"`
	ReviewCount  int       `db:"review_count"`
	CorrectCount int       `db:"correct_count"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r cardRow) card() flashcard.Flashcard {
	return flashcard.Flashcard{
		ID:           r.ID,
		SetID:        r.SetID,
		Position:     r.Position,
		Question:     r.Question,
		Answer:       r.Answer,
		Difficulty:   flashcard.Difficulty(r.Difficulty),
		ReviewCount:  r.ReviewCount,
		CorrectCount: r.CorrectCount,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

const setSelect = `
	SELECT s.id, s.owner_id, s.folder_id, s.title, s.description, s.studied_cards, s.created_at, s.updated_at,
		(SELECT COUNT(*) FROM flashcards c WHERE c.set_id = s.id) AS total_cards
	FROM flashcard_sets s`

const cardColumns = "id, set_id, position, question, answer, difficulty, review_count, correct_count, created_at"

type flashcardRepository struct {
	repository
}

var _ flashcard.Repository = (*flashcardRepository)(nil) // interface compliance check

func NewFlashcardRepository(exec core.DBExecutor) *flashcardRepository {
	return &flashcardRepository{repository{exec: exec}}
}

func (repo flashcardRepository) QuerySets(ctx context.Context, ownerID, folderID string, exec ...core.DBExecutor) ([]flashcard.Set, error) {
	query := setSelect + " WHERE s.owner_id = ?"
	args := []interface{}{ownerID}
	if folderID != "" {
		query += " AND s.folder_id = ?"
		args = append(args, folderID)
	}
	query += " ORDER BY s.created_at DESC"

	exe := repo.getExec(exec)
	var rows []setRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying flashcard sets")
	}
	sets := make([]flashcard.Set, 0, len(rows))
	for _, r := range rows {
		sets = append(sets, r.set())
	}
	return sets, nil
}

func (repo flashcardRepository) GetSet(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (flashcard.Set, error) {
	exe := repo.getExec(exec)
	var row setRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(setSelect+" WHERE s.id = ? AND s.owner_id = ?"), id, ownerID)
	if err != nil {
		if err = trapNoRows(err, flashcard.ErrNotFound); err == flashcard.ErrNotFound {
			return flashcard.Set{}, err
		}
		return flashcard.Set{}, errors.Wrap(err, "getting flashcard set")
	}

	var cards []cardRow
	err = sqlx.SelectContext(ctx, exe, &cards,
		exe.Rebind("SELECT "+cardColumns+" FROM flashcards WHERE set_id = ? ORDER BY position ASC"), id)
	if err != nil {
		return flashcard.Set{}, errors.Wrap(err, "querying flashcards")
	}
	s := row.set()
	for _, c := range cards {
		s.Flashcards = append(s.Flashcards, c.card())
	}
	return s, nil
}

// CreateSet inserts the set and its cards; callers run it in a transaction.
func (repo flashcardRepository) CreateSet(ctx context.Context, s flashcard.Set, exec ...core.DBExecutor) (flashcard.Set, error) {
	exe := repo.getExec(exec)
	s.ID = uuid.New().String()
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	_, err := sqlx.NamedExecContext(ctx, exe, `
		INSERT INTO flashcard_sets (id, owner_id, folder_id, title, description, studied_cards, created_at, updated_at)
		VALUES (:id, :owner_id, :folder_id, :title, :description, 0, :created_at, :updated_at)`,
		setRow{
			ID:          s.ID,
			OwnerID:     s.OwnerID,
			FolderID:    s.FolderID,
			Title:       s.Title,
			Description: s.Description,
			CreatedAt:   s.CreatedAt,
			UpdatedAt:   s.UpdatedAt,
		})
	if err != nil {
		return flashcard.Set{}, errors.Wrap(err, "inserting flashcard set")
	}

	for i := range s.Flashcards {
		c := &s.Flashcards[i]
		c.ID = uuid.New().String()
		c.SetID = s.ID
		c.Position = i
		c.ReviewCount, c.CorrectCount = 0, 0
		c.CreatedAt = s.CreatedAt
		_, err = sqlx.NamedExecContext(ctx, exe, `
			INSERT INTO flashcards (`+cardColumns+`)
			VALUES (:id, :set_id, :position, :question, :answer, :difficulty, 0, 0, :created_at)`,
			cardRow{
				ID:         c.ID,
				SetID:      c.SetID,
				Position:   c.Position,
				Question:   c.Question,
				Answer:     c.Answer,
				Difficulty: string(c.Difficulty),
				CreatedAt:  c.CreatedAt,
			})
		if err != nil {
			return flashcard.Set{}, errors.Wrap(err, "inserting flashcard")
		}
	}
	s.StudiedCards = 0
	s.TotalCards = len(s.Flashcards)
	return s, nil
}

func (repo flashcardRepository) DeleteSet(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind("DELETE FROM flashcard_sets WHERE id = ? AND owner_id = ?"), id, ownerID)
	if err != nil {
		return errors.Wrap(err, "deleting flashcard set")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return flashcard.ErrNotFound
	}
	return nil
}

func (repo flashcardRepository) GetCard(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (flashcard.Flashcard, error) {
	exe := repo.getExec(exec)
	var row cardRow
	err := sqlx.GetContext(ctx, exe, &row, exe.Rebind(`
		SELECT c.id, c.set_id, c.position, c.question, c.answer, c.difficulty, c.review_count, c.correct_count, c.created_at
		FROM flashcards c JOIN flashcard_sets s ON s.id = c.set_id
		WHERE c.id = ? AND s.owner_id = ?`), id, ownerID)
	if err != nil {
		if err = trapNoRows(err, flashcard.ErrCardNotFound); err == flashcard.ErrCardNotFound {
			return flashcard.Flashcard{}, err
		}
		return flashcard.Flashcard{}, errors.Wrap(err, "getting flashcard")
	}
	return row.card(), nil
}

func (repo flashcardRepository) UpdateCardReview(ctx context.Context, c flashcard.Flashcard, exec ...core.DBExecutor) (flashcard.Flashcard, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx,
		exe.Rebind("UPDATE flashcards SET review_count = ?, correct_count = ? WHERE id = ?"),
		c.ReviewCount, c.CorrectCount, c.ID)
	if err != nil {
		return flashcard.Flashcard{}, errors.Wrap(err, "updating flashcard")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return flashcard.Flashcard{}, flashcard.ErrCardNotFound
	}
	return c, nil
}

func (repo flashcardRepository) RefreshStudied(ctx context.Context, setID string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	_, err := exe.ExecContext(ctx, exe.Rebind(`
		UPDATE flashcard_sets SET
			studied_cards = (SELECT COUNT(*) FROM flashcards WHERE set_id = ? AND review_count > 0),
			updated_at = ?
		WHERE id = ?`),
		setID, flashcard.NowFunc().UTC(), setID)
	return errors.Wrap(err, "refreshing studied cards")
}
