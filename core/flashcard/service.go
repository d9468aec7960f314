package flashcard

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound     = errors.New("flashcard set not found")
	ErrCardNotFound = errors.New("flashcard not found")
)

type (
	Repository interface {
		QuerySets(ctx context.Context, ownerID, folderID string, exec ...core.DBExecutor) ([]Set, error)
		// GetSet returns the set with its cards ordered by position.
		GetSet(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (Set, error)
		CreateSet(ctx context.Context, s Set, exec ...core.DBExecutor) (Set, error)
		DeleteSet(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error
		GetCard(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (Flashcard, error)
		UpdateCardReview(ctx context.Context, c Flashcard, exec ...core.DBExecutor) (Flashcard, error)
		// RefreshStudied recounts the cards of the set that were reviewed at least once.
		RefreshStudied(ctx context.Context, setID string, exec ...core.DBExecutor) error
	}

	Service interface {
		// QuerySets lists the owner's sets, without cards; folderID may be empty.
		QuerySets(ctx context.Context, ownerID, folderID string) ([]Set, error)
		GetSet(ctx context.Context, ownerID, id string) (Set, error)
		Generate(ctx context.Context, usr user.User, req GenerateRequest) (Set, error)
		RecordReview(ctx context.Context, ownerID, cardID string, correct bool) (Flashcard, error)
		DeleteSet(ctx context.Context, ownerID, id string) error
		Stats(ctx context.Context, ownerID, folderID string) (Stats, error)
	}

	service struct {
		db        core.DB
		repo      Repository
		notes     note.Service
		ai        core.AIService
		quota     quota.Service
		logger    core.Logger
		maxTokens int
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(
	db core.DB,
	repo Repository,
	notes note.Service,
	ai core.AIService,
	quotaSvc quota.Service,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		db:        db,
		repo:      repo,
		notes:     notes,
		ai:        ai,
		quota:     quotaSvc,
		logger:    logger,
		maxTokens: conf.AI.MaxTokens,
	}
}

func (svc *service) QuerySets(ctx context.Context, ownerID, folderID string) ([]Set, error) {
	return svc.repo.QuerySets(ctx, ownerID, folderID)
}

func (svc *service) GetSet(ctx context.Context, ownerID, id string) (Set, error) {
	return svc.repo.GetSet(ctx, ownerID, id)
}

func (svc *service) Generate(ctx context.Context, usr user.User, req GenerateRequest) (Set, error) {
	if svc.ai == nil {
		return Set{}, &core.Unavailable{Feature: "flashcard generation"}
	}
	if err := svc.quota.Check(ctx, usr.ID, usr.Plan, quota.FeatureFlashcards); err != nil {
		return Set{}, err
	}

	if _, err := svc.notes.GetFolder(ctx, usr.ID, req.FolderID); err != nil {
		if errors.Cause(err) == note.ErrFolderNotFound {
			return Set{}, core.NewValidationError(err, core.FieldError{Field: "module_id", Error: err.Error()})
		}
		return Set{}, errors.Wrap(err, "getting folder")
	}

	notes := make([]note.Note, 0, len(req.NoteIDs))
	for _, id := range req.NoteIDs {
		n, err := svc.notes.GetNote(ctx, usr.ID, id)
		if err != nil {
			if errors.Cause(err) == note.ErrNotFound {
				return Set{}, core.NewValidationError(err, core.FieldError{Field: "note_ids", Error: err.Error()})
			}
			return Set{}, errors.Wrap(err, "getting note")
		}
		notes = append(notes, n)
	}

	reply, err := svc.ai.Complete(ctx, core.CompletionRequest{
		Model:       req.Model,
		System:      systemPrompt,
		Prompt:      buildPrompt(req, notes),
		MaxTokens:   svc.maxTokens,
		Temperature: .4,
	})
	if err != nil {
		return Set{}, errors.Wrap(err, "generating flashcards")
	}
	cards, err := parseCards(reply, req)
	if err != nil {
		return Set{}, err
	}

	now := NowFunc().UTC()
	s := Set{
		OwnerID:     usr.ID,
		FolderID:    req.FolderID,
		Title:       req.Title,
		Description: describe(notes),
		Flashcards:  cards,
		TotalCards:  len(cards),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		s, err = svc.repo.CreateSet(ctx, s, tx)
		return err
	})
	if err != nil {
		return Set{}, errors.Wrap(err, "creating flashcard set")
	}

	if err := svc.quota.Consume(ctx, usr.ID, usr.Plan, quota.FeatureFlashcards); err != nil {
		svc.logger.Error(fmt.Sprintf("consuming flashcard quota of %s: %v", usr.ID, err), err, usr)
	}
	return s, nil
}

func describe(notes []note.Note) string {
	if len(notes) == 1 {
		return "Generated from " + notes[0].Title
	}
	return fmt.Sprintf("Generated from %d notes", len(notes))
}

func (svc *service) RecordReview(ctx context.Context, ownerID, cardID string, correct bool) (Flashcard, error) {
	var card Flashcard
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		c, err := svc.repo.GetCard(ctx, ownerID, cardID, tx)
		if err != nil {
			return err
		}
		c.ReviewCount++
		if correct {
			c.CorrectCount++
		}
		if card, err = svc.repo.UpdateCardReview(ctx, c, tx); err != nil {
			return errors.Wrap(err, "updating flashcard")
		}
		return errors.Wrap(svc.repo.RefreshStudied(ctx, c.SetID, tx), "refreshing set")
	})
	return card, err
}

func (svc *service) DeleteSet(ctx context.Context, ownerID, id string) error {
	return svc.repo.DeleteSet(ctx, ownerID, id)
}

func (svc *service) Stats(ctx context.Context, ownerID, folderID string) (Stats, error) {
	sets, err := svc.repo.QuerySets(ctx, ownerID, folderID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying sets")
	}
	return ComputeStats(sets), nil
}
