package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/richtext"
	"github.com/trezcool/kalamu/core/user"
)

var (
	NowFunc = time.Now // mockable

	ErrNoReferences = errors.New("no references could be found for this note")
	ErrEmptyNote    = errors.New("the note has no content to find references for")
)

const (
	maxReferences  = 8
	maxSourceRunes = 30000

	systemPrompt = "You are a research librarian. Suggest real, verifiable academic sources " +
		"(books, peer-reviewed articles, reputable reports) that support the student's notes. " +
		"Never invent DOIs or URLs; leave them empty when unsure. Reply with JSON only."
)

type (
	Repository interface {
		// QueryReferences returns the note's references ordered by creation then position.
		QueryReferences(ctx context.Context, noteID string, exec ...core.DBExecutor) ([]Reference, error)
		// ReplaceReferences deletes the note's references and stores refs instead.
		ReplaceReferences(ctx context.Context, noteID string, refs []Reference, exec ...core.DBExecutor) ([]Reference, error)
	}

	Service interface {
		Query(ctx context.Context, ownerID, noteID string) ([]Reference, error)
		Fetch(ctx context.Context, usr user.User, noteID string, req FetchRequest) ([]Reference, error)
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

func (svc *service) Query(ctx context.Context, ownerID, noteID string) ([]Reference, error) {
	if _, err := svc.notes.GetNote(ctx, ownerID, noteID); err != nil {
		return nil, err
	}
	return svc.repo.QueryReferences(ctx, noteID)
}

func (svc *service) Fetch(ctx context.Context, usr user.User, noteID string, req FetchRequest) ([]Reference, error) {
	if svc.ai == nil {
		return nil, &core.Unavailable{Feature: "academic references"}
	}
	style := req.Style
	if style == "" {
		style = DefaultStyle
	}
	if !style.Valid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "citation_style", Error: "unsupported citation style"})
	}

	n, err := svc.notes.GetNote(ctx, usr.ID, noteID)
	if err != nil {
		return nil, err
	}
	body, err := richtext.HTMLToMarkdown(n.Content)
	if err != nil {
		return nil, errors.Wrap(err, "converting note")
	}
	if strings.TrimSpace(body) == "" {
		return nil, core.NewValidationError(ErrEmptyNote)
	}

	if err := svc.quota.Check(ctx, usr.ID, usr.Plan, quota.FeatureReferences); err != nil {
		return nil, err
	}

	reply, err := svc.ai.Complete(ctx, core.CompletionRequest{
		Model:       req.Model,
		System:      systemPrompt,
		Prompt:      buildPrompt(n.Title, body, style),
		MaxTokens:   svc.maxTokens,
		Temperature: .2,
	})
	if err != nil {
		return nil, errors.Wrap(err, "fetching references")
	}
	refs, err := parseReferences(reply, noteID, style)
	if err != nil {
		return nil, err
	}

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		refs, err = svc.repo.ReplaceReferences(ctx, noteID, refs, tx)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "storing references")
	}

	if err := svc.quota.Consume(ctx, usr.ID, usr.Plan, quota.FeatureReferences); err != nil {
		svc.logger.Error(fmt.Sprintf("consuming references quota of %s: %v", usr.ID, err), err, usr)
	}
	return refs, nil
}

func buildPrompt(title, body string, style Style) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Find up to %d academic references relevant to the notes below.\n", maxReferences)
	fmt.Fprintf(&b, "Format each citation in %s style.\n", strings.ToUpper(string(style)))
	b.WriteString(`Return a JSON array of objects with the keys "title", "authors", "year" (number), ` +
		`"source", "url", "doi" and "citation".` + "\n\n")
	fmt.Fprintf(&b, "# %s\n\n%s", title, core.Truncate(body, maxSourceRunes))
	return b.String()
}

type suggestedRef struct {
	Title    string          `json:"title"`
	Authors  json.RawMessage `json:"authors"`
	Year     json.RawMessage `json:"year"`
	Source   string          `json:"source"`
	URL      string          `json:"url"`
	DOI      string          `json:"doi"`
	Citation string          `json:"citation"`
}

func parseReferences(reply, noteID string, style Style) ([]Reference, error) {
	raw := core.ExtractJSON(reply)
	if raw == "" {
		return nil, ErrNoReferences
	}
	var suggested []suggestedRef
	if strings.HasPrefix(raw, "{") {
		var wrapper struct {
			References []suggestedRef `json:"references"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return nil, errors.Wrap(err, "decoding references")
		}
		suggested = wrapper.References
	} else if err := json.Unmarshal([]byte(raw), &suggested); err != nil {
		return nil, errors.Wrap(err, "decoding references")
	}

	now := NowFunc().UTC()
	refs := make([]Reference, 0, len(suggested))
	for _, s := range suggested {
		title := strings.TrimSpace(s.Title)
		if title == "" {
			continue
		}
		ref := Reference{
			NoteID:    noteID,
			Position:  len(refs),
			Title:     title,
			Authors:   decodeAuthors(s.Authors),
			Year:      decodeYear(s.Year),
			Source:    strings.TrimSpace(s.Source),
			URL:       strings.TrimSpace(s.URL),
			DOI:       strings.TrimSpace(s.DOI),
			Citation:  strings.TrimSpace(s.Citation),
			Style:     style,
			CreatedAt: now,
		}
		if ref.Citation == "" {
			ref.Citation = fallbackCitation(ref)
		}
		refs = append(refs, ref)
		if len(refs) == maxReferences {
			break
		}
	}
	if len(refs) == 0 {
		return nil, ErrNoReferences
	}
	return refs, nil
}

// decodeAuthors accepts either a string or a list of names.
func decodeAuthors(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return strings.Join(names, ", ")
	}
	return ""
}

// decodeYear accepts either a number or a numeric string.
func decodeYear(raw json.RawMessage) int {
	var y int
	if err := json.Unmarshal(raw, &y); err == nil {
		return y
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		y, _ = strconv.Atoi(strings.TrimSpace(s))
	}
	return y
}

func fallbackCitation(ref Reference) string {
	head := ref.Authors
	if ref.Year > 0 {
		head += " (" + strconv.Itoa(ref.Year) + ")"
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{head, ref.Title, ref.Source} {
		if p = strings.TrimSuffix(strings.TrimSpace(p), "."); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ". ") + "."
}
