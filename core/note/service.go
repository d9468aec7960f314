package note

import (
	"context"
	"fmt"
	"html"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/richtext"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound       = errors.New("note not found")
	ErrFolderNotFound = errors.New("folder not found")
	ErrInvalidFormat  = errors.New("unsupported export format")
)

const (
	snippetLen         = 160
	semanticThreshold  = 0.55
	defaultSearchLimit = 20
)

type (
	Repository interface {
		QueryNotes(ctx context.Context, ownerID string, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Note, error)
		GetNote(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (Note, error)
		CreateNote(ctx context.Context, n Note, exec ...core.DBExecutor) (Note, error)
		UpdateNote(ctx context.Context, n Note, exec ...core.DBExecutor) (Note, error)
		DeleteNote(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error
		SetNoteEmbedding(ctx context.Context, id string, vec []float32, exec ...core.DBExecutor) error
		QueryNoteEmbeddings(ctx context.Context, ownerID string, exec ...core.DBExecutor) (map[string][]float32, error)

		QueryFolders(ctx context.Context, ownerID string, exec ...core.DBExecutor) ([]Folder, error)
		GetFolder(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) (Folder, error)
		CreateFolder(ctx context.Context, f Folder, exec ...core.DBExecutor) (Folder, error)
		UpdateFolder(ctx context.Context, f Folder, exec ...core.DBExecutor) (Folder, error)
		// DeleteFolder unassigns the folder's notes and deletes its flashcard sets.
		DeleteFolder(ctx context.Context, ownerID, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		QueryNotes(ctx context.Context, ownerID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Note, error)
		GetNote(ctx context.Context, ownerID, id string) (Note, error)
		CreateNote(ctx context.Context, ownerID string, nn NewNote) (Note, error)
		// UpdateNote applies patch; the embedding is refreshed unless skipEmbedding.
		UpdateNote(ctx context.Context, ownerID, id string, patch NotePatch, skipEmbedding bool) (Note, error)
		ToggleFavorite(ctx context.Context, ownerID, id string) (Note, error)
		DeleteNote(ctx context.Context, ownerID, id string) error
		RefreshEmbedding(ctx context.Context, n Note) error
		Search(ctx context.Context, ownerID, query string, limit int) ([]SearchResult, error)
		Export(ctx context.Context, ownerID, id string, format ExportFormat) (string, error)

		QueryFolders(ctx context.Context, ownerID string) ([]Folder, error)
		GetFolder(ctx context.Context, ownerID, id string) (Folder, error)
		CreateFolder(ctx context.Context, ownerID string, nf NewFolder) (Folder, error)
		UpdateFolder(ctx context.Context, ownerID, id string, uf UpdateFolder) (Folder, error)
		DeleteFolder(ctx context.Context, ownerID, id string) error
	}

	service struct {
		db       core.DB
		repo     Repository
		embedder core.Embedder // optional
		logger   core.Logger
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(db core.DB, repo Repository, embedder core.Embedder, logger core.Logger) Service {
	return &service{
		db:       db,
		repo:     repo,
		embedder: embedder,
		logger:   logger,
	}
}

func (svc *service) QueryNotes(ctx context.Context, ownerID string, filter *QueryFilter, ordering []core.DBOrdering) ([]Note, error) {
	return svc.repo.QueryNotes(ctx, ownerID, filter, ordering)
}

func (svc *service) GetNote(ctx context.Context, ownerID, id string) (Note, error) {
	return svc.repo.GetNote(ctx, ownerID, id)
}

func (svc *service) checkFolder(ctx context.Context, ownerID string, folderID *string) error {
	if folderID == nil || *folderID == "" {
		return nil
	}
	if _, err := svc.repo.GetFolder(ctx, ownerID, *folderID); err != nil {
		if errors.Cause(err) == ErrFolderNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "folder_id", Error: err.Error()})
		}
		return errors.Wrap(err, "getting folder")
	}
	return nil
}

func (svc *service) CreateNote(ctx context.Context, ownerID string, nn NewNote) (Note, error) {
	if err := svc.checkFolder(ctx, ownerID, nn.FolderID); err != nil {
		return Note{}, err
	}

	now := NowFunc().UTC()
	n := Note{
		OwnerID:        ownerID,
		FolderID:       nn.FolderID,
		Title:          nn.Title,
		Content:        richtext.Sanitize(nn.Content),
		Type:           nn.Type,
		SourceFilename: nn.SourceFilename,
		PageCount:      nn.PageCount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if n.Type == "" {
		n.Type = TypeManual
	}
	return svc.repo.CreateNote(ctx, n)
}

func (svc *service) UpdateNote(ctx context.Context, ownerID, id string, patch NotePatch, skipEmbedding bool) (Note, error) {
	if err := svc.checkFolder(ctx, ownerID, patch.FolderID); err != nil {
		return Note{}, err
	}
	if patch.Content != nil {
		c := richtext.Sanitize(*patch.Content)
		patch.Content = &c
	}

	orig, err := svc.repo.GetNote(ctx, ownerID, id)
	if err != nil {
		return Note{}, err
	}
	n := patch.Apply(orig)
	n.UpdatedAt = NowFunc().UTC()
	if n, err = svc.repo.UpdateNote(ctx, n); err != nil {
		return Note{}, errors.Wrap(err, "updating note")
	}

	if !skipEmbedding {
		if err := svc.RefreshEmbedding(ctx, n); err != nil {
			svc.logger.Warn(fmt.Sprintf("refreshing embedding of note %s: %v", n.ID, err), err)
		}
	}
	return n, nil
}

func (svc *service) ToggleFavorite(ctx context.Context, ownerID, id string) (Note, error) {
	var n Note
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		orig, err := svc.repo.GetNote(ctx, ownerID, id, tx)
		if err != nil {
			return err
		}
		orig.IsFavorite = !orig.IsFavorite
		orig.UpdatedAt = NowFunc().UTC()
		n, err = svc.repo.UpdateNote(ctx, orig, tx)
		return err
	})
	return n, err
}

func (svc *service) DeleteNote(ctx context.Context, ownerID, id string) error {
	return svc.repo.DeleteNote(ctx, ownerID, id)
}

// RefreshEmbedding is a no-op when no embedder is configured.
func (svc *service) RefreshEmbedding(ctx context.Context, n Note) error {
	if svc.embedder == nil {
		return nil
	}
	text := strings.TrimSpace(n.Title + "\n\n" + richtext.PlainText(n.Content))
	if text == "" {
		return nil
	}
	vec, err := svc.embedder.Embed(ctx, core.Truncate(text, 8000))
	if err != nil {
		return errors.Wrap(err, "embedding note")
	}
	return errors.Wrap(svc.repo.SetNoteEmbedding(ctx, n.ID, vec), "storing embedding")
}

// Search matches the query against titles and contents, then blends in semantically close notes.
func (svc *service) Search(ctx context.Context, ownerID, query string, limit int) ([]SearchResult, error) {
	query = core.CleanString(query)
	if query == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	matches, err := svc.repo.QueryNotes(ctx, ownerID, &QueryFilter{Search: query}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}
	scores := make(map[string]float64, len(matches))
	byID := make(map[string]Note, len(matches))
	for _, n := range matches {
		byID[n.ID] = n
		scores[n.ID] = 1
		if strings.Contains(strings.ToLower(n.Title), strings.ToLower(query)) {
			scores[n.ID] += .5
		}
	}

	if svc.embedder != nil {
		if err := svc.semanticScores(ctx, ownerID, query, scores, byID); err != nil {
			svc.logger.Warn(fmt.Sprintf("semantic search: %v", err), err)
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		n := byID[id]
		results = append(results, SearchResult{
			Note:    n,
			Snippet: richtext.Snippet(n.Content, query, snippetLen),
			Score:   math.Round(score*1000) / 1000,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Note.UpdatedAt.After(results[j].Note.UpdatedAt)
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (svc *service) semanticScores(ctx context.Context, ownerID, query string, scores map[string]float64, byID map[string]Note) error {
	vectors, err := svc.repo.QueryNoteEmbeddings(ctx, ownerID)
	if err != nil || len(vectors) == 0 {
		return err
	}
	qvec, err := svc.embedder.Embed(ctx, query)
	if err != nil {
		return errors.Wrap(err, "embedding query")
	}
	for id, vec := range vectors {
		sim := cosine(qvec, vec)
		if sim < semanticThreshold {
			continue
		}
		if _, ok := byID[id]; !ok {
			n, err := svc.repo.GetNote(ctx, ownerID, id)
			if err != nil {
				continue
			}
			byID[id] = n
		}
		scores[id] += sim
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (svc *service) Export(ctx context.Context, ownerID, id string, format ExportFormat) (string, error) {
	n, err := svc.repo.GetNote(ctx, ownerID, id)
	if err != nil {
		return "", err
	}
	switch format {
	case FormatHTML, "":
		return fmt.Sprintf("<h1>%s</h1>\n%s", html.EscapeString(n.Title), n.Content), nil
	case FormatMarkdown:
		body, err := richtext.HTMLToMarkdown(n.Content)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("# %s\n\n%s\n", n.Title, body), nil
	default:
		return "", ErrInvalidFormat
	}
}

func (svc *service) QueryFolders(ctx context.Context, ownerID string) ([]Folder, error) {
	return svc.repo.QueryFolders(ctx, ownerID)
}

func (svc *service) GetFolder(ctx context.Context, ownerID, id string) (Folder, error) {
	return svc.repo.GetFolder(ctx, ownerID, id)
}

func (svc *service) CreateFolder(ctx context.Context, ownerID string, nf NewFolder) (Folder, error) {
	now := NowFunc().UTC()
	f := Folder{
		OwnerID:     ownerID,
		Name:        nf.Name,
		Color:       nf.Color,
		Description: nf.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if f.Color == "" {
		f.Color = DefaultFolderColor
	}
	return svc.repo.CreateFolder(ctx, f)
}

func (svc *service) UpdateFolder(ctx context.Context, ownerID, id string, uf UpdateFolder) (Folder, error) {
	f, err := svc.repo.GetFolder(ctx, ownerID, id)
	if err != nil {
		return Folder{}, err
	}
	if uf.Name != nil {
		f.Name = core.CleanString(*uf.Name)
	}
	if uf.Color != nil {
		f.Color = core.CleanString(*uf.Color, true /* lower */)
	}
	if uf.Description != nil {
		f.Description = core.CleanString(*uf.Description)
	}
	f.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateFolder(ctx, f)
}

func (svc *service) DeleteFolder(ctx context.Context, ownerID, id string) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		return svc.repo.DeleteFolder(ctx, ownerID, id, tx)
	})
}
