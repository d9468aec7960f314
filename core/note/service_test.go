package note

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kalamu/core"
)

type fakeRepo struct {
	Repository
	notes   map[string]Note
	folders map[string]Folder
	vectors map[string][]float32
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		notes:   make(map[string]Note),
		folders: make(map[string]Folder),
		vectors: make(map[string][]float32),
	}
}

func (r *fakeRepo) QueryNotes(_ context.Context, ownerID string, filter *QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]Note, error) {
	q := strings.ToLower(filter.Search)
	var notes []Note
	for _, n := range r.notes {
		if n.OwnerID != ownerID {
			continue
		}
		if strings.Contains(strings.ToLower(n.Title), q) || strings.Contains(strings.ToLower(n.Content), q) {
			notes = append(notes, n)
		}
	}
	return notes, nil
}

func (r *fakeRepo) GetNote(_ context.Context, ownerID, id string, _ ...core.DBExecutor) (Note, error) {
	n, ok := r.notes[id]
	if !ok || n.OwnerID != ownerID {
		return Note{}, ErrNotFound
	}
	return n, nil
}

func (r *fakeRepo) CreateNote(_ context.Context, n Note, _ ...core.DBExecutor) (Note, error) {
	n.ID = "n" + string(rune('0'+len(r.notes)+1))
	r.notes[n.ID] = n
	return n, nil
}

func (r *fakeRepo) UpdateNote(_ context.Context, n Note, _ ...core.DBExecutor) (Note, error) {
	r.notes[n.ID] = n
	return n, nil
}

func (r *fakeRepo) SetNoteEmbedding(_ context.Context, id string, vec []float32, _ ...core.DBExecutor) error {
	r.vectors[id] = vec
	return nil
}

func (r *fakeRepo) QueryNoteEmbeddings(context.Context, string, ...core.DBExecutor) (map[string][]float32, error) {
	return r.vectors, nil
}

func (r *fakeRepo) GetFolder(_ context.Context, ownerID, id string, _ ...core.DBExecutor) (Folder, error) {
	f, ok := r.folders[id]
	if !ok || f.OwnerID != ownerID {
		return Folder{}, ErrFolderNotFound
	}
	return f, nil
}

type fakeEmbedder struct {
	calls int
	vec   []float32
}

func (e *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.calls++
	return e.vec, nil
}

func TestService_CreateNote(t *testing.T) {
	repo := newFakeRepo()
	repo.folders["f1"] = Folder{ID: "f1", OwnerID: "u1", Name: "Biology"}
	svc := NewService(nil, repo, nil, core.NopLogger{})
	ctx := context.Background()

	n, err := svc.CreateNote(ctx, "u1", NewNote{Content: "<p>hi</p><script>alert(1)</script>"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, n.Title)
	assert.Equal(t, TypeManual, n.Type)
	assert.NotContains(t, n.Content, "script")
	assert.Nil(t, n.FolderID)

	folderID := "f1"
	n, err = svc.CreateNote(ctx, "u1", NewNote{Title: "Cells", FolderID: &folderID})
	require.NoError(t, err)
	require.NotNil(t, n.FolderID)
	assert.Equal(t, "f1", *n.FolderID)

	unknown := "nope"
	_, err = svc.CreateNote(ctx, "u1", NewNote{FolderID: &unknown})
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "folder_id", verr.Fields[0].Field)
}

func TestService_UpdateNote(t *testing.T) {
	repo := newFakeRepo()
	emb := &fakeEmbedder{vec: []float32{1, 0}}
	svc := NewService(nil, repo, emb, core.NopLogger{})
	ctx := context.Background()
	NowFunc = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	defer func() { NowFunc = time.Now }()

	n, err := svc.CreateNote(ctx, "u1", NewNote{Title: "Draft"})
	require.NoError(t, err)

	content := "<p>autosaved</p>"
	n, err = svc.UpdateNote(ctx, "u1", n.ID, NotePatch{Content: &content}, true)
	require.NoError(t, err)
	assert.Equal(t, content, n.Content)
	assert.Equal(t, 0, emb.calls, "autosaves skip the embedding")
	assert.Empty(t, repo.vectors)

	title := ""
	n, err = svc.UpdateNote(ctx, "u1", n.ID, NotePatch{Title: &title}, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, n.Title)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, []float32{1, 0}, repo.vectors[n.ID])

	_, err = svc.UpdateNote(ctx, "u2", n.ID, NotePatch{Content: &content}, true)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}

func TestService_Search(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now().UTC()
	repo.notes["a"] = Note{ID: "a", OwnerID: "u1", Title: "Photosynthesis basics", Content: "<p>light reactions</p>", UpdatedAt: now}
	repo.notes["b"] = Note{ID: "b", OwnerID: "u1", Title: "Cell biology", Content: "<p>chloroplasts</p>", UpdatedAt: now}
	repo.notes["c"] = Note{ID: "c", OwnerID: "u1", Title: "French verbs", Content: "<p>etre</p>", UpdatedAt: now}
	repo.vectors["a"] = []float32{1, 0}
	repo.vectors["b"] = []float32{0.9, 0.1}
	repo.vectors["c"] = []float32{0, 1}
	ctx := context.Background()

	t.Run("keyword only", func(t *testing.T) {
		svc := NewService(nil, repo, nil, core.NopLogger{})
		results, err := svc.Search(ctx, "u1", "  PHOTOSYNTHESIS ", 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].Note.ID)
		assert.Equal(t, 1.5, results[0].Score)
	})

	t.Run("semantic blend", func(t *testing.T) {
		svc := NewService(nil, repo, &fakeEmbedder{vec: []float32{1, 0}}, core.NopLogger{})
		results, err := svc.Search(ctx, "u1", "photosynthesis", 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "a", results[0].Note.ID)
		assert.Equal(t, "b", results[1].Note.ID)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("blank query", func(t *testing.T) {
		svc := NewService(nil, repo, nil, core.NopLogger{})
		results, err := svc.Search(ctx, "u1", "   ", 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestService_Export(t *testing.T) {
	repo := newFakeRepo()
	repo.notes["a"] = Note{ID: "a", OwnerID: "u1", Title: "Week <1>", Content: "<p>Hello <strong>world</strong></p>"}
	svc := NewService(nil, repo, nil, core.NopLogger{})
	ctx := context.Background()

	tests := []struct {
		name    string
		format  ExportFormat
		want    []string
		wantErr error
	}{
		{name: "html", format: FormatHTML, want: []string{"<h1>Week &lt;1&gt;</h1>", "<strong>world</strong>"}},
		{name: "default", format: "", want: []string{"<h1>Week &lt;1&gt;</h1>"}},
		{name: "markdown", format: FormatMarkdown, want: []string{"# Week <1>", "Hello **world**"}},
		{name: "unknown", format: "docx", wantErr: ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := svc.Export(ctx, "u1", "a", tt.format)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, body, w)
			}
		})
	}
}
