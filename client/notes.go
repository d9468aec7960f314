package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/reference"
)

// NoteQuery narrows ListNotes; zero fields are not sent.
type NoteQuery struct {
	FolderID   string
	Unassigned bool
	Favorite   *bool
	Type       note.Type
	Search     string
	Ordering   []string // eg: "-updated_at"
}

func (q NoteQuery) values() url.Values {
	v := url.Values{}
	if q.FolderID != "" {
		v.Set("folder_id", q.FolderID)
	}
	if q.Unassigned {
		v.Set("unassigned", "true")
	}
	if q.Favorite != nil {
		v.Set("favorite", strconv.FormatBool(*q.Favorite))
	}
	if q.Type != "" {
		v.Set("type", string(q.Type))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if len(q.Ordering) > 0 {
		v.Set("ordering", strings.Join(q.Ordering, ","))
	}
	return v
}

func (c *Client) ListNotes(ctx context.Context, q NoteQuery) ([]note.Note, error) {
	notes := make([]note.Note, 0)
	if err := c.call(ctx, http.MethodGet, "/notes", q.values(), nil, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (c *Client) CreateNote(ctx context.Context, nn note.NewNote) (*note.Note, error) {
	var n note.Note
	if err := c.call(ctx, http.MethodPost, "/notes", nil, nn, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) GetNote(ctx context.Context, id string) (*note.Note, error) {
	var n note.Note
	if err := c.call(ctx, http.MethodGet, "/notes/"+url.PathEscape(id), nil, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// UpdateNote applies patch; skipEmbedding is set by autosaves so the search index is not rebuilt on every keystroke.
func (c *Client) UpdateNote(ctx context.Context, id string, patch note.NotePatch, skipEmbedding bool) (*note.Note, error) {
	var query url.Values
	if skipEmbedding {
		query = url.Values{"skip_embedding": {"true"}}
	}
	var n note.Note
	if err := c.call(ctx, http.MethodPatch, "/notes/"+url.PathEscape(id), query, patch, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/notes/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ToggleFavorite(ctx context.Context, id string) (*note.Note, error) {
	var n note.Note
	if err := c.call(ctx, http.MethodPost, "/notes/"+url.PathEscape(id)+"/favorite", nil, nil, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// ExportNote returns the note rendered as a standalone document.
func (c *Client) ExportNote(ctx context.Context, id string, format note.ExportFormat) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/notes/"+url.PathEscape(id)+"/export",
		url.Values{"format": {string(format)}}, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	return body, errors.Wrap(err, "reading export")
}

func (c *Client) Search(ctx context.Context, q string, limit int) ([]note.SearchResult, error) {
	query := url.Values{"q": {q}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	results := make([]note.SearchResult, 0)
	if err := c.call(ctx, http.MethodGet, "/search", query, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) ListReferences(ctx context.Context, noteID string) ([]reference.Reference, error) {
	refs := make([]reference.Reference, 0)
	if err := c.call(ctx, http.MethodGet, "/notes/"+url.PathEscape(noteID)+"/references", nil, nil, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// FetchReferences asks the AI for sources of the note, replacing the previous ones.
func (c *Client) FetchReferences(ctx context.Context, noteID string, style reference.Style) ([]reference.Reference, error) {
	refs := make([]reference.Reference, 0)
	in := reference.FetchRequest{Style: style}
	if err := c.call(ctx, http.MethodPost, "/notes/"+url.PathEscape(noteID)+"/references", nil, in, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// Folders

func (c *Client) ListFolders(ctx context.Context) ([]note.Folder, error) {
	folders := make([]note.Folder, 0)
	if err := c.call(ctx, http.MethodGet, "/folders", nil, nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

func (c *Client) CreateFolder(ctx context.Context, nf note.NewFolder) (*note.Folder, error) {
	var f note.Folder
	if err := c.call(ctx, http.MethodPost, "/folders", nil, nf, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) GetFolder(ctx context.Context, id string) (*note.Folder, error) {
	var f note.Folder
	if err := c.call(ctx, http.MethodGet, "/folders/"+url.PathEscape(id), nil, nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) UpdateFolder(ctx context.Context, id string, uf note.UpdateFolder) (*note.Folder, error) {
	var f note.Folder
	if err := c.call(ctx, http.MethodPatch, "/folders/"+url.PathEscape(id), nil, uf, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFolder unassigns the folder's notes and deletes its flashcard sets.
func (c *Client) DeleteFolder(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/folders/"+url.PathEscape(id), nil, nil, nil)
}
