// Package workspace caches a user's notes and folders and autosaves note edits.
package workspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/kalamu/client"
	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/note"
)

const (
	DefaultAutosaveDelay = time.Second
	saveTimeout          = 30 * time.Second
	searchLimit          = 20
)

var ErrNoteNotFound = errors.New("note not found")

// Repository is where notes and folders are stored; *client.Client implements it.
type Repository interface {
	ListNotes(ctx context.Context, q client.NoteQuery) ([]note.Note, error)
	ListFolders(ctx context.Context) ([]note.Folder, error)
	CreateFolder(ctx context.Context, nf note.NewFolder) (*note.Folder, error)
	DeleteFolder(ctx context.Context, id string) error
	CreateNote(ctx context.Context, nn note.NewNote) (*note.Note, error)
	UpdateNote(ctx context.Context, id string, patch note.NotePatch, skipEmbedding bool) (*note.Note, error)
	ToggleFavorite(ctx context.Context, id string) (*note.Note, error)
	Search(ctx context.Context, q string, limit int) ([]note.SearchResult, error)
}

type View string

const (
	ViewHome   View = "home"
	ViewModule View = "module"
	ViewNote   View = "note"
	ViewSearch View = "search"
)

// Route is what the user is looking at.
type Route struct {
	View     View
	FolderID string // ViewModule
	NoteID   string // ViewNote
	Query    string // ViewSearch
}

type Option func(*Workspace)

func WithLogger(logger core.Logger) Option {
	return func(w *Workspace) { w.logger = logger }
}

func WithAutosaveDelay(d time.Duration) Option {
	return func(w *Workspace) { w.delay = d }
}

// OnSaveError registers fn to hear about failed autosaves.
func OnSaveError(fn func(noteID string, err error)) Option {
	return func(w *Workspace) { w.onSaveError = fn }
}

type pendingSave struct {
	patch note.NotePatch
	timer *time.Timer
	gen   int // bumped by every schedule
}

// Workspace is safe for concurrent use.
type Workspace struct {
	repo        Repository
	logger      core.Logger
	delay       time.Duration
	onSaveError func(noteID string, err error)

	mu        sync.Mutex
	notes     []note.Note // most recently updated first, as loaded
	folders   []note.Folder
	route     Route
	pending   map[string]*pendingSave
	stale     map[string]bool // autosaved without refreshing the embedding
	streaming map[string]bool // lecture notes still being written by the server
}

func New(repo Repository, opts ...Option) *Workspace {
	w := &Workspace{
		repo:      repo,
		logger:    core.NopLogger{},
		delay:     DefaultAutosaveDelay,
		route:     Route{View: ViewHome},
		pending:   make(map[string]*pendingSave),
		stale:     make(map[string]bool),
		streaming: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Load fetches notes and folders concurrently.
func (w *Workspace) Load(ctx context.Context) error {
	var (
		notes   []note.Note
		folders []note.Folder
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		notes, err = w.repo.ListNotes(gctx, client.NoteQuery{Ordering: []string{"-updated_at"}})
		return errors.Wrap(err, "listing notes")
	})
	g.Go(func() error {
		var err error
		folders, err = w.repo.ListFolders(gctx)
		return errors.Wrap(err, "listing folders")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// keep local edits that are not saved yet
	for i := range notes {
		if p, ok := w.pending[notes[i].ID]; ok {
			notes[i] = p.patch.Apply(notes[i])
		}
	}
	w.notes, w.folders = notes, folders
	return nil
}

func (w *Workspace) ListNotes() []note.Note {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]note.Note(nil), w.notes...)
}

func (w *Workspace) ListFolders() []note.Folder {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]note.Folder(nil), w.folders...)
}

func (w *Workspace) Note(id string) (note.Note, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.indexOf(id)
	if i < 0 {
		return note.Note{}, false
	}
	return w.notes[i], true
}

func (w *Workspace) indexOf(noteID string) int {
	for i := range w.notes {
		if w.notes[i].ID == noteID {
			return i
		}
	}
	return -1
}

func (w *Workspace) hasFolder(id string) bool {
	for _, f := range w.folders {
		if f.ID == id {
			return true
		}
	}
	return false
}

// UnassignedNotes includes notes whose folder is unknown here.
func (w *Workspace) UnassignedNotes() []note.Note {
	w.mu.Lock()
	defer w.mu.Unlock()
	var notes []note.Note
	for _, n := range w.notes {
		if n.FolderID == nil || !w.hasFolder(*n.FolderID) {
			notes = append(notes, n)
		}
	}
	return notes
}

func (w *Workspace) NotesInFolder(folderID string) []note.Note {
	w.mu.Lock()
	defer w.mu.Unlock()
	var notes []note.Note
	for _, n := range w.notes {
		if n.InFolder(folderID) {
			notes = append(notes, n)
		}
	}
	return notes
}

func (w *Workspace) CreateFolder(ctx context.Context, nf note.NewFolder) (*note.Folder, error) {
	f, err := w.repo.CreateFolder(ctx, nf)
	if err != nil {
		return nil, errors.Wrap(err, "creating folder")
	}
	w.mu.Lock()
	w.folders = append([]note.Folder{*f}, w.folders...)
	w.mu.Unlock()
	return f, nil
}

// DeleteFolder deletes the folder; its notes become unassigned.
func (w *Workspace) DeleteFolder(ctx context.Context, id string) error {
	if err := w.repo.DeleteFolder(ctx, id); err != nil {
		return errors.Wrap(err, "deleting folder")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	folders := w.folders[:0]
	for _, f := range w.folders {
		if f.ID != id {
			folders = append(folders, f)
		}
	}
	w.folders = folders
	for i := range w.notes {
		if w.notes[i].InFolder(id) {
			w.notes[i].FolderID = nil
		}
	}
	if w.route.View == ViewModule && w.route.FolderID == id {
		w.route = Route{View: ViewHome}
	}
	return nil
}

// CreateEmptyNote creates an untitled note in folderID (may be empty) and opens it.
func (w *Workspace) CreateEmptyNote(ctx context.Context, folderID string) (*note.Note, error) {
	nn := note.NewNote{Type: note.TypeManual}
	if folderID != "" {
		nn.FolderID = &folderID
	}
	n, err := w.repo.CreateNote(ctx, nn)
	if err != nil {
		return nil, errors.Wrap(err, "creating note")
	}

	w.mu.Lock()
	w.notes = append([]note.Note{*n}, w.notes...)
	w.mu.Unlock()
	if err := w.Navigate(ctx, Route{View: ViewNote, NoteID: n.ID}); err != nil {
		return n, err
	}
	return n, nil
}

// UpdateNote saves patch right away, replacing any pending autosave of the same fields.
func (w *Workspace) UpdateNote(ctx context.Context, id string, patch note.NotePatch, skipEmbedding bool) (*note.Note, error) {
	n, err := w.repo.UpdateNote(ctx, id, patch, skipEmbedding)
	if err != nil {
		return nil, errors.Wrap(err, "updating note")
	}
	w.mu.Lock()
	w.store(*n)
	if skipEmbedding {
		w.stale[id] = true
	} else {
		delete(w.stale, id)
	}
	w.mu.Unlock()
	return n, nil
}

// store replaces the cached note, keeping unsaved local edits on top.
func (w *Workspace) store(n note.Note) {
	if p, ok := w.pending[n.ID]; ok {
		n = p.patch.Apply(n)
	}
	if i := w.indexOf(n.ID); i >= 0 {
		w.notes[i] = n
		return
	}
	w.notes = append([]note.Note{n}, w.notes...)
}

func (w *Workspace) ToggleFavorite(ctx context.Context, id string) (*note.Note, error) {
	n, err := w.repo.ToggleFavorite(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "toggling favorite")
	}
	w.mu.Lock()
	w.store(*n)
	w.mu.Unlock()
	return n, nil
}

func (w *Workspace) Route() Route {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.route
}

// SelectNote opens the note, flushing the edits of the note left behind.
func (w *Workspace) SelectNote(ctx context.Context, id string) (note.Note, error) {
	n, ok := w.Note(id)
	if !ok {
		return note.Note{}, ErrNoteNotFound
	}
	return n, w.Navigate(ctx, Route{View: ViewNote, NoteID: id})
}

// Navigate changes the route; leaving a note flushes it.
func (w *Workspace) Navigate(ctx context.Context, to Route) error {
	w.mu.Lock()
	from := w.route
	w.route = to
	w.mu.Unlock()

	if from.View == ViewNote && (to.View != ViewNote || to.NoteID != from.NoteID) {
		return w.flush(ctx, from.NoteID)
	}
	return nil
}

// NavigateAway leaves the current note for home, saving it with a fresh embedding.
func (w *Workspace) NavigateAway(ctx context.Context) error {
	return w.Navigate(ctx, Route{View: ViewHome})
}

// Search runs a search and routes to its results.
func (w *Workspace) Search(ctx context.Context, q string) ([]note.SearchResult, error) {
	if err := w.Navigate(ctx, Route{View: ViewSearch, Query: q}); err != nil {
		w.logger.Warn(fmt.Sprintf("saving note before search: %v", err))
	}
	results, err := w.repo.Search(ctx, q, searchLimit)
	return results, errors.Wrap(err, "searching notes")
}

// SetStreaming marks a lecture note as being written by the server; autosave waits until it is done.
func (w *Workspace) SetStreaming(noteID string, streaming bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if streaming {
		w.streaming[noteID] = true
		if p, ok := w.pending[noteID]; ok && p.timer != nil {
			p.timer.Stop()
			p.timer = nil
			p.gen++
		}
		return
	}
	delete(w.streaming, noteID)
	if p, ok := w.pending[noteID]; ok {
		w.schedule(noteID, p)
	}
}

// Edit applies patch locally and schedules an autosave; each edit restarts the delay.
func (w *Workspace) Edit(noteID string, patch note.NotePatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.indexOf(noteID)
	if i < 0 {
		return ErrNoteNotFound
	}
	w.notes[i] = patch.Apply(w.notes[i])

	p, ok := w.pending[noteID]
	if !ok {
		p = new(pendingSave)
		w.pending[noteID] = p
	}
	p.patch = merge(p.patch, patch)
	if w.streaming[noteID] {
		return nil
	}
	w.schedule(noteID, p)
	return nil
}

// schedule (re)starts the autosave timer of p; w.mu must be held.
func (w *Workspace) schedule(noteID string, p *pendingSave) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(w.delay, func() { w.autosave(noteID, p, gen) })
}

func (w *Workspace) autosave(noteID string, p *pendingSave, gen int) {
	w.mu.Lock()
	if w.pending[noteID] != p || p.gen != gen || w.streaming[noteID] {
		w.mu.Unlock()
		return
	}
	delete(w.pending, noteID)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	w.save(ctx, noteID, p.patch, true)
}

// flush saves the pending edits of noteID now, refreshing its embedding when it was autosaved.
func (w *Workspace) flush(ctx context.Context, noteID string) error {
	w.mu.Lock()
	p, pending := w.pending[noteID]
	if pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.gen++
		delete(w.pending, noteID)
	}
	stale := w.stale[noteID]
	streaming := w.streaming[noteID]
	w.mu.Unlock()

	if streaming || (!pending && !stale) {
		if pending {
			w.mu.Lock()
			w.pending[noteID] = &pendingSave{patch: p.patch}
			w.mu.Unlock()
		}
		return nil
	}
	var patch note.NotePatch
	if pending {
		patch = p.patch
	}
	if patch.IsEmpty() {
		n, ok := w.Note(noteID)
		if !ok {
			return nil
		}
		patch.Content = &n.Content
	}
	return w.save(ctx, noteID, patch, false)
}

// Flush saves every pending edit; call it before exiting.
func (w *Workspace) Flush(ctx context.Context) error {
	w.mu.Lock()
	ids := make([]string, 0, len(w.pending)+len(w.stale))
	seen := make(map[string]bool)
	for id := range w.pending {
		ids = append(ids, id)
		seen[id] = true
	}
	for id := range w.stale {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	w.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := w.flush(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *Workspace) save(ctx context.Context, noteID string, patch note.NotePatch, skipEmbedding bool) error {
	n, err := w.repo.UpdateNote(ctx, noteID, patch, skipEmbedding)
	if err != nil {
		w.logger.Warn(fmt.Sprintf("saving note %s: %v", noteID, err))
		w.mu.Lock()
		// keep the edits for the next save, under any newer ones
		if p, ok := w.pending[noteID]; ok {
			p.patch = merge(patch, p.patch)
		} else {
			w.pending[noteID] = &pendingSave{patch: patch}
		}
		w.mu.Unlock()
		if w.onSaveError != nil {
			w.onSaveError(noteID, err)
		}
		return errors.Wrap(err, "saving note")
	}

	w.mu.Lock()
	w.store(*n)
	if skipEmbedding {
		w.stale[noteID] = true
	} else {
		delete(w.stale, noteID)
	}
	w.mu.Unlock()
	return nil
}

// merge returns a with the fields set in b.
func merge(a, b note.NotePatch) note.NotePatch {
	if b.Title != nil {
		a.Title = b.Title
	}
	if b.Content != nil {
		a.Content = b.Content
	}
	if b.FolderID != nil {
		a.FolderID = b.FolderID
	}
	if b.IsFavorite != nil {
		a.IsFavorite = b.IsFavorite
	}
	return a
}
