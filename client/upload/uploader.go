// Package upload drives a lecture upload from file selection to the created note.
package upload

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/client"
	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/lecture"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
)

const (
	// FallbackProgress is shown while processing without a progress stream.
	FallbackProgress   = 10
	minProgress        = 8
	convertingProgress = 8
	preparingPhase     = "Preparing your lecture..."
)

var (
	ErrNoFile = errors.New("no file selected")
	ErrBusy   = errors.New("an upload is already in progress")
)

type State int

const (
	Idle State = iota
	FileSelected
	Converting
	Submitting
	Processing
	Done
	Failed
)

var stateNames = [...]string{"idle", "file selected", "converting", "submitting", "processing", "done", "failed"}

func (s State) String() string {
	if s < Idle || s > Failed {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) busy() bool {
	return s == Converting || s == Submitting || s == Processing
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Options are passed along with the upload; zero values use the server defaults.
type Options struct {
	FolderID string
	Detail   lecture.Detail
	Model    string
}

// UpgradePrompt replaces the generic error when the monthly quota is exhausted.
type UpgradePrompt struct {
	Feature     string
	Description string
	HideUpgrade bool // no higher plan to offer
	Plan        quota.Plan
	Limit       int
	Remaining   int
}

// Status is a snapshot of an upload for display.
type Status struct {
	State     State
	Filename  string
	Title     string
	Progress  int // last update wins
	Phase     string
	ETA       string
	Stage     int // index of Stages
	Streaming bool
	Err       string
	Upgrade   *UpgradePrompt
	Note      *note.Note
}

// DisplayProgress is the percentage to draw; it never shows an empty bar while working.
func (s Status) DisplayProgress() int {
	p := s.Progress
	if p == 0 {
		p = FallbackProgress
	}
	if p < minProgress {
		p = minProgress
	}
	return clamp(p)
}

// Stream is a live progress subscription.
type Stream interface {
	Updates() <-chan progress.Update
	Close()
}

// API is the part of the Kalamu API an upload needs.
type API interface {
	CreateProgress(ctx context.Context) (string, error)
	StreamProgress(ctx context.Context, id string) (Stream, error)
	ConvertToPDF(ctx context.Context, filename, contentType string, data []byte) ([]byte, error)
	UploadLecture(ctx context.Context, up client.Upload) (*note.Note, error)
}

type clientAPI struct {
	*client.Client
}

// FromClient adapts c to API.
func FromClient(c *client.Client) API { return clientAPI{c} }

func (a clientAPI) StreamProgress(ctx context.Context, id string) (Stream, error) {
	s, err := a.Client.StreamProgress(ctx, id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ConversionError is returned when the server failed to convert a PowerPoint file.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string {
	return "Failed to convert PowerPoint to PDF. " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error { return e.Err }

type Option func(*Uploader)

func WithLogger(logger core.Logger) Option {
	return func(u *Uploader) { u.logger = logger }
}

// OnChange registers fn to receive every new Status; it may be called from the stream goroutine.
func OnChange(fn func(Status)) Option {
	return func(u *Uploader) { u.onChange = fn }
}

// Uploader is the upload state machine. It is safe for concurrent use.
type Uploader struct {
	api      API
	logger   core.Logger
	onChange func(Status)

	mu           sync.Mutex
	status       Status
	file         *File
	kind         lecture.Kind
	titleEdited  bool
	stream       Stream
	streamCancel context.CancelFunc
}

func New(api API, opts ...Option) *Uploader {
	u := &Uploader{
		api:    api,
		logger: core.NopLogger{},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *Uploader) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// update applies fn to the status and notifies the listener.
func (u *Uploader) update(fn func(s *Status)) {
	u.mu.Lock()
	fn(&u.status)
	st := u.status
	u.mu.Unlock()
	u.notify(st)
}

func (u *Uploader) notify(st Status) {
	if u.onChange != nil {
		u.onChange(st)
	}
}

// Select validates f locally; a rejected file leaves the uploader Idle with a user-visible error.
func (u *Uploader) Select(f File) error {
	kind, err := lecture.ValidateUpload(f.Name, f.ContentType, int64(len(f.Data)))

	u.mu.Lock()
	if u.status.State.busy() {
		u.mu.Unlock()
		return ErrBusy
	}
	title := u.status.Title
	if err != nil {
		u.file = nil
		u.status = Status{State: Idle, Title: title, Err: err.Error()}
	} else {
		u.file, u.kind = &f, kind
		if !u.titleEdited || title == "" {
			title = lecture.DefaultTitle(f.Name)
		}
		u.status = Status{State: FileSelected, Filename: f.Name, Title: title}
	}
	st := u.status
	u.mu.Unlock()

	u.notify(st)
	return err
}

func (u *Uploader) SetTitle(title string) {
	u.mu.Lock()
	u.titleEdited = true
	u.status.Title = title
	st := u.status
	u.mu.Unlock()
	u.notify(st)
}

// Reset forgets the file and any error; it is ignored while an upload is in progress.
func (u *Uploader) Reset() {
	u.mu.Lock()
	if u.status.State.busy() {
		u.mu.Unlock()
		return
	}
	u.file, u.kind, u.titleEdited = nil, "", false
	u.status = Status{}
	st := u.status
	u.mu.Unlock()
	u.notify(st)
}

// Submit uploads the selected file and blocks until the note is created.
// Failed uploads may be submitted again.
func (u *Uploader) Submit(ctx context.Context, opts Options) (*note.Note, error) {
	u.mu.Lock()
	if u.status.State.busy() {
		u.mu.Unlock()
		return nil, ErrBusy
	}
	if u.file == nil {
		u.mu.Unlock()
		return nil, ErrNoFile
	}
	f, kind, title := *u.file, u.kind, strings.TrimSpace(u.status.Title)
	u.mu.Unlock()
	if title == "" {
		title = lecture.DefaultTitle(f.Name)
	}

	if kind.NeedsConversion() {
		u.update(func(s *Status) {
			*s = Status{State: Converting, Filename: s.Filename, Title: s.Title,
				Progress: convertingProgress, Phase: lecture.PhaseConverting}
		})
		pdf, err := u.api.ConvertToPDF(ctx, f.Name, f.ContentType, f.Data)
		if err != nil {
			if !errors.Is(err, client.ErrConversionUnavailable) {
				err = &ConversionError{Err: err}
			}
			return nil, u.fail(err)
		}
		f = File{Name: lecture.PDFFilename(f.Name), ContentType: "application/pdf", Data: pdf}
	}

	u.update(func(s *Status) {
		*s = Status{State: Submitting, Filename: s.Filename, Title: s.Title, Phase: preparingPhase}
	})
	progressID := u.openStream(ctx)
	u.update(func(s *Status) { s.State = Processing })

	n, err := u.api.UploadLecture(ctx, client.Upload{
		Filename:    f.Name,
		ContentType: f.ContentType,
		Data:        f.Data,
		Title:       title,
		FolderID:    opts.FolderID,
		ProgressID:  progressID,
		Detail:      opts.Detail,
		Model:       opts.Model,
	})
	u.Close()
	if err != nil {
		return nil, u.fail(err)
	}

	u.update(func(s *Status) {
		s.State, s.Progress, s.Phase, s.ETA = Done, 100, lecture.PhaseComplete, ""
		s.Stage = len(Stages) - 1
		s.Note = n
	})
	return n, nil
}

// openStream subscribes to the progress of the upload; failures only cost the live progress.
func (u *Uploader) openStream(ctx context.Context) string {
	id, err := u.api.CreateProgress(ctx)
	if err != nil || id == "" {
		u.logger.Warn(fmt.Sprintf("creating progress channel: %v", err))
		return ""
	}

	sctx, cancel := context.WithCancel(ctx)
	s, err := u.api.StreamProgress(sctx, id)
	if err != nil {
		cancel()
		u.logger.Warn(fmt.Sprintf("opening progress stream: %v", err))
		return id // the server still processes; we just cannot watch
	}

	u.mu.Lock()
	u.stream, u.streamCancel = s, cancel
	u.status.Streaming = true
	u.mu.Unlock()

	go u.follow(s)
	return id
}

func (u *Uploader) follow(s Stream) {
	for upd := range s.Updates() {
		u.mu.Lock()
		if u.stream != s {
			u.mu.Unlock()
			return
		}
		u.status.Progress = clamp(upd.Progress)
		if upd.Phase != "" {
			u.status.Phase = upd.Phase
			u.status.Stage = StageIndex(upd.Phase)
		}
		u.status.ETA = FormatETA(upd.EtaSeconds)
		if upd.Done {
			u.status.ETA = ""
			u.status.Streaming = false
		}
		st := u.status
		u.mu.Unlock()
		u.notify(st)
	}

	u.mu.Lock()
	if u.stream == s {
		u.status.Streaming = false
		u.status.ETA = ""
	}
	u.mu.Unlock()
}

// Close tears the progress stream down; the server keeps processing an upload already sent.
func (u *Uploader) Close() {
	u.mu.Lock()
	s, cancel := u.stream, u.streamCancel
	u.stream, u.streamCancel = nil, nil
	u.status.Streaming = false
	u.mu.Unlock()

	if s != nil {
		s.Close()
	}
	if cancel != nil {
		cancel()
	}
}

func (u *Uploader) fail(err error) error {
	prompt := upgradePrompt(err)
	u.update(func(s *Status) {
		s.State, s.ETA, s.Streaming = Failed, "", false
		if prompt != nil {
			s.Upgrade, s.Err = prompt, ""
		} else {
			s.Upgrade, s.Err = nil, err.Error()
		}
	})
	return err
}

// upgradePrompt recognizes quota errors by type or, failing that, by message.
func upgradePrompt(err error) *UpgradePrompt {
	qe, ok := quota.AsExceeded(err)
	if !ok {
		if !strings.Contains(strings.ToLower(err.Error()), "quota") {
			return nil
		}
		qe = &quota.ExceededError{Plan: quota.PlanFree, Feature: quota.FeatureLectureUpload}
	}

	p := &UpgradePrompt{
		Feature:     "Lecture Upload",
		HideUpgrade: qe.HideUpgrade(),
		Plan:        qe.Plan,
		Limit:       qe.Limit,
		Remaining:   qe.Remaining,
	}
	if p.HideUpgrade {
		p.Description = "You've used all of this month's AI usage for lecture uploads. It will reset next month. " +
			"You can still view and edit your notes."
	} else {
		p.Description = fmt.Sprintf(
			"You've reached your monthly lecture upload limit. Upgrade to Pro for %d AI-processed lecture uploads per month.",
			quota.DefaultLimits.Of(quota.PlanPro, quota.FeatureLectureUpload))
	}
	return p
}
