package lecture

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/note"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/richtext"
	"github.com/trezcool/kalamu/core/user"
)

var (
	tickInterval = time.Second // mockable

	ErrNoContent = errors.New("no readable content was found in this file")
)

// phases, as published on the progress channel
const (
	PhaseUploading  = "Uploading file"
	PhaseConverting = "Converting PowerPoint to PDF"
	PhaseExtracting = "Extracting text from file"
	PhaseGenerating = "Generating notes"
	PhaseFinalizing = "Finalizing note"
	PhaseEmbedding  = "Creating embeddings"
	PhaseComplete   = "Complete"
	PhaseFailed     = "Failed"
)

const (
	generateFrom = 40
	generateTo   = 85

	baseEstimate    = 15 * time.Second
	perPageEstimate = 2 * time.Second
	maxSourceRunes  = 120000
)

type Detail string

const (
	DetailSummary  Detail = "summary"
	DetailDetailed Detail = "detailed"
	DetailExpert   Detail = "expert"
)

func (d Detail) instructions() string {
	switch d {
	case DetailSummary:
		return "Write a concise overview focusing on the essentials: short sections and the key takeaways only."
	case DetailExpert:
		return "Write highly detailed, comprehensive notes: explain every concept, include definitions, " +
			"formulas, worked examples and how the ideas connect."
	default:
		return "Write structured notes with sections, key points and short explanations."
	}
}

// Request is one uploaded lecture.
type Request struct {
	Filename    string
	ContentType string
	Data        []byte
	Title       string  // empty: derived from Filename
	FolderID    *string // optional
	ProgressID  string  // optional
	Detail      Detail
	Model       string // empty: configured default
}

type (
	Service interface {
		// Process runs the whole pipeline and returns the created note.
		// It is not cancelled when ctx is; only ctx values are kept.
		Process(ctx context.Context, usr user.User, req Request) (note.Note, error)
	}

	service struct {
		notes     note.Service
		converter core.PDFConverter // optional
		extractor core.TextExtractor
		ai        core.AIService
		quota     quota.Service
		tracker   *progress.Tracker
		mail      core.EmailService
		logger    core.Logger
		conf      *core.Config
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(
	notes note.Service,
	converter core.PDFConverter,
	extractor core.TextExtractor,
	ai core.AIService,
	quotaSvc quota.Service,
	tracker *progress.Tracker,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		notes:     notes,
		converter: converter,
		extractor: extractor,
		ai:        ai,
		quota:     quotaSvc,
		tracker:   tracker,
		mail:      mailSvc,
		logger:    logger,
		conf:      conf,
	}
}

func (svc *service) Process(ctx context.Context, usr user.User, req Request) (note.Note, error) {
	ctx = context.WithoutCancel(ctx)
	if svc.conf.AI.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.conf.AI.Timeout)
		defer cancel()
	}

	rep := svc.tracker.Reporter(req.ProgressID)
	n, err := svc.process(ctx, usr, req, rep)
	if err != nil {
		rep.Fail(PhaseFailed)
		return note.Note{}, err
	}
	rep.Done(PhaseComplete)
	return n, nil
}

func (svc *service) process(ctx context.Context, usr user.User, req Request, rep *progress.Reporter) (note.Note, error) {
	kind, err := ValidateUpload(req.Filename, req.ContentType, int64(len(req.Data)))
	if err != nil {
		return note.Note{}, core.NewValidationError(err, core.FieldError{Field: "file", Error: err.Error()})
	}
	if svc.ai == nil {
		return note.Note{}, &core.Unavailable{Feature: "lecture processing"}
	}
	if err := svc.quota.Check(ctx, usr.ID, usr.Plan, quota.FeatureLectureUpload); err != nil {
		return note.Note{}, err
	}

	rep.Report(5, PhaseUploading, nil)
	pdf := req.Data
	if kind.NeedsConversion() {
		rep.Report(8, PhaseConverting, nil)
		if svc.converter == nil {
			return note.Note{}, &core.Unavailable{Feature: "PowerPoint conversion"}
		}
		if pdf, err = svc.converter.ConvertToPDF(ctx, req.Filename, req.Data); err != nil {
			return note.Note{}, errors.Wrap(err, "converting to pdf")
		}
	}

	rep.Report(15, PhaseExtracting, nil)
	doc, err := svc.extractor.Extract(ctx, pdf)
	if err != nil {
		return note.Note{}, errors.Wrap(err, "extracting text")
	}

	title := core.CleanString(req.Title)
	if title == "" {
		title = DefaultTitle(req.Filename)
	}

	compReq := core.CompletionRequest{
		Model:       req.Model,
		System:      systemPrompt,
		Prompt:      buildPrompt(title, doc, req.Detail),
		MaxTokens:   svc.conf.AI.MaxTokens,
		Temperature: svc.conf.AI.Temperature,
	}
	if strings.TrimSpace(doc.Text()) == "" {
		// scanned slides: let the model read the pdf itself
		compReq.Documents = []core.Document{{Filename: PDFFilename(req.Filename), MIMEType: mimePDF, Data: pdf}}
	}

	markdown, err := svc.generate(ctx, compReq, doc.PageCount, rep)
	if err != nil {
		return note.Note{}, err
	}
	if strings.TrimSpace(markdown) == "" {
		return note.Note{}, ErrNoContent
	}

	rep.Report(90, PhaseFinalizing, progress.Seconds(0))
	content, err := richtext.MarkdownToHTML(markdown)
	if err != nil {
		return note.Note{}, errors.Wrap(err, "rendering notes")
	}
	n, err := svc.notes.CreateNote(ctx, usr.ID, note.NewNote{
		Title:          title,
		Content:        content,
		FolderID:       req.FolderID,
		Type:           note.TypeLecture,
		SourceFilename: req.Filename,
		PageCount:      doc.PageCount,
	})
	if err != nil {
		return note.Note{}, errors.Wrap(err, "creating note")
	}

	rep.Report(95, PhaseEmbedding, progress.Seconds(0))
	if err := svc.notes.RefreshEmbedding(ctx, n); err != nil {
		svc.logger.Warn(fmt.Sprintf("embedding lecture note %s: %v", n.ID, err), err)
	}

	if err := svc.quota.Consume(ctx, usr.ID, usr.Plan, quota.FeatureLectureUpload); err != nil {
		svc.logger.Error(fmt.Sprintf("consuming lecture quota of %s: %v", usr.ID, err), err, usr)
	}
	svc.notifyReady(usr, n)
	return n, nil
}

// generate runs the completion while publishing interpolated progress and an ETA.
func (svc *service) generate(ctx context.Context, req core.CompletionRequest, pages int, rep *progress.Reporter) (string, error) {
	estimate := Estimate(pages)
	rep.Report(generateFrom, PhaseGenerating, progress.Seconds(estimate))

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := svc.ai.Complete(ctx, req)
		done <- result{text, err}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case res := <-done:
			if res.err != nil {
				return "", errors.Wrap(res.err, "generating notes")
			}
			return res.text, nil
		case <-ticker.C:
			pct, eta := Interpolate(time.Since(start), estimate)
			rep.Report(pct, PhaseGenerating, eta)
		}
	}
}

// Estimate guesses how long the model takes to write notes for a deck of the given size.
func Estimate(pages int) time.Duration {
	if pages < 0 {
		pages = 0
	}
	return baseEstimate + time.Duration(pages)*perPageEstimate
}

// Interpolate maps the elapsed generation time onto the generating range of the progress bar.
// Past the estimate, progress holds just below the range end and no ETA is given.
func Interpolate(elapsed, estimate time.Duration) (int, *int) {
	if estimate <= 0 || elapsed >= estimate {
		return generateTo, nil
	}
	pct := generateFrom + int(float64(generateTo-generateFrom)*float64(elapsed)/float64(estimate))
	return pct, progress.Seconds(estimate - elapsed)
}

func (svc *service) notifyReady(usr user.User, n note.Note) {
	if !svc.conf.NotifyLectureReady || svc.mail == nil || usr.Email == "" {
		return
	}
	svc.mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("Your notes for %q are ready", n.Title),
		TemplateName: "lecture_ready",
		TemplateData: map[string]interface{}{
			"Name":      usr.Name,
			"Title":     n.Title,
			"PageCount": n.PageCount,
			"NoteID":    n.ID,
		},
	})
}
