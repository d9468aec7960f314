// Package study runs a flashcard study session over a set.
package study

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/flashcard"
)

// DefaultCompletionDelay is how long the last answer stays on screen before the summary.
const DefaultCompletionDelay = 500 * time.Millisecond

var ErrNotStudying = errors.New("no card to answer")

type State int

const (
	Overview State = iota
	Generating
	Studying
	Complete
)

func (s State) String() string {
	switch s {
	case Overview:
		return "overview"
	case Generating:
		return "generating"
	case Studying:
		return "studying"
	case Complete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// API is the part of the Kalamu API a session needs; *client.Client implements it.
type API interface {
	GenerateSet(ctx context.Context, gr flashcard.GenerateRequest) (*flashcard.Set, error)
	GetSet(ctx context.Context, id string) (*flashcard.Set, error)
	ReviewCard(ctx context.Context, cardID string, correct bool) (*flashcard.Flashcard, error)
}

type Summary struct {
	Correct  int
	Answered int
	Accuracy int // percent
}

func accuracy(correct, answered int) int {
	if answered <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(answered) * 100))
}

type Option func(*Session)

func WithLogger(logger core.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

func WithCompletionDelay(d time.Duration) Option {
	return func(s *Session) { s.delay = d }
}

// OnComplete registers fn to receive the summary once the last card is answered.
func OnComplete(fn func(Summary)) Option {
	return func(s *Session) { s.onComplete = fn }
}

// Session is safe for concurrent use.
type Session struct {
	api        API
	logger     core.Logger
	delay      time.Duration
	onComplete func(Summary)

	mu         sync.Mutex
	state      State
	set        flashcard.Set
	index      int // in [0, len(set.Flashcards)]
	showAnswer bool
	correct    int
	answered   int
	seen       map[int]bool // indexes counted in this run
	summary    *Summary     // set once shown
	timer      *time.Timer
	run        int // bumped by Start so stale timers are ignored
}

func New(api API, opts ...Option) *Session {
	s := &Session{
		api:    api,
		logger: core.NopLogger{},
		delay:  DefaultCompletionDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate creates a set from notes and starts studying it; on failure the session goes back to Overview.
func (s *Session) Generate(ctx context.Context, gr flashcard.GenerateRequest) (*flashcard.Set, error) {
	s.mu.Lock()
	if s.state == Generating {
		s.mu.Unlock()
		return nil, errors.New("already generating")
	}
	s.stopTimer()
	s.state = Generating
	s.mu.Unlock()

	set, err := s.api.GenerateSet(ctx, gr)
	if err != nil {
		s.mu.Lock()
		s.state = Overview
		s.mu.Unlock()
		return nil, err
	}
	s.Start(*set)
	return set, nil
}

// Open fetches a set with its cards and starts studying it.
func (s *Session) Open(ctx context.Context, setID string) (*flashcard.Set, error) {
	set, err := s.api.GetSet(ctx, setID)
	if err != nil {
		return nil, errors.Wrap(err, "getting flashcard set")
	}
	s.Start(*set)
	return set, nil
}

// Start studies set from its first card; a set without cards is complete at once.
func (s *Session) Start(set flashcard.Set) {
	s.mu.Lock()
	s.stopTimer()
	set.Flashcards = append([]flashcard.Flashcard(nil), set.Flashcards...)
	s.set = set
	s.index, s.showAnswer = 0, false
	s.correct, s.answered = 0, 0
	s.seen = make(map[int]bool, len(set.Flashcards))
	s.summary = nil
	s.run++
	s.state = Studying

	var sum *Summary
	if len(set.Flashcards) == 0 {
		s.state = Complete
		sum = &Summary{}
		s.summary = sum
	}
	s.mu.Unlock()

	if sum != nil && s.onComplete != nil {
		s.onComplete(*sum)
	}
}

// Restart studies the same set again.
func (s *Session) Restart() {
	s.mu.Lock()
	set := s.set
	s.mu.Unlock()
	s.Start(set)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Set() flashcard.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Card returns the card being studied.
func (s *Session) Card() (flashcard.Flashcard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Studying || s.index >= len(s.set.Flashcards) {
		return flashcard.Flashcard{}, false
	}
	return s.set.Flashcards[s.index], true
}

func (s *Session) ShowAnswer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showAnswer
}

func (s *Session) Reveal() {
	s.mu.Lock()
	if s.state == Studying {
		s.showAnswer = true
	}
	s.mu.Unlock()
}

// Answer records the answer to the current card and moves to the next one.
// The review is persisted best-effort: a failure is logged and the session carries on.
// Answering a card again after Back does not count it twice.
func (s *Session) Answer(ctx context.Context, correct bool) error {
	s.mu.Lock()
	if s.state != Studying || s.index >= len(s.set.Flashcards) {
		s.mu.Unlock()
		return ErrNotStudying
	}
	idx := s.index
	card := &s.set.Flashcards[idx]
	card.ReviewCount++
	if correct {
		card.CorrectCount++
	}
	if !s.seen[idx] {
		s.seen[idx] = true
		s.answered++
		if correct {
			s.correct++
		}
	}
	if idx+1 > s.set.StudiedCards {
		s.set.StudiedCards = idx + 1
	}
	cardID := card.ID
	s.index++
	s.showAnswer = false
	if s.index == len(s.set.Flashcards) {
		s.state = Complete
		sum := Summary{Correct: s.correct, Answered: s.answered, Accuracy: accuracy(s.correct, s.answered)}
		run := s.run
		s.timer = time.AfterFunc(s.delay, func() { s.complete(run, sum) })
	}
	s.mu.Unlock()

	if _, err := s.api.ReviewCard(ctx, cardID, correct); err != nil {
		s.logger.Warn(fmt.Sprintf("saving review of card %s: %v", cardID, err))
	}
	return nil
}

func (s *Session) complete(run int, sum Summary) {
	s.mu.Lock()
	if run != s.run || s.state != Complete || s.summary != nil {
		s.mu.Unlock()
		return
	}
	s.summary = &sum
	s.timer = nil
	s.mu.Unlock()

	if s.onComplete != nil {
		s.onComplete(sum)
	}
}

// Back returns to the previous card; counted answers stay counted.
func (s *Session) Back() {
	s.mu.Lock()
	if s.state == Studying && s.index > 0 {
		s.index--
		s.showAnswer = false
	}
	s.mu.Unlock()
}

// Accuracy is the running percentage of correct answers.
func (s *Session) Accuracy() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return accuracy(s.correct, s.answered)
}

// Progress returns the position in the set, eg: 2 of 10 cards done.
func (s *Session) Progress() (done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, len(s.set.Flashcards)
}

// Summary is available once the completion delay has passed.
func (s *Session) Summary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return Summary{}, false
	}
	return *s.summary, true
}

// Close cancels a pending summary.
func (s *Session) Close() {
	s.mu.Lock()
	s.stopTimer()
	s.mu.Unlock()
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
