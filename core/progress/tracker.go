// Package progress relays lecture processing progress from the pipeline to the clients streaming it.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	NowFunc = time.Now // mockable

	ErrNotFound = errors.New("progress not found")
)

const subscriptionBuffer = 16

// Update is one progress message; the latest one wins.
type Update struct {
	Progress   int    `json:"progress"`
	Phase      string `json:"phase"`
	EtaSeconds *int   `json:"etaSeconds"`
	Done       bool   `json:"done"`
}

// Clamp bounds progress to [0, 100].
func Clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Seconds is a helper to build Update.EtaSeconds.
func Seconds(d time.Duration) *int {
	s := int(d.Round(time.Second) / time.Second)
	if s < 0 {
		s = 0
	}
	return &s
}

type entry struct {
	ownerID string
	last    Update
	touched time.Time
	subs    map[*Subscription]struct{}
}

// Tracker holds the in-flight progress channels. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*entry)}
}

// Create opens a new progress channel and returns its id.
func (t *Tracker) Create(ownerID string) string {
	id := uuid.New().String()
	t.mu.Lock()
	t.entries[id] = &entry{
		ownerID: ownerID,
		last:    Update{Phase: "Preparing your lecture..."},
		touched: NowFunc(),
		subs:    make(map[*Subscription]struct{}),
	}
	t.mu.Unlock()
	return id
}

// Owner returns the user the channel was created for.
func (t *Tracker) Owner(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return "", false
	}
	return e.ownerID, true
}

// Publish records u as the latest update of id and fans it out.
// A done update closes every subscription once delivered. Unknown ids are ignored.
func (t *Tracker) Publish(id string, u Update) bool {
	u.Progress = Clamp(u.Progress)

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return false
	}
	e.last = u
	e.touched = NowFunc()
	for sub := range e.subs {
		sub.deliver(u)
		if u.Done {
			sub.closeLocked()
			delete(e.subs, sub)
		}
	}
	return true
}

// Latest returns the last update published on id.
func (t *Tracker) Latest(id string) (Update, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return Update{}, ErrNotFound
	}
	return e.last, nil
}

// Subscribe starts listening on id. The latest update is replayed first.
// The subscription must be closed by the caller; it is closed automatically after a done update.
func (t *Tracker) Subscribe(id string) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, ErrNotFound
	}

	sub := &Subscription{
		ch: make(chan Update, subscriptionBuffer),
	}
	sub.unsubscribe = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if e, ok := t.entries[id]; ok {
			delete(e.subs, sub)
		}
		sub.closeLocked()
	}

	sub.deliver(e.last)
	if e.last.Done {
		sub.closeLocked()
	} else {
		e.subs[sub] = struct{}{}
	}
	return sub, nil
}

// Sweep drops the channels untouched for longer than maxAge and returns how many were dropped.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	cutoff := NowFunc().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for id, e := range t.entries {
		if e.touched.Before(cutoff) {
			for sub := range e.subs {
				sub.closeLocked()
			}
			delete(t.entries, id)
			n++
		}
	}
	return n
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Subscription receives the updates of one progress channel on C.
type Subscription struct {
	ch          chan Update
	closed      bool
	once        sync.Once
	unsubscribe func()
}

// C is closed when the channel is done, swept or the subscription is closed.
func (s *Subscription) C() <-chan Update { return s.ch }

// Close stops the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.unsubscribe)
}

// deliver never blocks: when the buffer is full the oldest update is dropped.
// callers hold the tracker lock.
func (s *Subscription) deliver(u Update) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- u:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

func (s *Subscription) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
