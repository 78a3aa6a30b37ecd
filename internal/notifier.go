package internal

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification is a one-shot local alert, identified by the subscription id it belongs to.
type Notification struct {
	ID     uuid.UUID `json:"id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	FireAt time.Time `json:"fireAt"`
}

// Notifier is the platform notification facility. At most one pending
// notification exists per id; scheduling an existing id replaces it.
type Notifier interface {
	RequestAuthorization(ctx context.Context) (bool, error)
	Schedule(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id uuid.UUID) error
	CancelAll(ctx context.Context) error
	Pending(ctx context.Context) ([]Notification, error)
}

// LocalNotifier delivers notifications in-process with timers. It only fires
// while the process runs, which is what watch mode provides.
type LocalNotifier struct {
	authorized bool
	out        io.Writer
	log        zerolog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*localPending
}

type localPending struct {
	n     Notification
	timer *time.Timer
}

// NewLocalNotifier creates a notifier that writes fired notifications to out.
func NewLocalNotifier(authorized bool, out io.Writer, log zerolog.Logger) *LocalNotifier {
	return &LocalNotifier{
		authorized: authorized,
		out:        out,
		log:        log.With().Str("component", "notifier").Logger(),
		pending:    map[uuid.UUID]*localPending{},
	}
}

func (l *LocalNotifier) RequestAuthorization(context.Context) (bool, error) {
	return l.authorized, nil
}

func (l *LocalNotifier) Schedule(_ context.Context, n Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cancelLocked(n.ID)
	p := &localPending{n: n}
	p.timer = time.AfterFunc(time.Until(n.FireAt), func() { l.fire(p) })
	l.pending[n.ID] = p
	return nil
}

func (l *LocalNotifier) fire(p *localPending) {
	l.mu.Lock()
	if l.pending[p.n.ID] != p {
		// replaced or cancelled after the timer started
		l.mu.Unlock()
		return
	}
	delete(l.pending, p.n.ID)
	l.mu.Unlock()

	l.log.Info().Str("id", p.n.ID.String()).Str("title", p.n.Title).Msg(p.n.Body)
	if l.out != nil {
		fmt.Fprintf(l.out, "[%s] %s: %s\n", p.n.FireAt.Format("2006-01-02 15:04"), p.n.Title, p.n.Body)
	}
}

func (l *LocalNotifier) Cancel(_ context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelLocked(id)
	return nil
}

func (l *LocalNotifier) cancelLocked(id uuid.UUID) {
	if p, ok := l.pending[id]; ok {
		p.timer.Stop()
		delete(l.pending, id)
	}
}

func (l *LocalNotifier) CancelAll(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range l.pending {
		l.cancelLocked(id)
	}
	return nil
}

// Pending returns the scheduled notifications ordered by fire time.
func (l *LocalNotifier) Pending(context.Context) ([]Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedNotifications(l.pending), nil
}

func sortedNotifications(pending map[uuid.UUID]*localPending) []Notification {
	result := make([]Notification, 0, len(pending))
	for _, p := range pending {
		result = append(result, p.n)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FireAt.Equal(result[j].FireAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].FireAt.Before(result[j].FireAt)
	})
	return result
}
