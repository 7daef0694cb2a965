package focus

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"focus-keeper/internal/apperr"
	"focus-keeper/internal/keyqueue"
	"focus-keeper/internal/metrics"
	"focus-keeper/internal/storage"
	"focus-keeper/internal/userdoc"
)

const (
	MinDurationMin     = 1
	MaxDurationMin     = 720
	DefaultDurationMin = 25

	// MaxKeyBytes bounds a user key.
	MaxKeyBytes = 256
)

// Service applies session transitions to per-user documents. Every call
// runs as one operation on the user's queue lane: load, transition, save.
type Service struct {
	store   storage.Store
	queue   *keyqueue.Queue
	clock   clockwork.Clock
	newID   func() string
	journal storage.Recorder
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// WithJournal records committed transitions. Journal failures are logged
// and never fail the mutation.
func WithJournal(r storage.Recorder) Option {
	return func(s *Service) { s.journal = r }
}

func NewService(store storage.Store, queue *keyqueue.Queue, opts ...Option) *Service {
	s := &Service{
		store: store,
		queue: queue,
		clock: clockwork.NewRealClock(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the user's document, creating the default view if the user
// was never seen. The read is ordered with the user's pending mutations.
func (s *Service) State(ctx context.Context, key string) (*userdoc.Document, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return keyqueue.Run(ctx, s.queue, key, func(ctx context.Context) (*userdoc.Document, error) {
		return s.store.Load(ctx, key)
	})
}

func (s *Service) Start(ctx context.Context, key string, durationMin int) (*userdoc.Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if durationMin < MinDurationMin || durationMin > MaxDurationMin {
		return nil, apperr.Validation(fmt.Sprintf("durationMin must be between %d and %d", MinDurationMin, MaxDurationMin))
	}
	sess, err := keyqueue.Run(ctx, s.queue, key, func(ctx context.Context) (*userdoc.Session, error) {
		doc, err := s.store.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		started, err := StartSession(doc, s.newID(), durationMin, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if err := s.store.Save(ctx, key, doc); err != nil {
			return nil, err
		}
		out := started.Clone()
		return &out, nil
	})
	if err != nil {
		metrics.SessionTransitions.WithLabelValues("start", apperr.KindOf(err).String()).Inc()
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues("start", "ok").Inc()
	s.record(storage.EventSessionStarted, key, sess)
	return sess, nil
}

// Finish completes the running session. With no running session it
// returns (nil, nil) and writes nothing, so retried or duplicate calls are
// harmless.
func (s *Service) Finish(ctx context.Context, key string) (*userdoc.Session, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	sess, err := keyqueue.Run(ctx, s.queue, key, func(ctx context.Context) (*userdoc.Session, error) {
		doc, err := s.store.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		finished, ok := FinishSession(doc, s.clock.Now())
		if !ok {
			return nil, nil
		}
		if err := s.store.Save(ctx, key, doc); err != nil {
			return nil, err
		}
		out := finished.Clone()
		return &out, nil
	})
	switch {
	case err != nil:
		metrics.SessionTransitions.WithLabelValues("finish", apperr.KindOf(err).String()).Inc()
		return nil, err
	case sess == nil:
		metrics.SessionTransitions.WithLabelValues("finish", "noop").Inc()
		return nil, nil
	}
	metrics.SessionTransitions.WithLabelValues("finish", "ok").Inc()
	s.record(storage.EventSessionFinished, key, sess)
	return sess, nil
}

func (s *Service) record(kind storage.EventKind, key string, sess *userdoc.Session) {
	if s.journal == nil {
		return
	}
	ev := storage.Event{
		Timestamp:   s.clock.Now().UTC(),
		UserID:      key,
		Kind:        kind,
		SessionID:   sess.ID,
		DurationMin: sess.DurationMin,
	}
	if err := s.journal.Append(ev); err != nil {
		log.Printf("journal %s for %s: %v", kind, key, err)
	}
}

func validateKey(key string) error {
	switch {
	case key == "":
		return apperr.Validation("tgId required")
	case len(key) > MaxKeyBytes:
		return apperr.Validation("tgId too long")
	}
	return nil
}
