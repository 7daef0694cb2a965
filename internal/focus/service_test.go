package focus

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-keeper/internal/apperr"
	"focus-keeper/internal/keyqueue"
	"focus-keeper/internal/storage"
	"focus-keeper/internal/userdoc"
)

type memJournal struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memJournal) Append(ev storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memJournal) LoadEvents() ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event{}, m.events...), nil
}

// flakyStore wraps a Store and fails saves while failSave is set.
type flakyStore struct {
	storage.Store
	failSave atomic.Bool
	saves    atomic.Int32
}

func (f *flakyStore) Save(ctx context.Context, key string, doc *userdoc.Document) error {
	f.saves.Add(1)
	if f.failSave.Load() {
		return apperr.Storage("save "+key, errors.New("no space left on device"))
	}
	return f.Store.Save(ctx, key, doc)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *flakyStore, clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	fs, err := storage.NewFileStore(filepath.Join(t.TempDir(), "users"), storage.WithClock(clock))
	require.NoError(t, err)
	store := &flakyStore{Store: fs}
	var n atomic.Int64
	base := []Option{
		WithClock(clock),
		WithIDGenerator(func() string { return fmt.Sprintf("s%d", n.Add(1)) }),
	}
	return NewService(store, keyqueue.New(), append(base, opts...)...), store, clock
}

func TestService_StateOfUnknownUser(t *testing.T) {
	svc, store, _ := newTestService(t)
	doc, err := svc.State(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Nil(t, doc.ActiveSession)
	assert.Empty(t, doc.Sessions)
	assert.Zero(t, doc.Profile.Points)
	assert.Zero(t, store.saves.Load())
}

func TestService_StartFinishScenario(t *testing.T) {
	ctx := context.Background()
	journal := &memJournal{}
	svc, _, clock := newTestService(t, WithJournal(journal))

	started, err := svc.Start(ctx, "u1", 25)
	require.NoError(t, err)
	assert.Equal(t, userdoc.StatusRunning, started.Status)
	assert.Equal(t, 25, started.DurationMin)

	clock.Advance(25 * time.Minute)
	finished, err := svc.Finish(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, finished)
	assert.Equal(t, userdoc.StatusCompleted, finished.Status)
	assert.GreaterOrEqual(t, finished.EndTs, finished.StartTs)
	assert.Equal(t, started.ID, finished.ID)

	doc, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, doc.ActiveSession)
	require.Len(t, doc.Sessions, 1)
	assert.Equal(t, *finished, doc.Sessions[0])

	events, _ := journal.LoadEvents()
	require.Len(t, events, 2)
	assert.Equal(t, storage.EventSessionStarted, events[0].Kind)
	assert.Equal(t, storage.EventSessionFinished, events[1].Kind)
}

func TestService_DoubleStartConflicts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	first, err := svc.Start(ctx, "u1", 25)
	require.NoError(t, err)
	_, err = svc.Start(ctx, "u1", 50)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	doc, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, doc.ActiveSession)
	assert.Equal(t, *first, *doc.ActiveSession)
}

func TestService_FinishWithoutActiveIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	s, err := svc.Finish(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Zero(t, store.saves.Load())

	doc, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, doc.ActiveSession)
	assert.Empty(t, doc.Sessions)
}

func TestService_ConcurrentFinishCompletesOnce(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	_, err := svc.Start(ctx, "u1", 25)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		completed atomic.Int32
		noops     atomic.Int32
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := svc.Finish(ctx, "u1")
			assert.NoError(t, err)
			if s != nil {
				completed.Add(1)
			} else {
				noops.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, completed.Load())
	assert.EqualValues(t, 1, noops.Load())

	doc, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Sessions, 1)
}

func TestService_InterleavedStartFinishKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		finished  []string
		conflicts atomic.Int32
	)
	// readers run alongside the writers and must only ever see a
	// consistent snapshot
	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				doc, err := svc.State(ctx, "u1")
				if !assert.NoError(t, err) {
					return
				}
				ids := map[string]bool{}
				for _, s := range doc.Sessions {
					assert.Equal(t, userdoc.StatusCompleted, s.Status)
					ids[s.ID] = true
				}
				if a := doc.ActiveSession; a != nil {
					assert.Equal(t, userdoc.StatusRunning, a.Status)
					assert.False(t, ids[a.ID], "session %s both active and completed", a.ID)
				}
			}
		}()
	}

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, err := svc.Start(ctx, "u1", 5)
				if err != nil {
					assert.True(t, apperr.Is(err, apperr.KindConflict), "unexpected error %v", err)
					conflicts.Add(1)
				}
				return
			}
			s, err := svc.Finish(ctx, "u1")
			assert.NoError(t, err)
			if s != nil {
				mu.Lock()
				finished = append(finished, s.ID)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	close(done)
	readers.Wait()

	doc, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, doc.Sessions, len(finished))
	seen := map[string]bool{}
	for _, s := range doc.Sessions {
		assert.Equal(t, userdoc.StatusCompleted, s.Status)
		assert.False(t, seen[s.ID], "session %s completed twice", s.ID)
		seen[s.ID] = true
	}
	for _, id := range finished {
		assert.True(t, seen[id])
	}
	if doc.ActiveSession != nil {
		assert.Equal(t, userdoc.StatusRunning, doc.ActiveSession.Status)
		assert.False(t, seen[doc.ActiveSession.ID])
	}
}

func TestService_HistoryInCompletionOrder(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)
	var ids []string
	for i := 0; i < 5; i++ {
		s, err := svc.Start(ctx, "u1", 5)
		require.NoError(t, err)
		clock.Advance(5 * time.Minute)
		_, err = svc.Finish(ctx, "u1")
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	doc, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, doc.Sessions, 5)
	for i, s := range doc.Sessions {
		assert.Equal(t, ids[i], s.ID)
	}
}

func TestService_StorageFailureAbortsMutation(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	store.failSave.Store(true)
	_, err := svc.Start(ctx, "u1", 25)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStorage))

	store.failSave.Store(false)
	doc, err := svc.State(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, doc.ActiveSession)

	// the lane is free again and the retry succeeds
	_, err = svc.Start(ctx, "u1", 25)
	require.NoError(t, err)
}

func TestService_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	for _, d := range []int{0, -5, MaxDurationMin + 1} {
		_, err := svc.Start(ctx, "u1", d)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "duration %d: %v", d, err)
	}
	_, err := svc.Start(ctx, "", 25)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.Finish(ctx, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Zero(t, store.saves.Load())
}

func TestService_KeyLength(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(t)

	long := strings.Repeat("é", 100)
	_, err := svc.Start(ctx, long, 25)
	require.NoError(t, err)
	clock.Advance(25 * time.Minute)
	_, err = svc.Finish(ctx, long)
	require.NoError(t, err)
	doc, err := svc.State(ctx, long)
	require.NoError(t, err)
	assert.Equal(t, long, doc.UserID)
	assert.Len(t, doc.Sessions, 1)

	saves := store.saves.Load()
	tooLong := strings.Repeat("x", MaxKeyBytes+1)
	_, err = svc.State(ctx, tooLong)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "state: %v", err)
	_, err = svc.Start(ctx, tooLong, 25)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "start: %v", err)
	_, err = svc.Finish(ctx, tooLong)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "finish: %v", err)
	assert.Equal(t, saves, store.saves.Load())
}

func TestService_DistinctUsersIndependent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("user%d", i)
			_, err := svc.Start(ctx, key, 10)
			assert.NoError(t, err)
			_, err = svc.Finish(ctx, key)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	for i := 0; i < 10; i++ {
		doc, err := svc.State(ctx, fmt.Sprintf("user%d", i))
		require.NoError(t, err)
		assert.Len(t, doc.Sessions, 1)
	}
}
