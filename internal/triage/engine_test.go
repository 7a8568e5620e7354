package triage

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-triage/internal/models"
)

func TestSnapshotEmpty(t *testing.T) {
	f := newFixture(t)
	got, err := f.engine.Snapshot(context.Background(), baseNow)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = f.engine.PeekNext(context.Background(), baseNow)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.engine.ClaimNext(context.Background(), baseNow)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSnapshotOnlyWaitingAndIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add(t, models.CategoryUrgent, 0, 5*time.Minute)
	b := f.add(t, models.CategoryImmediate, 0, time.Minute)
	c := f.add(t, models.CategoryStandard, 0, 80*time.Minute)
	_, err := f.ctrl.Transition(ctx, a.ID, models.StatusCalled)
	require.NoError(t, err)

	first, err := f.engine.Snapshot(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID, b.ID}, ids(first))

	second, err := f.engine.Snapshot(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPeekDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.add(t, models.CategoryUrgent, 0, time.Minute)

	head, err := f.engine.PeekNext(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, p.ID, head.ID)

	again, err := f.engine.PeekNext(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Empty(t, f.repo.commits())
}

func TestSnapshotReflectsClockAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	standard := f.add(t, models.CategoryStandard, 0, 70*time.Minute)
	urgent := f.add(t, models.CategoryUrgent, 0, 0)

	now, err := f.engine.Snapshot(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, []string{urgent.ID, standard.ID}, ids(now))

	// Ten minutes later the standard entry has breached its 75 minute budget.
	later, err := f.engine.Snapshot(ctx, baseNow.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{standard.ID, urgent.ID}, ids(later))
}

func TestClaimNextMarksCalledAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	contacts := []models.Contact{
		{Kind: models.ContactPatient, Phone: "+551100000001"},
		{Kind: models.ContactCompanion, Phone: "+551100000002"},
	}
	p := f.add(t, models.CategoryVeryUrgent, 0, time.Minute, contacts...)

	got, err := f.engine.ClaimNext(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, models.StatusCalled, got.Status)

	stored, err := f.repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalled, stored.Status)

	notices := f.notifier.notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "called:"+p.Ticket, notices[0].message)

	trail, err := f.repo.AuditTrail(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "called", trail[0].Event)
}

func TestConcurrentClaimsSingleEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.add(t, models.CategoryUrgent, 0, time.Minute)

	var wg sync.WaitGroup
	results := make([]error, 2)
	claimed := make([]models.Patient, 2)
	start := make(chan struct{})
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			claimed[i], results[i] = f.engine.ClaimNext(ctx, baseNow)
		}(i)
	}
	close(start)
	wg.Wait()

	var wins, notFound int
	for i, err := range results {
		switch {
		case err == nil:
			wins++
			assert.Equal(t, e.ID, claimed[i].ID)
			assert.Equal(t, models.StatusCalled, claimed[i].Status)
		case errors.Is(err, models.ErrNotFound):
			notFound++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, notFound)
}

func TestConcurrentClaimsDrainInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cats := []models.Category{
		models.CategoryImmediate, models.CategoryVeryUrgent, models.CategoryUrgent,
		models.CategoryStandard, models.CategoryNonUrgent,
	}
	rng := rand.New(rand.NewSource(7))
	const n = 40
	for i := 0; i < n; i++ {
		f.add(t, cats[rng.Intn(len(cats))], rng.Intn(5), time.Duration(rng.Intn(200))*time.Minute)
	}
	expected, err := f.engine.Snapshot(ctx, baseNow)
	require.NoError(t, err)
	require.Len(t, expected, n)

	var wg sync.WaitGroup
	var mu sync.Mutex
	got := map[string]int{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := f.engine.ClaimNext(ctx, baseNow)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			got[p.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, got, n)
	for id, count := range got {
		assert.Equal(t, 1, count, "entry %s claimed more than once", id)
	}
	// With a fixed clock each claim takes the head of what remains, so the
	// commit order is the single-threaded order.
	assert.Equal(t, ids(expected), f.repo.commits())

	_, err = f.engine.ClaimNext(ctx, baseNow)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestClaimNextRetriesAfterLostRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	head := f.add(t, models.CategoryImmediate, 0, time.Minute)
	second := f.add(t, models.CategoryUrgent, 0, time.Minute)

	raced := false
	f.repo.beforeCAS = func(id string, from, to models.Status) error {
		if id == head.ID && !raced {
			raced = true
			// Another writer moves the head first.
			_, err := f.repo.Memory.UpdateStatus(ctx, id, models.StatusWaiting, models.StatusCalled)
			require.NoError(t, err)
		}
		return nil
	}

	got, err := f.engine.ClaimNext(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.True(t, raced)
}

func TestClaimNextRetriesWhenHeadIsDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	head := f.add(t, models.CategoryImmediate, 0, time.Minute)
	second := f.add(t, models.CategoryUrgent, 0, time.Minute)

	f.repo.beforeCAS = func(id string, from, to models.Status) error {
		if id == head.ID {
			require.NoError(t, f.repo.DeletePatient(ctx, id))
		}
		return nil
	}

	got, err := f.engine.ClaimNext(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, models.StatusCalled, got.Status)

	remaining, err := f.engine.Snapshot(ctx, baseNow)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestClaimNextSurfacesConflictAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, models.CategoryUrgent, 0, time.Minute)

	attempts := 0
	f.repo.beforeCAS = func(string, models.Status, models.Status) error {
		attempts++
		return models.ErrConflict
	}
	_, err := f.engine.ClaimNext(ctx, baseNow)
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Equal(t, DefaultMaxAttempts, attempts)
}

type countingLocker struct {
	mu    sync.Mutex
	locks int
	fail  error
}

func (l *countingLocker) Lock(context.Context) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	l.locks++
	return func() {}, nil
}

func TestClaimNextUsesLocker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	locker := &countingLocker{}
	f.engine.locker = locker
	f.add(t, models.CategoryUrgent, 0, time.Minute)

	_, err := f.engine.ClaimNext(ctx, baseNow)
	require.NoError(t, err)
	assert.Equal(t, 1, locker.locks)

	locker.fail = errBoom
	f.add(t, models.CategoryUrgent, 0, time.Minute)
	_, err = f.engine.ClaimNext(ctx, baseNow)
	assert.ErrorIs(t, err, errBoom)
}

func TestBackoffWithJitter(t *testing.T) {
	base := time.Millisecond
	max := 8 * time.Millisecond
	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffWithJitter(base, max, attempt)
		assert.GreaterOrEqual(t, d, base/2)
		assert.Less(t, d, max)
	}
	assert.Equal(t, base, backoffWithJitter(base, max, 0))
}
