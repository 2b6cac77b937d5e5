package insights

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/pginsights/internal/cache"
	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/db/dbtest"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

type fakeOpener struct {
	session *dbtest.Fake
	err     error
	opened  int
}

func (o *fakeOpener) open(_ context.Context, kind, _ string) (db.Session, error) {
	o.opened++
	if o.err != nil {
		return nil, o.err
	}
	if kind != db.KindPostgreSQL {
		return nil, fmt.Errorf("%w: %s", db.ErrUnsupportedKind, kind)
	}
	return o.session, nil
}

func serviceHarness(t *testing.T, checks ...scriptedCheck) (*harness, *fakeOpener, *cache.Store) {
	t.Helper()
	h := newHarness()
	for i, c := range checks {
		h.add(fmt.Sprintf("c%d", i), i, c)
	}
	store, err := cache.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return h, &fakeOpener{session: dbtest.New()}, store
}

var target = Target{Name: "prod", Kind: "postgres", ConnStr: "postgres://localhost/app"}

func TestService_RunsAndCaches(t *testing.T) {
	h, opener, store := serviceHarness(t, scriptedCheck{generate: returns(finding("found"))})
	svc := NewService(NewManager(h.registry), opener.open, WithCache(store))
	ctx := context.Background()

	first, err := svc.Run(ctx, target, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, []string{"found"}, kinds(first.Insights))
	assert.Equal(t, 1, opener.session.Closed())

	second, err := svc.Run(ctx, target, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, []string{"found"}, kinds(second.Insights))
	assert.Equal(t, 1, opener.opened)

	third, err := svc.Run(ctx, target, true)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, opener.opened)
	assert.Equal(t, 2, opener.session.Closed())
}

func TestService_BlockedRunsAreNotCached(t *testing.T) {
	h, opener, store := serviceHarness(t, scriptedCheck{blocking: true, validate: returns(critical(insight.KindConnectionFailed))})
	svc := NewService(NewManager(h.registry), opener.open, WithCache(store))
	ctx := context.Background()

	res, err := svc.Run(ctx, target, false)
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, res.State)
	assert.Equal(t, 1, opener.session.Closed())

	_, ok, err := store.Get(ctx, target.Name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_WithoutCache(t *testing.T) {
	h, opener, _ := serviceHarness(t, scriptedCheck{})
	svc := NewService(NewManager(h.registry), opener.open)

	for range 2 {
		res, err := svc.Run(context.Background(), target, false)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, 2, opener.opened)
}

func TestService_OpenFailureIsInsight(t *testing.T) {
	h, opener, store := serviceHarness(t, scriptedCheck{})
	opener.err = errors.New("dial tcp: connection refused")
	obs := &recordingObserver{}
	svc := NewService(NewManager(h.registry), opener.open, WithCache(store), WithServiceObserver(obs))

	res, err := svc.Run(context.Background(), target, false)
	require.NoError(t, err)
	assert.Equal(t, StateBlocked, res.State)
	require.Len(t, res.Insights, 1)
	assert.Equal(t, insight.KindConnectivityFailure, res.Insights[0].Kind)
	assert.True(t, res.Insights[0].IsCritical())
	assert.Equal(t, []string{"blocked"}, obs.runs)
	assert.Empty(t, h.calls)
}

func TestService_UnsupportedKind(t *testing.T) {
	h, opener, _ := serviceHarness(t)
	svc := NewService(NewManager(h.registry), opener.open)

	_, err := svc.Run(context.Background(), Target{Name: "x", Kind: "oracle"}, false)
	assert.ErrorIs(t, err, db.ErrUnsupportedKind)
}

func TestService_SessionClosedAfterPanic(t *testing.T) {
	h, opener, _ := serviceHarness(t, scriptedCheck{generate: func(context.Context, *check.RunContext) ([]insight.Insight, error) {
		panic("boom")
	}})
	svc := NewService(NewManager(h.registry), opener.open)

	res, err := svc.Run(context.Background(), target, false)
	require.NoError(t, err)
	assert.Equal(t, []string{insight.KindCheckFailed}, kinds(res.Insights))
	assert.Equal(t, 1, opener.session.Closed())
}

type cacheCounter struct {
	recordingObserver
	hits, misses int
}

func (c *cacheCounter) ObserveCache(hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func TestService_CacheExpiry(t *testing.T) {
	h, opener, _ := serviceHarness(t, scriptedCheck{})
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store, err := cache.OpenInMemory(cache.WithTTL(time.Hour), cache.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	defer store.Close()
	obs := &cacheCounter{}
	svc := NewService(NewManager(h.registry), opener.open, WithCache(store), WithServiceObserver(obs))
	ctx := context.Background()

	_, err = svc.Run(ctx, target, false)
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	res, err := svc.Run(ctx, target, false)
	require.NoError(t, err)

	assert.False(t, res.Cached)
	assert.Equal(t, 2, opener.opened)
	assert.Equal(t, 0, obs.hits)
	assert.Equal(t, 2, obs.misses)
}
