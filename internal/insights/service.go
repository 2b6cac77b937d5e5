package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jacobarthurs/pginsights/internal/cache"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insight"
)

// Cache is the subset of cache.Store used by Service.
type Cache interface {
	Get(ctx context.Context, connection string) (cache.Entry, bool, error)
	Set(ctx context.Context, connection string, insights []insight.Insight) error
}

type cacheObserver interface {
	ObserveCache(hit bool)
}

// Target names one connection to analyze.
type Target struct {
	Name    string
	Kind    string
	ConnStr string
}

// Result is a Report plus where it came from.
type Result struct {
	Connection string    `json:"connection"`
	Cached     bool      `json:"cached"`
	CheckedAt  time.Time `json:"checked_at"`
	Report
}

// Service wraps a Manager with session lifecycle and caching.
type Service struct {
	manager  *Manager
	open     db.Opener
	cache    Cache
	log      zerolog.Logger
	observer Observer
	now      func() time.Time
}

type ServiceOption func(*Service)

// WithCache enables the insight cache. A nil cache leaves it disabled.
func WithCache(c Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

func WithServiceLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

func WithServiceObserver(o Observer) ServiceOption {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

func NewService(manager *Manager, open db.Opener, opts ...ServiceOption) *Service {
	s := &Service{
		manager:  manager,
		open:     open,
		log:      zerolog.Nop(),
		observer: noopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run returns the cached insights for t when fresh and refresh is false.
// Otherwise it opens a session, runs every check and caches a completed
// report. The session is closed on every path.
func (s *Service) Run(ctx context.Context, t Target, refresh bool) (Result, error) {
	log := s.log.With().Str("connection", t.Name).Logger()
	kind := db.NormalizeKind(t.Kind)

	if s.cache != nil && !refresh {
		entry, ok, err := s.cache.Get(ctx, t.Name)
		if err != nil {
			log.Warn().Err(err).Msg("cache lookup failed")
		}
		if co, isCO := s.observer.(cacheObserver); isCO && err == nil {
			co.ObserveCache(ok)
		}
		if ok {
			log.Debug().Time("checked_at", entry.CheckedAt).Msg("cache hit")
			return Result{
				Connection: t.Name,
				Cached:     true,
				CheckedAt:  entry.CheckedAt,
				Report: Report{
					Kind:     kind,
					State:    StateCompleted,
					Insights: nonNil(entry.Insights),
				},
			}, nil
		}
		log.Debug().Msg("cache miss")
	}

	session, err := s.open(ctx, kind, t.ConnStr)
	if errors.Is(err, db.ErrUnsupportedKind) {
		return Result{}, err
	}
	if err != nil {
		log.Warn().Err(err).Msg("opening session failed")
		report := Report{
			Kind:      kind,
			State:     StateBlocked,
			BlockedBy: BlockedByPrerequisites,
			Insights: []insight.Insight{
				insight.Critical(insight.KindConnectivityFailure, "database", "Database Unreachable", err).
					With("description", fmt.Sprintf("Failed to open a session: %v", err)),
			},
		}
		s.observer.ObserveRun(report.State.String(), report.Insights)
		return Result{Connection: t.Name, CheckedAt: s.now(), Report: report}, nil
	}
	defer func() {
		if err := session.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("closing session failed")
		}
	}()

	report := s.manager.Run(ctx, session.Kind(), session)

	if s.cache != nil && report.State == StateCompleted {
		if err := s.cache.Set(ctx, t.Name, report.Insights); err != nil {
			log.Warn().Err(err).Msg("cache write failed")
		}
	}
	return Result{Connection: t.Name, CheckedAt: s.now(), Report: report}, nil
}

func nonNil(in []insight.Insight) []insight.Insight {
	if in == nil {
		return []insight.Insight{}
	}
	return in
}
