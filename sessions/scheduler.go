package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/lm-mcp-gateway/internal/errors"
	"github.com/jrsteele09/lm-mcp-gateway/internal/metrics"
	"github.com/jrsteele09/lm-mcp-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLeadTime      = 5 * time.Minute
	DefaultSweepInterval = time.Hour
	DefaultRefreshTries  = 3
)

// Refresher renews upstream credentials for one provider kind.
type Refresher interface {
	SupportsRefresh() bool
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
}

// RefresherRegistry resolves the Refresher for a provider kind.
type RefresherRegistry interface {
	Refresher(kind string) (Refresher, bool)
}

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type pendingRefresh struct {
	timer  Timer
	fireAt time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

// Scheduler owns upstream sessions and their refresh timers. Each session has
// at most one pending refresh; rescheduling or deleting a session cancels it.
type Scheduler struct {
	store          Store
	refreshers     RefresherRegistry
	leadTime       time.Duration
	refreshEnabled bool
	refreshTries   uint
	retryInterval  time.Duration
	metrics        *metrics.Metrics
	nowFunc        func() time.Time
	afterFunc      AfterFunc

	mu      sync.Mutex
	pending map[string]*pendingRefresh
}

type SchedulerOption func(*Scheduler)

func WithLeadTime(lead time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.leadTime = lead
	}
}

// WithRefreshEnabled turns background refresh on or off. Sessions are still stored when off.
func WithRefreshEnabled(enabled bool) SchedulerOption {
	return func(s *Scheduler) {
		s.refreshEnabled = enabled
	}
}

// WithRefreshRetry sets how many attempts a refresh gets and the initial backoff between them.
func WithRefreshRetry(tries uint, initialInterval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.refreshTries = tries
		s.retryInterval = initialInterval
	}
}

func WithMetrics(m *metrics.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func WithNowFunc(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.nowFunc = now
	}
}

func WithAfterFunc(f AfterFunc) SchedulerOption {
	return func(s *Scheduler) {
		s.afterFunc = f
	}
}

func NewScheduler(store Store, refreshers RefresherRegistry, options ...SchedulerOption) (*Scheduler, error) {
	if store == nil {
		return nil, pkgerrors.New("[NewScheduler] store is required")
	}
	if refreshers == nil {
		return nil, pkgerrors.New("[NewScheduler] refresher registry is required")
	}

	s := &Scheduler{
		store:          store,
		refreshers:     refreshers,
		refreshEnabled: true,
		pending:        make(map[string]*pendingRefresh),
	}
	for _, opt := range options {
		opt(s)
	}

	if s.leadTime <= 0 {
		s.leadTime = DefaultLeadTime
	}
	if s.refreshTries == 0 {
		s.refreshTries = DefaultRefreshTries
	}
	if s.retryInterval <= 0 {
		s.retryInterval = time.Second
	}
	if s.nowFunc == nil {
		s.nowFunc = time.Now
	}
	if s.afterFunc == nil {
		s.afterFunc = realAfterFunc
	}
	return s, nil
}

// NewSessionID generates an opaque session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// Register stores a session for principal and schedules its refresh.
// An existing session with the same id is replaced along with its timer.
func (s *Scheduler) Register(ctx context.Context, sessionID, providerKind string, principal *users.Principal, creds Credentials) (*UpstreamSession, error) {
	session := &UpstreamSession{
		ID:           sessionID,
		ProviderKind: providerKind,
		Principal:    principal,
		Credentials:  creds,
		CreatedAt:    s.nowFunc(),
	}
	if err := s.store.Upsert(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(err, "[Scheduler.Register] Upsert")
	}

	s.schedule(session)
	log.Info().Str("session", sessionID).Str("provider", providerKind).Str("principal", principal.ID).
		Bool("refreshable", creds.CanRefresh()).Msg("upstream session registered")
	return session, nil
}

// Get returns a stored session.
func (s *Scheduler) Get(ctx context.Context, sessionID string) (*UpstreamSession, error) {
	return s.store.Get(ctx, sessionID)
}

// Credentials returns the current upstream credentials for a session, for tool dispatch.
func (s *Scheduler) Credentials(ctx context.Context, sessionID string) (Credentials, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Credentials{}, err
	}
	return session.Credentials, nil
}

// Delete cancels the session's pending refresh and removes it. The timer is
// cancelled before the record is removed.
func (s *Scheduler) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	s.cancelLocked(sessionID)
	s.mu.Unlock()

	if err := s.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, errors.ErrSessionNotFound) {
		return pkgerrors.Wrap(err, "[Scheduler.Delete]")
	}
	return nil
}

// PendingRefresh reports when the session's refresh will fire, if one is scheduled.
func (s *Scheduler) PendingRefresh(sessionID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return p.fireAt, true
}

// Sweep deletes every session whose credential has expired and which cannot be
// refreshed. Sessions with a refresh credential are left to the scheduler.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "[Scheduler.Sweep] List")
	}

	now := s.nowFunc()
	removed := 0
	for _, session := range list {
		if session.Credentials.CanRefresh() || !session.Credentials.Expired(now) {
			continue
		}
		if err := s.Delete(ctx, session.ID); err != nil {
			log.Err(err).Str("session", session.ID).Msg("sweep failed to delete session")
			continue
		}
		removed++
	}

	s.metrics.SessionsSwept(removed)
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("swept expired sessions")
	}
	return removed, nil
}

// RunSweeper sweeps every interval until ctx is done.
func (s *Scheduler) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Err(err).Msg("session sweep failed")
			}
		}
	}
}

// Stop cancels every pending refresh.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.pending {
		s.cancelLocked(id)
	}
}

func (s *Scheduler) schedule(session *UpstreamSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(session.ID)

	if !s.refreshEnabled || !session.Credentials.CanRefresh() {
		return
	}
	refresher, ok := s.refreshers.Refresher(session.ProviderKind)
	if !ok || !refresher.SupportsRefresh() {
		return
	}

	fireAt := session.Credentials.Expiry.Add(-s.leadTime)
	delay := fireAt.Sub(s.nowFunc())
	if delay <= 0 {
		// Left in place for manual re-authentication rather than torn down.
		log.Debug().Str("session", session.ID).Time("expiry", session.Credentials.Expiry).
			Msg("refresh window already passed, not scheduling")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingRefresh{fireAt: fireAt, ctx: ctx, cancel: cancel}
	sessionID := session.ID
	p.timer = s.afterFunc(delay, func() {
		s.fire(sessionID, p, refresher)
	})
	s.pending[sessionID] = p
}

func (s *Scheduler) cancelLocked(sessionID string) {
	if p, ok := s.pending[sessionID]; ok {
		p.timer.Stop()
		p.cancel()
		delete(s.pending, sessionID)
	}
}

func (s *Scheduler) current(sessionID string, p *pendingRefresh) bool {
	return s.pending[sessionID] == p && p.ctx.Err() == nil
}

func (s *Scheduler) fire(sessionID string, p *pendingRefresh, refresher Refresher) {
	s.mu.Lock()
	if !s.current(sessionID, p) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ctx := p.ctx
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		log.Err(err).Str("session", sessionID).Msg("refresh fired for missing session")
		s.mu.Lock()
		if s.current(sessionID, p) {
			s.cancelLocked(sessionID)
		}
		s.mu.Unlock()
		return
	}

	creds, err := s.refresh(ctx, refresher, session)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		s.metrics.Refreshed("failure")
		log.Err(err).Str("session", sessionID).Str("provider", session.ProviderKind).
			Msg("upstream refresh failed, deleting session")

		s.mu.Lock()
		stillCurrent := s.current(sessionID, p)
		if stillCurrent {
			s.cancelLocked(sessionID)
		}
		s.mu.Unlock()
		if stillCurrent {
			if err := s.store.Delete(context.Background(), sessionID); err != nil && !errors.Is(err, errors.ErrSessionNotFound) {
				log.Err(err).Str("session", sessionID).Msg("failed to delete session after refresh failure")
			}
		}
		return
	}

	if creds.RefreshToken == "" {
		creds.RefreshToken = session.Credentials.RefreshToken
	}
	session.Credentials = *creds
	session.LastRefresh = s.nowFunc()

	// The write happens under the lock so a concurrent Delete cannot be undone.
	s.mu.Lock()
	if !s.current(sessionID, p) {
		s.mu.Unlock()
		log.Debug().Str("session", sessionID).Msg("session removed during refresh, discarding credentials")
		return
	}
	delete(s.pending, sessionID)
	p.cancel()
	err = s.store.Upsert(context.Background(), session)
	s.mu.Unlock()

	if err != nil {
		s.metrics.Refreshed("failure")
		log.Err(err).Str("session", sessionID).Msg("failed to store refreshed credentials")
		return
	}

	s.metrics.Refreshed("success")
	log.Info().Str("session", sessionID).Time("expiry", creds.Expiry).Msg("upstream credentials refreshed")
	s.schedule(session)
}

func (s *Scheduler) refresh(ctx context.Context, refresher Refresher, session *UpstreamSession) (*Credentials, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.retryInterval

	return backoff.Retry(ctx, func() (*Credentials, error) {
		creds, err := refresher.Refresh(ctx, session.Credentials.RefreshToken)
		if err != nil {
			return nil, err
		}
		if creds == nil || creds.AccessToken == "" {
			return nil, backoff.Permanent(errors.ErrRefreshFailed)
		}
		return creds, nil
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(s.refreshTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn().Err(err).Str("session", session.ID).Dur("retry_in", d).Msg("upstream refresh attempt failed")
		}),
	)
}
