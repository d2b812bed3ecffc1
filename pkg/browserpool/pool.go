package browserpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/snapgate/snapgate/pkg/domain"
)

var ErrPoolClosed = errors.New("browser pool is shut down")

// Config bounds the pool. Zero values fall back to the defaults below.
type Config struct {
	MaxPoolSize         int
	MaxAge              time.Duration
	MaxUseCount         int
	IdleTimeout         time.Duration
	HealthCheckInterval time.Duration
	CreateTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxPoolSize:         5,
		MaxAge:              time.Hour,
		MaxUseCount:         50,
		IdleTimeout:         5 * time.Minute,
		HealthCheckInterval: time.Minute,
		CreateTimeout:       30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = d.MaxPoolSize
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	if c.MaxUseCount <= 0 {
		c.MaxUseCount = d.MaxUseCount
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.CreateTimeout <= 0 {
		c.CreateTimeout = d.CreateTimeout
	}
	return c
}

// Stats is an atomic snapshot of the pool counters.
type Stats struct {
	Created        uint64 `json:"created"`
	Destroyed      uint64 `json:"destroyed"`
	Borrowed       uint64 `json:"borrowed"`
	Returned       uint64 `json:"returned"`
	Evicted        uint64 `json:"evicted"`
	HealthFailures uint64 `json:"health_failures"`
	PoolSize       int    `json:"pool_size"`
	InUse          int    `json:"in_use_count"`
}

// Recorder mirrors pool events into an external metrics sink. All
// methods are called with the pool lock held and must not block.
type Recorder interface {
	SessionCreated()
	SessionDestroyed()
	SessionBorrowed()
	SessionReturned()
	SessionEvicted()
	HealthFailure()
	SetSizes(poolSize, inUse int)
}

type nopRecorder struct{}

func (nopRecorder) SessionCreated()   {}
func (nopRecorder) SessionDestroyed() {}
func (nopRecorder) SessionBorrowed()  {}
func (nopRecorder) SessionReturned()  {}
func (nopRecorder) SessionEvicted()   {}
func (nopRecorder) HealthFailure()    {}
func (nopRecorder) SetSizes(int, int) {}

// Pool is a thread-safe pool of browser sessions. The mutex guards
// bookkeeping only; session creation and page operations run outside
// it.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	factory DriverFactory

	idle    []*PooledSession
	inUse   map[string]*PooledSession
	pending int
	closed  bool

	created         uint64
	destroyed       uint64
	borrowed        uint64
	returned        uint64
	evicted         uint64
	healthFailures  uint64
	lastHealthCheck time.Time

	now func() time.Time
	rec Recorder
}

type PoolOption func(*Pool)

func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) {
		p.now = now
	}
}

func WithRecorder(rec Recorder) PoolOption {
	return func(p *Pool) {
		if rec != nil {
			p.rec = rec
		}
	}
}

func New(factory DriverFactory, cfg Config, opts ...PoolOption) *Pool {
	p := &Pool{
		cfg:     cfg.withDefaults(),
		factory: factory,
		inUse:   map[string]*PooledSession{},
		now:     time.Now,
		rec:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lastHealthCheck = p.now()
	return p
}

// Lease is a checked-out session. Release must be called on every exit
// path; passing a non-nil error latches the session unhealthy so it is
// destroyed instead of returned.
type Lease struct {
	pool    *Pool
	session *PooledSession
	once    sync.Once
}

func (l *Lease) Session() *PooledSession {
	return l.session
}

func (l *Lease) Driver() Driver {
	return l.session.Driver
}

func (l *Lease) Release(err error) {
	l.once.Do(func() {
		if err != nil {
			l.session.MarkUnhealthy()
		}
		l.pool.release(l.session, err != nil)
	})
}

// Checkout returns a session with exactly the requested window size,
// reusing a valid idle one or creating a new session under the create
// timeout.
func (p *Pool) Checkout(ctx context.Context, window domain.WindowSize, userID string) (*Lease, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	now := p.now()
	p.maybeMaintainLocked(now)

	sess := p.takeIdleLocked(now, window)
	if sess != nil {
		sess.Touch(now)
		sess.OwnerUserID = userID
		p.inUse[sess.ID] = sess
		p.borrowed++
		p.rec.SessionBorrowed()
		p.publishSizesLocked()
		p.mu.Unlock()
		return &Lease{pool: p, session: sess}, nil
	}

	// The pending count reserves a slot while the factory runs outside
	// the lock, so concurrent checkouts cannot overshoot the cap.
	if len(p.inUse)+p.pending >= p.cfg.MaxPoolSize {
		p.mu.Unlock()
		return nil, domain.NewEngineError(domain.ErrorCodePoolExhausted,
			"browser pool is at capacity")
	}
	p.pending++
	p.mu.Unlock()

	driver, err := p.createDriver(ctx, window)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.mu.Unlock()
		go closeDriver(driver)
		return nil, ErrPoolClosed
	}
	now = p.now()
	sess = newPooledSession(driver, window, now)
	sess.Touch(now)
	sess.OwnerUserID = userID
	p.created++
	p.rec.SessionCreated()
	p.inUse[sess.ID] = sess
	p.borrowed++
	p.rec.SessionBorrowed()
	p.publishSizesLocked()
	p.mu.Unlock()

	log.Debug().Str("session_id", sess.ID).Msg("Created browser session")
	return &Lease{pool: p, session: sess}, nil
}

// takeIdleLocked pops idle sessions until a reusable one is found.
// Invalid candidates are destroyed; valid ones with a different window
// size are kept for future callers.
func (p *Pool) takeIdleLocked(now time.Time, window domain.WindowSize) *PooledSession {
	var keep []*PooledSession
	var found *PooledSession

	for len(p.idle) > 0 {
		cand := p.idle[0]
		p.idle = p.idle[1:]

		if !cand.Valid(now, p.cfg) {
			p.destroyLocked(cand, true)
			continue
		}
		if cand.Window != window {
			keep = append(keep, cand)
			continue
		}
		found = cand
		break
	}

	p.idle = append(p.idle, keep...)
	return found
}

type createResult struct {
	driver Driver
	err    error
}

// createDriver runs the factory in a worker goroutine joined with the
// create timeout. On overrun the half-constructed driver is closed
// best-effort once the factory returns.
func (p *Pool) createDriver(ctx context.Context, window domain.WindowSize) (Driver, error) {
	ch := make(chan createResult, 1)
	go func() {
		driver, err := p.factory(ctx, window)
		ch <- createResult{driver: driver, err: err}
	}()

	timer := time.NewTimer(p.cfg.CreateTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, domain.WrapEngineError(domain.ErrorCodeGenericDBEngine,
				"could not create browser session", res.err)
		}
		return res.driver, nil
	case <-timer.C:
		go abandonCreate(ch)
		return nil, domain.NewEngineError(domain.ErrorCodePoolExhausted,
			"browser session creation timed out")
	case <-ctx.Done():
		go abandonCreate(ch)
		return nil, ctx.Err()
	}
}

func abandonCreate(ch <-chan createResult) {
	if res := <-ch; res.driver != nil {
		closeDriver(res.driver)
	}
}

func (p *Pool) release(sess *PooledSession, callerFailed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, held := p.inUse[sess.ID]; !held {
		// Shutdown already reaped this session.
		return
	}
	delete(p.inUse, sess.ID)
	p.returned++
	p.rec.SessionReturned()
	sess.OwnerUserID = ""

	switch {
	case callerFailed:
		p.healthFailures++
		p.rec.HealthFailure()
		p.destroyLocked(sess, false)
	case !sess.Valid(p.now(), p.cfg):
		p.destroyLocked(sess, true)
	case len(p.idle) >= p.cfg.MaxPoolSize:
		// Idle queue full: destroy rather than block.
		p.destroyLocked(sess, false)
	default:
		p.idle = append(p.idle, sess)
	}
	p.publishSizesLocked()
}

// maybeMaintainLocked drains invalid idle sessions and probes in-use
// sessions once per health-check interval.
func (p *Pool) maybeMaintainLocked(now time.Time) {
	if now.Sub(p.lastHealthCheck) < p.cfg.HealthCheckInterval {
		return
	}
	p.lastHealthCheck = now

	var keep []*PooledSession
	for _, sess := range p.idle {
		if sess.Valid(now, p.cfg) && sess.Driver.Probe() == nil {
			keep = append(keep, sess)
			continue
		}
		p.destroyLocked(sess, true)
	}
	p.idle = keep

	for _, sess := range p.inUse {
		if err := sess.Driver.Probe(); err != nil {
			sess.MarkUnhealthy()
			p.healthFailures++
			p.rec.HealthFailure()
			log.Warn().Str("session_id", sess.ID).Err(err).Msg("In-use browser session failed health probe")
		}
	}
	p.publishSizesLocked()
}

func (p *Pool) destroyLocked(sess *PooledSession, evicted bool) {
	p.destroyed++
	p.rec.SessionDestroyed()
	if evicted {
		p.evicted++
		p.rec.SessionEvicted()
	}
	go closeDriver(sess.Driver)
}

func closeDriver(d Driver) {
	if err := d.Close(); err != nil {
		log.Debug().Err(err).Msg("Browser session close failed")
	}
}

// Stats returns an atomic snapshot of the counters and sizes.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Created:        p.created,
		Destroyed:      p.destroyed,
		Borrowed:       p.borrowed,
		Returned:       p.returned,
		Evicted:        p.evicted,
		HealthFailures: p.healthFailures,
		PoolSize:       len(p.idle),
		InUse:          len(p.inUse),
	}
}

// Shutdown destroys all sessions and closes the pool. Idempotent; a
// new pool may be built afterwards (see Shared/ResetShared).
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	for _, sess := range p.idle {
		p.destroyLocked(sess, false)
	}
	p.idle = nil
	for id, sess := range p.inUse {
		delete(p.inUse, id)
		p.destroyLocked(sess, false)
	}
	p.publishSizesLocked()
	stats := Stats{
		Created:        p.created,
		Destroyed:      p.destroyed,
		Borrowed:       p.borrowed,
		Returned:       p.returned,
		Evicted:        p.evicted,
		HealthFailures: p.healthFailures,
	}
	p.mu.Unlock()

	log.Info().
		Uint64("created", stats.Created).
		Uint64("destroyed", stats.Destroyed).
		Uint64("borrowed", stats.Borrowed).
		Uint64("returned", stats.Returned).
		Uint64("evicted", stats.Evicted).
		Msg("Browser pool shut down")
}

func (p *Pool) publishSizesLocked() {
	p.rec.SetSizes(len(p.idle), len(p.inUse))
}

var (
	sharedMu   sync.Mutex
	sharedPool *Pool
)

// Shared returns the process-wide pool, building it on first use or
// after a shutdown.
func Shared(factory DriverFactory, cfg Config, opts ...PoolOption) *Pool {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool == nil || sharedPool.isClosed() {
		sharedPool = New(factory, cfg, opts...)
	}
	return sharedPool
}

// ResetShared shuts the shared pool down and forgets it, so the next
// Shared call rebuilds. Intended for tests.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedPool != nil {
		sharedPool.Shutdown()
		sharedPool = nil
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
