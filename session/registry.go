package session

import (
	"context"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"

	"github.com/hupe1980/paymesh/core"
	"github.com/hupe1980/paymesh/logging"
	"github.com/hupe1980/paymesh/metrics"
)

// Compile-time check: the registry satisfies the runner's contract.
var _ core.SessionRegistry = (*Registry)(nil)

const (
	// DefaultMaxSessions bounds the registry.
	DefaultMaxSessions = 100
	// DefaultIdleTimeout is how long an inactive session survives.
	DefaultIdleTimeout = time.Hour
	// DefaultSweepInterval is the janitor's sweep cadence.
	DefaultSweepInterval = 5 * time.Minute

	idAlphabet = "0123456789abcdef"
	idLength   = 16
)

// Options configure the registry.
type Options struct {
	// MaxSessions bounds how many sessions the registry holds at once.
	MaxSessions int
	// IdleTimeout expires sessions with no activity for this long.
	IdleTimeout time.Duration
	// SweepInterval is the janitor's cadence for removing expired sessions.
	SweepInterval time.Duration
	// MaintenanceSchedule is an optional cron expression for a deep
	// maintenance pass (sweep + stats log) on top of the interval sweep.
	MaintenanceSchedule string
	// Logger receives lifecycle logs.
	Logger logging.Logger
	// Metrics receives occupancy and lifecycle counters. May be nil.
	Metrics *metrics.Metrics
}

// Stats summarizes registry state and lifetime counters.
type Stats struct {
	Active      int    `json:"active"`
	Running     int    `json:"running"`
	Idle        int    `json:"idle"`
	Total       int    `json:"total"`
	MaxSessions int    `json:"max_sessions"`
	Created     uint64 `json:"created_total"`
	Evicted     uint64 `json:"evicted_total"`
	Expired     uint64 `json:"expired_total"`
}

// Registry is a bounded, concurrency-safe in-memory session store. At
// capacity it evicts the least-recently-active session that is not
// running a turn; sessions idle past the timeout are expired lazily on
// access and in bulk by the janitor. The structural lock guards the map
// only; an in-progress turn never blocks creation or deletion of other
// sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session

	maxSessions   int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	schedule      string

	logger  logging.Logger
	metrics *metrics.Metrics

	created uint64
	evicted uint64
	expired uint64

	janitor   *cron.Cron
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{
		MaxSessions:   DefaultMaxSessions,
		IdleTimeout:   DefaultIdleTimeout,
		SweepInterval: DefaultSweepInterval,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		sessions:      make(map[string]*core.Session),
		maxSessions:   opts.MaxSessions,
		idleTimeout:   opts.IdleTimeout,
		sweepInterval: opts.SweepInterval,
		schedule:      opts.MaintenanceSchedule,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		done:          make(chan struct{}),
	}
}

// Create allocates a new session. At capacity the least-recently-active
// session not running a turn is evicted first; if every session is
// running, Create fails with a capacity error.
func (r *Registry) Create(ctx context.Context) (*core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		if !r.evictLocked() {
			return nil, core.Errorf(core.KindCapacity, "registry is full (%d sessions) and every session is running a turn", len(r.sessions))
		}
	}

	id, err := r.newIDLocked()
	if err != nil {
		return nil, err
	}

	sess := core.NewSession(id)
	r.sessions[id] = sess
	r.created++
	r.metrics.SessionCreated(len(r.sessions))

	r.logger.Info("session.created", "session_id", id, "active", len(r.sessions))
	return sess, nil
}

// Get returns a live session. Sessions idle past the timeout are expired
// on access so callers never observe a stale session between sweeps;
// running sessions are never expired this way.
func (r *Registry) Get(id string) (*core.Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, core.Errorf(core.KindSessionNotFound, "session %s not found", id)
	}
	if sess.IdleFor(r.idleTimeout) {
		if r.expireOne(id, sess) {
			return nil, core.Errorf(core.KindSessionExpired, "session %s expired after %s idle", id, r.idleTimeout)
		}
	}
	return sess, nil
}

// Delete removes a session in any state. Idempotent.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return
	}
	delete(r.sessions, id)
	r.metrics.SessionRemoved(len(r.sessions))
	r.logger.Info("session.deleted", "session_id", id)
}

// Sweep expires and removes every session idle past the timeout,
// returning how many were removed. Running sessions are left for the
// next interval.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		if !sess.IdleFor(r.idleTimeout) {
			continue
		}
		if !sess.Expire() {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	if removed > 0 {
		r.expired += uint64(removed)
		r.metrics.SessionExpired(removed, len(r.sessions))
		r.logger.Info("session.swept", "removed", removed, "active", len(r.sessions))
	}
	return removed
}

// BeginTurn admits exactly one turn: it atomically flips the session to
// running and rejects a concurrent attempt.
func (r *Registry) BeginTurn(id string) (*core.Session, error) {
	sess, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !sess.Begin() {
		return nil, core.Errorf(core.KindConcurrentTurn, "session %s is already running a turn", id)
	}
	return sess, nil
}

// EndTurn releases the session back to idle.
func (r *Registry) EndTurn(id string) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if ok {
		sess.End()
	}
}

// Len returns the number of sessions currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshots returns a summary of every session, most recently active
// first.
func (r *Registry) Snapshots() []core.SessionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.SessionSnapshot, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActiveAt.After(out[j].LastActiveAt)
	})
	return out
}

// Stats returns occupancy counts and lifetime counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Total:       len(r.sessions),
		MaxSessions: r.maxSessions,
		Created:     r.created,
		Evicted:     r.evicted,
		Expired:     r.expired,
	}
	for _, sess := range r.sessions {
		switch sess.Status() {
		case core.StatusActive:
			stats.Active++
		case core.StatusRunning:
			stats.Running++
		case core.StatusIdle:
			stats.Idle++
		}
	}
	return stats
}

// Start launches the janitor: an interval sweep plus the optional cron
// maintenance pass. Idempotent; ctx or Close stops it.
func (r *Registry) Start(ctx context.Context) error {
	var startErr error
	r.startOnce.Do(func() {
		if r.schedule != "" {
			r.janitor = cron.New()
			if _, err := r.janitor.AddFunc(r.schedule, r.maintain); err != nil {
				startErr = core.WrapError(core.KindConfiguration, err, "invalid maintenance schedule %q", r.schedule)
				r.janitor = nil
				return
			}
			r.janitor.Start()
		}

		go func() {
			ticker := time.NewTicker(r.sweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.Sweep()
				case <-ctx.Done():
					return
				case <-r.done:
					return
				}
			}
		}()

		r.logger.Info("session.janitor.started",
			"sweep_interval", r.sweepInterval.String(),
			"maintenance_schedule", r.schedule,
		)
	})
	return startErr
}

// Close stops the janitor. Idempotent.
func (r *Registry) Close() error {
	r.stopOnce.Do(func() {
		close(r.done)
		if r.janitor != nil {
			r.janitor.Stop()
		}
		r.logger.Info("session.janitor.stopped")
	})
	return nil
}

// maintain is the deep maintenance pass the cron schedule triggers.
func (r *Registry) maintain() {
	removed := r.Sweep()
	stats := r.Stats()
	r.logger.Info("session.maintenance",
		"removed", removed,
		"total", stats.Total,
		"running", stats.Running,
		"evicted_total", stats.Evicted,
		"expired_total", stats.Expired,
	)
}

// evictLocked removes the least-recently-active session that is not
// running. Returns false when every session is mid-turn. Caller holds
// the write lock.
func (r *Registry) evictLocked() bool {
	var victimID string
	var victim *core.Session
	var oldest time.Time

	for id, sess := range r.sessions {
		if sess.Status() == core.StatusRunning {
			continue
		}
		last := sess.LastActiveAt()
		if victim == nil || last.Before(oldest) {
			victimID, victim, oldest = id, sess, last
		}
	}
	if victim == nil {
		return false
	}

	delete(r.sessions, victimID)
	r.evicted++
	r.metrics.SessionEvicted(len(r.sessions))
	r.logger.Warn("session.evicted", "session_id", victimID, "last_active", oldest.Format(time.RFC3339))
	return true
}

// expireOne removes a single session found idle past the timeout on
// access. Rechecks under the write lock; running sessions survive.
func (r *Registry) expireOne(id string, sess *core.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[id]
	if !ok || current != sess {
		return false
	}
	if !sess.IdleFor(r.idleTimeout) || !sess.Expire() {
		return false
	}

	delete(r.sessions, id)
	r.expired++
	r.metrics.SessionExpired(1, len(r.sessions))
	r.logger.Info("session.expired", "session_id", id)
	return true
}

// newIDLocked generates a fresh unique session id.
func (r *Registry) newIDLocked() (string, error) {
	for {
		suffix, err := gonanoid.Generate(idAlphabet, idLength)
		if err != nil {
			return "", err
		}
		id := "sess_" + suffix
		if _, exists := r.sessions[id]; !exists {
			return id, nil
		}
	}
}
