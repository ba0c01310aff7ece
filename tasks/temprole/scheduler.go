// Package temprole runs the lifecycle of temporary role grants: it applies
// a role, keeps one in-memory suspension per stored grant, and reverses the
// role once the grant's absolute deadline passes. Records are the source of
// truth; suspensions are rebuilt from them on startup.
package temprole

import (
	"context"
	"role-keeper/metrics"
	"role-keeper/model"
	"role-keeper/utils/clock"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrStopped is returned by operations that would arm a timer after Stop.
var ErrStopped = errors.New("grant scheduler stopped")

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 5 * time.Second
	defaultRetryMaxDelay  = 2 * time.Minute
)

// Options configures a Scheduler. Zero values fall back to defaults.
type Options struct {
	Clock   clock.Clock
	Logger  *zap.Logger
	Metrics metrics.MetricsCollector

	// RetryAttempts bounds the reversal retries after a failed expiry.
	// Once spent, the key waits for the next Sweep.
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// RecoveryLimiter throttles immediate expiries during Recover and Sweep.
	RecoveryLimiter *rate.Limiter

	NewGrantID func() string
}

// IssueRequest is a confirmed request to grant a temporary role.
type IssueRequest struct {
	UserID       string
	RoleID       string
	GuildID      string
	Duration     model.DurationClass
	StartMessage string
	EndMessage   string
	IssuedBy     string
}

func (r IssueRequest) key() model.GrantKey {
	return model.GrantKey{UserID: r.UserID, RoleID: r.RoleID, GuildID: r.GuildID}
}

type suspensionState int

const (
	stateActive suspensionState = iota
	stateRetrying
	stateParked
)

func (s suspensionState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateRetrying:
		return "retrying"
	case stateParked:
		return "parked"
	}
	return "unknown"
}

// suspension is the in-memory timer for one stored grant. Fields other than
// the map entry itself are only touched while holding the key lock.
type suspension struct {
	gen      uint64
	record   model.GrantRecord
	timer    *clock.Timer
	state    suspensionState
	attempts int
	revoked  bool
}

func (s *suspension) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Scheduler owns every suspension. One key is worked on by at most one
// goroutine at a time; different keys proceed independently.
type Scheduler struct {
	store   GrantStore
	gateway EffectGateway
	clock   clock.Clock
	logger  *zap.Logger
	metrics metrics.MetricsCollector
	limiter *rate.Limiter
	opts    Options

	locks *keyLocks

	mu          sync.Mutex
	suspensions map[model.GrantKey]*suspension
	nextGen     uint64
	stopped     bool
	inflight    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(store GrantStore, gateway EffectGateway, opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = defaultRetryAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = defaultRetryBaseDelay
	}
	if opts.RetryMaxDelay < opts.RetryBaseDelay {
		opts.RetryMaxDelay = defaultRetryMaxDelay
		if opts.RetryMaxDelay < opts.RetryBaseDelay {
			opts.RetryMaxDelay = opts.RetryBaseDelay
		}
	}
	if opts.RecoveryLimiter == nil {
		opts.RecoveryLimiter = rate.NewLimiter(rate.Inf, 1)
	}
	if opts.NewGrantID == nil {
		opts.NewGrantID = func() string { return uuid.NewString() }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:       store,
		gateway:     gateway,
		clock:       opts.Clock,
		logger:      opts.Logger.Named("temprole"),
		metrics:     opts.Metrics,
		limiter:     opts.RecoveryLimiter,
		opts:        opts,
		locks:       newKeyLocks(),
		suspensions: make(map[model.GrantKey]*suspension),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Issue grants a temporary role. The record is persisted before anything
// else happens; a previous grant for the same key is superseded without its
// role being removed. If the role cannot be applied the grant is still
// tracked and ErrEffectApplicationFailed is returned with the record.
func (s *Scheduler) Issue(ctx context.Context, req IssueRequest, now time.Time) (*model.GrantRecord, error) {
	if !req.Duration.Valid() {
		return nil, errors.Mark(errors.Newf("unknown duration class %q", req.Duration), model.ErrInvalidDuration)
	}

	key := req.key()
	unlock := s.locks.lock(key)
	defer unlock()

	if s.isStopped() {
		return nil, ErrStopped
	}

	record := model.GrantRecord{
		UserID:       req.UserID,
		RoleID:       req.RoleID,
		GuildID:      req.GuildID,
		GrantID:      s.opts.NewGrantID(),
		StartTime:    now,
		Duration:     req.Duration,
		StartMessage: req.StartMessage,
		EndMessage:   req.EndMessage,
		IssuedBy:     req.IssuedBy,
	}
	log := s.logger.With(zap.String("grant", key.String()), zap.String("grant_id", record.GrantID))

	if err := s.store.Put(ctx, record); err != nil {
		log.Error("failed to persist grant", zap.Error(err))
		return nil, markStorage(err)
	}

	if prev := s.take(key); prev != nil {
		prev.stop()
		s.metrics.RecordSuperseded()
		log.Info("superseded previous grant", zap.String("previous_grant_id", prev.record.GrantID))
	}

	var applyErr error
	outcome, err := s.gateway.ApplyRole(ctx, req.UserID, req.RoleID, req.GuildID)
	if err != nil {
		s.metrics.RecordEffectFailure("apply")
		applyErr = errors.Mark(errors.Wrapf(err, "failed to apply role %s", key), model.ErrEffectApplicationFailed)
		log.Warn("role application failed, grant stays tracked", zap.Error(err))
	} else {
		if outcome == AlreadyApplied {
			log.Debug("role was already present")
		}
		s.notify(ctx, record, NoticeGranted)
	}

	s.arm(record, Remaining(now, record.Duration, now))
	s.metrics.RecordIssued()
	log.Info("issued temporary role", zap.String("duration", string(record.Duration)), zap.Time("deadline", record.Deadline()))

	return &record, applyErr
}

// Expire runs the expiry path for key now. It is a no-op when the grant is
// no longer stored, so calling it twice removes the record once.
func (s *Scheduler) Expire(ctx context.Context, key model.GrantKey) error {
	unlock := s.locks.lock(key)
	defer unlock()

	s.mu.Lock()
	if sus, ok := s.suspensions[key]; ok {
		sus.stop()
	}
	s.mu.Unlock()

	return s.expireLocked(ctx, key)
}

// Cancel revokes a grant before its deadline. If the role cannot be
// removed the record is kept, the key is retried in the background, and
// ErrEffectReversalFailed is returned. Cancelling a grant whose deadline
// already passed finishes it as an ordinary expiry.
func (s *Scheduler) Cancel(ctx context.Context, userID, roleID, guildID string) error {
	key := model.GrantKey{UserID: userID, RoleID: roleID, GuildID: guildID}
	unlock := s.locks.lock(key)
	defer unlock()

	record, err := s.store.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.drop(key)
			return errors.Mark(errors.Newf("no temporary role tracked for %s", key), model.ErrNotFound)
		}
		return markStorage(err)
	}

	s.mu.Lock()
	sus, ok := s.suspensions[key]
	if !ok {
		sus = &suspension{record: *record}
		s.suspensions[key] = sus
	}
	sus.stop()
	if Remaining(record.StartTime, record.Duration, s.clock.Now()) > 0 {
		sus.revoked = true
	}
	sus.attempts = 0
	s.mu.Unlock()

	return s.expireLocked(ctx, key)
}

// HasActive reports whether any grant is stored for the member.
func (s *Scheduler) HasActive(ctx context.Context, userID, guildID string) (bool, error) {
	_, err := s.store.Get(ctx, userID, guildID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	return false, markStorage(err)
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// reversing reports whether key has a reversal pending, either a revoked
// grant or a failed expiry waiting for a retry or a sweep. The caller holds
// the key lock.
func (s *Scheduler) reversing(key model.GrantKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sus, ok := s.suspensions[key]
	return ok && (sus.revoked || sus.state == stateRetrying || sus.state == stateParked)
}

// ActiveCount is the number of suspensions currently held in memory.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.suspensions)
}

// Stop halts every timer and waits for callbacks already running. Stored
// records are left alone for the next Recover.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, sus := range s.suspensions {
		if sus.timer != nil {
			sus.timer.Stop()
		}
	}
	s.mu.Unlock()

	s.inflight.Wait()
	s.cancel()
	s.logger.Info("scheduler stopped")
}

// expireLocked reverses the grant for key. The caller holds the key lock
// and has stopped any timer for it.
func (s *Scheduler) expireLocked(ctx context.Context, key model.GrantKey) error {
	log := s.logger.With(zap.String("grant", key.String()))

	record, err := s.store.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			s.drop(key)
			return nil
		}
		log.Error("failed to load grant for expiry", zap.Error(err))
		s.scheduleRetry(key, nil)
		return markStorage(err)
	}
	log = log.With(zap.String("grant_id", record.GrantID))

	s.mu.Lock()
	revoked := false
	if sus, ok := s.suspensions[key]; ok {
		revoked = sus.revoked
	}
	s.mu.Unlock()

	outcome, err := s.gateway.RemoveRole(ctx, key.UserID, key.RoleID, key.GuildID)
	if err != nil {
		s.metrics.RecordEffectFailure("remove")
		log.Warn("role reversal failed, record kept", zap.Error(err))
		s.scheduleRetry(key, record)
		return errors.Mark(errors.Wrapf(err, "failed to remove role %s", key), model.ErrEffectReversalFailed)
	}
	if outcome == AlreadyAbsent {
		log.Info("role already absent")
	}

	if _, err := s.store.Remove(ctx, key.UserID, key.RoleID, key.GuildID); err != nil {
		log.Error("failed to remove grant record after reversal", zap.Error(err))
		s.scheduleRetry(key, record)
		return markStorage(err)
	}
	s.drop(key)

	if revoked {
		s.notify(ctx, *record, NoticeRevoked)
		s.metrics.RecordCancelled()
		log.Info("revoked temporary role")
	} else {
		s.notify(ctx, *record, NoticeExpired)
		s.metrics.RecordExpired()
		log.Info("temporary role expired")
	}
	return nil
}

// scheduleRetry arms a backoff timer for another reversal attempt, or parks
// the key once attempts are spent. The caller holds the key lock.
func (s *Scheduler) scheduleRetry(key model.GrantKey, record *model.GrantRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sus, ok := s.suspensions[key]
	if !ok {
		sus = &suspension{}
		s.suspensions[key] = sus
	}
	if record != nil {
		sus.record = *record
	}
	sus.stop()
	sus.attempts++

	if s.stopped {
		return
	}
	if sus.attempts > s.opts.RetryAttempts {
		sus.state = stateParked
		s.logger.Warn("reversal retries exhausted, waiting for sweep",
			zap.String("grant", key.String()), zap.Int("attempts", sus.attempts-1))
		s.metrics.SetActiveSuspensions(len(s.suspensions))
		return
	}

	s.nextGen++
	gen := s.nextGen
	sus.gen = gen
	sus.state = stateRetrying
	delay := retryDelay(sus.attempts, s.opts.RetryBaseDelay, s.opts.RetryMaxDelay)
	sus.timer = s.clock.AfterFunc(delay, func() { s.fire(key, gen) })
	s.metrics.SetActiveSuspensions(len(s.suspensions))
	s.logger.Debug("scheduled reversal retry",
		zap.String("grant", key.String()), zap.Int("attempt", sus.attempts), zap.Duration("delay", delay))
}

// arm replaces the suspension for record's key with a timer that fires
// after d. The caller holds the key lock; d must be positive. After Stop
// the suspension is recorded without a timer.
func (s *Scheduler) arm(record model.GrantRecord, d time.Duration) {
	key := record.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.suspensions[key]; ok {
		prev.stop()
	}
	s.nextGen++
	gen := s.nextGen
	sus := &suspension{gen: gen, record: record, state: stateActive}
	if d > 0 && !s.stopped {
		sus.timer = s.clock.AfterFunc(d, func() { s.fire(key, gen) })
	}
	s.suspensions[key] = sus
	s.metrics.SetActiveSuspensions(len(s.suspensions))
}

// fire is the timer callback. A timer whose generation no longer matches
// was cancelled or superseded and does nothing.
func (s *Scheduler) fire(key model.GrantKey, gen uint64) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	unlock := s.locks.lock(key)
	defer unlock()

	s.mu.Lock()
	sus, ok := s.suspensions[key]
	current := ok && sus.gen == gen
	if current {
		sus.timer = nil
	}
	s.mu.Unlock()
	if !current {
		return
	}

	// Errors are already logged and handed to the retry path.
	_ = s.expireLocked(s.ctx, key)
}

func (s *Scheduler) take(key model.GrantKey) *suspension {
	s.mu.Lock()
	defer s.mu.Unlock()
	sus, ok := s.suspensions[key]
	if !ok {
		return nil
	}
	delete(s.suspensions, key)
	s.metrics.SetActiveSuspensions(len(s.suspensions))
	return sus
}

func (s *Scheduler) drop(key model.GrantKey) {
	if sus := s.take(key); sus != nil {
		sus.stop()
	}
}

func (s *Scheduler) notify(ctx context.Context, record model.GrantRecord, kind NoticeKind) {
	notice := Notice{
		Kind:     kind,
		RoleID:   record.RoleID,
		Duration: record.Duration,
		Deadline: record.Deadline(),
	}
	switch kind {
	case NoticeGranted:
		notice.Message = record.StartMessage
	case NoticeExpired:
		notice.Message = record.EndMessage
	}

	outcome, err := s.gateway.Notify(ctx, record.UserID, record.GuildID, notice)
	log := s.logger.With(zap.String("grant", record.Key().String()), zap.Stringer("notice", kind))
	switch {
	case err != nil:
		s.metrics.RecordEffectFailure("notify")
		log.Warn("failed to notify member", zap.Error(err))
	case outcome == Undeliverable:
		log.Warn("member does not accept direct messages")
	}
}

func markStorage(err error) error {
	if errors.Is(err, model.ErrStorage) {
		return err
	}
	return errors.Mark(err, model.ErrStorage)
}
