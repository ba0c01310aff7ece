package temprole

import (
	"context"
	"role-keeper/metrics"
	"role-keeper/model"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// RecoveryReport summarises one pass over the stored grants.
type RecoveryReport struct {
	Resumed int
	Expired int
	Failed  int
	Skipped int
}

// Recover rebuilds suspensions from the store after a restart. Grants whose
// deadline has already passed are expired immediately; the rest are armed
// for exactly the time left until their original deadline.
func (s *Scheduler) Recover(ctx context.Context, now time.Time) (RecoveryReport, error) {
	report, err := s.reconcile(ctx, now, true)
	if err != nil {
		return report, err
	}
	s.logger.Info("recovered temporary roles",
		zap.Int("resumed", report.Resumed),
		zap.Int("expired", report.Expired),
		zap.Int("failed", report.Failed))
	return report, nil
}

// Sweep retries parked keys and picks up any stored grant without a
// suspension. Keys with a live timer are left alone.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (RecoveryReport, error) {
	report, err := s.reconcile(ctx, now, false)
	if err != nil {
		return report, err
	}
	if report.Expired+report.Resumed+report.Failed > 0 {
		s.logger.Info("sweep reconciled temporary roles",
			zap.Int("resumed", report.Resumed),
			zap.Int("expired", report.Expired),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *Scheduler) reconcile(ctx context.Context, now time.Time, recovering bool) (RecoveryReport, error) {
	var report RecoveryReport

	records, err := s.store.ListAll(ctx)
	if err != nil {
		return report, markStorage(err)
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := s.reconcileOne(ctx, record, now)
		if err != nil && errors.Is(err, context.Canceled) {
			return report, err
		}
		switch outcome {
		case metrics.RecoveryResumed:
			report.Resumed++
		case metrics.RecoveryExpired:
			report.Expired++
		case metrics.RecoveryFailed:
			report.Failed++
		default:
			report.Skipped++
			continue
		}
		if recovering {
			s.metrics.RecordRecovered(outcome)
		}
	}
	return report, nil
}

// reconcileOne brings one stored record in line with the scheduler. It
// returns the recovery outcome, or "" when the key already had a live
// suspension.
func (s *Scheduler) reconcileOne(ctx context.Context, record model.GrantRecord, now time.Time) (string, error) {
	key := record.Key()
	unlock := s.locks.lock(key)
	defer unlock()

	s.mu.Lock()
	sus, tracked := s.suspensions[key]
	parked := tracked && sus.state == stateParked
	if parked {
		sus.attempts = 0
	}
	s.mu.Unlock()

	if tracked && !parked {
		return "", nil
	}

	remaining := Remaining(record.StartTime, record.Duration, now)
	if remaining > 0 && !(parked && sus.revoked) {
		s.arm(record, remaining)
		return metrics.RecoveryResumed, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return metrics.RecoveryFailed, err
	}
	if err := s.expireLocked(ctx, key); err != nil {
		return metrics.RecoveryFailed, err
	}
	return metrics.RecoveryExpired, nil
}

// Rejoin re-applies every grant still tracked for a member who came back to
// the guild. Start times are not touched, so the original deadlines hold.
// Grants that elapsed while the member was away go through expiry, and
// grants with a reversal still pending are left to it. It returns the number
// of roles restored.
func (s *Scheduler) Rejoin(ctx context.Context, userID, guildID string, now time.Time) (int, error) {
	if s.isStopped() {
		return 0, ErrStopped
	}
	records, err := s.store.ListByMember(ctx, userID, guildID)
	if err != nil {
		return 0, markStorage(err)
	}

	restored := 0
	var errs error
	for _, record := range records {
		ok, err := s.rejoinOne(ctx, record, now)
		if err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		if ok {
			restored++
		}
	}
	return restored, errs
}

func (s *Scheduler) rejoinOne(ctx context.Context, record model.GrantRecord, now time.Time) (bool, error) {
	key := record.Key()
	unlock := s.locks.lock(key)
	defer unlock()

	log := s.logger.With(zap.String("grant", key.String()), zap.String("grant_id", record.GrantID))

	if s.reversing(key) {
		log.Info("reversal pending, not restoring role on rejoin")
		return false, nil
	}

	remaining := Remaining(record.StartTime, record.Duration, now)
	if remaining == 0 {
		s.mu.Lock()
		if sus, ok := s.suspensions[key]; ok {
			sus.stop()
		}
		s.mu.Unlock()
		return false, s.expireLocked(ctx, key)
	}

	if _, err := s.gateway.ApplyRole(ctx, key.UserID, key.RoleID, key.GuildID); err != nil {
		s.metrics.RecordEffectFailure("apply")
		log.Warn("failed to restore role on rejoin", zap.Error(err))
		return false, errors.Mark(errors.Wrapf(err, "failed to restore role %s", key), model.ErrEffectApplicationFailed)
	}
	log.Info("restored temporary role on rejoin", zap.Duration("remaining", remaining))

	s.mu.Lock()
	_, tracked := s.suspensions[key]
	s.mu.Unlock()
	if !tracked {
		s.arm(record, remaining)
	}
	return true, nil
}
