package temprole

import (
	"context"
	"fmt"
	"role-keeper/model"
	"role-keeper/utils/clock"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueExpiresAtDeadline(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)
	require.NotEmpty(t, rec.GrantID)
	assert.True(t, gw.hasRole(rec.Key()))

	fc.Advance(299 * time.Second)
	assert.Zero(t, gw.removeCount())
	_, stored := store.get(rec.Key())
	assert.True(t, stored)

	fc.Advance(2 * time.Second)
	assert.Equal(t, 1, gw.removedCount())
	assert.False(t, gw.hasRole(rec.Key()))
	_, stored = store.get(rec.Key())
	assert.False(t, stored)
	assert.Zero(t, s.ActiveCount())
	assert.Equal(t, []NoticeKind{NoticeGranted, NoticeExpired}, gw.noticeKinds())
}

func TestIssueNoticesCarryMessages(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	_, err := s.Issue(ctx, request("u1", "r1", model.Duration30m), fc.Now())
	require.NoError(t, err)
	fc.Advance(30 * time.Minute)

	require.Len(t, gw.notices, 2)
	assert.Equal(t, "welcome", gw.notices[0].Message)
	assert.Equal(t, model.Duration30m, gw.notices[0].Duration)
	assert.Equal(t, t0.Add(30*time.Minute), gw.notices[0].Deadline)
	assert.Equal(t, "goodbye", gw.notices[1].Message)
	assert.Equal(t, "r1", gw.notices[1].RoleID)
}

func TestIssueRejectsUnknownDuration(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	_, err := s.Issue(ctx, request("u1", "r1", "90m"), fc.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidDuration))
	assert.Zero(t, store.len())
	assert.Empty(t, gw.applyCalls)
	assert.Zero(t, fc.PendingCount())
}

func TestIssueStorageFailureKeepsPreviousGrant(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	first, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)

	fc.Advance(time.Minute)
	store.putErr = errors.New("disk full")
	_, err = s.Issue(ctx, request("u1", "r1", model.Duration1h), fc.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStorage))

	rec, ok := store.get(first.Key())
	require.True(t, ok)
	assert.Equal(t, first.GrantID, rec.GrantID)

	fc.Advance(4 * time.Minute)
	assert.Equal(t, 1, gw.removedCount())
	assert.Zero(t, store.len())
}

func TestIssueApplyFailureStillTracksGrant(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	gw.applyErr = errors.New("missing permissions")
	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEffectApplicationFailed))
	require.NotNil(t, rec)

	_, stored := store.get(rec.Key())
	assert.True(t, stored)
	assert.Equal(t, 1, fc.PendingCount())
	assert.Empty(t, gw.noticeKinds())

	fc.Advance(5 * time.Minute)
	assert.Equal(t, 1, gw.removeCount())
	assert.Zero(t, store.len())
}

func TestSupersedeStopsPreviousTimerOnce(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	first, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)

	fc.Advance(time.Minute)
	second, err := s.Issue(ctx, request("u1", "r1", model.Duration1h), fc.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first.GrantID, second.GrantID)
	assert.Equal(t, 1, fc.PendingCount())
	assert.Equal(t, 1, s.ActiveCount())

	// The first grant's deadline passes without touching the role.
	fc.Advance(10 * time.Minute)
	assert.Zero(t, gw.removeCount())
	assert.True(t, gw.hasRole(second.Key()))

	rec, ok := store.get(second.Key())
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), rec.StartTime)
	assert.Equal(t, model.Duration1h, rec.Duration)

	fc.Advance(50 * time.Minute)
	assert.Equal(t, 1, gw.removeCount())
	assert.Zero(t, store.len())
}

func TestCancelBeforeDeadline(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration1h), fc.Now())
	require.NoError(t, err)

	fc.Advance(10 * time.Minute)
	require.NoError(t, s.Cancel(ctx, "u1", "r1", "g1"))
	assert.Equal(t, 1, gw.removedCount())
	assert.Zero(t, store.len())
	assert.Zero(t, fc.PendingCount())
	assert.Equal(t, []NoticeKind{NoticeGranted, NoticeRevoked}, gw.noticeKinds())

	fc.Advance(2 * time.Hour)
	assert.Equal(t, 1, gw.removeCount())

	require.NoError(t, s.Expire(ctx, rec.Key()))
	assert.Equal(t, 1, gw.removeCount())
}

func TestCancelUnknownGrant(t *testing.T) {
	ctx := context.Background()
	s := newTestScheduler(t, newMemStore(), newFakeGateway(), clock.Fake(t0))

	err := s.Cancel(ctx, "nobody", "r1", "g1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestCancelReversalFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration1d), fc.Now())
	require.NoError(t, err)

	gw.removeErrs = []error{errors.New("discord unavailable")}
	err = s.Cancel(ctx, "u1", "r1", "g1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrEffectReversalFailed))
	_, stored := store.get(rec.Key())
	assert.True(t, stored)

	// The retry still treats the grant as revoked.
	fc.Advance(5 * time.Second)
	assert.Zero(t, store.len())
	assert.False(t, gw.hasRole(rec.Key()))
	assert.Equal(t, []NoticeKind{NoticeGranted, NoticeRevoked}, gw.noticeKinds())
}

func TestRejoinSkipsRevokedGrantAwaitingReversal(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration1d), fc.Now())
	require.NoError(t, err)

	gw.removeErrs = []error{errors.New("discord unavailable")}
	require.Error(t, s.Cancel(ctx, "u1", "r1", "g1"))

	// The member leaves and comes back before the retry runs.
	gw.mu.Lock()
	delete(gw.roles, rec.Key())
	gw.mu.Unlock()

	restored, err := s.Rejoin(ctx, "u1", "g1", fc.Now())
	require.NoError(t, err)
	assert.Zero(t, restored)
	assert.False(t, gw.hasRole(rec.Key()))
	assert.Len(t, gw.applyCalls, 1)

	fc.Advance(5 * time.Second)
	assert.Zero(t, store.len())
	assert.Equal(t, []NoticeKind{NoticeGranted, NoticeRevoked}, gw.noticeKinds())
}

func TestCancelAfterDeadlineSendsExpiryNotice(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	_, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)
	gw.removeErrs = []error{errors.New("503")}
	fc.Advance(5 * time.Minute)
	require.Equal(t, 1, store.len())

	require.NoError(t, s.Cancel(ctx, "u1", "r1", "g1"))
	assert.Zero(t, store.len())
	assert.Zero(t, fc.PendingCount())
	assert.Equal(t, []NoticeKind{NoticeGranted, NoticeExpired}, gw.noticeKinds())
}

func TestExpireTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration6h), fc.Now())
	require.NoError(t, err)

	require.NoError(t, s.Expire(ctx, rec.Key()))
	require.NoError(t, s.Expire(ctx, rec.Key()))

	assert.Equal(t, 1, gw.removeCount())
	assert.Zero(t, store.len())
	assert.Zero(t, fc.PendingCount())
}

func TestExpireTreatsAbsentRoleAsSuccess(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)

	// Someone removed the role by hand.
	gw.mu.Lock()
	delete(gw.roles, rec.Key())
	gw.mu.Unlock()

	fc.Advance(5 * time.Minute)
	assert.Equal(t, 1, gw.removeCount())
	assert.Zero(t, gw.removedCount())
	assert.Zero(t, store.len())
}

func TestReversalRetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)
	gw.removeErrs = []error{errors.New("503"), errors.New("503")}

	fc.Advance(5 * time.Minute)
	assert.Equal(t, 1, gw.removeCount())
	_, stored := store.get(rec.Key())
	assert.True(t, stored)

	fc.Advance(5 * time.Second)
	assert.Equal(t, 2, gw.removeCount())

	fc.Advance(9 * time.Second)
	assert.Equal(t, 2, gw.removeCount())
	fc.Advance(time.Second)
	assert.Equal(t, 3, gw.removeCount())

	assert.Zero(t, store.len())
	assert.Zero(t, s.ActiveCount())
	assert.Zero(t, fc.PendingCount())
}

func TestRetriesAnchorAtFailedDeadline(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	_, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)
	gw.removeErrs = []error{errors.New("503"), errors.New("503")}

	// Attempts at 300s, 305s and 315s all fall inside one long step.
	fc.Advance(5*time.Minute + 14*time.Second)
	assert.Equal(t, 2, gw.removeCount())
	assert.Equal(t, 1, store.len())

	fc.Advance(time.Second)
	assert.Equal(t, 3, gw.removeCount())
	assert.Zero(t, store.len())
}

func TestReversalParksThenSweepCompletes(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc, func(o *Options) { o.RetryAttempts = 2 })

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)
	gw.setRemoveErr(errors.New("forbidden"))

	fc.Advance(5 * time.Minute)
	fc.Advance(5 * time.Second)
	fc.Advance(10 * time.Second)
	assert.Equal(t, 3, gw.removeCount())
	assert.Zero(t, fc.PendingCount())

	s.mu.Lock()
	sus := s.suspensions[rec.Key()]
	s.mu.Unlock()
	require.NotNil(t, sus)
	assert.Equal(t, stateParked, sus.state)
	_, stored := store.get(rec.Key())
	assert.True(t, stored)

	// A sweep with the platform still failing leaves the key parked.
	report, err := s.Sweep(ctx, fc.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	gw.setRemoveErr(nil)
	fc.Advance(5 * time.Second)
	assert.Zero(t, store.len())
	assert.Zero(t, s.ActiveCount())
}

func TestNotifyFailureDoesNotBlockLifecycle(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	gw.notifyOutcome = Undeliverable
	_, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)

	gw.notifyErr = errors.New("rate limited")
	fc.Advance(5 * time.Minute)
	assert.Equal(t, 1, gw.removedCount())
	assert.Zero(t, store.len())
}

func TestHasActive(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	active, err := s.HasActive(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.False(t, active)

	_, err = s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)
	active, err = s.HasActive(ctx, "u1", "g1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestMultipleRolesPerMemberAreIndependent(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	_, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)
	_, err = s.Issue(ctx, request("u1", "r2", model.Duration1h), fc.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, s.ActiveCount())

	fc.Advance(5 * time.Minute)
	assert.Equal(t, 1, store.len())
	_, stored := store.get(model.GrantKey{UserID: "u1", RoleID: "r2", GuildID: "g1"})
	assert.True(t, stored)
}

func TestConcurrentIssuesOnDistinctKeys(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Issue(ctx, request(fmt.Sprintf("u%d", i), "r1", model.Duration5m), t0)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, store.len())
	assert.Equal(t, n, s.ActiveCount())
	assert.Equal(t, n, fc.PendingCount())

	fc.Advance(5 * time.Minute)
	assert.Equal(t, n, gw.removedCount())
	assert.Zero(t, store.len())
	assert.Zero(t, s.ActiveCount())
	assert.Zero(t, s.locks.size())
}

func TestReissueWaitsForRunningExpiry(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	rec, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw.mu.Lock()
	gw.removeHook = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}
	gw.mu.Unlock()

	expired := make(chan struct{})
	go func() {
		fc.Advance(5 * time.Minute)
		close(expired)
	}()
	<-entered

	issued := make(chan error, 1)
	go func() {
		_, err := s.Issue(ctx, request("u1", "r1", model.Duration1h), t0.Add(5*time.Minute))
		issued <- err
	}()

	select {
	case <-issued:
		t.Fatal("issue ran while the expiry for the same key was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-expired
	require.NoError(t, <-issued)

	stored, ok := store.get(rec.Key())
	require.True(t, ok)
	assert.Equal(t, model.Duration1h, stored.Duration)
	assert.True(t, gw.hasRole(rec.Key()))
	assert.Equal(t, 1, s.ActiveCount())
}

func TestStopHaltsTimersAndKeepsRecords(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)

	_, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	require.NoError(t, err)

	s.Stop()
	fc.Advance(time.Hour)
	assert.Zero(t, gw.removeCount())
	assert.Equal(t, 1, store.len())
}

func TestIssueAndRejoinRejectedAfterStop(t *testing.T) {
	ctx := context.Background()
	store, gw, fc := newMemStore(), newFakeGateway(), clock.Fake(t0)
	s := newTestScheduler(t, store, gw, fc)
	s.Stop()

	_, err := s.Issue(ctx, request("u1", "r1", model.Duration5m), fc.Now())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, store.len())
	assert.Empty(t, gw.applyCalls)

	seed(t, store, gw, storedGrant("u1", "r2", model.Duration1d, t0))
	_, err = s.Rejoin(ctx, "u1", "g1", fc.Now())
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, fc.PendingCount())
}
