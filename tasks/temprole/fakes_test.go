package temprole

import (
	"context"
	"role-keeper/model"
	"role-keeper/utils/clock"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	records map[model.GrantKey]model.GrantRecord
	putErr  error
	listErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[model.GrantKey]model.GrantRecord)}
}

func (m *memStore) Put(_ context.Context, record model.GrantRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return errors.Mark(m.putErr, model.ErrStorage)
	}
	m.records[record.Key()] = record
	return nil
}

func (m *memStore) Remove(_ context.Context, userID, roleID, guildID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.GrantKey{UserID: userID, RoleID: roleID, GuildID: guildID}
	_, ok := m.records[key]
	delete(m.records, key)
	return ok, nil
}

func (m *memStore) Get(_ context.Context, userID, guildID string) (*model.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.GrantRecord
	for _, r := range m.records {
		if r.UserID != userID || r.GuildID != guildID {
			continue
		}
		if latest == nil || r.StartTime.After(latest.StartTime) {
			r := r
			latest = &r
		}
	}
	if latest == nil {
		return nil, model.ErrNotFound
	}
	return latest, nil
}

func (m *memStore) GetByKey(_ context.Context, key model.GrantKey) (*model.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) ListByMember(_ context.Context, userID, guildID string) ([]model.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GrantRecord
	for _, r := range m.records {
		if r.UserID == userID && r.GuildID == guildID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListAll(_ context.Context) ([]model.GrantRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, errors.Mark(m.listErr, model.ErrStorage)
	}
	out := make([]model.GrantRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

func (m *memStore) get(key model.GrantKey) (model.GrantRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	return r, ok
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type fakeGateway struct {
	mu            sync.Mutex
	roles         map[model.GrantKey]bool
	applyErr      error
	removeErrs    []error
	removeErr     error
	notifyOutcome NotifyOutcome
	notifyErr     error
	applyCalls    []model.GrantKey
	removeCalls   []model.GrantKey
	removed       []model.GrantKey
	notices       []Notice
	removeHook    func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{roles: make(map[model.GrantKey]bool)}
}

func (g *fakeGateway) ApplyRole(_ context.Context, userID, roleID, guildID string) (ApplyOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := model.GrantKey{UserID: userID, RoleID: roleID, GuildID: guildID}
	g.applyCalls = append(g.applyCalls, key)
	if g.applyErr != nil {
		return 0, g.applyErr
	}
	if g.roles[key] {
		return AlreadyApplied, nil
	}
	g.roles[key] = true
	return Applied, nil
}

func (g *fakeGateway) RemoveRole(_ context.Context, userID, roleID, guildID string) (RemoveOutcome, error) {
	g.mu.Lock()
	hook := g.removeHook
	g.mu.Unlock()
	if hook != nil {
		hook()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	key := model.GrantKey{UserID: userID, RoleID: roleID, GuildID: guildID}
	g.removeCalls = append(g.removeCalls, key)
	if len(g.removeErrs) > 0 {
		err := g.removeErrs[0]
		g.removeErrs = g.removeErrs[1:]
		if err != nil {
			return 0, err
		}
	} else if g.removeErr != nil {
		return 0, g.removeErr
	}
	if !g.roles[key] {
		return AlreadyAbsent, nil
	}
	delete(g.roles, key)
	g.removed = append(g.removed, key)
	return Removed, nil
}

func (g *fakeGateway) Notify(_ context.Context, _, _ string, notice Notice) (NotifyOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, notice)
	return g.notifyOutcome, g.notifyErr
}

func (g *fakeGateway) hasRole(key model.GrantKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles[key]
}

func (g *fakeGateway) removeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.removeCalls)
}

func (g *fakeGateway) removedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.removed)
}

func (g *fakeGateway) noticeKinds() []NoticeKind {
	g.mu.Lock()
	defer g.mu.Unlock()
	kinds := make([]NoticeKind, len(g.notices))
	for i, n := range g.notices {
		kinds[i] = n.Kind
	}
	return kinds
}

func (g *fakeGateway) setRemoveErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeErr = err
}

func newTestScheduler(t *testing.T, store GrantStore, gw EffectGateway, fc *clock.FakeClock, opts ...func(*Options)) *Scheduler {
	t.Helper()
	o := Options{
		Clock:          fc,
		Logger:         zap.NewNop(),
		RetryAttempts:  3,
		RetryBaseDelay: 5 * time.Second,
		RetryMaxDelay:  time.Minute,
	}
	for _, fn := range opts {
		fn(&o)
	}
	s := NewScheduler(store, gw, o)
	t.Cleanup(s.Stop)
	return s
}

func request(user, role string, d model.DurationClass) IssueRequest {
	return IssueRequest{
		UserID:       user,
		RoleID:       role,
		GuildID:      "g1",
		Duration:     d,
		StartMessage: "welcome",
		EndMessage:   "goodbye",
		IssuedBy:     "mod",
	}
}
