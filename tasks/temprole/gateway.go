package temprole

import (
	"context"
	"role-keeper/model"
	"time"
)

// ApplyOutcome is the successful result of ApplyRole.
type ApplyOutcome int

const (
	Applied ApplyOutcome = iota
	AlreadyApplied
)

// RemoveOutcome is the successful result of RemoveRole.
type RemoveOutcome int

const (
	Removed RemoveOutcome = iota
	AlreadyAbsent
)

// NotifyOutcome is the successful result of Notify.
type NotifyOutcome int

const (
	Sent NotifyOutcome = iota
	Undeliverable
)

// NoticeKind selects which direct message a member receives.
type NoticeKind int

const (
	NoticeGranted NoticeKind = iota
	NoticeExpired
	NoticeRevoked
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeGranted:
		return "granted"
	case NoticeExpired:
		return "expired"
	case NoticeRevoked:
		return "revoked"
	}
	return "unknown"
}

// Notice is the content of a member notification.
type Notice struct {
	Kind     NoticeKind
	RoleID   string
	Duration model.DurationClass
	Message  string
	Deadline time.Time
}

// EffectGateway applies and reverses roles on the live platform. Both role
// calls must be idempotent: a role that is already present or already gone
// is reported through the outcome, not as an error.
type EffectGateway interface {
	ApplyRole(ctx context.Context, userID, roleID, guildID string) (ApplyOutcome, error)
	RemoveRole(ctx context.Context, userID, roleID, guildID string) (RemoveOutcome, error)
	Notify(ctx context.Context, userID, guildID string, notice Notice) (NotifyOutcome, error)
}

// GrantStore is the durable record store the scheduler reconciles against.
type GrantStore interface {
	Put(ctx context.Context, record model.GrantRecord) error
	Remove(ctx context.Context, userID, roleID, guildID string) (bool, error)
	Get(ctx context.Context, userID, guildID string) (*model.GrantRecord, error)
	GetByKey(ctx context.Context, key model.GrantKey) (*model.GrantRecord, error)
	ListByMember(ctx context.Context, userID, guildID string) ([]model.GrantRecord, error)
	ListAll(ctx context.Context) ([]model.GrantRecord, error)
}
