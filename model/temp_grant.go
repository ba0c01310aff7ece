package model

import "time"

// DurationClass is one of the fixed lengths a temporary role can be granted for.
type DurationClass string

const (
	Duration5m  DurationClass = "5m"
	Duration30m DurationClass = "30m"
	Duration1h  DurationClass = "1h"
	Duration6h  DurationClass = "6h"
	Duration1d  DurationClass = "1d"
	Duration7d  DurationClass = "7d"
)

var durationLengths = map[DurationClass]time.Duration{
	Duration5m:  5 * time.Minute,
	Duration30m: 30 * time.Minute,
	Duration1h:  time.Hour,
	Duration6h:  6 * time.Hour,
	Duration1d:  24 * time.Hour,
	Duration7d:  7 * 24 * time.Hour,
}

// DurationClasses lists the classes in ascending order, for command choices.
var DurationClasses = []DurationClass{
	Duration5m, Duration30m, Duration1h, Duration6h, Duration1d, Duration7d,
}

// Length returns the total length of the class and whether it is known.
func (d DurationClass) Length() (time.Duration, bool) {
	l, ok := durationLengths[d]
	return l, ok
}

// Valid reports whether d is one of the fixed classes.
func (d DurationClass) Valid() bool {
	_, ok := durationLengths[d]
	return ok
}

// Label is the human readable name shown in command choices and embeds.
func (d DurationClass) Label() string {
	switch d {
	case Duration5m:
		return "5 minutes"
	case Duration30m:
		return "30 minutes"
	case Duration1h:
		return "1 hour"
	case Duration6h:
		return "6 hours"
	case Duration1d:
		return "1 day"
	case Duration7d:
		return "7 days"
	}
	return string(d)
}

// GrantKey identifies one tracked temporary grant.
type GrantKey struct {
	UserID  string
	RoleID  string
	GuildID string
}

func (k GrantKey) String() string {
	return k.GuildID + "/" + k.UserID + "/" + k.RoleID
}

// GrantRecord is the durable obligation "role RoleID expires for UserID in
// GuildID at StartTime + Duration". The database table is 'temp_roles'.
type GrantRecord struct {
	UserID       string        `db:"user_id"`
	RoleID       string        `db:"role_id"`
	GuildID      string        `db:"guild_id"`
	GrantID      string        `db:"grant_id"`
	StartTime    time.Time     `db:"start_time"`
	Duration     DurationClass `db:"duration"`
	StartMessage string        `db:"start_message"`
	EndMessage   string        `db:"end_message"`
	IssuedBy     string        `db:"issued_by"`
}

func (r GrantRecord) Key() GrantKey {
	return GrantKey{UserID: r.UserID, RoleID: r.RoleID, GuildID: r.GuildID}
}

// Deadline is the absolute expiry time. Unknown classes expire at StartTime.
func (r GrantRecord) Deadline() time.Time {
	l, _ := r.Duration.Length()
	return r.StartTime.Add(l)
}
