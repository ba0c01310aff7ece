package database

import (
	"context"
	"database/sql"
	"role-keeper/model"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const tempGrantSchema = `
CREATE TABLE IF NOT EXISTS temp_roles (
    user_id TEXT NOT NULL,
    role_id TEXT NOT NULL,
    guild_id TEXT NOT NULL,
    grant_id TEXT NOT NULL DEFAULT '',
    start_time DATETIME NOT NULL,
    duration TEXT NOT NULL,
    start_message TEXT NOT NULL DEFAULT '',
    end_message TEXT NOT NULL DEFAULT '',
    issued_by TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (user_id, role_id, guild_id)
);
CREATE INDEX IF NOT EXISTS idx_temp_roles_guild ON temp_roles (guild_id, user_id);`

const tempGrantColumns = `user_id, role_id, guild_id, grant_id, start_time, duration, start_message, end_message, issued_by`

// InitTempGrantDB opens the temporary role database and ensures the table exists.
// Writes are committed with synchronous=FULL so a returned Put or Remove
// survives a crash.
func InitTempGrantDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", tempGrantDSN(dbPath))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to temp role database")
	}
	// A single connection serialises writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(tempGrantSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create temp_roles table")
	}
	return db, nil
}

// OpenTempGrantDBReadOnly opens an existing temporary role database without
// creating or migrating anything. Writes through it fail.
func OpenTempGrantDBReadOnly(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", "file:"+dbPath+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open temp role database %s read-only", dbPath)
	}
	return db, nil
}

func tempGrantDSN(dbPath string) string {
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file:") {
		return dbPath
	}
	return "file:" + dbPath + "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"
}

// TempGrantStore is the durable record store for temporary role grants,
// keyed by (user, role, guild). It is safe for concurrent use.
type TempGrantStore struct {
	db *sqlx.DB
}

func NewTempGrantStore(db *sqlx.DB) *TempGrantStore {
	return &TempGrantStore{db: db}
}

func storageErr(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), model.ErrStorage)
}

// Put inserts or wholesale replaces the record for its key.
func (s *TempGrantStore) Put(ctx context.Context, record model.GrantRecord) error {
	record.StartTime = record.StartTime.UTC()
	query := `INSERT OR REPLACE INTO temp_roles (` + tempGrantColumns + `)
              VALUES (:user_id, :role_id, :guild_id, :grant_id, :start_time, :duration, :start_message, :end_message, :issued_by)`

	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		return storageErr(err, "failed to put temp role %s", record.Key())
	}
	return nil
}

// Remove deletes the record for the key and reports whether one existed.
// Removing an absent key is not an error.
func (s *TempGrantStore) Remove(ctx context.Context, userID, roleID, guildID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM temp_roles WHERE user_id = ? AND role_id = ? AND guild_id = ?",
		userID, roleID, guildID)
	if err != nil {
		return false, storageErr(err, "failed to remove temp role %s/%s/%s", guildID, userID, roleID)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, storageErr(err, "failed to check rows affected for temp role %s/%s/%s", guildID, userID, roleID)
	}
	return rowsAffected > 0, nil
}

// Get returns the most recently started record for the user in the guild.
func (s *TempGrantStore) Get(ctx context.Context, userID, guildID string) (*model.GrantRecord, error) {
	var record model.GrantRecord
	err := s.db.GetContext(ctx, &record,
		`SELECT `+tempGrantColumns+` FROM temp_roles WHERE user_id = ? AND guild_id = ?
         ORDER BY start_time DESC LIMIT 1`, userID, guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("no temp role for user %s in guild %s", userID, guildID), model.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr(err, "failed to get temp role for user %s in guild %s", userID, guildID)
	}
	return &record, nil
}

// GetByKey returns the record for the exact key.
func (s *TempGrantStore) GetByKey(ctx context.Context, key model.GrantKey) (*model.GrantRecord, error) {
	var record model.GrantRecord
	err := s.db.GetContext(ctx, &record,
		`SELECT `+tempGrantColumns+` FROM temp_roles WHERE user_id = ? AND role_id = ? AND guild_id = ?`,
		key.UserID, key.RoleID, key.GuildID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("no temp role %s", key), model.ErrNotFound)
	}
	if err != nil {
		return nil, storageErr(err, "failed to get temp role %s", key)
	}
	return &record, nil
}

// ListByMember returns every record of the user in the guild, oldest first.
func (s *TempGrantStore) ListByMember(ctx context.Context, userID, guildID string) ([]model.GrantRecord, error) {
	records := []model.GrantRecord{}
	err := s.db.SelectContext(ctx, &records,
		`SELECT `+tempGrantColumns+` FROM temp_roles WHERE user_id = ? AND guild_id = ? ORDER BY start_time`,
		userID, guildID)
	if err != nil {
		return nil, storageErr(err, "failed to list temp roles for user %s in guild %s", userID, guildID)
	}
	return records, nil
}

// ListByGuild returns every record in the guild, oldest first.
func (s *TempGrantStore) ListByGuild(ctx context.Context, guildID string) ([]model.GrantRecord, error) {
	records := []model.GrantRecord{}
	err := s.db.SelectContext(ctx, &records,
		`SELECT `+tempGrantColumns+` FROM temp_roles WHERE guild_id = ? ORDER BY start_time`, guildID)
	if err != nil {
		return nil, storageErr(err, "failed to list temp roles for guild %s", guildID)
	}
	return records, nil
}

// ListAll returns every record. It runs as a single statement, so the
// result is a point-in-time snapshot.
func (s *TempGrantStore) ListAll(ctx context.Context) ([]model.GrantRecord, error) {
	records := []model.GrantRecord{}
	err := s.db.SelectContext(ctx, &records,
		`SELECT `+tempGrantColumns+` FROM temp_roles ORDER BY start_time`)
	if err != nil {
		return nil, storageErr(err, "failed to list temp roles")
	}
	return records, nil
}

// Count returns the number of tracked grants.
func (s *TempGrantStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM temp_roles"); err != nil {
		return 0, storageErr(err, "failed to count temp roles")
	}
	return n, nil
}
