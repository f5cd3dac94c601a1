package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Role constants.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
	RoleOwner = "OWNER"
)

// User is a chat-network identity known to the gateway.
type User struct {
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Banned    bool      `json:"banned"`
	BanReason string    `json:"banReason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
	TenantID  string    `json:"tenantId,omitempty"`
}

// TouchUser upserts a user record: first contact creates it with defaults,
// later contacts only refresh last_seen. Returns the stored row.
func (s *Store) TouchUser(userID string) (*User, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	now := time.Now().UTC()

	// Retry on transient SQLITE_BUSY, same as the command path.
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, err = s.db.Exec(`
			INSERT INTO users (user_id, role, banned, created_at, last_seen)
			VALUES (?, ?, FALSE, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET last_seen = excluded.last_seen
		`, userID, RoleUser, now, now)
		if err == nil {
			return s.GetUser(userID)
		}
		if isBusyError(err) && attempt < maxRetries {
			time.Sleep(baseDelay * time.Duration(attempt+1))
			continue
		}
		return nil, err
	}
	return nil, err
}

// GetUser retrieves a user by id. Returns (nil, nil) when not found.
func (s *Store) GetUser(userID string) (*User, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	var user User
	var banReason sql.NullString
	var tenantID sql.NullString
	err := s.db.QueryRow(`
		SELECT user_id, role, banned, ban_reason, created_at, last_seen, tenant_id
		FROM users WHERE user_id = ?
	`, strings.TrimSpace(userID)).Scan(
		&user.UserID,
		&user.Role,
		&user.Banned,
		&banReason,
		&user.CreatedAt,
		&user.LastSeen,
		&tenantID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if banReason.Valid {
		user.BanReason = banReason.String
	}
	if tenantID.Valid {
		user.TenantID = tenantID.String
	}
	return &user, nil
}

// SetBanned updates ban state, creating the record if the target has never
// messaged the gateway.
func (s *Store) SetBanned(userID string, banned bool, reason string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	now := time.Now().UTC()
	var reasonArg any
	if banned && strings.TrimSpace(reason) != "" {
		reasonArg = strings.TrimSpace(reason)
	}

	_, err := s.db.Exec(`
		INSERT INTO users (user_id, role, banned, ban_reason, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET banned = excluded.banned, ban_reason = excluded.ban_reason
	`, userID, RoleUser, banned, reasonArg, now, now)
	return err
}

// SetRole updates a user's role. The target must already exist.
func (s *Store) SetRole(userID, role string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	switch role {
	case RoleUser, RoleAdmin, RoleOwner:
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	res, err := s.db.Exec(`UPDATE users SET role = ? WHERE user_id = ?`, role, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("user %s not found", userID)
	}
	return nil
}

// CountUsers returns the number of known users.
func (s *Store) CountUsers() (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreClosed
	}
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
