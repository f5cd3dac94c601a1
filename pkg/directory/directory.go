// Package directory tracks chat users: first-contact upserts, roles, and ban
// state. Storage failures never propagate to message handling; they are
// logged and the caller gets a safe default.
package directory

import (
	"github.com/officialznkxproject-sys/tohang/pkg/logging"
	"github.com/officialznkxproject-sys/tohang/pkg/storage"
)

// UserStore is the subset of storage the directory needs.
type UserStore interface {
	TouchUser(userID string) (*storage.User, error)
	GetUser(userID string) (*storage.User, error)
	SetBanned(userID string, banned bool, reason string) error
	CountUsers() (int, error)
}

// Directory is the user directory facade.
type Directory struct {
	store  UserStore
	logger *logging.Logger
}

// New creates a directory over the given store.
func New(store UserStore, logger *logging.Logger) *Directory {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Directory{store: store, logger: logger}
}

// Touch upserts the sender record. It never fails the caller: on storage
// errors it logs and returns nil.
func (d *Directory) Touch(userID string) *storage.User {
	user, err := d.store.TouchUser(userID)
	if err != nil {
		d.logger.Warn(logging.CategoryStorage, "user_touch_failed", "failed to upsert user",
			map[string]any{"user_id": userID, "error": err.Error()})
		return nil
	}
	return user
}

// Role returns the sender's role, defaulting to USER when the record is
// absent or the lookup fails.
func (d *Directory) Role(userID string) string {
	user, err := d.store.GetUser(userID)
	if err != nil {
		d.logger.Warn(logging.CategoryStorage, "role_lookup_failed", "failed to look up role",
			map[string]any{"user_id": userID, "error": err.Error()})
		return storage.RoleUser
	}
	if user == nil {
		return storage.RoleUser
	}
	return user.Role
}

// IsBanned reports whether the sender is banned. Lookup failures default to
// not banned so storage outages cannot lock everyone out.
func (d *Directory) IsBanned(userID string) bool {
	user, err := d.store.GetUser(userID)
	if err != nil {
		d.logger.Warn(logging.CategoryStorage, "ban_lookup_failed", "failed to look up ban state",
			map[string]any{"user_id": userID, "error": err.Error()})
		return false
	}
	return user != nil && user.Banned
}

// Ban marks the target banned with the given reason, creating the record if
// needed. Authorization happens in the router before this is called.
func (d *Directory) Ban(userID, reason string) error {
	return d.store.SetBanned(userID, true, reason)
}

// Unban clears the target's ban state.
func (d *Directory) Unban(userID string) error {
	return d.store.SetBanned(userID, false, "")
}

// Count returns the number of known users.
func (d *Directory) Count() (int, error) {
	return d.store.CountUsers()
}
