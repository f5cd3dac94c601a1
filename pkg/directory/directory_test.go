package directory

import (
	"errors"
	"testing"

	"github.com/officialznkxproject-sys/tohang/pkg/storage"
)

type fakeUserStore struct {
	users map[string]*storage.User
	err   error
}

func (f *fakeUserStore) TouchUser(userID string) (*storage.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.users[userID]
	if !ok {
		user = &storage.User{UserID: userID, Role: storage.RoleUser}
		f.users[userID] = user
	}
	return user, nil
}

func (f *fakeUserStore) GetUser(userID string) (*storage.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[userID], nil
}

func (f *fakeUserStore) SetBanned(userID string, banned bool, reason string) error {
	if f.err != nil {
		return f.err
	}
	user, ok := f.users[userID]
	if !ok {
		user = &storage.User{UserID: userID, Role: storage.RoleUser}
		f.users[userID] = user
	}
	user.Banned = banned
	user.BanReason = reason
	return nil
}

func (f *fakeUserStore) CountUsers() (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.users), nil
}

func newFake() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*storage.User)}
}

func TestTouchSwallowsStorageErrors(t *testing.T) {
	store := newFake()
	store.err = errors.New("locked")
	d := New(store, nil)

	if user := d.Touch("628111"); user != nil {
		t.Errorf("expected nil on storage error, got %+v", user)
	}
}

func TestRoleDefaults(t *testing.T) {
	store := newFake()
	d := New(store, nil)

	if role := d.Role("unknown"); role != storage.RoleUser {
		t.Errorf("unknown user role = %q, want %q", role, storage.RoleUser)
	}

	store.err = errors.New("locked")
	if role := d.Role("whoever"); role != storage.RoleUser {
		t.Errorf("role on error = %q, want %q", role, storage.RoleUser)
	}
}

func TestIsBannedDefaultsOpen(t *testing.T) {
	store := newFake()
	d := New(store, nil)

	if d.IsBanned("unknown") {
		t.Error("unknown user should not be banned")
	}

	d.Ban("target", "spam")
	if !d.IsBanned("target") {
		t.Error("banned user should report banned")
	}

	// Storage outages must not lock everyone out.
	store.err = errors.New("locked")
	if d.IsBanned("target") {
		t.Error("ban lookup failure should default to not banned")
	}
}

func TestUnbanClearsState(t *testing.T) {
	store := newFake()
	d := New(store, nil)

	d.Ban("target", "spam")
	if err := d.Unban("target"); err != nil {
		t.Fatalf("Unban: %v", err)
	}
	if d.IsBanned("target") {
		t.Error("user still banned after unban")
	}
}
