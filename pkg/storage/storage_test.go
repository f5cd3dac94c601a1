package storage

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMigrationsApplied(t *testing.T) {
	store := newTestStore(t)

	version, err := store.GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if version < 2 {
		t.Errorf("schema version = %d, want at least 2", version)
	}
	if err := store.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestTouchUserCreatesThenRefreshes(t *testing.T) {
	store := newTestStore(t)

	user, err := store.TouchUser("628111@s.whatsapp.net")
	if err != nil {
		t.Fatalf("TouchUser: %v", err)
	}
	if user.Role != RoleUser {
		t.Errorf("first contact role = %q, want %q", user.Role, RoleUser)
	}
	if user.Banned {
		t.Error("first contact should not be banned")
	}
	firstSeen := user.LastSeen

	time.Sleep(10 * time.Millisecond)
	again, err := store.TouchUser("628111@s.whatsapp.net")
	if err != nil {
		t.Fatalf("second TouchUser: %v", err)
	}
	if again.LastSeen.Before(firstSeen) {
		t.Error("touch should refresh last_seen")
	}
	if again.CreatedAt.After(user.CreatedAt.Add(time.Second)) {
		t.Error("touch must not reset created_at")
	}

	count, err := store.CountUsers()
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestGetUserMissing(t *testing.T) {
	store := newTestStore(t)

	user, err := store.GetUser("ghost@s.whatsapp.net")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for unknown user, got %+v", user)
	}
}

func TestSetBannedPersists(t *testing.T) {
	store := newTestStore(t)

	// Banning an unknown user creates the record.
	if err := store.SetBanned("628222@s.whatsapp.net", true, "spam"); err != nil {
		t.Fatalf("SetBanned: %v", err)
	}

	user, err := store.GetUser("628222@s.whatsapp.net")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user == nil || !user.Banned {
		t.Fatalf("user not banned: %+v", user)
	}
	if user.BanReason != "spam" {
		t.Errorf("reason = %q", user.BanReason)
	}

	if err := store.SetBanned("628222@s.whatsapp.net", false, ""); err != nil {
		t.Fatalf("unban: %v", err)
	}
	user, _ = store.GetUser("628222@s.whatsapp.net")
	if user.Banned {
		t.Error("unban did not clear the flag")
	}
}

func TestSetRole(t *testing.T) {
	store := newTestStore(t)
	store.TouchUser("628333@s.whatsapp.net")

	if err := store.SetRole("628333@s.whatsapp.net", RoleAdmin); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	user, _ := store.GetUser("628333@s.whatsapp.net")
	if user.Role != RoleAdmin {
		t.Errorf("role = %q, want %q", user.Role, RoleAdmin)
	}
}

func TestCustomCommandLifecycle(t *testing.T) {
	store := newTestStore(t)

	cmd := CustomCommand{
		Name:      "Greet",
		Response:  "Hello!",
		Category:  "custom",
		CreatedBy: "628111@s.whatsapp.net",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.UpsertCommand(cmd); err != nil {
		t.Fatalf("UpsertCommand: %v", err)
	}

	// Names are stored lower-cased and looked up case-insensitively.
	got, err := store.GetCommand("GREET")
	if err != nil {
		t.Fatalf("GetCommand: %v", err)
	}
	if got == nil || got.Name != "greet" || got.Response != "Hello!" {
		t.Fatalf("unexpected command %+v", got)
	}

	// Re-registering replaces the response in place.
	cmd.Response = "Hi there!"
	if err := store.UpsertCommand(cmd); err != nil {
		t.Fatalf("second UpsertCommand: %v", err)
	}
	got, _ = store.GetCommand("greet")
	if got.Response != "Hi there!" {
		t.Errorf("response = %q, want replacement", got.Response)
	}

	list, err := store.ListCommands()
	if err != nil {
		t.Fatalf("ListCommands: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("list length = %d, want 1", len(list))
	}

	removed, err := store.DeleteCommand("greet")
	if err != nil {
		t.Fatalf("DeleteCommand: %v", err)
	}
	if !removed {
		t.Error("delete should report the command existed")
	}

	removed, err = store.DeleteCommand("greet")
	if err != nil {
		t.Fatalf("second DeleteCommand: %v", err)
	}
	if removed {
		t.Error("second delete should report nothing removed")
	}

	if got, _ := store.GetCommand("greet"); got != nil {
		t.Errorf("command still resolvable after delete: %+v", got)
	}
}
