package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/officialznkxproject-sys/tohang/pkg/directory"
	"github.com/officialznkxproject-sys/tohang/pkg/storage"
)

// failingUserStore errors on every call; the directory and handlers must
// degrade instead of failing the dispatch.
type failingUserStore struct{}

var errStoreDown = errors.New("storage down")

func (failingUserStore) TouchUser(string) (*storage.User, error) { return nil, errStoreDown }
func (failingUserStore) GetUser(string) (*storage.User, error)   { return nil, errStoreDown }
func (failingUserStore) SetBanned(string, bool, string) error    { return errStoreDown }
func (failingUserStore) CountUsers() (int, error)                { return 0, errStoreDown }

func TestHelpListsCategories(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	reply := router.Handle(context.Background(), testSender, "!help")
	for _, want := range []string{"📁 information: !help information", "📁 owner: !help owner"} {
		if !strings.Contains(reply, want) {
			t.Errorf("help output missing %q:\n%s", want, reply)
		}
	}
}

func TestHelpCategoryListsCommands(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	reply := router.Handle(context.Background(), testSender, "!help information")
	for _, want := range []string{"ping", "help", "info", "weather"} {
		if !strings.Contains(reply, want) {
			t.Errorf("information help missing %q:\n%s", want, reply)
		}
	}
	if strings.Contains(reply, "addcmd") {
		t.Error("owner commands should not appear under information")
	}
}

func TestHelpUnknownCategory(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	reply := router.Handle(context.Background(), testSender, "!help bogus")
	if !strings.Contains(reply, "not found") {
		t.Errorf("unexpected reply for unknown category: %q", reply)
	}
}

func TestWeatherWithoutClient(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	reply := router.Handle(context.Background(), testSender, "!weather Jakarta")
	if !strings.Contains(reply, "not configured") {
		t.Errorf("unexpected reply without a weather client: %q", reply)
	}
}

func TestWeatherRequiresCity(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	reply := router.Handle(context.Background(), testSender, "!weather")
	if !strings.Contains(reply, "city") {
		t.Errorf("unexpected usage reply: %q", reply)
	}
}

func TestStatsFallbackOnStoreError(t *testing.T) {
	users := directory.New(failingUserStore{}, nil)
	reg := NewRegistry(newMemCommandStore(), nil)
	RegisterBuiltins(reg, BuiltinDeps{OwnerID: testOwner, Users: users})
	router := NewRouter(RouterConfig{Prefix: "!", OwnerID: testOwner}, reg, users, nil, nil)

	reply := router.Handle(context.Background(), testOwner, "!stats")
	if !strings.Contains(reply, "Users: N/A") {
		t.Errorf("stats should degrade to N/A on storage errors, got %q", reply)
	}
}

func TestNormalizeTarget(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"628123456", "628123456@s.whatsapp.net"},
		{"+62 812-3456", "628123456@s.whatsapp.net"},
		{"628123456@s.whatsapp.net", "628123456@s.whatsapp.net"},
		{"abc", ""},
	}
	for _, tc := range cases {
		if got := normalizeTarget(tc.in); got != tc.want {
			t.Errorf("normalizeTarget(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDelcmdMissingCommand(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	reply := router.Handle(context.Background(), testOwner, "!delcmd ghost")
	if !strings.Contains(reply, "does not exist") {
		t.Errorf("unexpected delcmd reply: %q", reply)
	}
}
