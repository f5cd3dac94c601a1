// Package command implements the dispatch engine: a registry of built-in and
// operator-registered commands, and the router that parses inbound text,
// enforces permissions, and isolates handler failures.
package command

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/officialznkxproject-sys/tohang/pkg/logging"
	"github.com/officialznkxproject-sys/tohang/pkg/storage"
)

// Handler executes a built-in command. args are the raw whitespace-delimited
// tokens after the command name; handlers re-join free-text arguments
// themselves. An empty reply with a nil error means "send nothing".
type Handler func(ctx context.Context, args []string, callerID string) (string, error)

// BuiltIn is a command fixed at process build time.
type BuiltIn struct {
	Name        string
	Description string
	Usage       string
	Category    string
	AdminOnly   bool
	Handler     Handler
}

// Resolution is the tagged result of a registry lookup: exactly one of
// BuiltIn and Custom is set.
type Resolution struct {
	BuiltIn *BuiltIn
	Custom  *storage.CustomCommand
}

// AdminOnly reports whether the resolved command is owner-gated. Custom
// commands are never admin-only; only registering them is.
func (r Resolution) AdminOnly() bool {
	return r.BuiltIn != nil && r.BuiltIn.AdminOnly
}

// CommandStore is the persistence contract for custom commands.
type CommandStore interface {
	GetCommand(name string) (*storage.CustomCommand, error)
	UpsertCommand(cmd storage.CustomCommand) error
	DeleteCommand(name string) (bool, error)
	ListCommands() ([]storage.CustomCommand, error)
}

// Registry resolves command names. Custom commands are checked first so
// operators can override a built-in by registering the same name; a storage
// error during the custom lookup falls through to the built-in table instead
// of failing closed.
type Registry struct {
	builtins   map[string]*BuiltIn
	categories []string
	store      CommandStore
	logger     *logging.Logger
}

// NewRegistry creates an empty registry over the given custom-command store.
// The store may be nil; resolution then only consults built-ins.
func NewRegistry(store CommandStore, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Registry{
		builtins: make(map[string]*BuiltIn),
		store:    store,
		logger:   logger,
	}
}

// Register adds a built-in to the table. Later registrations of the same
// name replace earlier ones; category order follows first appearance.
func (r *Registry) Register(cmd *BuiltIn) {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" {
		return
	}
	cmd.Name = name
	r.builtins[name] = cmd

	for _, cat := range r.categories {
		if cat == cmd.Category {
			return
		}
	}
	r.categories = append(r.categories, cmd.Category)
}

// Resolve looks up a command by name. The boolean reports whether anything
// was found.
func (r *Registry) Resolve(name string) (Resolution, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Resolution{}, false
	}

	if r.store != nil {
		custom, err := r.store.GetCommand(name)
		if err != nil {
			r.logger.Warn(logging.CategoryStorage, "custom_lookup_failed",
				"custom command lookup failed, falling back to built-ins",
				map[string]any{"name": name, "error": err.Error()})
		} else if custom != nil {
			return Resolution{Custom: custom}, true
		}
	}

	if builtin, ok := r.builtins[name]; ok {
		return Resolution{BuiltIn: builtin}, true
	}
	return Resolution{}, false
}

// AddCustom registers or replaces a custom command.
func (r *Registry) AddCustom(name, response, category, createdBy string) error {
	if r.store == nil {
		return storage.ErrStoreClosed
	}
	return r.store.UpsertCommand(storage.CustomCommand{
		Name:      name,
		Response:  response,
		Category:  category,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	})
}

// RemoveCustom deletes a custom command, reporting whether it existed.
func (r *Registry) RemoveCustom(name string) (bool, error) {
	if r.store == nil {
		return false, storage.ErrStoreClosed
	}
	return r.store.DeleteCommand(name)
}

// Categories returns built-in categories in registration order.
func (r *Registry) Categories() []string {
	return append([]string(nil), r.categories...)
}

// ByCategory returns the built-ins of one category in name order as listed
// by help. The boolean reports whether the category exists.
func (r *Registry) ByCategory(category string) ([]*BuiltIn, bool) {
	category = strings.ToLower(strings.TrimSpace(category))
	known := false
	for _, cat := range r.categories {
		if cat == category {
			known = true
			break
		}
	}
	if !known {
		return nil, false
	}

	var cmds []*BuiltIn
	for _, cmd := range r.builtins {
		if cmd.Category == category {
			cmds = append(cmds, cmd)
		}
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds, true
}
