package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/officialznkxproject-sys/tohang/pkg/directory"
	"github.com/officialznkxproject-sys/tohang/pkg/logging"
	"github.com/officialznkxproject-sys/tohang/pkg/telemetry"
)

// Reply texts for router-level outcomes.
const (
	replyPermissionDenied = "❌ Only the owner can use this command."
	replyGenericFailure   = "❌ Something went wrong while running the command."
)

// RouterConfig configures the dispatch router.
type RouterConfig struct {
	// Prefix marks command messages; anything else is ignored silently.
	Prefix string

	// OwnerID is the single trusted identity for admin-only commands.
	OwnerID string

	// RateLimitPerMinute caps dispatches per sender. Zero disables limiting.
	RateLimitPerMinute int
}

// Router parses inbound text and dispatches it to a resolved command. It
// never returns an error: every failure becomes a safe reply or silence.
type Router struct {
	cfg      RouterConfig
	registry *Registry
	users    *directory.Directory
	logger   *logging.Logger
	metrics  *telemetry.Metrics

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRouter creates a router. metrics may be nil.
func NewRouter(cfg RouterConfig, registry *Registry, users *directory.Directory, logger *logging.Logger, metrics *telemetry.Metrics) *Router {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Router{
		cfg:      cfg,
		registry: registry,
		users:    users,
		logger:   logger,
		metrics:  metrics,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Handle processes one inbound message and returns the reply text. An empty
// string means "send nothing".
func (r *Router) Handle(ctx context.Context, senderID, text string) string {
	if !strings.HasPrefix(text, r.cfg.Prefix) {
		return ""
	}

	// Upsert the sender before anything can reject the message; lastSeen
	// tracks contact, not successful dispatch.
	r.users.Touch(senderID)

	if r.users.IsBanned(senderID) {
		r.logger.Debug(logging.CategoryCommand, "banned_sender_ignored", "dropped command from banned sender",
			map[string]any{"user_id": senderID})
		r.metrics.ObserveCommand(telemetry.CommandIgnored, 0)
		return ""
	}

	if !r.allow(senderID) {
		r.logger.Warn(logging.CategoryCommand, "rate_limited", "dropped command over rate limit",
			map[string]any{"user_id": senderID})
		r.metrics.ObserveCommand(telemetry.CommandRateLimited, 0)
		return ""
	}

	fields := strings.Fields(strings.TrimPrefix(text, r.cfg.Prefix))
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	resolved, ok := r.registry.Resolve(name)
	if !ok {
		r.metrics.ObserveCommand(telemetry.CommandNotFound, 0)
		return fmt.Sprintf("❌ Command %q not found. Type %shelp for available commands.", name, r.cfg.Prefix)
	}

	if resolved.AdminOnly() && senderID != r.cfg.OwnerID {
		r.logger.Info(logging.CategoryCommand, "permission_denied", "admin command from non-owner",
			map[string]any{"user_id": senderID, "command": name})
		r.metrics.ObserveCommand(telemetry.CommandDenied, 0)
		return replyPermissionDenied
	}

	start := time.Now()
	reply, err := r.execute(ctx, resolved, args, senderID)
	duration := time.Since(start)

	if err != nil {
		r.logger.Error(logging.CategoryCommand, "handler_failed", "command handler failed",
			map[string]any{"user_id": senderID, "command": name, "error": err.Error()})
		r.metrics.ObserveCommand(telemetry.CommandFailed, duration)
		return replyGenericFailure
	}

	r.metrics.ObserveCommand(telemetry.CommandOK, duration)
	return reply
}

// execute runs the resolved command. Handler panics are converted to errors
// so one bad command cannot take down the message loop.
func (r *Router) execute(ctx context.Context, resolved Resolution, args []string, senderID string) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reply = ""
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()

	if resolved.Custom != nil {
		return resolved.Custom.Response, nil
	}
	return resolved.BuiltIn.Handler(ctx, args, senderID)
}

// allow checks the per-sender rate limiter.
func (r *Router) allow(senderID string) bool {
	if r.cfg.RateLimitPerMinute <= 0 {
		return true
	}

	r.mu.Lock()
	limiter, ok := r.limiters[senderID]
	if !ok {
		perSecond := rate.Limit(float64(r.cfg.RateLimitPerMinute) / 60.0)
		burst := r.cfg.RateLimitPerMinute / 4
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(perSecond, burst)
		r.limiters[senderID] = limiter
	}
	r.mu.Unlock()

	return limiter.Allow()
}
