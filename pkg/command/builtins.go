package command

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/officialznkxproject-sys/tohang/pkg/directory"
)

// Built-in categories.
const (
	CategoryInformation = "information"
	CategoryOwner       = "owner"
)

// networkSuffix completes a bare phone number into a chat-network address.
const networkSuffix = "@s.whatsapp.net"

var nonDigits = regexp.MustCompile(`[^0-9]`)

// BuiltinDeps carries everything the built-in handlers need.
type BuiltinDeps struct {
	OwnerID string
	Version string
	Users   *directory.Directory
	Weather *WeatherClient
}

// RegisterBuiltins installs the static command table into the registry.
func RegisterBuiltins(reg *Registry, deps BuiltinDeps) {
	reg.Register(&BuiltIn{
		Name:        "ping",
		Description: "Test that the bot is alive",
		Usage:       "!ping",
		Category:    CategoryInformation,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			return "🏓 Pong!", nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "help",
		Description: "Show available commands",
		Usage:       "!help [category]",
		Category:    CategoryInformation,
		Handler:     helpHandler(reg),
	})

	reg.Register(&BuiltIn{
		Name:        "info",
		Description: "Show bot information",
		Usage:       "!info",
		Category:    CategoryInformation,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			return fmt.Sprintf("🤖 Tohang Gateway\nVersion: %s\nA chat gateway with pluggable commands.", deps.Version), nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "owner",
		Description: "Show how to contact the owner",
		Usage:       "!owner",
		Category:    CategoryInformation,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			if deps.OwnerID == "" {
				return "👨‍💻 No owner is configured.", nil
			}
			return fmt.Sprintf("👨‍💻 Owner: %s\nContact the owner for more information!", deps.OwnerID), nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "weather",
		Description: "Get current weather for a city",
		Usage:       "!weather <city>",
		Category:    CategoryInformation,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			if len(args) == 0 {
				return "❌ Please include a city name. Example: !weather Jakarta", nil
			}
			if deps.Weather == nil {
				return "⚠️ Weather lookups are not configured on this bot.", nil
			}
			city := strings.Join(args, " ")
			reply, err := deps.Weather.Lookup(ctx, city)
			if err != nil {
				// Lookup failures are a usage-visible condition, not a crash.
				return "❌ Could not fetch weather data. Check the city name.", nil
			}
			return reply, nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "news",
		Description: "Get the latest news",
		Usage:       "!news [category]",
		Category:    CategoryInformation,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			return "📰 News is coming soon!", nil
		},
	})

	// Not implemented yet; an empty reply means the router sends nothing.
	reg.Register(&BuiltIn{
		Name:        "schedule",
		Description: "Show the daily schedule",
		Usage:       "!schedule <city>",
		Category:    CategoryInformation,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			return "", nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "ban",
		Description: "Block a user from the bot",
		Usage:       "!ban <number> [reason]",
		Category:    CategoryOwner,
		AdminOnly:   true,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			if len(args) == 0 {
				return "❌ Please include the number to ban.", nil
			}
			target := normalizeTarget(args[0])
			if target == "" {
				return "❌ That does not look like a valid number.", nil
			}
			reason := strings.Join(args[1:], " ")
			if reason == "" {
				reason = "no reason given"
			}
			if err := deps.Users.Ban(target, reason); err != nil {
				return "", fmt.Errorf("ban %s: %w", target, err)
			}
			return fmt.Sprintf("✅ User %s has been banned. Reason: %s", target, reason), nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "unban",
		Description: "Lift a user's ban",
		Usage:       "!unban <number>",
		Category:    CategoryOwner,
		AdminOnly:   true,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			if len(args) == 0 {
				return "❌ Please include the number to unban.", nil
			}
			target := normalizeTarget(args[0])
			if target == "" {
				return "❌ That does not look like a valid number.", nil
			}
			if err := deps.Users.Unban(target); err != nil {
				return "", fmt.Errorf("unban %s: %w", target, err)
			}
			return fmt.Sprintf("✅ User %s has been unbanned.", target), nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "addcmd",
		Description: "Add a custom command",
		Usage:       "!addcmd <name> <response>",
		Category:    CategoryOwner,
		AdminOnly:   true,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			if len(args) < 2 {
				return "❌ Format: !addcmd <name> <response>", nil
			}
			name := strings.ToLower(args[0])
			response := strings.Join(args[1:], " ")
			if err := reg.AddCustom(name, response, "custom", callerID); err != nil {
				return "", fmt.Errorf("add command %s: %w", name, err)
			}
			return fmt.Sprintf("✅ Command %q has been added.", name), nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "delcmd",
		Description: "Remove a custom command",
		Usage:       "!delcmd <name>",
		Category:    CategoryOwner,
		AdminOnly:   true,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			if len(args) == 0 {
				return "❌ Format: !delcmd <name>", nil
			}
			name := strings.ToLower(args[0])
			removed, err := reg.RemoveCustom(name)
			if err != nil {
				return "", fmt.Errorf("remove command %s: %w", name, err)
			}
			if !removed {
				return fmt.Sprintf("❌ Command %q does not exist.", name), nil
			}
			return fmt.Sprintf("✅ Command %q has been removed.", name), nil
		},
	})

	reg.Register(&BuiltIn{
		Name:        "stats",
		Description: "Show bot statistics",
		Usage:       "!stats",
		Category:    CategoryOwner,
		AdminOnly:   true,
		Handler: func(ctx context.Context, args []string, callerID string) (string, error) {
			count, err := deps.Users.Count()
			if err != nil {
				return "📊 Bot statistics:\n• Users: N/A\n• Status: Connected", nil
			}
			return fmt.Sprintf("📊 Bot statistics:\n• Users: %d\n• Status: Connected", count), nil
		},
	})
}

// helpHandler implements the two-level help command: no arguments lists
// categories, one argument lists that category's commands.
func helpHandler(reg *Registry) Handler {
	return func(ctx context.Context, args []string, callerID string) (string, error) {
		if len(args) == 0 {
			var sb strings.Builder
			sb.WriteString("🤖 Tohang command list\n\n")
			sb.WriteString("Type !help <category> to see specific commands\n\n")
			for _, cat := range reg.Categories() {
				sb.WriteString(fmt.Sprintf("📁 %s: !help %s\n", cat, cat))
			}
			return sb.String(), nil
		}

		category := strings.ToLower(args[0])
		cmds, ok := reg.ByCategory(category)
		if !ok {
			return fmt.Sprintf("❌ Category %q not found. Available categories: %s",
				args[0], strings.Join(reg.Categories(), ", ")), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("📋 %s commands:\n\n", category))
		for _, cmd := range cmds {
			sb.WriteString(fmt.Sprintf("• %s: %s, usage: %s\n", cmd.Name, cmd.Description, cmd.Usage))
		}
		return sb.String(), nil
	}
}

// normalizeTarget turns a user-supplied number into a chat-network address.
func normalizeTarget(raw string) string {
	if strings.Contains(raw, "@") {
		return raw
	}
	digits := nonDigits.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}
	return digits + networkSuffix
}
