package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CustomCommand is an operator-registered name/response pair.
type CustomCommand struct {
	Name      string    `json:"name"`
	Response  string    `json:"response"`
	Category  string    `json:"category"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpsertCommand registers a custom command. The name is lower-cased for the
// unique key; re-registering replaces the prior definition in place.
func (s *Store) UpsertCommand(cmd CustomCommand) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if strings.TrimSpace(cmd.Response) == "" {
		return fmt.Errorf("command response cannot be empty")
	}
	category := strings.TrimSpace(cmd.Category)
	if category == "" {
		category = "custom"
	}
	createdAt := cmd.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO custom_commands (name, response, category, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			response = excluded.response,
			category = excluded.category,
			created_by = excluded.created_by,
			created_at = excluded.created_at
	`, name, cmd.Response, category, cmd.CreatedBy, createdAt)
	return err
}

// GetCommand looks up a custom command by name (case-insensitive).
// Returns (nil, nil) when not found.
func (s *Store) GetCommand(name string) (*CustomCommand, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}

	var cmd CustomCommand
	err := s.db.QueryRow(`
		SELECT name, response, category, created_by, created_at
		FROM custom_commands WHERE name = ?
	`, strings.ToLower(strings.TrimSpace(name))).Scan(
		&cmd.Name,
		&cmd.Response,
		&cmd.Category,
		&cmd.CreatedBy,
		&cmd.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

// DeleteCommand removes a custom command. Reports whether a row was deleted.
func (s *Store) DeleteCommand(name string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrStoreClosed
	}
	res, err := s.db.Exec(`DELETE FROM custom_commands WHERE name = ?`,
		strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListCommands returns all custom commands ordered by name.
func (s *Store) ListCommands() ([]CustomCommand, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.Query(`
		SELECT name, response, category, created_by, created_at
		FROM custom_commands ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []CustomCommand
	for rows.Next() {
		var cmd CustomCommand
		if err := rows.Scan(&cmd.Name, &cmd.Response, &cmd.Category, &cmd.CreatedBy, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}
