package chatstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"
)

// GlobalRoom is the public room every connection lands in.
const GlobalRoom = "global"

//go:embed schema.sql
var schemaSQL string

// Message is one persisted chat line.
type Message struct {
	Room      string
	Username  string
	Text      string
	CreatedAt time.Time
}

// IChatStore is the durable side of the relay: rooms, device names and
// per-room history.
type IChatStore interface {
	EnsureRoom(ctx context.Context, name string, private bool) error
	AppendMessage(ctx context.Context, room, username, text string) error
	// RecentMessages returns at most limit messages of room, oldest first.
	RecentMessages(ctx context.Context, room string, limit int) ([]Message, error)
	// GetUsername reports ok=false when the device has no bound name.
	GetUsername(ctx context.Context, device string) (name string, ok bool, err error)
	SetUsername(ctx context.Context, device, name string) error
	AllUsernames(ctx context.Context) ([]string, error)
}

type chatStore struct {
	db *sql.DB
}

var _ IChatStore = (*chatStore)(nil)

func NewChatStore(db *sql.DB) IChatStore {
	return &chatStore{db: db}
}

// EnsureSchema creates the tables if needed and seeds the global room.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return NewChatStore(db).EnsureRoom(ctx, GlobalRoom, false)
}

func (s *chatStore) EnsureRoom(ctx context.Context, name string, private bool) error {
	const q = `
	  INSERT INTO rooms (name, private)
	       VALUES ($1, $2)
	  ON CONFLICT (name) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, name, private); err != nil {
		return fmt.Errorf("ensure room %s: %w", name, err)
	}
	return nil
}

func (s *chatStore) AppendMessage(ctx context.Context, room, username, text string) error {
	const q = `INSERT INTO messages (room, username, message) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, q, room, username, text); err != nil {
		return fmt.Errorf("append message to %s: %w", room, err)
	}
	return nil
}

func (s *chatStore) RecentMessages(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	// newest `limit` rows, flipped back to chronological order
	const q = `
	  SELECT room, username, message, created_at
	    FROM (SELECT id, room, username, message, created_at
	            FROM messages
	           WHERE room = $1
	           ORDER BY id DESC
	           LIMIT $2) recent
	   ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, q, room, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages of %s: %w", room, err)
	}
	defer rows.Close()

	list := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Room, &m.Username, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (s *chatStore) GetUsername(ctx context.Context, device string) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM users WHERE device = $1`, device).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get username: %w", err)
	}
	return name, true, nil
}

func (s *chatStore) SetUsername(ctx context.Context, device, name string) error {
	const q = `
	  INSERT INTO users (device, name)
	       VALUES ($1, $2)
	  ON CONFLICT (device) DO UPDATE
	        SET name = EXCLUDED.name`
	if _, err := s.db.ExecContext(ctx, q, device, name); err != nil {
		return fmt.Errorf("set username: %w", err)
	}
	return nil
}

func (s *chatStore) AllUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("all usernames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
