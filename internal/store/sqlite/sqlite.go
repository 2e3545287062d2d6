package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/parleychat/parley-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	owner_id   INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (owner_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS room_allowed_users (
	room_id   INTEGER NOT NULL,
	username  TEXT NOT NULL,
	added_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, username),
	FOREIGN KEY (room_id) REFERENCES rooms(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	from_user  TEXT NOT NULL,
	to_user    TEXT,
	room       TEXT,
	text       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room, id DESC);
CREATE INDEX IF NOT EXISTS idx_messages_dm ON messages(from_user, to_user, id DESC);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function
// after the schema has been applied. Useful for tests to seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with a pre-hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getUserByID(ctx, id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	var u store.User
	err := s.db.QueryRowContext(ctx, query, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &u, nil
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	var u store.User
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &u, nil
}

// ==== Directory implementation ====

// FindRoom retrieves a room with its allow-list.
func (s *SQLiteStore) FindRoom(ctx context.Context, name string) (*store.Room, error) {
	query := `
		SELECT id, name, owner_id, created_at
		FROM rooms
		WHERE name = ?
	`
	var r store.Room
	err := s.db.QueryRowContext(ctx, query, name).
		Scan(&r.ID, &r.Name, &r.OwnerID, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	allowQuery := `
		SELECT username FROM room_allowed_users
		WHERE room_id = ?
		ORDER BY added_at ASC
	`
	rows, err := s.db.QueryContext(ctx, allowQuery, r.ID)
	if err != nil {
		return nil, fmt.Errorf("query allow-list: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("scan allow-list: %w", err)
		}
		r.AllowedUsers = append(r.AllowedUsers, username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allow-list: %w", err)
	}

	return &r, nil
}

// FindUser reports whether a user with the given username exists.
func (s *SQLiteStore) FindUser(ctx context.Context, username string) (bool, error) {
	query := `SELECT 1 FROM users WHERE username = ?`

	var exists int
	err := s.db.QueryRowContext(ctx, query, username).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query user existence: %w", err)
	}

	return true, nil
}

// ListRoomNames returns the names of all rooms, sorted.
func (s *SQLiteStore) ListRoomNames(ctx context.Context) ([]string, error) {
	query := `SELECT name FROM rooms ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan room name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	return names, nil
}

// CreateRoom creates a room and puts the owner on its allow-list.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, ownerID int64) (*store.Room, error) {
	owner, err := s.getUserByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("lookup owner: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (name, owner_id) VALUES (?, ?)`, name, ownerID)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO room_allowed_users (room_id, username) VALUES (?, ?)`,
		roomID, owner.Username); err != nil {
		return nil, fmt.Errorf("allow owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.FindRoom(ctx, name)
}

// AllowUser adds username to the room's allow-list.
func (s *SQLiteStore) AllowUser(ctx context.Context, roomName, username string) error {
	room, err := s.FindRoom(ctx, roomName)
	if err != nil {
		return err
	}

	query := `
		INSERT OR IGNORE INTO room_allowed_users (room_id, username)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, room.ID, username); err != nil {
		return fmt.Errorf("insert allow-list entry: %w", err)
	}

	return nil
}

// DisallowUser removes username from the room's allow-list.
func (s *SQLiteStore) DisallowUser(ctx context.Context, roomName, username string) error {
	room, err := s.FindRoom(ctx, roomName)
	if err != nil {
		return err
	}

	query := `
		DELETE FROM room_allowed_users
		WHERE room_id = ? AND username = ?
	`
	if _, err := s.db.ExecContext(ctx, query, room.ID, username); err != nil {
		return fmt.Errorf("delete allow-list entry: %w", err)
	}

	return nil
}

// ==== MessageLog implementation ====

// Append persists one message and returns the stored row.
func (s *SQLiteStore) Append(ctx context.Context, env store.Envelope) (*store.StoredMessage, error) {
	query := `
		INSERT INTO messages (from_user, to_user, room, text, created_at)
		VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		env.From, env.To, env.Room, env.Text, env.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessageByID(ctx, id)
}

// RoomHistory returns the most recent limit messages in a room, oldest-first.
func (s *SQLiteStore) RoomHistory(ctx context.Context, roomName string, limit int) ([]store.StoredMessage, error) {
	// Pick the newest rows, then flip back to chronological order.
	query := `
		SELECT id, from_user, COALESCE(to_user, ''), COALESCE(room, ''), text, created_at
		FROM (
			SELECT * FROM messages
			WHERE room = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`
	return s.queryMessages(ctx, query, roomName, limit)
}

// DMHistory returns the most recent limit messages between two users, oldest-first.
func (s *SQLiteStore) DMHistory(ctx context.Context, userA, userB string, limit int) ([]store.StoredMessage, error) {
	query := `
		SELECT id, from_user, COALESCE(to_user, ''), COALESCE(room, ''), text, created_at
		FROM (
			SELECT * FROM messages
			WHERE (from_user = ? AND to_user = ?)
			   OR (from_user = ? AND to_user = ?)
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`
	return s.queryMessages(ctx, query, userA, userB, userB, userA, limit)
}

func (s *SQLiteStore) getMessageByID(ctx context.Context, id int64) (*store.StoredMessage, error) {
	query := `
		SELECT id, from_user, COALESCE(to_user, ''), COALESCE(room, ''), text, created_at
		FROM messages
		WHERE id = ?
	`
	var m store.StoredMessage
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&m.ID, &m.From, &m.To, &m.Room, &m.Text, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	return &m, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]store.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]store.StoredMessage, 0)
	for rows.Next() {
		var m store.StoredMessage
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Room, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
