package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/vovakirdan/lanchat-server/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies pending migrations.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function instead of migrations.
// Useful for tests that need a specific schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also serialises writers,
	// which keeps AUTOINCREMENT ids in commit order.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(context.Background(), db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, username, passwordHash); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByUsername(ctx, username)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, last_seen, created_at
		FROM users
		WHERE username = ?
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsers returns all users ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `
		SELECT id, username, password_hash, last_seen, created_at
		FROM users
		ORDER BY username ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdatePassword replaces the stored credential hash.
func (s *SQLiteStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE username = ?`, passwordHash, username)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectAffected(result, "user "+username)
}

// TouchLastSeen sets last_seen to now.
func (s *SQLiteStore) TouchLastSeen(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET last_seen = CURRENT_TIMESTAMP WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return expectAffected(result, "user "+username)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var user store.User
	var lastSeen sql.NullTime
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &lastSeen, &user.CreatedAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}
	return &user, nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message and returns its id.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.NewMessage) (int64, error) {
	query := `
		INSERT INTO messages (sender, recipient, body, file_path, file_name, file_type, is_broadcast, client_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	var filePath, fileName, fileType sql.NullString
	if msg.File != nil {
		filePath = sql.NullString{String: msg.File.Handle, Valid: true}
		fileName = sql.NullString{String: msg.File.Name, Valid: true}
		fileType = sql.NullString{String: msg.File.MimeType, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, query,
		msg.Sender,
		msg.Recipient,
		msg.Body,
		filePath,
		fileName,
		fileType,
		msg.IsBroadcast,
		msg.ClientTimestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// markReadBatch keeps MarkRead under the SQLite bind variable limit.
const markReadBatch = 500

const messageColumns = `id, sender, recipient, body, file_path, file_name, file_type, is_broadcast, client_timestamp, is_read, created_at`

// History returns the conversation between viewer and chatID in append order.
func (s *SQLiteStore) History(ctx context.Context, viewer, chatID string) ([]*store.Message, error) {
	var (
		query string
		args  []any
	)
	if chatID == store.BroadcastTarget {
		query = `SELECT ` + messageColumns + `
			FROM messages
			WHERE is_broadcast = 1
			ORDER BY id ASC`
	} else {
		query = `SELECT ` + messageColumns + `
			FROM messages
			WHERE is_broadcast = 0
			  AND ((sender = ? AND recipient = ?) OR (sender = ? AND recipient = ?))
			ORDER BY id ASC`
		args = []any{viewer, chatID, chatID, viewer}
	}

	messages, err := s.queryMessages(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if chatID == store.BroadcastTarget {
		return messages, nil
	}

	var lastUnread int64
	for _, msg := range messages {
		if !msg.IsRead && msg.Recipient == viewer {
			lastUnread = msg.ID
		}
	}
	if lastUnread > 0 {
		// Bounded by the last fetched id so rows appended after the read stay unread.
		_, err := s.db.ExecContext(ctx, `
			UPDATE messages SET is_read = 1
			WHERE is_read = 0 AND is_broadcast = 0
			  AND sender = ? AND recipient = ? AND id <= ?`,
			chatID, viewer, lastUnread)
		if err != nil {
			return messages, fmt.Errorf("%w: %w", store.ErrMarkRead, err)
		}
	}

	return messages, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var filePath, fileName, fileType sql.NullString
		if err := rows.Scan(
			&msg.ID,
			&msg.Sender,
			&msg.Recipient,
			&msg.Body,
			&filePath,
			&fileName,
			&fileType,
			&msg.IsBroadcast,
			&msg.ClientTimestamp,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if filePath.Valid && filePath.String != "" {
			msg.File = &store.FileRef{
				Handle:   filePath.String,
				Name:     fileName.String,
				MimeType: fileType.String,
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkRead sets the read flag on the given messages.
func (s *SQLiteStore) MarkRead(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	for start := 0; start < len(ids); start += markReadBatch {
		end := min(start+markReadBatch, len(ids))
		batch := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, 0, len(batch))
		for _, id := range batch {
			args = append(args, id)
		}

		query := `UPDATE messages SET is_read = 1 WHERE is_read = 0 AND id IN (` + placeholders + `)`
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
	}
	return nil
}

// UnreadCounts returns broadcast and per-sender unread counts for username.
func (s *SQLiteStore) UnreadCounts(ctx context.Context, username string) (*store.UnreadCounts, error) {
	privateQuery := `
		SELECT sender, COUNT(*)
		FROM messages
		WHERE recipient = ? AND is_read = 0 AND is_broadcast = 0
		GROUP BY sender
		ORDER BY sender ASC
	`
	rows, err := s.db.QueryContext(ctx, privateQuery, username)
	if err != nil {
		return nil, fmt.Errorf("query private unread: %w", err)
	}
	defer rows.Close()

	counts := &store.UnreadCounts{Private: []store.SenderCount{}}
	for rows.Next() {
		var sc store.SenderCount
		if err := rows.Scan(&sc.Sender, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts.Private = append(counts.Private, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unread counts: %w", err)
	}
	// Release the single connection before the next query.
	rows.Close()

	broadcastQuery := `SELECT COUNT(*) FROM messages WHERE is_broadcast = 1 AND is_read = 0`
	if err := s.db.QueryRowContext(ctx, broadcastQuery).Scan(&counts.Broadcast); err != nil {
		return nil, fmt.Errorf("query broadcast unread: %w", err)
	}

	return counts, nil
}

// FileReference returns the attachment of a message.
func (s *SQLiteStore) FileReference(ctx context.Context, messageID int64) (*store.FileRef, error) {
	query := `
		SELECT file_path, file_name, file_type
		FROM messages
		WHERE id = ?
	`
	var filePath, fileName, fileType sql.NullString
	err := s.db.QueryRowContext(ctx, query, messageID).Scan(&filePath, &fileName, &fileType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", messageID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query file reference: %w", err)
	}
	if !filePath.Valid || filePath.String == "" {
		return nil, fmt.Errorf("message %d has no file: %w", messageID, store.ErrNotFound)
	}

	return &store.FileRef{
		Handle:   filePath.String,
		Name:     fileName.String,
		MimeType: fileType.String,
	}, nil
}

func expectAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
