package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatbot-server/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		instructions TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL,
		is_public INTEGER NOT NULL DEFAULT 0,
		share_url TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_user ON agents(user_id);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_updated ON chat_sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_agent ON messages(agent_id);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at INTEGER NOT NULL,
		revoked INTEGER NOT NULL DEFAULT 0,
		replaced_by_id TEXT,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// isConflict checks if the error is a SQLite unique constraint violation.
func isConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, email, password_hash, name, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Name,
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if isConflict(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	var createdAt, updatedAt int64

	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Name, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT id, email, password_hash, name, created_at, updated_at FROM users WHERE email = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

// GetUserByID retrieves a user by id.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, email, password_hash, name, created_at, updated_at FROM users WHERE id = ?`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// CreateAgent inserts a new agent record.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
	INSERT INTO agents (id, user_id, name, instructions, model, is_public, share_url, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		agent.ID, agent.UserID, agent.Name, agent.Instructions, agent.Model,
		agent.IsPublic, agent.ShareURL,
		agent.CreatedAt.Unix(), agent.UpdatedAt.Unix(),
	)
	if isConflict(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func scanAgent(row interface{ Scan(...any) error }) (*domain.Agent, error) {
	var agent domain.Agent
	var createdAt, updatedAt int64

	err := row.Scan(
		&agent.ID, &agent.UserID, &agent.Name, &agent.Instructions,
		&agent.Model, &agent.IsPublic, &agent.ShareURL, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	agent.CreatedAt = time.Unix(createdAt, 0)
	agent.UpdatedAt = time.Unix(updatedAt, 0)
	return &agent, nil
}

const agentColumns = `id, user_id, name, instructions, model, is_public, share_url, created_at, updated_at`

// ListAgents retrieves all agents owned by the user, newest first.
func (s *SQLiteStore) ListAgents(ctx context.Context, userID string) ([]*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer closeRows(rows, "list agents")

	var agents []*domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// GetAgent retrieves an agent by id, scoped to its owner.
func (s *SQLiteStore) GetAgent(ctx context.Context, userID, agentID string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = ? AND user_id = ?`
	return scanAgent(s.db.QueryRowContext(ctx, query, agentID, userID))
}

// GetPublicAgent retrieves a public agent by share URL. Agents whose
// is_public flag has been turned off are invisible here even though the row
// still exists.
func (s *SQLiteStore) GetPublicAgent(ctx context.Context, shareURL string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE share_url = ? AND is_public = 1`
	return scanAgent(s.db.QueryRowContext(ctx, query, shareURL))
}

// UpdateAgent persists mutable agent fields for an agent owned by agent.UserID.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *domain.Agent) (bool, error) {
	query := `
	UPDATE agents SET name = ?, instructions = ?, model = ?, is_public = ?, updated_at = ?
	WHERE id = ? AND user_id = ?`

	result, err := s.db.ExecContext(ctx, query,
		agent.Name, agent.Instructions, agent.Model, agent.IsPublic,
		time.Now().Unix(), agent.ID, agent.UserID,
	)
	if err != nil {
		return false, fmt.Errorf("update agent: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// DeleteAgent removes the agent and all dependent rows. Messages go first,
// then sessions, then the agent itself, so a failure partway never leaves
// orphaned children.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, userID, agentID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete agent: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var owned int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM agents WHERE id = ? AND user_id = ?`, agentID, userID,
	).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check agent ownership: %w", err)
	}
	if owned == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return false, fmt.Errorf("delete agent messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE agent_id = ?`, agentID); err != nil {
		return false, fmt.Errorf("delete agent sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, agentID); err != nil {
		return false, fmt.Errorf("delete agent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete agent: %w", err)
	}
	return true, nil
}

// CreateSession inserts a new chat session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
	INSERT INTO chat_sessions (id, user_id, agent_id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.AgentID, session.Title,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var createdAt, updatedAt int64

	err := row.Scan(&session.ID, &session.UserID, &session.AgentID, &session.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// ListSessions retrieves the user's sessions, most recently active first,
// each with its messages in chronological order.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID, agentID string) ([]*domain.ChatSession, error) {
	query := `SELECT id, user_id, agent_id, title, created_at, updated_at FROM chat_sessions WHERE user_id = ?`
	args := []any{userID}
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY updated_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "list sessions")

	var sessions []*domain.ChatSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	for _, session := range sessions {
		messages, err := s.sessionMessages(ctx, session.ID, 0)
		if err != nil {
			return nil, err
		}
		session.Messages = messages
	}
	return sessions, nil
}

// GetSession retrieves a session by id, scoped to its owner, with messages.
func (s *SQLiteStore) GetSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	query := `SELECT id, user_id, agent_id, title, created_at, updated_at FROM chat_sessions WHERE id = ? AND user_id = ?`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID, userID))
	if err != nil || session == nil {
		return session, err
	}

	messages, err := s.sessionMessages(ctx, session.ID, 0)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return session, nil
}

// DeleteSession removes the session and its messages, messages first.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID, sessionID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete session: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var owned int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM chat_sessions WHERE id = ? AND user_id = ?`, sessionID, userID,
	).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("check session ownership: %w", err)
	}
	if owned == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return false, fmt.Errorf("delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, sessionID); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete session: %w", err)
	}
	return true, nil
}

const messageColumns = `id, session_id, agent_id, role, content, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var msg domain.Message
	var createdAt int64

	err := row.Scan(&msg.ID, &msg.SessionID, &msg.AgentID, &msg.Role, &msg.Content, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}

	msg.CreatedAt = time.Unix(createdAt, 0)
	return &msg, nil
}

// sessionMessages returns a session's messages in chronological order.
// A limit > 0 keeps only the most recent limit messages. Insertion order
// (rowid) breaks ties between messages created within the same second.
func (s *SQLiteStore) sessionMessages(ctx context.Context, sessionID string, limit int) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`
	args := []any{sessionID}
	if limit > 0 {
		query = `SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + `, rowid AS rid FROM messages WHERE session_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rid ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "session messages")

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// RecentMessages retrieves the last limit messages of a session in
// chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]*domain.Message, error) {
	return s.sessionMessages(ctx, sessionID, limit)
}

// ListAgentMessages retrieves every message for an agent in chronological order.
func (s *SQLiteStore) ListAgentMessages(ctx context.Context, agentID string) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE agent_id = ? ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("query agent messages: %w", err)
	}
	defer closeRows(rows, "agent messages")

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agent messages: %w", err)
	}
	return messages, nil
}

// DeleteAgentMessages removes every message for an agent.
func (s *SQLiteStore) DeleteAgentMessages(ctx context.Context, agentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE agent_id = ?`, agentID); err != nil {
		return fmt.Errorf("delete agent messages: %w", err)
	}
	return nil
}

// AppendExchange inserts the user/agent message pair and bumps the session's
// updated_at in one transaction, so a half-written pair is never visible.
func (s *SQLiteStore) AppendExchange(ctx context.Context, sessionID string, userMsg, agentMsg *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append exchange: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insert := `INSERT INTO messages (id, session_id, agent_id, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	for _, msg := range []*domain.Message{userMsg, agentMsg} {
		_, err := tx.ExecContext(ctx, insert,
			msg.ID, sessionID, msg.AgentID, msg.Role, msg.Content, msg.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("bump session updated_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append exchange: %w", err)
	}
	return nil
}

// CreateRefreshToken inserts a new refresh token record.
func (s *SQLiteStore) CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	query := `
	INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, replaced_by_id, created_at)
	VALUES (?, ?, ?, ?, ?, NULL, ?)`

	_, err := s.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash,
		token.ExpiresAt.Unix(), token.Revoked, token.CreatedAt.Unix(),
	)
	if isConflict(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshTokenByHash retrieves a refresh token by its stored hash.
func (s *SQLiteStore) GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
	SELECT id, user_id, token_hash, expires_at, revoked, replaced_by_id, created_at
	FROM refresh_tokens WHERE token_hash = ?`

	var token domain.RefreshToken
	var replacedBy sql.NullString
	var expiresAt, createdAt int64

	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&token.ID, &token.UserID, &token.TokenHash,
		&expiresAt, &token.Revoked, &replacedBy, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	token.ReplacedByID = replacedBy.String
	token.ExpiresAt = time.Unix(expiresAt, 0)
	token.CreatedAt = time.Unix(createdAt, 0)
	return &token, nil
}

// RotateRefreshToken revokes the presented token and inserts its replacement
// atomically. The revoke is a compare-and-set on revoked = 0, so out of any
// number of concurrent rotations of the same hash exactly one commits; the
// rest see zero rows updated and report false.
func (s *SQLiteStore) RotateRefreshToken(ctx context.Context, tokenHash string, replacement *domain.RefreshToken) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin rotate refresh token: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1, replaced_by_id = ? WHERE token_hash = ? AND revoked = 0`,
		replacement.ID, tokenHash,
	)
	if err != nil {
		return false, fmt.Errorf("revoke rotated token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, replaced_by_id, created_at)
		 VALUES (?, ?, ?, ?, 0, NULL, ?)`,
		replacement.ID, replacement.UserID, replacement.TokenHash,
		replacement.ExpiresAt.Unix(), replacement.CreatedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert replacement token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit rotate refresh token: %w", err)
	}
	return true, nil
}

// RevokeRefreshToken marks the token with the given hash revoked. Idempotent.
func (s *SQLiteStore) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ?`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
