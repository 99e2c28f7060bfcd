package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/coworker-ai/coworker/internal/domain"
	"github.com/coworker-ai/coworker/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeMaxRetries = 3
	writeBaseDelay  = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Pragmas are applied per pooled connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
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
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		company TEXT,
		plan TEXT NOT NULL DEFAULT 'starter',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ai_agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		description TEXT,
		template TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_agents_user ON ai_agents(user_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES ai_agents(id) ON DELETE CASCADE,
		user_id INTEGER,
		session_id TEXT NOT NULL UNIQUE,
		messages_json TEXT NOT NULL DEFAULT '[]',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations(agent_id);

	CREATE TABLE IF NOT EXISTS analytics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL REFERENCES ai_agents(id) ON DELETE CASCADE,
		date INTEGER NOT NULL,
		conversations_count INTEGER NOT NULL DEFAULT 0,
		messages_count INTEGER NOT NULL DEFAULT 0,
		avg_response_time INTEGER NOT NULL DEFAULT 0,
		satisfaction_score INTEGER NOT NULL DEFAULT 0,
		UNIQUE(agent_id, date)
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL,
		company TEXT,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
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

// withRetry runs a write with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < writeMaxRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == writeMaxRetries-1 {
			break
		}
		delay := writeBaseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, writeMaxRetries, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, email, password, first_name, last_name, company, plan, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var company sql.NullString
	var createdAt int64
	if err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &company, &user.Plan, &createdAt,
	); err != nil {
		return nil, err
	}
	user.Company = nullableString(company)
	user.CreatedAt = time.UnixMilli(createdAt)
	return &user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// CreateUser inserts a user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	if user.Plan == "" {
		user.Plan = domain.PlanStarter
	}
	user.CreatedAt = time.Now()

	query := `
	INSERT INTO users (username, email, password, first_name, last_name, company, plan, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var result sql.Result
	err := s.withRetry(ctx, "insert user", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			user.Username, user.Email, user.PasswordHash,
			user.FirstName, user.LastName, stringOrNil(user.Company),
			user.Plan, user.CreatedAt.UnixMilli(),
		)
		return execErr
	})
	switch {
	case shared.IsUniqueViolation(err, "users.email"):
		return ErrDuplicateEmail
	case shared.IsUniqueViolation(err, "users.username"):
		return ErrDuplicateUsername
	case err != nil:
		return fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("user last insert id: %w", err)
	}
	user.ID = id
	return nil
}

const agentColumns = `id, user_id, name, description, template, system_prompt, is_active, created_at, updated_at`

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var agent domain.Agent
	var description sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(
		&agent.ID, &agent.UserID, &agent.Name, &description,
		&agent.Template, &agent.SystemPrompt, &agent.IsActive,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	agent.Description = nullableString(description)
	agent.CreatedAt = time.UnixMilli(createdAt)
	agent.UpdatedAt = time.UnixMilli(updatedAt)
	return &agent, nil
}

func (s *SQLiteStore) queryAgents(ctx context.Context, query string, args ...any) ([]*domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close agent rows", "error", closeErr)
		}
	}()

	agents := make([]*domain.Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return agents, nil
}

// ListAgents returns every agent ordered by ID.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*domain.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM ai_agents ORDER BY id`)
}

// ListAgentsByUser returns the agents owned by userID.
func (s *SQLiteStore) ListAgentsByUser(ctx context.Context, userID int64) ([]*domain.Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM ai_agents WHERE user_id = ? ORDER BY id`, userID)
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id int64) (*domain.Agent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM ai_agents WHERE id = ?`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}
	return agent, nil
}

// CreateAgent inserts an agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *domain.Agent) error {
	now := time.Now()
	agent.CreatedAt = now
	agent.UpdatedAt = now

	query := `
	INSERT INTO ai_agents (user_id, name, description, template, system_prompt, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var result sql.Result
	err := s.withRetry(ctx, "insert agent", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			agent.UserID, agent.Name, stringOrNil(agent.Description),
			agent.Template, agent.SystemPrompt, agent.IsActive,
			now.UnixMilli(), now.UnixMilli(),
		)
		return execErr
	})
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert agent: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("agent last insert id: %w", err)
	}
	agent.ID = id
	return nil
}

// UpdateAgent persists mutable agent fields.
func (s *SQLiteStore) UpdateAgent(ctx context.Context, agent *domain.Agent) error {
	agent.UpdatedAt = time.Now()
	query := `
	UPDATE ai_agents SET
		name = ?, description = ?, template = ?, system_prompt = ?,
		is_active = ?, updated_at = ?
	WHERE id = ?`

	var result sql.Result
	err := s.withRetry(ctx, "update agent", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			agent.Name, stringOrNil(agent.Description), agent.Template,
			agent.SystemPrompt, agent.IsActive, agent.UpdatedAt.UnixMilli(),
			agent.ID,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAgent removes an agent and everything that references it.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withRetry(ctx, "delete agent", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE agent_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM analytics WHERE agent_id = ?`, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM ai_agents WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return tx.Commit()
	})
	if err != nil {
		return false, fmt.Errorf("delete agent: %w", err)
	}
	return deleted, nil
}

const conversationColumns = `id, agent_id, user_id, session_id, messages_json, is_active, created_at, updated_at`

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var userID sql.NullInt64
	var messagesJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&conv.ID, &conv.AgentID, &userID, &conv.SessionID,
		&messagesJSON, &conv.IsActive, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if userID.Valid {
		uid := userID.Int64
		conv.UserID = &uid
	}
	conv.Messages = []domain.ChatMessage{}
	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for session %s: %w", conv.SessionID, err)
	}
	conv.CreatedAt = time.UnixMilli(createdAt)
	conv.UpdatedAt = time.UnixMilli(updatedAt)
	return &conv, nil
}

// GetConversation retrieves a conversation by session ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE session_id = ?`, sessionID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return conv, nil
}

// CreateConversation inserts a conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv.Messages == nil {
		conv.Messages = []domain.ChatMessage{}
	}
	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	now := time.Now()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	var userID any
	if conv.UserID != nil {
		userID = *conv.UserID
	}

	query := `
	INSERT INTO conversations (agent_id, user_id, session_id, messages_json, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var result sql.Result
	err = s.withRetry(ctx, "insert conversation", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			conv.AgentID, userID, conv.SessionID, string(messagesJSON),
			conv.IsActive, now.UnixMilli(), now.UnixMilli(),
		)
		return execErr
	})
	switch {
	case shared.IsUniqueViolation(err, "conversations.session_id"):
		return ErrDuplicateSession
	case shared.IsForeignKeyViolation(err):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("insert conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("conversation last insert id: %w", err)
	}
	conv.ID = id
	return nil
}

// UpdateConversationMessages replaces a conversation's message log.
func (s *SQLiteStore) UpdateConversationMessages(ctx context.Context, sessionID string, messages []domain.ChatMessage) error {
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	var result sql.Result
	err = s.withRetry(ctx, "update conversation", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx,
			`UPDATE conversations SET messages_json = ?, updated_at = ? WHERE session_id = ?`,
			string(messagesJSON), time.Now().UnixMilli(), sessionID,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update conversation messages: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateConversationMessages affected 0 rows", "session_id", sessionID)
		return ErrNotFound
	}
	return nil
}

// ListConversationsByAgent returns the conversations of an agent.
func (s *SQLiteStore) ListConversationsByAgent(ctx context.Context, agentID int64) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE agent_id = ? ORDER BY id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	convs := make([]*domain.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convs, nil
}

// ListAnalyticsByAgent returns the analytics rows of an agent.
func (s *SQLiteStore) ListAnalyticsByAgent(ctx context.Context, agentID int64) ([]*domain.AnalyticsRow, error) {
	query := `
		SELECT id, agent_id, date, conversations_count, messages_count,
		       avg_response_time, satisfaction_score
		FROM analytics WHERE agent_id = ? ORDER BY date`

	rows, err := s.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close analytics rows", "error", closeErr)
		}
	}()

	result := make([]*domain.AnalyticsRow, 0)
	for rows.Next() {
		var row domain.AnalyticsRow
		var date int64
		if err := rows.Scan(
			&row.ID, &row.AgentID, &date, &row.ConversationsCount,
			&row.MessagesCount, &row.AvgResponseTime, &row.SatisfactionScore,
		); err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}
		row.Date = time.UnixMilli(date)
		result = append(result, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics: %w", err)
	}
	return result, nil
}

// UpsertAnalytics inserts or replaces the row for (AgentID, Date).
func (s *SQLiteStore) UpsertAnalytics(ctx context.Context, row *domain.AnalyticsRow) error {
	row.Date = dayKey(row.Date)
	query := `
	INSERT INTO analytics (agent_id, date, conversations_count, messages_count, avg_response_time, satisfaction_score)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(agent_id, date) DO UPDATE SET
		conversations_count = excluded.conversations_count,
		messages_count = excluded.messages_count,
		avg_response_time = excluded.avg_response_time,
		satisfaction_score = CASE WHEN excluded.satisfaction_score = 0
			THEN analytics.satisfaction_score ELSE excluded.satisfaction_score END
	RETURNING id, satisfaction_score`

	err := s.withRetry(ctx, "upsert analytics", func() error {
		return s.db.QueryRowContext(ctx, query,
			row.AgentID, row.Date.UnixMilli(), row.ConversationsCount,
			row.MessagesCount, row.AvgResponseTime, row.SatisfactionScore,
		).Scan(&row.ID, &row.SatisfactionScore)
	})
	if err != nil {
		if shared.IsForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("upsert analytics: %w", err)
	}
	return nil
}

// CreateContact stores a contact form submission.
func (s *SQLiteStore) CreateContact(ctx context.Context, contact *domain.ContactMessage) error {
	contact.CreatedAt = time.Now()
	query := `
	INSERT INTO contacts (first_name, last_name, email, company, message, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var result sql.Result
	err := s.withRetry(ctx, "insert contact", func() error {
		var execErr error
		result, execErr = s.db.ExecContext(ctx, query,
			contact.FirstName, contact.LastName, contact.Email,
			stringOrNil(contact.Company), contact.Message, contact.CreatedAt.UnixMilli(),
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("contact last insert id: %w", err)
	}
	contact.ID = id
	return nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

var _ Repository = (*SQLiteStore)(nil)
