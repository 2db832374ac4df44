package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed conversation store.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the conversation database at dbPath and
// runs schema migration.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		conversation_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		thread_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		metadata TEXT,
		UNIQUE(user_id, thread_id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		metadata TEXT,
		FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_messages_role ON messages(role, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// newConversationID derives a stable identifier from the owning pair
// and the creation time.
func newConversationID(userID, threadID string, created time.Time) string {
	return fmt.Sprintf("%s_%s_%s", userID, threadID, created.Format("20060102_150405"))
}

// GetOrCreate returns the conversation for (userID, threadID) with its
// messages loaded, creating an empty one if none exists. Two calls with
// the same pair return the same conversation_id.
func (s *Store) GetOrCreate(userID, threadID string) (*Conversation, error) {
	if _, err := s.ensureConversation(userID, threadID); err != nil {
		return nil, err
	}

	conv, err := s.lookup(userID, threadID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation for %s/%s vanished after create", userID, threadID)
	}
	conv.Messages, err = s.messagesFor(conv.ConversationID, 0)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ensureConversation resolves the pair's conversation_id, creating the
// conversation row if none exists. It never loads messages, so the
// append path stays O(1) in history size.
func (s *Store) ensureConversation(userID, threadID string) (string, error) {
	conv, err := s.lookup(userID, threadID)
	if err != nil {
		return "", err
	}
	if conv != nil {
		return conv.ConversationID, nil
	}

	now := time.Now()
	id := newConversationID(userID, threadID, now)

	// INSERT OR IGNORE tolerates a concurrent create of the same pair;
	// the UNIQUE constraint keeps one row either way.
	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO conversations (conversation_id, user_id, thread_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, userID, threadID, now, now)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	// Re-read so a lost race still returns the surviving row's id.
	existing, err := s.lookup(userID, threadID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ConversationID, nil
	}
	return id, nil
}

// lookup fetches the conversation row for a pair, without messages.
// Returns nil when the pair has no conversation.
func (s *Store) lookup(userID, threadID string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT conversation_id, user_id, thread_id, created_at, updated_at, metadata
		FROM conversations
		WHERE user_id = ? AND thread_id = ?
	`, userID, threadID)

	return scanConversation(row)
}

// rowScanner lets scanConversation work with both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var conv Conversation
	var metadata sql.NullString

	err := row.Scan(&conv.ConversationID, &conv.UserID, &conv.ThreadID,
		&conv.CreatedAt, &conv.UpdatedAt, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation: %w", err)
	}

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &conv.Metadata); err != nil {
			return nil, fmt.Errorf("decode conversation metadata: %w", err)
		}
	}
	return &conv, nil
}

// AppendMessage durably appends a message to the pair's conversation,
// creating the conversation if needed, and returns the conversation_id.
// The conversation's updated_at is bumped in the same transaction.
func (s *Store) AppendMessage(userID, threadID, role, content string, metadata map[string]any) (string, error) {
	convID, err := s.ensureConversation(userID, threadID)
	if err != nil {
		return "", err
	}

	now := time.Now()
	msgID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("message id: %w", err)
	}

	var metaJSON sql.NullString
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("encode message metadata: %w", err)
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO messages (id, conversation_id, role, content, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msgID.String(), convID, role, content, now, metaJSON)
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE conversations SET updated_at = ? WHERE conversation_id = ?
	`, now, convID)
	if err != nil {
		return "", fmt.Errorf("update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return convID, nil
}

// GetMessages returns the last min(N, limit) messages for a pair in
// chronological order. A limit of zero returns all messages.
func (s *Store) GetMessages(userID, threadID string, limit int) ([]Message, error) {
	conv, err := s.lookup(userID, threadID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []Message{}, nil
	}
	return s.messagesFor(conv.ConversationID, limit)
}

// messagesFor loads the most recent limit messages for a conversation,
// oldest first. Message IDs are UUIDv7, so the id column is a stable
// tiebreaker for equal timestamps.
func (s *Store) messagesFor(conversationID string, limit int) ([]Message, error) {
	q := `
		SELECT id, role, content, timestamp, metadata
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp DESC, id DESC
	`
	args := []any{conversationID}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var metadata sql.NullString
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp, &metadata); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// GetByID returns a conversation with all of its messages, or nil when
// no conversation has that id.
func (s *Store) GetByID(conversationID string) (*Conversation, error) {
	row := s.db.QueryRow(`
		SELECT conversation_id, user_id, thread_id, created_at, updated_at, metadata
		FROM conversations
		WHERE conversation_id = ?
	`, conversationID)

	conv, err := scanConversation(row)
	if err != nil || conv == nil {
		return conv, err
	}
	conv.Messages, err = s.messagesFor(conv.ConversationID, 0)
	return conv, err
}

// Delete removes the pair's conversation and all of its messages.
// Reports whether a conversation existed.
func (s *Store) Delete(userID, threadID string) (bool, error) {
	conv, err := s.lookup(userID, threadID)
	if err != nil {
		return false, err
	}
	if conv == nil {
		return false, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conv.ConversationID); err != nil {
		return false, err
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE conversation_id = ?`, conv.ConversationID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// UserConversations returns a user's conversations, most recently
// updated first, with messages loaded.
func (s *Store) UserConversations(userID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT conversation_id, user_id, thread_id, created_at, updated_at, metadata
		FROM conversations
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, conv := range convs {
		conv.Messages, err = s.messagesFor(conv.ConversationID, 0)
		if err != nil {
			return nil, err
		}
	}
	return convs, nil
}

// ClearUser removes every conversation belonging to a user.
func (s *Store) ClearUser(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		DELETE FROM messages WHERE conversation_id IN
			(SELECT conversation_id FROM conversations WHERE user_id = ?)
	`, userID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE user_id = ?`, userID); err != nil {
		return err
	}
	return tx.Commit()
}

// MessagesByRole returns the most recent messages with the given role
// across all conversations, newest first.
func (s *Store) MessagesByRole(role string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, role, content, timestamp, metadata
		FROM messages
		WHERE role = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, role, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages by role: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var metadata sql.NullString
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.Timestamp, &metadata); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Stats returns storage statistics.
func (s *Store) Stats() map[string]any {
	var convCount, msgCount int

	_ = s.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&convCount)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgCount)

	return map[string]any{
		"conversations": convCount,
		"messages":      msgCount,
		"storage":       "sqlite",
	}
}
