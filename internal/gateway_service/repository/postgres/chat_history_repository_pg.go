package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mercatto/wagateway/internal/gateway_service/repository"
)

const defaultHistoryTable = "chat_history"

// PgChatHistoryRepository persists conversation turns in PostgreSQL.
// The table name is configurable so deployments sharing a database can
// keep their histories apart.
//
// Expected schema:
//
//	CREATE TABLE chat_history (
//	    id          BIGSERIAL PRIMARY KEY,
//	    customer_id TEXT NOT NULL,
//	    role        TEXT NOT NULL,
//	    content     TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX idx_chat_history_customer ON chat_history (customer_id, id DESC);
type PgChatHistoryRepository struct {
	db        *pgxpool.Pool
	logger    *slog.Logger
	insertSQL string
	windowSQL string
}

func NewPgChatHistoryRepository(db *pgxpool.Pool, tableName string, logger *slog.Logger) *PgChatHistoryRepository {
	if tableName == "" {
		tableName = defaultHistoryTable
	}
	// Identifiers cannot be bound as parameters; sanitize once here.
	table := pgx.Identifier{tableName}.Sanitize()

	return &PgChatHistoryRepository{
		db:     db,
		logger: logger.With("component", "chat_history_repository"),
		insertSQL: fmt.Sprintf(
			`INSERT INTO %s (customer_id, role, content) VALUES ($1, $2, $3)`, table),
		windowSQL: fmt.Sprintf(`
			SELECT role, content, created_at FROM (
				SELECT role, content, created_at, id
				FROM %s
				WHERE customer_id = $1
				ORDER BY id DESC
				LIMIT $2
			) recent
			ORDER BY id ASC`, table),
	}
}

var _ repository.ChatHistoryRepository = (*PgChatHistoryRepository)(nil)

func (r *PgChatHistoryRepository) Append(ctx context.Context, customerID, role, content string) error {
	if _, err := r.db.Exec(ctx, r.insertSQL, customerID, role, content); err != nil {
		return fmt.Errorf("failed to append chat history for customer %s: %w", customerID, err)
	}
	return nil
}

// RecentWindow returns the last `limit` turns for a customer, oldest
// first, bounding the context handed to the agent per turn.
func (r *PgChatHistoryRepository) RecentWindow(ctx context.Context, customerID string, limit int) ([]repository.ChatMessage, error) {
	rows, err := r.db.Query(ctx, r.windowSQL, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var messages []repository.ChatMessage
	for rows.Next() {
		var m repository.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat history row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat history rows: %w", err)
	}
	return messages, nil
}
