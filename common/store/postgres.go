package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lyzr/agentchain/common/logger"
)

// PostgresStore is a Postgres-backed context store for deployments that need
// node contexts and outputs to survive process restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// Schema is the DDL required by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS chain_node_context (
    execution_id TEXT NOT NULL,
    node_id      TEXT NOT NULL,
    input        JSONB,
    output       JSONB,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (execution_id, node_id)
);`

// NewPostgresStore creates a Postgres-backed context store and ensures the
// backing table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return nil, fmt.Errorf("failed to ensure context table: %w", err)
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

// SaveContext records the input context for a node execution.
func (s *PostgresStore) SaveContext(ctx context.Context, executionID, nodeID string, input map[string]interface{}) error {
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chain_node_context (execution_id, node_id, input)
		VALUES ($1, $2, $3)
		ON CONFLICT (execution_id, node_id)
		DO UPDATE SET input = EXCLUDED.input, updated_at = now()`,
		executionID, nodeID, data)
	if err != nil {
		s.log.Error("postgres context upsert failed", "execution_id", executionID, "node_id", nodeID, "error", err)
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

// SaveOutput records a node's output.
func (s *PostgresStore) SaveOutput(ctx context.Context, executionID, nodeID string, output interface{}) error {
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO chain_node_context (execution_id, node_id, output)
		VALUES ($1, $2, $3)
		ON CONFLICT (execution_id, node_id)
		DO UPDATE SET output = EXCLUDED.output, updated_at = now()`,
		executionID, nodeID, data)
	if err != nil {
		s.log.Error("postgres output upsert failed", "execution_id", executionID, "node_id", nodeID, "error", err)
		return fmt.Errorf("failed to save output: %w", err)
	}
	return nil
}

// LoadOutput retrieves a previously saved output.
func (s *PostgresStore) LoadOutput(ctx context.Context, executionID, nodeID string) (interface{}, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT output FROM chain_node_context
		WHERE execution_id = $1 AND node_id = $2`,
		executionID, nodeID).Scan(&data)
	if err == pgx.ErrNoRows || (err == nil && data == nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load output: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal output: %w", err)
	}
	return out, true, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
