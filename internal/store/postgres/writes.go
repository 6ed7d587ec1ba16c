package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fixl-developer/tma-automation/pkg/types"
)

// InsertExecutions archives a batch of execution records. Records already
// archived are skipped; execution IDs are unique and immutable.
func (s *Store) InsertExecutions(ctx context.Context, execs []types.Execution) error {
	for _, exec := range execs {
		results, err := json.Marshal(exec.ActionResults)
		if err != nil {
			return fmt.Errorf("marshal action results: %w", err)
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO executions (execution_id, rule_id, workflow_id, pack_id, tenant_id,
				status, duration_ms, error, action_results, started_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (execution_id) DO NOTHING
		`, exec.ID, exec.RuleID, exec.WorkflowID, exec.PackID, exec.TenantID,
			string(exec.Status), exec.DurationMs, exec.Error, results, exec.StartedAt)
		if err != nil {
			return fmt.Errorf("insert execution %s: %w", exec.ID, err)
		}
	}
	return nil
}

// GetCursor returns the archival cursor for a rule, or "" if none exists.
func (s *Store) GetCursor(ctx context.Context, ruleID string) (string, error) {
	var cursor string
	err := s.pool.QueryRow(ctx,
		`SELECT cursor_value FROM archive_cursors WHERE rule_id = $1`, ruleID).Scan(&cursor)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor for %s: %w", ruleID, err)
	}
	return cursor, nil
}

// SetCursor records the archival high-water mark for a rule.
func (s *Store) SetCursor(ctx context.Context, ruleID, cursor string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO archive_cursors (rule_id, cursor_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (rule_id) DO UPDATE SET
			cursor_value = EXCLUDED.cursor_value,
			updated_at   = NOW()
	`, ruleID, cursor)
	return err
}
