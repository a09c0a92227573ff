package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
)

var _ repository.AlternativeRepository = (*DB)(nil)

// AddAlternative inserts the edge original → alternative. Inserting an edge
// that already exists is a no-op, so callers may retry freely.
func (db *DB) AddAlternative(ctx context.Context, originalID, alternativeID int64) error {
	if originalID == alternativeID {
		return apperror.ValidationFailed("alternativeToToolId", "a tool cannot be an alternative to itself")
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tool_alternatives (original_tool_id, alternative_tool_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (original_tool_id, alternative_tool_id) DO NOTHING`,
		originalID, alternativeID, time.Now().UTC(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return db.missingEndpoint(ctx, originalID, alternativeID)
		}
		return fmt.Errorf("sqlite: adding alternative %d → %d: %w", originalID, alternativeID, err)
	}
	return nil
}

// missingEndpoint names the edge endpoint that does not exist. The FK error
// itself does not say which one it was.
func (db *DB) missingEndpoint(ctx context.Context, originalID, alternativeID int64) error {
	for _, id := range []int64{originalID, alternativeID} {
		var exists bool
		err := db.conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tools WHERE id = ?)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: checking tool %d: %w", id, err)
		}
		if !exists {
			return apperror.NotFound("tool", strconv.FormatInt(id, 10))
		}
	}
	// Deleted between the insert and the check; report the pair.
	return apperror.NotFound("tool", fmt.Sprintf("%d or %d", originalID, alternativeID))
}

// ListAlternatives returns the approved tools listed as alternatives to toolID.
func (db *DB) ListAlternatives(ctx context.Context, toolID int64) ([]model.ScoredTool, error) {
	return db.listEdgeTools(ctx,
		`JOIN tool_alternatives ta ON ta.alternative_tool_id = t.id
		 WHERE ta.original_tool_id = ?`, toolID)
}

// ListAlternativeTo returns the approved tools that toolID is an alternative for.
func (db *DB) ListAlternativeTo(ctx context.Context, toolID int64) ([]model.ScoredTool, error) {
	return db.listEdgeTools(ctx,
		`JOIN tool_alternatives ta ON ta.original_tool_id = t.id
		 WHERE ta.alternative_tool_id = ?`, toolID)
}

func (db *DB) listEdgeTools(ctx context.Context, join string, toolID int64) ([]model.ScoredTool, error) {
	rows, err := db.conn.QueryContext(ctx,
		scoredSelect+"\n"+join+`
		   AND t.status = ?
		 GROUP BY t.id
		 ORDER BY score DESC, t.id ASC`,
		toolID, string(model.StatusApproved),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing alternatives of %d: %w", toolID, err)
	}

	tools, err := scanScoredTools(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning alternatives of %d: %w", toolID, err)
	}
	return tools, nil
}
