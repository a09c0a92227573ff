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

var _ repository.VoteRepository = (*DB)(nil)

// AddVote records a vote. There is no "check then insert": the UNIQUE
// (user_id, tool_id) constraint decides, so two concurrent requests from the
// same user produce exactly one row and one Conflict.
func (db *DB) AddVote(ctx context.Context, vote *model.Vote) error {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO votes (user_id, tool_id, created_at) VALUES (?, ?, ?)`,
		vote.UserID, vote.ToolID, now,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return apperror.Conflict("Already voted.")
		case isForeignKeyViolation(err):
			return apperror.NotFound("tool", strconv.FormatInt(vote.ToolID, 10))
		}
		return fmt.Errorf("sqlite: adding vote (user=%s, tool=%d): %w", vote.UserID, vote.ToolID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new vote id: %w", err)
	}
	vote.ID = id
	vote.CreatedAt = now
	return nil
}

func (db *DB) RemoveVote(ctx context.Context, userID string, toolID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM votes WHERE user_id = ? AND tool_id = ?`, userID, toolID)
	if err != nil {
		return fmt.Errorf("sqlite: removing vote (user=%s, tool=%d): %w", userID, toolID, err)
	}
	return nil
}

func (db *DB) HasVoted(ctx context.Context, userID string, toolID int64) (bool, error) {
	var voted bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM votes WHERE user_id = ? AND tool_id = ?)`,
		userID, toolID,
	).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking vote (user=%s, tool=%d): %w", userID, toolID, err)
	}
	return voted, nil
}

func (db *DB) CountVotesByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE user_id = ?`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting votes of %s: %w", userID, err)
	}
	return n, nil
}

func (db *DB) CountVotesByTool(ctx context.Context, toolID int64) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE tool_id = ?`, toolID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting votes of tool %d: %w", toolID, err)
	}
	return n, nil
}
