package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// UpsertUser inserts the user or refreshes their profile fields.
//
// ON CONFLICT DO UPDATE (not INSERT OR REPLACE): REPLACE deletes the old row
// first, which would reset created_at and last_login_at.
//
// After the write we read the row back so the caller sees the stored
// timestamps.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     email      = excluded.email,
		     first_name = excluded.first_name,
		     last_name  = excluded.last_name,
		     image_url  = excluded.image_url,
		     updated_at = excluded.updated_at`,
		user.ID, nullString(user.Email), user.FirstName, user.LastName, user.ImageURL, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email is already used by another account")
		}
		return fmt.Errorf("sqlite: upserting user %s: %w", user.ID, err)
	}

	stored, err := db.GetUserByID(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByID retrieves a user by their identity-provider ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var (
		u         model.User
		email     sql.NullString
		lastLogin sql.NullTime
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, image_url, created_at, updated_at, last_login_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&email,
		&u.FirstName,
		&u.LastName,
		&u.ImageURL,
		&u.CreatedAt,
		&u.UpdatedAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	if email.Valid {
		e := email.String
		u.Email = &e
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// DeleteUser erases a user: votes are deleted, submissions stay in the
// catalogue without an owner, and the mirror row goes. Deleting an unknown
// user still clears any votes recorded under that id.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete of user %s: %w", id, err)
	}
	// Rollback after Commit is a no-op, so this is safe on every path.
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting votes of user %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tools SET submitted_by_user_id = NULL WHERE submitted_by_user_id = ?`, id,
	); err != nil {
		return fmt.Errorf("sqlite: detaching tools of user %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of user %s: %w", id, err)
	}
	return nil
}

// TouchLastLogin records a session start.
func (db *DB) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching last login of %s: %w", id, err)
	}
	return requireRow(res, "user", id)
}
