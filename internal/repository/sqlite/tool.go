package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
)

// compile-time check that *DB implements repository.ToolRepository
var _ repository.ToolRepository = (*DB)(nil)

// toolColumns lists every tools column in scan order. Always qualified with
// "t." so the same list works in joins.
const toolColumns = `t.id, t.name, t.slug, t.description, t.website_url, t.repo_url, t.tags,
	t.github_stars, t.github_forks, t.github_issues, t.github_last_commit,
	t.status, t.submitted_by_user_id, t.created_at, t.updated_at`

// scoredSelect is the shared head of every query returning ScoredTool rows.
// The caller appends WHERE ... and must end with GROUP BY t.id.
//
// The score column is computed by tool_score, the same Go function the rest
// of the program uses, so sorting by it can never disagree with the value
// we return.
const scoredSelect = `SELECT ` + toolColumns + `,
	COUNT(v.id) AS votes_count,
	tool_score(t.github_stars, COUNT(v.id)) AS score
FROM tools t
LEFT JOIN votes v ON v.tool_id = t.id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTool reads toolColumns (plus any extra destinations) into a Tool.
func scanTool(row rowScanner, extra ...any) (*model.Tool, error) {
	var (
		t          model.Tool
		tags       string
		stars      sql.NullInt64
		forks      sql.NullInt64
		issues     sql.NullInt64
		lastCommit sql.NullTime
		submitter  sql.NullString
		status     string
	)

	dest := []any{
		&t.ID, &t.Name, &t.Slug, &t.Description, &t.WebsiteURL, &t.RepoURL, &tags,
		&stars, &forks, &issues, &lastCommit,
		&status, &submitter, &t.CreatedAt, &t.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	t.Status = model.ToolStatus(status)
	t.GitHubStars = intPtr(stars)
	t.GitHubForks = intPtr(forks)
	t.GitHubIssues = intPtr(issues)
	if lastCommit.Valid {
		lc := lastCommit.Time
		t.GitHubLastCommit = &lc
	}
	if submitter.Valid {
		s := submitter.String
		t.SubmittedByUserID = &s
	}

	t.Tags = []string{}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of tool %d: %w", t.ID, err)
		}
	}

	return &t, nil
}

func scanScoredTool(row rowScanner) (*model.ScoredTool, error) {
	var st model.ScoredTool
	t, err := scanTool(row, &st.UserVotesCount, &st.Score)
	if err != nil {
		return nil, err
	}
	st.Tool = *t
	return &st, nil
}

func scanScoredTools(rows *sql.Rows) ([]model.ScoredTool, error) {
	defer rows.Close()

	tools := []model.ScoredTool{}
	for rows.Next() {
		st, err := scanScoredTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, *st)
	}
	return tools, rows.Err()
}

func scanTools(rows *sql.Rows) ([]model.Tool, error) {
	defer rows.Close()

	tools := []model.Tool{}
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, *t)
	}
	return tools, rows.Err()
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// escapeLike makes user input safe inside a LIKE pattern with ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// listFilter builds the WHERE clause shared by the page query and the count query.
func listFilter(q repository.ToolQuery) (string, []any) {
	clauses := []string{"t.status = ?"}
	args := []any{string(model.StatusApproved)}

	if search := strings.TrimSpace(q.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		clauses = append(clauses,
			`(LOWER(t.name) LIKE ? ESCAPE '\' OR LOWER(t.description) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	// Superset match: one EXISTS per requested tag.
	for _, tag := range q.Tags {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM json_each(t.tags) WHERE json_each.value = ?)`)
		args = append(args, tag)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func orderClause(q repository.ToolQuery) string {
	dir := "DESC"
	if q.Order == repository.OrderAsc {
		dir = "ASC"
	}

	col := "score"
	switch q.SortBy {
	case repository.SortByStars:
		col = "COALESCE(t.github_stars, 0)"
	case repository.SortByCreatedAt:
		col = "t.created_at"
	}

	return fmt.Sprintf("ORDER BY %s %s, t.id ASC", col, dir)
}

// ListApprovedTools returns one page of approved tools and the total match count.
func (db *DB) ListApprovedTools(ctx context.Context, q repository.ToolQuery) ([]model.ScoredTool, int, error) {
	where, args := listFilter(q)

	var total int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tools t `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting tools: %w", err)
	}

	query := scoredSelect + "\n" + where + "\nGROUP BY t.id\n" + orderClause(q) + "\nLIMIT ? OFFSET ?"
	rows, err := db.conn.QueryContext(ctx, query, append(args, q.Limit, q.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing tools: %w", err)
	}

	tools, err := scanScoredTools(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: scanning tools: %w", err)
	}

	return tools, total, nil
}

// GetApprovedToolBySlug is the public lookup. Pending and rejected tools are
// reported as not found.
func (db *DB) GetApprovedToolBySlug(ctx context.Context, slug string) (*model.ScoredTool, error) {
	row := db.conn.QueryRowContext(ctx,
		scoredSelect+`
		WHERE t.slug = ? AND t.status = ?
		GROUP BY t.id`,
		slug, string(model.StatusApproved),
	)

	st, err := scanScoredTool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("tool", slug)
		}
		return nil, fmt.Errorf("sqlite: getting tool %s: %w", slug, err)
	}
	return st, nil
}

// GetToolBySlug finds a tool in any status. Used by admin routes.
func (db *DB) GetToolBySlug(ctx context.Context, slug string) (*model.Tool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM tools t WHERE t.slug = ?`, slug)

	t, err := scanTool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("tool", slug)
		}
		return nil, fmt.Errorf("sqlite: getting tool %s: %w", slug, err)
	}
	return t, nil
}

func (db *DB) GetToolByID(ctx context.Context, id int64) (*model.Tool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM tools t WHERE t.id = ?`, id)

	t, err := scanTool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("tool", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("sqlite: getting tool %d: %w", id, err)
	}
	return t, nil
}

// FindToolByRepoURL matches the repository URL exactly. When several tools
// share a URL the oldest wins.
func (db *DB) FindToolByRepoURL(ctx context.Context, repoURL string) (*model.Tool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM tools t WHERE t.repo_url = ? ORDER BY t.id LIMIT 1`, repoURL)

	t, err := scanTool(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("tool", repoURL)
		}
		return nil, fmt.Errorf("sqlite: finding tool by repo %s: %w", repoURL, err)
	}
	return t, nil
}

// ToolExists reports whether any tool already uses slug or repoURL.
func (db *DB) ToolExists(ctx context.Context, slug, repoURL string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tools WHERE slug = ? OR repo_url = ?)`,
		slug, repoURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking tool existence: %w", err)
	}
	return exists, nil
}

// CreateTool inserts tool and fills in ID and timestamps.
// A taken slug is reported as apperror.ErrConflict.
func (db *DB) CreateTool(ctx context.Context, tool *model.Tool) error {
	tags, err := encodeTags(tool.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	if tool.Status == "" {
		tool.Status = model.StatusPending
	}

	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO tools (name, slug, description, website_url, repo_url, tags,
		                    github_stars, github_forks, github_issues, github_last_commit,
		                    status, submitted_by_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tool.Name, tool.Slug, tool.Description, tool.WebsiteURL, tool.RepoURL, tags,
		nullInt(tool.GitHubStars), nullInt(tool.GitHubForks), nullInt(tool.GitHubIssues),
		nullTime(tool.GitHubLastCommit),
		string(tool.Status), nullString(tool.SubmittedByUserID), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("A tool with the slug %q already exists.", tool.Slug))
		}
		return fmt.Errorf("sqlite: creating tool %s: %w", tool.Slug, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new tool id: %w", err)
	}

	tool.ID = id
	tool.CreatedAt = now
	tool.UpdatedAt = now
	return nil
}

// UpdateTool writes every editable column of tool and refreshes updated_at.
func (db *DB) UpdateTool(ctx context.Context, tool *model.Tool) error {
	tags, err := encodeTags(tool.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: encoding tags: %w", err)
	}

	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tools SET name = ?, slug = ?, description = ?, website_url = ?, repo_url = ?,
		                  tags = ?, github_stars = ?, github_forks = ?, github_issues = ?,
		                  github_last_commit = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		tool.Name, tool.Slug, tool.Description, tool.WebsiteURL, tool.RepoURL, tags,
		nullInt(tool.GitHubStars), nullInt(tool.GitHubForks), nullInt(tool.GitHubIssues),
		nullTime(tool.GitHubLastCommit), string(tool.Status), now, tool.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("A tool with the slug %q already exists.", tool.Slug))
		}
		return fmt.Errorf("sqlite: updating tool %d: %w", tool.ID, err)
	}

	if err := requireRow(res, "tool", strconv.FormatInt(tool.ID, 10)); err != nil {
		return err
	}
	tool.UpdatedAt = now
	return nil
}

// UpdateToolGitHubStats is the narrow update used by trend ingestion.
func (db *DB) UpdateToolGitHubStats(ctx context.Context, id int64, stars, forks int, description string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tools SET github_stars = ?, github_forks = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		stars, forks, description, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating stats of tool %d: %w", id, err)
	}
	return requireRow(res, "tool", strconv.FormatInt(id, 10))
}

func (db *DB) SetToolStatus(ctx context.Context, id int64, status model.ToolStatus) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tools SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting status of tool %d: %w", id, err)
	}
	return requireRow(res, "tool", strconv.FormatInt(id, 10))
}

// DeleteTool removes a tool. Votes and alternative edges go with it through
// ON DELETE CASCADE.
func (db *DB) DeleteTool(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tools WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting tool %d: %w", id, err)
	}
	return requireRow(res, "tool", strconv.FormatInt(id, 10))
}

// ListToolsByStatus returns every tool in status, newest first.
func (db *DB) ListToolsByStatus(ctx context.Context, status model.ToolStatus) ([]model.Tool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM tools t WHERE t.status = ? ORDER BY t.created_at DESC, t.id DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s tools: %w", status, err)
	}
	tools, err := scanTools(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning %s tools: %w", status, err)
	}
	return tools, nil
}

// ListToolsBySubmitter returns the tools a user suggested, in any status.
func (db *DB) ListToolsBySubmitter(ctx context.Context, userID string) ([]model.Tool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM tools t WHERE t.submitted_by_user_id = ? ORDER BY t.created_at DESC, t.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tools of %s: %w", userID, err)
	}
	tools, err := scanTools(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scanning tools of %s: %w", userID, err)
	}
	return tools, nil
}

// requireRow turns "0 rows affected" into a NotFound error.
func requireRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
