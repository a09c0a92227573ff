// Package repository declares the storage contracts the service layer depends on.
//
// Services take these interfaces, never *sqlite.DB, so tests can hand them
// in-memory fakes. The SQLite implementation satisfies all four; method names
// are distinct across interfaces for that reason.
package repository

import (
	"context"
	"time"

	"github.com/sakif/alternatives/internal/model"
)

// SortField selects the ORDER BY column of a tool listing.
type SortField string

const (
	SortByScore     SortField = "score"
	SortByStars     SortField = "stars"
	SortByCreatedAt SortField = "createdAt"
)

func (f SortField) Valid() bool {
	switch f {
	case SortByScore, SortByStars, SortByCreatedAt:
		return true
	}
	return false
}

// SortOrder is asc or desc.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

func (o SortOrder) Valid() bool {
	return o == OrderAsc || o == OrderDesc
}

// ToolQuery describes one page of the public catalogue. Callers validate it;
// the repository trusts Page >= 1 and Limit >= 1.
type ToolQuery struct {
	Page   int
	Limit  int
	Search string   // substring of name or description, case-insensitive
	Tags   []string // tool must carry every one of these
	SortBy SortField
	Order  SortOrder
}

// Offset is the number of rows to skip for q.Page.
func (q ToolQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type ToolRepository interface {
	// ListApprovedTools returns one page plus the total number of matches.
	// Ties on the sort key are broken by id ascending.
	ListApprovedTools(ctx context.Context, q ToolQuery) ([]model.ScoredTool, int, error)
	GetApprovedToolBySlug(ctx context.Context, slug string) (*model.ScoredTool, error)
	GetToolBySlug(ctx context.Context, slug string) (*model.Tool, error)
	GetToolByID(ctx context.Context, id int64) (*model.Tool, error)
	FindToolByRepoURL(ctx context.Context, repoURL string) (*model.Tool, error)
	ToolExists(ctx context.Context, slug, repoURL string) (bool, error)
	CreateTool(ctx context.Context, tool *model.Tool) error
	UpdateTool(ctx context.Context, tool *model.Tool) error
	UpdateToolGitHubStats(ctx context.Context, id int64, stars, forks int, description string) error
	SetToolStatus(ctx context.Context, id int64, status model.ToolStatus) error
	DeleteTool(ctx context.Context, id int64) error
	ListToolsByStatus(ctx context.Context, status model.ToolStatus) ([]model.Tool, error)
	ListToolsBySubmitter(ctx context.Context, userID string) ([]model.Tool, error)
}

type AlternativeRepository interface {
	// AddAlternative records that alternativeID is an alternative to originalID.
	// Adding an existing edge is a no-op.
	AddAlternative(ctx context.Context, originalID, alternativeID int64) error
	// ListAlternatives follows edges out of toolID; ListAlternativeTo follows
	// edges into it. Both return approved tools only, best score first.
	ListAlternatives(ctx context.Context, toolID int64) ([]model.ScoredTool, error)
	ListAlternativeTo(ctx context.Context, toolID int64) ([]model.ScoredTool, error)
}

type VoteRepository interface {
	AddVote(ctx context.Context, vote *model.Vote) error
	// RemoveVote succeeds even when there was nothing to remove.
	RemoveVote(ctx context.Context, userID string, toolID int64) error
	HasVoted(ctx context.Context, userID string, toolID int64) (bool, error)
	CountVotesByUser(ctx context.Context, userID string) (int, error)
	CountVotesByTool(ctx context.Context, toolID int64) (int, error)
}

type UserRepository interface {
	UpsertUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// DeleteUser removes the user's votes, detaches their submissions and
	// deletes the mirror row, all in one transaction.
	DeleteUser(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
