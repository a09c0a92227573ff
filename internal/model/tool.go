// Package model defines the data structures used throughout the application.
package model

import "time"

// ToolStatus is the moderation state of a tool. Only approved tools are
// visible to the public or eligible to appear as alternatives.
type ToolStatus string

const (
	StatusPending  ToolStatus = "pending"
	StatusApproved ToolStatus = "approved"
	StatusRejected ToolStatus = "rejected"
)

// Valid reports whether s is one of the three known states.
func (s ToolStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Tool is a catalogued open-source tool.
//
// The GitHub metrics are pointers: nil means "never fetched", which is not
// the same thing as zero stars.
type Tool struct {
	ID                int64      `json:"id"                db:"id"`
	Name              string     `json:"name"              db:"name"`
	Slug              string     `json:"slug"              db:"slug"`
	Description       string     `json:"description"       db:"description"`
	WebsiteURL        string     `json:"websiteUrl"        db:"website_url"`
	RepoURL           string     `json:"repoUrl"           db:"repo_url"`
	Tags              []string   `json:"tags"              db:"tags"` // stored as a JSON array
	GitHubStars       *int       `json:"githubStars"       db:"github_stars"`
	GitHubForks       *int       `json:"githubForks"       db:"github_forks"`
	GitHubIssues      *int       `json:"githubIssues"      db:"github_issues"`
	GitHubLastCommit  *time.Time `json:"githubLastCommit"  db:"github_last_commit"`
	Status            ToolStatus `json:"status"            db:"status"`
	SubmittedByUserID *string    `json:"submittedByUserId" db:"submitted_by_user_id"`
	CreatedAt         time.Time  `json:"createdAt"         db:"created_at"`
	UpdatedAt         time.Time  `json:"updatedAt"         db:"updated_at"`
}

// ScoredTool is a Tool plus the values derived at read time. Neither field is
// ever stored.
type ScoredTool struct {
	Tool
	UserVotesCount int     `json:"userVotesCount"`
	Score          float64 `json:"score"`
}

// ToolDetails is the payload of the detail page.
//
//	Alternatives  → tools listed as alternatives TO this tool (edges from it)
//	AlternativeTo → tools this tool is an alternative FOR (edges into it)
type ToolDetails struct {
	Tool          ScoredTool   `json:"tool"`
	Alternatives  []ScoredTool `json:"alternatives"`
	AlternativeTo []ScoredTool `json:"alternativeTo"`
}

// Vote is one user's endorsement of one tool.
type Vote struct {
	ID        int64     `json:"id"        db:"id"`
	UserID    string    `json:"userId"    db:"user_id"`
	ToolID    int64     `json:"toolId"    db:"tool_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// AlternativeEdge says "AlternativeToolID is an alternative to OriginalToolID".
// Edges are directed; the reverse edge is never implied.
type AlternativeEdge struct {
	OriginalToolID    int64     `json:"originalToolId"    db:"original_tool_id"`
	AlternativeToolID int64     `json:"alternativeToolId" db:"alternative_tool_id"`
	CreatedAt         time.Time `json:"createdAt"         db:"created_at"`
}
