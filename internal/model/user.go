package model

import "time"

// User mirrors an account owned by the identity provider. We never create
// users on our own; rows appear through webhook events or a GitHub login.
//
// ID is the provider's identifier verbatim (e.g. "user_2abc..." or
// "github|583231"), so votes and submissions can reference it before or
// after the mirror row exists.
//
// Email is a pointer because it is UNIQUE when present but may be absent.
type User struct {
	ID          string     `json:"id"          db:"id"`
	Email       *string    `json:"email"       db:"email"`
	FirstName   string     `json:"firstName"   db:"first_name"`
	LastName    string     `json:"lastName"    db:"last_name"`
	ImageURL    string     `json:"imageUrl"    db:"image_url"`
	CreatedAt   time.Time  `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt"   db:"updated_at"`
	LastLoginAt *time.Time `json:"lastLoginAt" db:"last_login_at"`
}

// UserStats summarises a user's activity for the profile page.
type UserStats struct {
	VoteCount       int `json:"voteCount"`
	SubmissionCount int `json:"submissionCount"`
}
