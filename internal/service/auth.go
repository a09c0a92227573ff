// AuthService is the business logic of the first-party GitHub login:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// The hosted identity provider remains the main source of users (see
// UserService.HandleEvent). GitHub login writes into the same mirror table,
// using ids of the form "github|<numeric id>" so the two never collide.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
)

type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback:
//
//  1. Upsert the mirror row (create on first login, refresh the profile after)
//  2. Record the login time
//  3. Issue a JWT for the user
//
// GitHub emails are not guaranteed unique across our mirror: the same address
// may already belong to a provider-managed account. In that case the GitHub
// user is stored without an email rather than refused.
//
// This method sets no cookies and reads no requests; that is the handler's job.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, errors.New("service/auth: GitHub user must not be nil")
	}

	first, last := ghUser.SplitName()
	user := &model.User{
		ID:        ghUser.UserID(),
		FirstName: first,
		LastName:  last,
		ImageURL:  ghUser.AvatarURL,
	}
	if ghUser.Email != "" {
		email := ghUser.Email
		user.Email = &email
	}

	err := s.users.UpsertUser(ctx, user)
	if err != nil && isConflict(err) && user.Email != nil {
		s.logger.Warn("GitHub email already in use, storing user without email",
			slog.String("userID", user.ID),
		)
		user.Email = nil
		err = s.users.UpsertUser(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", user.ID, err)
	}

	if err := s.users.TouchLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		// Not worth failing the login over.
		s.logger.Warn("failed to record login time",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// ValidateToken returns the userID encoded in a JWT.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}
