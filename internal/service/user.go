package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/cache"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
)

// Identity event types we act on. Everything else is acknowledged and ignored.
const (
	EventUserCreated    = "user.created"
	EventUserUpdated    = "user.updated"
	EventUserDeleted    = "user.deleted"
	EventSessionCreated = "session.created"
)

// UserService keeps the local user mirror in step with the identity provider
// and answers profile questions.
type UserService struct {
	users  repository.UserRepository
	votes  repository.VoteRepository
	tools  repository.ToolRepository
	admins auth.AdminChecker
	cache  cache.Invalidator
	logger *slog.Logger
	now    func() time.Time
}

func NewUserService(
	users repository.UserRepository,
	votes repository.VoteRepository,
	tools repository.ToolRepository,
	admins auth.AdminChecker,
	inv cache.Invalidator,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:  users,
		votes:  votes,
		tools:  tools,
		admins: admins,
		cache:  inv,
		logger: logger,
		now:    time.Now,
	}
}

// userEventData is the part of a user.* payload we mirror.
type userEventData struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	ImageURL       string `json:"image_url"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

type sessionEventData struct {
	UserID string `json:"user_id"`
}

// HandleEvent applies one verified identity event to the mirror.
//
// Returned errors are for logging only: the webhook endpoint acknowledges
// every verified delivery so the provider does not retry forever on data we
// cannot use.
func (s *UserService) HandleEvent(ctx context.Context, event *auth.IdentityEvent) error {
	if event == nil {
		return apperror.ValidationFailed("type", "event must not be nil")
	}

	switch event.Type {
	case EventUserCreated, EventUserUpdated:
		return s.upsertFromEvent(ctx, event)

	case EventUserDeleted:
		var data userEventData
		if err := json.Unmarshal(event.Data, &data); err != nil || data.ID == "" {
			return apperror.ValidationFailed("data.id", "user.deleted event has no user id")
		}
		if err := s.users.DeleteUser(ctx, data.ID); err != nil {
			return fmt.Errorf("deleting user %s: %w", data.ID, err)
		}
		// The user's votes went with them, so counts and scores changed.
		if s.cache != nil {
			s.cache.Invalidate(cache.TagToolsList, cache.TagToolDetails, cache.UserVotesTag(data.ID))
		}
		s.logger.Info("user deleted", slog.String("userID", data.ID))
		return nil

	case EventSessionCreated:
		var data sessionEventData
		if err := json.Unmarshal(event.Data, &data); err != nil || data.UserID == "" {
			return apperror.ValidationFailed("data.user_id", "session.created event has no user id")
		}
		if err := s.users.TouchLastLogin(ctx, data.UserID, s.now().UTC()); err != nil {
			if isNotFound(err) {
				s.logger.Warn("session for unknown user", slog.String("userID", data.UserID))
				return nil
			}
			return fmt.Errorf("recording login of %s: %w", data.UserID, err)
		}
		return nil

	default:
		s.logger.Debug("ignoring identity event", slog.String("type", event.Type))
		return nil
	}
}

func (s *UserService) upsertFromEvent(ctx context.Context, event *auth.IdentityEvent) error {
	var data userEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return apperror.ValidationFailed("data", "malformed user payload")
	}
	if data.ID == "" {
		return apperror.ValidationFailed("data.id", "user event has no user id")
	}

	var email string
	if len(data.EmailAddresses) > 0 {
		email = strings.TrimSpace(data.EmailAddresses[0].EmailAddress)
	}
	if email == "" {
		s.logger.Warn("user event without email, skipping",
			slog.String("type", event.Type),
			slog.String("userID", data.ID),
		)
		return nil
	}

	user := &model.User{
		ID:        data.ID,
		Email:     &email,
		FirstName: data.FirstName,
		LastName:  data.LastName,
		ImageURL:  data.ImageURL,
	}
	if err := s.users.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("mirroring user %s: %w", data.ID, err)
	}

	s.logger.Info("user mirrored", slog.String("type", event.Type), slog.String("userID", data.ID))
	return nil
}

// Profile is the payload of GET /api/me. User is nil when the caller is
// authenticated but not yet mirrored.
type Profile struct {
	User    *model.User     `json:"user"`
	IsAdmin bool            `json:"isAdmin"`
	Stats   model.UserStats `json:"stats"`
}

func (s *UserService) Profile(ctx context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("You must be signed in.")
	}

	profile := &Profile{}

	user, err := s.users.GetUserByID(ctx, userID)
	switch {
	case err == nil:
		profile.User = user
	case isNotFound(err):
	default:
		return nil, fmt.Errorf("loading user %s: %w", userID, err)
	}

	if profile.IsAdmin, err = s.IsAdmin(ctx, userID); err != nil {
		return nil, err
	}

	if profile.Stats.VoteCount, err = s.votes.CountVotesByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("counting votes of %s: %w", userID, err)
	}
	submitted, err := s.tools.ListToolsBySubmitter(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting submissions of %s: %w", userID, err)
	}
	profile.Stats.SubmissionCount = len(submitted)

	return profile, nil
}

// IsAdmin never errors for anonymous callers; they simply are not admins.
func (s *UserService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	ok, err := s.admins.IsAdmin(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking admin %s: %w", userID, err)
	}
	return ok, nil
}
