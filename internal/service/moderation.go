package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/auth"
	"github.com/sakif/alternatives/internal/cache"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
	"github.com/sakif/alternatives/internal/score"
)

// ModerationService holds every admin-only write: approving and rejecting
// suggestions, editing and deleting tools.
//
// Each method checks the actor itself. The HTTP layer also mounts these
// routes behind RequireAdmin, but the CLI and tests call the service
// directly, so the rule lives here.
type ModerationService struct {
	tools  repository.ToolRepository
	votes  repository.VoteRepository
	admins auth.AdminChecker
	cache  *cache.Cache
	logger *slog.Logger
}

func NewModerationService(
	tools repository.ToolRepository,
	votes repository.VoteRepository,
	admins auth.AdminChecker,
	c *cache.Cache,
	logger *slog.Logger,
) *ModerationService {
	return &ModerationService{
		tools:  tools,
		votes:  votes,
		admins: admins,
		cache:  c,
		logger: logger,
	}
}

func (s *ModerationService) requireAdmin(ctx context.Context, actorID string) error {
	if actorID == "" {
		return apperror.Unauthorized("You must be signed in.")
	}
	ok, err := s.admins.IsAdmin(ctx, actorID)
	if err != nil {
		return fmt.Errorf("checking admin %s: %w", actorID, err)
	}
	if !ok {
		return apperror.Forbidden("Forbidden: Admins only.")
	}
	return nil
}

// invalidateCatalogue drops every cached read a moderation write can change.
func (s *ModerationService) invalidateCatalogue() {
	s.cache.Invalidate(cache.TagToolsList, cache.TagToolDetails)
}

// ListPending returns the moderation queue, newest first.
func (s *ModerationService) ListPending(ctx context.Context, actorID string) ([]model.Tool, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	tools, err := s.tools.ListToolsByStatus(ctx, model.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("listing pending tools: %w", err)
	}
	return tools, nil
}

func (s *ModerationService) Approve(ctx context.Context, actorID string, toolID int64) error {
	return s.setStatus(ctx, actorID, toolID, model.StatusApproved)
}

func (s *ModerationService) Reject(ctx context.Context, actorID string, toolID int64) error {
	return s.setStatus(ctx, actorID, toolID, model.StatusRejected)
}

// setStatus allows any transition, including re-approving a rejected tool.
func (s *ModerationService) setStatus(ctx context.Context, actorID string, toolID int64, status model.ToolStatus) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if toolID <= 0 {
		return apperror.ValidationFailed("id", "Invalid tool ID.")
	}

	if err := s.tools.SetToolStatus(ctx, toolID, status); err != nil {
		return err
	}
	s.invalidateCatalogue()

	s.logger.Info("tool moderated",
		slog.Int64("toolID", toolID),
		slog.String("status", string(status)),
		slog.String("actor", actorID),
	)
	return nil
}

// ToolPatch is a partial update. Nil fields are left unchanged. The slug is
// derived from the original name and never changes.
type ToolPatch struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	WebsiteURL  *string   `json:"websiteUrl"`
	RepoURL     *string   `json:"repoUrl"`
	Tags        *[]string `json:"tags"`
	Status      *string   `json:"status"`
}

func (p ToolPatch) apply(tool *model.Tool) error {
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
			return apperror.ValidationFailed("name",
				fmt.Sprintf("name must be between %d and %d characters", MinNameLength, MaxNameLength))
		}
		tool.Name = name
	}
	if p.Description != nil {
		description := strings.TrimSpace(*p.Description)
		if utf8.RuneCountInString(description) > MaxDescriptionLength {
			return apperror.ValidationFailed("description",
				fmt.Sprintf("description must be at most %d characters", MaxDescriptionLength))
		}
		tool.Description = description
	}
	if p.WebsiteURL != nil {
		websiteURL := strings.TrimSpace(*p.WebsiteURL)
		if websiteURL != "" && !isHTTPURL(websiteURL) {
			return apperror.ValidationFailed("websiteUrl", "websiteUrl must be a valid URL")
		}
		tool.WebsiteURL = websiteURL
	}
	if p.RepoURL != nil {
		repoURL := strings.TrimSpace(*p.RepoURL)
		if err := validateRepoURL(repoURL); err != nil {
			return err
		}
		tool.RepoURL = repoURL
	}
	if p.Tags != nil {
		tags, err := validateTags(*p.Tags)
		if err != nil {
			return err
		}
		tool.Tags = tags
	}
	if p.Status != nil {
		status := model.ToolStatus(*p.Status)
		if !status.Valid() {
			return apperror.ValidationFailed("status", "status must be pending, approved or rejected")
		}
		tool.Status = status
	}
	return nil
}

// UpdateTool applies patch to the tool with the given slug and returns the
// result with its current vote count and score.
func (s *ModerationService) UpdateTool(ctx context.Context, actorID, toolSlug string, patch ToolPatch) (*model.ScoredTool, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	tool, err := s.tools.GetToolBySlug(ctx, toolSlug)
	if err != nil {
		return nil, err
	}
	if err := patch.apply(tool); err != nil {
		return nil, err
	}
	if err := s.tools.UpdateTool(ctx, tool); err != nil {
		return nil, err
	}
	s.invalidateCatalogue()

	votes, err := s.votes.CountVotesByTool(ctx, tool.ID)
	if err != nil {
		// The update went through; only the decoration is missing.
		s.logger.Warn("failed to count votes after update",
			slog.Int64("toolID", tool.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("tool updated", slog.String("slug", tool.Slug), slog.String("actor", actorID))

	return &model.ScoredTool{
		Tool:           *tool,
		UserVotesCount: votes,
		Score:          score.Calculate(tool.GitHubStars, votes),
	}, nil
}

// DeleteTool removes a tool along with its votes and alternative edges.
func (s *ModerationService) DeleteTool(ctx context.Context, actorID, toolSlug string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	tool, err := s.tools.GetToolBySlug(ctx, toolSlug)
	if err != nil {
		return err
	}
	if err := s.tools.DeleteTool(ctx, tool.ID); err != nil {
		return err
	}
	s.invalidateCatalogue()

	s.logger.Info("tool deleted",
		slog.Int64("toolID", tool.ID),
		slog.String("slug", tool.Slug),
		slog.String("actor", actorID),
	)
	return nil
}
