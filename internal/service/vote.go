package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/cache"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
)

// VoteService records and reads the vote ledger.
//
// One user, one vote per tool. The storage constraint enforces that; this
// layer only validates input and keeps the caches honest.
type VoteService struct {
	votes  repository.VoteRepository
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewVoteService(votes repository.VoteRepository, c *cache.Cache, ttl time.Duration, logger *slog.Logger) *VoteService {
	return &VoteService{votes: votes, cache: c, ttl: ttl, logger: logger}
}

func validateVote(userID string, toolID int64) error {
	if userID == "" {
		return apperror.Unauthorized("You must be signed in to vote.")
	}
	if toolID <= 0 {
		return apperror.ValidationFailed("toolId", "Invalid tool ID.")
	}
	return nil
}

// invalidate drops everything a vote can change: every score, and this
// user's cached vote state.
func (s *VoteService) invalidate(userID string) {
	s.cache.Invalidate(cache.TagToolsList, cache.TagToolDetails, cache.UserVotesTag(userID))
}

// Add records userID's vote for toolID. A second vote is a Conflict; voting
// for a tool that does not exist is NotFound.
func (s *VoteService) Add(ctx context.Context, userID string, toolID int64) error {
	if err := validateVote(userID, toolID); err != nil {
		return err
	}

	if err := s.votes.AddVote(ctx, &model.Vote{UserID: userID, ToolID: toolID}); err != nil {
		return err
	}
	s.invalidate(userID)

	s.logger.Info("vote added", slog.String("userID", userID), slog.Int64("toolID", toolID))
	return nil
}

// Remove deletes userID's vote for toolID. Removing a vote that was never
// cast succeeds.
func (s *VoteService) Remove(ctx context.Context, userID string, toolID int64) error {
	if err := validateVote(userID, toolID); err != nil {
		return err
	}

	if err := s.votes.RemoveVote(ctx, userID, toolID); err != nil {
		return fmt.Errorf("removing vote: %w", err)
	}
	s.invalidate(userID)

	s.logger.Info("vote removed", slog.String("userID", userID), slog.Int64("toolID", toolID))
	return nil
}

// HasVoted reports whether userID voted for toolID. Anonymous callers have
// never voted. A storage failure answers false and is not cached.
func (s *VoteService) HasVoted(ctx context.Context, userID string, toolID int64) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if toolID <= 0 {
		return false, apperror.ValidationFailed("toolId", "Invalid tool ID.")
	}

	key := "votes:" + userID + ":" + strconv.FormatInt(toolID, 10)
	tags := []string{cache.TagUserVotes, cache.UserVotesTag(userID)}

	return cache.Remember(s.cache, key, s.ttl, tags, func() (bool, bool, error) {
		voted, err := s.votes.HasVoted(ctx, userID, toolID)
		if err != nil {
			s.logger.Error("failed to read vote status",
				slog.String("userID", userID),
				slog.Int64("toolID", toolID),
				slog.String("error", err.Error()),
			)
			return false, false, nil
		}
		return voted, true, nil
	})
}
