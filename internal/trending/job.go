package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/cache"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
	"github.com/sakif/alternatives/internal/slug"
)

// Thresholds a repository the catalogue has never seen must meet to be added.
const (
	MinStars       = 100
	MinPeriodStars = 50
)

// Feed is what the job needs from Client. Tests substitute a stub.
type Feed interface {
	Fetch(ctx context.Context) ([]json.RawMessage, error)
}

// Summary counts what one run did. Every feed element lands in exactly one
// bucket.
type Summary struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (s Summary) String() string {
	return fmt.Sprintf("Added: %d, Updated: %d, Skipped: %d, Failed: %d.", s.Added, s.Updated, s.Skipped, s.Failed)
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeAdded
	outcomeUpdated
)

// Job reconciles the feed against the tools table.
type Job struct {
	feed   Feed
	tools  repository.ToolRepository
	cache  cache.Invalidator
	logger *slog.Logger
}

// NewJob wires a Job. inv may be a nil *cache.Cache.
func NewJob(feed Feed, tools repository.ToolRepository, inv cache.Invalidator, logger *slog.Logger) *Job {
	return &Job{feed: feed, tools: tools, cache: inv, logger: logger}
}

// Run performs one ingestion pass. It returns an error only when the feed
// itself could not be fetched; per-item problems are counted in Failed.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	logger := j.logger.With(slog.String("run", xid.New().String()))
	start := time.Now()
	logger.Info("trend ingestion started")

	var summary Summary

	raw, err := j.feed.Fetch(ctx)
	if err != nil {
		logger.Error("trend ingestion aborted", slog.String("error", err.Error()))
		return summary, err
	}
	logger.Info("fetched trending items", slog.Int("count", len(raw)))

	var runErr error
	for i, element := range raw {
		if runErr = ctx.Err(); runErr != nil {
			break
		}

		item, err := ParseItem(element)
		if err != nil {
			summary.Failed++
			logger.Warn("invalid trending item",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			continue
		}

		result, err := j.reconcile(ctx, item)
		if err != nil {
			summary.Failed++
			logger.Error("failed to ingest trending item",
				slog.String("repoUrl", item.URL),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch result {
		case outcomeAdded:
			summary.Added++
			logger.Info("added trending tool", slog.String("repoUrl", item.URL))
		case outcomeUpdated:
			summary.Updated++
			logger.Debug("updated trending tool", slog.String("repoUrl", item.URL))
		default:
			summary.Skipped++
		}
	}

	// One invalidation for the whole batch, also when the run was cut short
	// after some items were already written.
	if summary.Added+summary.Updated > 0 && j.cache != nil {
		j.cache.Invalidate(cache.TagToolsList)
	}

	if runErr != nil {
		logger.Warn("trend ingestion interrupted",
			slog.Int("added", summary.Added),
			slog.Int("updated", summary.Updated),
			slog.String("error", runErr.Error()),
		)
		return summary, runErr
	}

	logger.Info("trend ingestion complete",
		slog.Int("added", summary.Added),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

func (j *Job) reconcile(ctx context.Context, item *Item) (outcome, error) {
	description := fmt.Sprintf("Trending repository: %s/%s", item.Author, item.Name)
	if item.Description != nil && *item.Description != "" {
		description = *item.Description
	}

	existing, err := j.tools.FindToolByRepoURL(ctx, item.URL)
	switch {
	case err == nil:
		if sameCount(existing.GitHubStars, item.Stars) && sameCount(existing.GitHubForks, item.Forks) {
			return outcomeSkipped, nil
		}
		if err := j.tools.UpdateToolGitHubStats(ctx, existing.ID, item.Stars, item.Forks, description); err != nil {
			return outcomeSkipped, err
		}
		return outcomeUpdated, nil

	case !errors.Is(err, apperror.ErrNotFound):
		return outcomeSkipped, err
	}

	if item.Stars < MinStars || item.CurrentPeriodStars < MinPeriodStars {
		return outcomeSkipped, nil
	}

	if err := j.insert(ctx, item, description); err != nil {
		return outcomeSkipped, err
	}
	return outcomeAdded, nil
}

// insert adds item as an approved tool. When the name's slug is taken by a
// different repository, it retries once with the author folded in
// ("facebook/react" → "facebook-react").
func (j *Job) insert(ctx context.Context, item *Item, description string) error {
	tags := []string{}
	if item.Language != nil && *item.Language != "" {
		tags = append(tags, *item.Language)
	}
	stars, forks := item.Stars, item.Forks

	candidates := []string{
		slug.Generate(item.Name),
		slug.Generate(item.Author + " " + item.Name),
	}

	var err error
	for _, s := range candidates {
		if s == "" {
			continue
		}
		tool := &model.Tool{
			Name:        item.Name,
			Slug:        s,
			Description: description,
			RepoURL:     item.URL,
			Tags:        tags,
			GitHubStars: &stars,
			GitHubForks: &forks,
			Status:      model.StatusApproved,
		}
		err = j.tools.CreateTool(ctx, tool)
		if err == nil || !errors.Is(err, apperror.ErrConflict) {
			return err
		}
	}
	if err == nil {
		return fmt.Errorf("no usable slug for %s/%s", item.Author, item.Name)
	}
	return err
}

func sameCount(stored *int, fetched int) bool {
	return stored != nil && *stored == fetched
}
