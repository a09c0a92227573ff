// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces and return apperror values; they know
// nothing about HTTP. The same ToolService backs the JSON API and the
// trend-ingestion command.
//
// FAILURE POLICY:
// Public reads fail open. A storage error on a list or detail read is logged
// and the caller gets an empty page or "not found", and that result is not
// cached. Writes always surface their error.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/cache"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
	"github.com/sakif/alternatives/internal/score"
	"github.com/sakif/alternatives/internal/slug"
)

// Validation constants.
const (
	DefaultPageLimit = 12
	MaxPageLimit     = 50

	MinNameLength        = 1
	MaxNameLength        = 100
	MinDescriptionLength = 10
	MaxDescriptionLength = 500
	MaxTags              = 10
	MaxTagLength         = 30

	GitHubURLPrefix = "https://github.com/"
)

// CachePolicy holds the TTL of each cached read.
type CachePolicy struct {
	ListTTL    time.Duration
	DetailsTTL time.Duration
	VoteTTL    time.Duration
}

// DefaultCachePolicy matches the freshness users expect: lists may lag five
// minutes, detail pages ten, a user's own vote state one.
var DefaultCachePolicy = CachePolicy{
	ListTTL:    5 * time.Minute,
	DetailsTTL: 10 * time.Minute,
	VoteTTL:    time.Minute,
}

// ToolService serves the public catalogue and takes suggestions.
type ToolService struct {
	tools  repository.ToolRepository
	alts   repository.AlternativeRepository
	cache  *cache.Cache
	policy CachePolicy
	logger *slog.Logger
}

// NewToolService wires a ToolService. c may be nil to disable caching.
func NewToolService(
	tools repository.ToolRepository,
	alts repository.AlternativeRepository,
	c *cache.Cache,
	policy CachePolicy,
	logger *slog.Logger,
) *ToolService {
	return &ToolService{
		tools:  tools,
		alts:   alts,
		cache:  c,
		policy: policy,
		logger: logger,
	}
}

// =========================================================================
// LIST
// =========================================================================

// ListParams is the raw list request. Zero values mean "use the default".
type ListParams struct {
	Page   int
	Limit  int
	Query  string
	Tags   []string
	SortBy string
	Order  string
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalCount int `json:"totalCount"`
	TotalPages int `json:"totalPages"`
}

type ListResult struct {
	Tools      []model.ScoredTool `json:"tools"`
	Pagination Pagination         `json:"pagination"`
}

// normalize applies defaults and rejects out-of-range values.
func (p ListParams) normalize() (repository.ToolQuery, error) {
	q := repository.ToolQuery{
		Page:   p.Page,
		Limit:  p.Limit,
		Search: strings.TrimSpace(p.Query),
		SortBy: repository.SortField(p.SortBy),
		Order:  repository.SortOrder(strings.ToLower(p.Order)),
	}

	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return q, apperror.ValidationFailed("page", "page must be 1 or greater")
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit < 1 || q.Limit > MaxPageLimit {
		return q, apperror.ValidationFailed("limit",
			fmt.Sprintf("limit must be between 1 and %d", MaxPageLimit))
	}
	if q.SortBy == "" {
		q.SortBy = repository.SortByScore
	}
	if !q.SortBy.Valid() {
		return q, apperror.ValidationFailed("sortBy", "sortBy must be one of score, stars, createdAt")
	}
	if q.Order == "" {
		q.Order = repository.OrderDesc
	}
	if !q.Order.Valid() {
		return q, apperror.ValidationFailed("order", "order must be asc or desc")
	}

	seen := make(map[string]bool)
	for _, tag := range p.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		q.Tags = append(q.Tags, tag)
	}
	sort.Strings(q.Tags)

	return q, nil
}

func listCacheKey(q repository.ToolQuery) string {
	return fmt.Sprintf("tools:list:p=%d:l=%d:q=%s:tags=%s:sort=%s:%s",
		q.Page, q.Limit, strings.ToLower(q.Search), strings.Join(q.Tags, ","), q.SortBy, q.Order)
}

// List returns one page of approved tools.
func (s *ToolService) List(ctx context.Context, params ListParams) (*ListResult, error) {
	q, err := params.normalize()
	if err != nil {
		return nil, err
	}

	return cache.Remember(s.cache, listCacheKey(q), s.policy.ListTTL, []string{cache.TagToolsList},
		func() (*ListResult, bool, error) {
			tools, total, err := s.tools.ListApprovedTools(ctx, q)
			if err != nil {
				s.logger.Error("failed to list tools, serving empty page",
					slog.String("error", err.Error()),
				)
				return emptyPage(q), false, nil
			}
			return &ListResult{
				Tools: tools,
				Pagination: Pagination{
					Page:       q.Page,
					Limit:      q.Limit,
					TotalCount: total,
					TotalPages: totalPages(total, q.Limit),
				},
			}, true, nil
		})
}

func emptyPage(q repository.ToolQuery) *ListResult {
	return &ListResult{
		Tools:      []model.ScoredTool{},
		Pagination: Pagination{Page: q.Page, Limit: q.Limit},
	}
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}

// =========================================================================
// DETAILS
// =========================================================================

// Details returns an approved tool and both directions of its alternative
// edges. Anything else (unknown slug, pending tool, storage failure) is
// reported as not found.
func (s *ToolService) Details(ctx context.Context, toolSlug string) (*model.ToolDetails, error) {
	toolSlug = strings.TrimSpace(toolSlug)
	if toolSlug == "" {
		return nil, apperror.NotFound("tool", toolSlug)
	}

	details, err := cache.Remember(s.cache, "tools:details:"+toolSlug, s.policy.DetailsTTL,
		[]string{cache.TagToolDetails},
		func() (*model.ToolDetails, bool, error) {
			d, err := s.loadDetails(ctx, toolSlug)
			if err != nil {
				if !isNotFound(err) {
					s.logger.Error("failed to load tool details",
						slog.String("slug", toolSlug),
						slog.String("error", err.Error()),
					)
				}
				return nil, false, nil
			}
			return d, true, nil
		})
	if err != nil {
		return nil, err
	}
	if details == nil {
		return nil, apperror.NotFound("tool", toolSlug)
	}
	return details, nil
}

// loadDetails fetches the tool, then both edge lists concurrently.
func (s *ToolService) loadDetails(ctx context.Context, toolSlug string) (*model.ToolDetails, error) {
	tool, err := s.tools.GetApprovedToolBySlug(ctx, toolSlug)
	if err != nil {
		return nil, err
	}

	var alternatives, alternativeTo []model.ScoredTool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		alternatives, err = s.alts.ListAlternatives(gctx, tool.ID)
		return err
	})
	g.Go(func() error {
		var err error
		alternativeTo, err = s.alts.ListAlternativeTo(gctx, tool.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.ToolDetails{
		Tool:          *tool,
		Alternatives:  nonNil(alternatives),
		AlternativeTo: nonNil(alternativeTo),
	}, nil
}

func nonNil(tools []model.ScoredTool) []model.ScoredTool {
	if tools == nil {
		return []model.ScoredTool{}
	}
	return tools
}

// =========================================================================
// SUGGEST
// =========================================================================

// SuggestInput is a user's suggestion of a new tool.
type SuggestInput struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	WebsiteURL          string   `json:"websiteUrl"`
	RepoURL             string   `json:"repoUrl"`
	Tags                []string `json:"tags"`
	AlternativeToToolID *int64   `json:"alternativeToToolId"`
}

// Suggest validates in and stores it as a pending tool submitted by userID.
//
// A suggestion that looks like a duplicate (same slug or repository) is only
// logged; the slug's UNIQUE constraint is the one hard rule, and a clash is
// returned as a Conflict. When AlternativeToToolID names an approved tool the
// new tool is linked as its alternative; otherwise the link is skipped and
// the suggestion still succeeds.
func (s *ToolService) Suggest(ctx context.Context, userID string, in SuggestInput) (*model.ScoredTool, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("You must be signed in to suggest a tool.")
	}

	tool, err := validateSuggestion(in)
	if err != nil {
		return nil, err
	}
	tool.Status = model.StatusPending
	tool.SubmittedByUserID = &userID

	exists, err := s.tools.ToolExists(ctx, tool.Slug, tool.RepoURL)
	if err != nil {
		s.logger.Error("duplicate check failed", slog.String("error", err.Error()))
	} else if exists {
		s.logger.Warn("suggestion may duplicate an existing tool",
			slog.String("slug", tool.Slug),
			slog.String("repoUrl", tool.RepoURL),
			slog.String("userID", userID),
		)
	}

	if err := s.tools.CreateTool(ctx, tool); err != nil {
		if isConflict(err) {
			return nil, err
		}
		s.logger.Error("failed to create suggested tool",
			slog.String("slug", tool.Slug),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating tool: %w", err)
	}

	s.logger.Info("tool suggested",
		slog.Int64("id", tool.ID),
		slog.String("slug", tool.Slug),
		slog.String("userID", userID),
	)

	if in.AlternativeToToolID != nil {
		s.linkAlternative(ctx, *in.AlternativeToToolID, tool.ID)
	}

	return &model.ScoredTool{Tool: *tool, Score: score.Calculate(tool.GitHubStars, 0)}, nil
}

// linkAlternative records newID as an alternative to originalID when the
// original is approved. Failures are logged, never returned: the tool itself
// was already saved.
func (s *ToolService) linkAlternative(ctx context.Context, originalID, newID int64) {
	original, err := s.tools.GetToolByID(ctx, originalID)
	if err != nil {
		s.logger.Warn("alternative target not found, skipping link",
			slog.Int64("alternativeToToolId", originalID),
			slog.String("error", err.Error()),
		)
		return
	}
	if original.Status != model.StatusApproved {
		s.logger.Warn("alternative target is not approved, skipping link",
			slog.Int64("alternativeToToolId", originalID),
			slog.String("status", string(original.Status)),
		)
		return
	}

	if err := s.alts.AddAlternative(ctx, originalID, newID); err != nil {
		s.logger.Warn("failed to link alternative",
			slog.Int64("original", originalID),
			slog.Int64("alternative", newID),
			slog.String("error", err.Error()),
		)
	}
}

func validateSuggestion(in SuggestInput) (*model.Tool, error) {
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < MinNameLength || n > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be between %d and %d characters", MinNameLength, MaxNameLength))
	}

	toolSlug := slug.Generate(name)
	if toolSlug == "" {
		return nil, apperror.ValidationFailed("name", "name must contain at least one letter or digit")
	}

	description := strings.TrimSpace(in.Description)
	if n := utf8.RuneCountInString(description); n < MinDescriptionLength || n > MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be between %d and %d characters", MinDescriptionLength, MaxDescriptionLength))
	}

	websiteURL := strings.TrimSpace(in.WebsiteURL)
	if websiteURL != "" && !isHTTPURL(websiteURL) {
		return nil, apperror.ValidationFailed("websiteUrl", "websiteUrl must be a valid URL")
	}

	repoURL := strings.TrimSpace(in.RepoURL)
	if err := validateRepoURL(repoURL); err != nil {
		return nil, err
	}

	tags, err := validateTags(in.Tags)
	if err != nil {
		return nil, err
	}

	if in.AlternativeToToolID != nil && *in.AlternativeToToolID <= 0 {
		return nil, apperror.ValidationFailed("alternativeToToolId", "alternativeToToolId must be a positive integer")
	}

	return &model.Tool{
		Name:        name,
		Slug:        toolSlug,
		Description: description,
		WebsiteURL:  websiteURL,
		RepoURL:     repoURL,
		Tags:        tags,
	}, nil
}

func validateRepoURL(repoURL string) error {
	if !strings.HasPrefix(repoURL, GitHubURLPrefix) || !isHTTPURL(repoURL) ||
		len(repoURL) == len(GitHubURLPrefix) {
		return apperror.ValidationFailed("repoUrl", "repoUrl must be a GitHub repository URL")
	}
	return nil
}

func validateTags(raw []string) ([]string, error) {
	if len(raw) > MaxTags {
		return nil, apperror.ValidationFailed("tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if n := utf8.RuneCountInString(tag); n < 1 || n > MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("each tag must be between 1 and %d characters", MaxTagLength))
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// =========================================================================
// PROFILE LISTS
// =========================================================================

// ListBySubmitter returns the tools userID suggested, in every status.
func (s *ToolService) ListBySubmitter(ctx context.Context, userID string) ([]model.Tool, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("You must be signed in.")
	}
	tools, err := s.tools.ListToolsBySubmitter(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list submitted tools",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return []model.Tool{}, nil
	}
	return tools, nil
}
