package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/cache"
	"github.com/sakif/alternatives/internal/model"
)

func newTestToolService(store *fakeStore, c *cache.Cache) *ToolService {
	return NewToolService(store, store, c, DefaultCachePolicy, discardLogger())
}

func validSuggestion() SuggestInput {
	return SuggestInput{
		Name:        "Penpot",
		Description: "Open-source design and prototyping platform.",
		WebsiteURL:  "https://penpot.app",
		RepoURL:     "https://github.com/penpot/penpot",
		Tags:        []string{"design", "prototyping"},
	}
}

// =========================================================================
// List
// =========================================================================

func TestList_Defaults(t *testing.T) {
	store := newFakeStore()
	store.seedTool("Alpha", model.StatusApproved, intPtr(10))
	store.seedTool("Beta", model.StatusApproved, intPtr(1000))
	store.seedTool("Hidden", model.StatusPending, intPtr(5000))
	svc := newTestToolService(store, nil)

	res, err := svc.List(context.Background(), ListParams{})
	require.NoError(t, err)

	assert.Equal(t, Pagination{Page: 1, Limit: DefaultPageLimit, TotalCount: 2, TotalPages: 1}, res.Pagination)
	require.Len(t, res.Tools, 2)
	assert.Equal(t, "Beta", res.Tools[0].Name, "highest score first")
}

func TestList_TotalPagesRoundsUp(t *testing.T) {
	store := newFakeStore()
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		store.seedTool(name, model.StatusApproved, nil)
	}
	svc := newTestToolService(store, nil)

	res, err := svc.List(context.Background(), ListParams{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pagination.TotalPages)
	assert.Len(t, res.Tools, 1)
}

func TestList_RejectsBadParams(t *testing.T) {
	svc := newTestToolService(newFakeStore(), nil)

	tests := []struct {
		name   string
		params ListParams
		field  string
	}{
		{"negative page", ListParams{Page: -1}, "page"},
		{"limit above max", ListParams{Limit: MaxPageLimit + 1}, "limit"},
		{"negative limit", ListParams{Limit: -5}, "limit"},
		{"unknown sort", ListParams{SortBy: "name"}, "sortBy"},
		{"unknown order", ListParams{Order: "sideways"}, "order"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.List(context.Background(), tt.params)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestList_AcceptsMaxLimitAndUppercaseOrder(t *testing.T) {
	svc := newTestToolService(newFakeStore(), nil)
	_, err := svc.List(context.Background(), ListParams{Limit: MaxPageLimit, Order: "ASC"})
	assert.NoError(t, err)
}

func TestList_StorageFailureServesEmptyPageUncached(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("disk I/O error")
	c := cache.New(16)
	svc := newTestToolService(store, c)

	res, err := svc.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Empty(t, res.Tools)
	assert.NotNil(t, res.Tools)
	assert.Equal(t, 0, res.Pagination.TotalCount)
	assert.Equal(t, 0, c.Len(), "fail-open result must not be cached")
}

func TestList_CachesUntilInvalidated(t *testing.T) {
	store := newFakeStore()
	store.seedTool("Alpha", model.StatusApproved, nil)
	c := cache.New(16)
	svc := newTestToolService(store, c)
	ctx := context.Background()

	_, err := svc.List(ctx, ListParams{Tags: []string{"b", "a"}})
	require.NoError(t, err)
	_, err = svc.List(ctx, ListParams{Tags: []string{"a", "b", "a"}})
	require.NoError(t, err)
	assert.Equal(t, 1, store.listCalls, "tag order and duplicates share one cache entry")

	c.Invalidate(cache.TagToolsList)
	_, err = svc.List(ctx, ListParams{Tags: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

// =========================================================================
// Details
// =========================================================================

func TestDetails_ReturnsBothEdgeDirections(t *testing.T) {
	store := newFakeStore()
	figma := store.seedTool("Figma", model.StatusApproved, nil)
	penpot := store.seedTool("Penpot", model.StatusApproved, intPtr(30000))
	pending := store.seedTool("Quiet", model.StatusPending, nil)
	ctx := context.Background()
	require.NoError(t, store.AddAlternative(ctx, figma.ID, penpot.ID))
	require.NoError(t, store.AddAlternative(ctx, figma.ID, pending.ID))

	svc := newTestToolService(store, nil)

	details, err := svc.Details(ctx, "figma")
	require.NoError(t, err)
	assert.Equal(t, "Figma", details.Tool.Name)
	require.Len(t, details.Alternatives, 1, "pending alternatives are hidden")
	assert.Equal(t, "Penpot", details.Alternatives[0].Name)
	assert.NotNil(t, details.AlternativeTo)
	assert.Empty(t, details.AlternativeTo)

	details, err = svc.Details(ctx, "penpot")
	require.NoError(t, err)
	require.Len(t, details.AlternativeTo, 1)
	assert.Equal(t, "Figma", details.AlternativeTo[0].Name)
}

func TestDetails_NotFound(t *testing.T) {
	store := newFakeStore()
	store.seedTool("Quiet", model.StatusPending, nil)
	svc := newTestToolService(store, cache.New(16))

	for _, slug := range []string{"", "missing", "quiet"} {
		_, err := svc.Details(context.Background(), slug)
		assert.ErrorIs(t, err, apperror.ErrNotFound, "slug %q", slug)
	}
}

func TestDetails_StorageFailureIsNotFound(t *testing.T) {
	store := newFakeStore()
	store.seedTool("Figma", model.StatusApproved, nil)
	store.detailsErr = errors.New("database is locked")
	c := cache.New(16)
	svc := newTestToolService(store, c)

	_, err := svc.Details(context.Background(), "figma")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, 0, c.Len())

	store.detailsErr = nil
	details, err := svc.Details(context.Background(), "figma")
	require.NoError(t, err)
	assert.Equal(t, "Figma", details.Tool.Name)
}

// =========================================================================
// Suggest
// =========================================================================

func TestSuggest_CreatesPendingTool(t *testing.T) {
	store := newFakeStore()
	svc := newTestToolService(store, nil)

	tool, err := svc.Suggest(context.Background(), "user_1", validSuggestion())
	require.NoError(t, err)

	assert.Equal(t, "penpot", tool.Slug)
	assert.Equal(t, model.StatusPending, tool.Status)
	require.NotNil(t, tool.SubmittedByUserID)
	assert.Equal(t, "user_1", *tool.SubmittedByUserID)
	assert.Equal(t, 0, tool.UserVotesCount)
	assert.Equal(t, 0.0, tool.Score)

	stored, err := store.GetToolBySlug(context.Background(), "penpot")
	require.NoError(t, err)
	assert.Equal(t, []string{"design", "prototyping"}, stored.Tags)
}

func TestSuggest_RequiresUser(t *testing.T) {
	svc := newTestToolService(newFakeStore(), nil)
	_, err := svc.Suggest(context.Background(), "", validSuggestion())
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestSuggest_Validation(t *testing.T) {
	long := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}
	negative := int64(-3)

	tests := []struct {
		name   string
		mutate func(*SuggestInput)
		field  string
	}{
		{"empty name", func(in *SuggestInput) { in.Name = "  " }, "name"},
		{"name too long", func(in *SuggestInput) { in.Name = long(MaxNameLength + 1) }, "name"},
		{"name without slug", func(in *SuggestInput) { in.Name = "!!!" }, "name"},
		{"short description", func(in *SuggestInput) { in.Description = "too short" }, "description"},
		{"long description", func(in *SuggestInput) { in.Description = long(MaxDescriptionLength + 1) }, "description"},
		{"bad website", func(in *SuggestInput) { in.WebsiteURL = "not a url" }, "websiteUrl"},
		{"non-github repo", func(in *SuggestInput) { in.RepoURL = "https://gitlab.com/a/b" }, "repoUrl"},
		{"bare github prefix", func(in *SuggestInput) { in.RepoURL = GitHubURLPrefix }, "repoUrl"},
		{"too many tags", func(in *SuggestInput) { in.Tags = make([]string, MaxTags+1) }, "tags"},
		{"empty tag", func(in *SuggestInput) { in.Tags = []string{"ok", ""} }, "tags"},
		{"long tag", func(in *SuggestInput) { in.Tags = []string{long(MaxTagLength + 1)} }, "tags"},
		{"negative target", func(in *SuggestInput) { in.AlternativeToToolID = &negative }, "alternativeToToolId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestToolService(store, nil)
			in := validSuggestion()
			tt.mutate(&in)

			_, err := svc.Suggest(context.Background(), "user_1", in)
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
			assert.Empty(t, store.tools, "nothing is stored on validation failure")
		})
	}
}

func TestSuggest_WebsiteIsOptional(t *testing.T) {
	svc := newTestToolService(newFakeStore(), nil)
	in := validSuggestion()
	in.WebsiteURL = ""
	_, err := svc.Suggest(context.Background(), "user_1", in)
	assert.NoError(t, err)
}

func TestSuggest_DuplicateSlugConflicts(t *testing.T) {
	store := newFakeStore()
	store.seedTool("Penpot", model.StatusApproved, nil)
	svc := newTestToolService(store, nil)

	_, err := svc.Suggest(context.Background(), "user_1", validSuggestion())
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestSuggest_LinksApprovedTarget(t *testing.T) {
	store := newFakeStore()
	figma := store.seedTool("Figma", model.StatusApproved, nil)
	svc := newTestToolService(store, nil)

	in := validSuggestion()
	in.AlternativeToToolID = &figma.ID
	tool, err := svc.Suggest(context.Background(), "user_1", in)
	require.NoError(t, err)

	assert.True(t, store.edges[[2]int64{figma.ID, tool.ID}], "edge runs from the original to the suggestion")
}

func TestSuggest_SkipsLinkToUnapprovedOrMissingTarget(t *testing.T) {
	store := newFakeStore()
	pending := store.seedTool("Sketchy", model.StatusPending, nil)
	missing := int64(999)
	svc := newTestToolService(store, nil)

	for i, target := range []*int64{&pending.ID, &missing} {
		in := validSuggestion()
		in.Name = in.Name + string(rune('A'+i))
		in.AlternativeToToolID = target

		_, err := svc.Suggest(context.Background(), "user_1", in)
		require.NoError(t, err, "the suggestion still succeeds")
	}
	assert.Empty(t, store.edges)
}

func TestListBySubmitter(t *testing.T) {
	store := newFakeStore()
	svc := newTestToolService(store, nil)
	ctx := context.Background()

	_, err := svc.Suggest(ctx, "user_1", validSuggestion())
	require.NoError(t, err)

	mine, err := svc.ListBySubmitter(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, model.StatusPending, mine[0].Status)

	theirs, err := svc.ListBySubmitter(ctx, "user_2")
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = svc.ListBySubmitter(ctx, "")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}
