package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sakif/alternatives/internal/apperror"
	"github.com/sakif/alternatives/internal/model"
	"github.com/sakif/alternatives/internal/repository"
	"github.com/sakif/alternatives/internal/score"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory implementation of all four repositories. The
// method names do not overlap, so one struct can stand in for *sqlite.DB.
//
// Set an *Err field to simulate a database failure for that call; count
// fields record how many times the store was actually hit.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	tools  map[int64]*model.Tool
	edges  map[[2]int64]bool
	votes  map[string]map[int64]bool // userID → toolIDs
	users  map[string]*model.User
	logins map[string]time.Time

	listErr     error
	detailsErr  error
	hasVotedErr error
	upsertErr   func(*model.User) error

	listCalls     int
	hasVotedCalls int
}

var (
	_ repository.ToolRepository        = (*fakeStore)(nil)
	_ repository.AlternativeRepository = (*fakeStore)(nil)
	_ repository.VoteRepository        = (*fakeStore)(nil)
	_ repository.UserRepository        = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID: 1,
		tools:  make(map[int64]*model.Tool),
		edges:  make(map[[2]int64]bool),
		votes:  make(map[string]map[int64]bool),
		users:  make(map[string]*model.User),
		logins: make(map[string]time.Time),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(n int) *int { return &n }

// seedTool stores a tool directly, bypassing validation.
func (f *fakeStore) seedTool(name string, status model.ToolStatus, stars *int) *model.Tool {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &model.Tool{
		ID:          f.nextID,
		Name:        name,
		Slug:        strings.ToLower(strings.ReplaceAll(name, " ", "-")),
		Description: name + " description",
		RepoURL:     "https://github.com/example/" + strings.ToLower(name),
		Tags:        []string{},
		GitHubStars: stars,
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	}
	f.nextID++
	f.tools[t.ID] = t
	return t
}

func (f *fakeStore) voteCount(toolID int64) int {
	n := 0
	for _, tools := range f.votes {
		if tools[toolID] {
			n++
		}
	}
	return n
}

func (f *fakeStore) scored(t *model.Tool) model.ScoredTool {
	votes := f.voteCount(t.ID)
	return model.ScoredTool{Tool: *t, UserVotesCount: votes, Score: score.Calculate(t.GitHubStars, votes)}
}

// --- ToolRepository ---

func (f *fakeStore) ListApprovedTools(_ context.Context, q repository.ToolQuery) ([]model.ScoredTool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, 0, f.listErr
	}

	var all []model.ScoredTool
	for _, t := range f.tools {
		if t.Status != model.StatusApproved {
			continue
		}
		if q.Search != "" && !strings.Contains(strings.ToLower(t.Name+" "+t.Description), strings.ToLower(q.Search)) {
			continue
		}
		all = append(all, f.scored(t))
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)
	return all[start:end], total, nil
}

func (f *fakeStore) GetApprovedToolBySlug(_ context.Context, slug string) (*model.ScoredTool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	for _, t := range f.tools {
		if t.Slug == slug && t.Status == model.StatusApproved {
			s := f.scored(t)
			return &s, nil
		}
	}
	return nil, apperror.NotFound("tool", slug)
}

func (f *fakeStore) GetToolBySlug(_ context.Context, slug string) (*model.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tools {
		if t.Slug == slug {
			c := *t
			return &c, nil
		}
	}
	return nil, apperror.NotFound("tool", slug)
}

func (f *fakeStore) GetToolByID(_ context.Context, id int64) (*model.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tools[id]
	if !ok {
		return nil, apperror.NotFound("tool", strconv.FormatInt(id, 10))
	}
	c := *t
	return &c, nil
}

func (f *fakeStore) FindToolByRepoURL(_ context.Context, repoURL string) (*model.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tools {
		if t.RepoURL == repoURL {
			c := *t
			return &c, nil
		}
	}
	return nil, apperror.NotFound("tool", repoURL)
}

func (f *fakeStore) ToolExists(_ context.Context, slug, repoURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tools {
		if t.Slug == slug || t.RepoURL == repoURL {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateTool(_ context.Context, tool *model.Tool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tools {
		if t.Slug == tool.Slug {
			return apperror.Conflict("A tool with this name already exists.")
		}
	}
	tool.ID = f.nextID
	f.nextID++
	tool.CreatedAt = time.Now().UTC()
	tool.UpdatedAt = tool.CreatedAt
	c := *tool
	f.tools[tool.ID] = &c
	return nil
}

func (f *fakeStore) UpdateTool(_ context.Context, tool *model.Tool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tools[tool.ID]; !ok {
		return apperror.NotFound("tool", strconv.FormatInt(tool.ID, 10))
	}
	c := *tool
	f.tools[tool.ID] = &c
	return nil
}

func (f *fakeStore) UpdateToolGitHubStats(_ context.Context, id int64, stars, forks int, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tools[id]
	if !ok {
		return apperror.NotFound("tool", strconv.FormatInt(id, 10))
	}
	t.GitHubStars = &stars
	t.GitHubForks = &forks
	if description != "" {
		t.Description = description
	}
	return nil
}

func (f *fakeStore) SetToolStatus(_ context.Context, id int64, status model.ToolStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tools[id]
	if !ok {
		return apperror.NotFound("tool", strconv.FormatInt(id, 10))
	}
	t.Status = status
	return nil
}

func (f *fakeStore) DeleteTool(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tools[id]; !ok {
		return apperror.NotFound("tool", strconv.FormatInt(id, 10))
	}
	delete(f.tools, id)
	for _, tools := range f.votes {
		delete(tools, id)
	}
	for e := range f.edges {
		if e[0] == id || e[1] == id {
			delete(f.edges, e)
		}
	}
	return nil
}

func (f *fakeStore) ListToolsByStatus(_ context.Context, status model.ToolStatus) ([]model.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Tool{}
	for _, t := range f.tools {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListToolsBySubmitter(_ context.Context, userID string) ([]model.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Tool{}
	for _, t := range f.tools {
		if t.SubmittedByUserID != nil && *t.SubmittedByUserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- AlternativeRepository ---

func (f *fakeStore) AddAlternative(_ context.Context, originalID, alternativeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if originalID == alternativeID {
		return apperror.ValidationFailed("alternativeToToolId", "a tool cannot be an alternative to itself")
	}
	f.edges[[2]int64{originalID, alternativeID}] = true
	return nil
}

func (f *fakeStore) listEdges(toolID int64, outgoing bool) ([]model.ScoredTool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	var out []model.ScoredTool
	for e := range f.edges {
		from, to := e[0], e[1]
		if !outgoing {
			from, to = to, from
		}
		if from != toolID {
			continue
		}
		if t, ok := f.tools[to]; ok && t.Status == model.StatusApproved {
			out = append(out, f.scored(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListAlternatives(_ context.Context, toolID int64) ([]model.ScoredTool, error) {
	return f.listEdges(toolID, true)
}

func (f *fakeStore) ListAlternativeTo(_ context.Context, toolID int64) ([]model.ScoredTool, error) {
	return f.listEdges(toolID, false)
}

// --- VoteRepository ---

func (f *fakeStore) AddVote(_ context.Context, vote *model.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tools[vote.ToolID]; !ok {
		return apperror.NotFound("tool", strconv.FormatInt(vote.ToolID, 10))
	}
	if f.votes[vote.UserID] == nil {
		f.votes[vote.UserID] = make(map[int64]bool)
	}
	if f.votes[vote.UserID][vote.ToolID] {
		return apperror.Conflict("Already voted.")
	}
	f.votes[vote.UserID][vote.ToolID] = true
	return nil
}

func (f *fakeStore) RemoveVote(_ context.Context, userID string, toolID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.votes[userID], toolID)
	return nil
}

func (f *fakeStore) HasVoted(_ context.Context, userID string, toolID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasVotedCalls++
	if f.hasVotedErr != nil {
		return false, f.hasVotedErr
	}
	return f.votes[userID][toolID], nil
}

func (f *fakeStore) CountVotesByUser(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.votes[userID]), nil
}

func (f *fakeStore) CountVotesByTool(_ context.Context, toolID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voteCount(toolID), nil
}

// --- UserRepository ---

func (f *fakeStore) UpsertUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		if err := f.upsertErr(user); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	if existing, ok := f.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
		user.LastLoginAt = existing.LastLoginAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	c := *user
	f.users[user.ID] = &c
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.votes, id)
	for _, t := range f.tools {
		if t.SubmittedByUserID != nil && *t.SubmittedByUserID == id {
			t.SubmittedByUserID = nil
		}
	}
	delete(f.users, id)
	return nil
}

func (f *fakeStore) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.LastLoginAt = &at
	f.logins[id] = at
	return nil
}
