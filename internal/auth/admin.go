package auth

import (
	"context"
	"strings"
	"sync"
)

// AdminChecker is the isAdmin(userId) capability. Moderation, tool edits and
// the admin pages ask it; nothing else decides who is an admin.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// StaticAdmins is an allow-list of user IDs taken from configuration.
// Replace swaps the list atomically when the config file changes.
type StaticAdmins struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewStaticAdmins(ids []string) *StaticAdmins {
	a := &StaticAdmins{}
	a.Replace(ids)
	return a
}

// Replace installs a new allow-list. Blank entries are ignored.
func (a *StaticAdmins) Replace(ids []string) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}

	a.mu.Lock()
	a.ids = set
	a.mu.Unlock()
}

func (a *StaticAdmins) IsAdmin(_ context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ids[userID]
	return ok, nil
}

// Count reports how many admins are configured.
func (a *StaticAdmins) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ids)
}
