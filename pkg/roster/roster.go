// Package roster keeps the registry of employees eligible for a daily
// menu. Telegram exposes no workspace directory, so employees register
// themselves the first time they talk to the bot.
package roster

import (
	"sort"
	"time"

	"github.com/noralunch/nora/pkg/logger"
	"github.com/noralunch/nora/pkg/models"
	"github.com/noralunch/nora/pkg/storage"
)

// Registry provides roster management functionality
type Registry struct {
	store      *storage.Store
	logger     *logger.Logger
	onlyLocals bool
	locale     string
}

// New creates a new roster registry. When onlyLocals is set, listing
// filters out users whose locale differs from the given one.
func New(store *storage.Store, onlyLocals bool, locale string) *Registry {
	return &Registry{
		store:      store,
		logger:     logger.New("roster"),
		onlyLocals: onlyLocals,
		locale:     locale,
	}
}

// Register adds or refreshes a roster entry
func (r *Registry) Register(u models.EligibleUser) error {
	if u.Registered.IsZero() {
		u.Registered = time.Now()
	}
	return r.store.Set(models.EmployeeKey(u.ID), u)
}

// ListEligibleUsers returns all registered employees, excluding bots
// and, when the locals-only option is set, users with a different
// locale. Failures are logged and yield an empty list, never an error:
// fan-out then simply creates no orders.
func (r *Registry) ListEligibleUsers() []models.EligibleUser {
	keys, err := r.store.List(models.EmployeePrefix)
	if err != nil {
		r.logger.Error("Failed to list roster entries: %v", err)
		return nil
	}

	users := make([]models.EligibleUser, 0, len(keys))
	for _, key := range keys {
		var u models.EligibleUser
		if err := r.store.Get(key, &u); err != nil {
			r.logger.Error("Failed to get roster entry %s: %v", key, err)
			continue
		}
		if u.Bot {
			continue
		}
		if r.onlyLocals && u.Locale != r.locale {
			continue
		}
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
