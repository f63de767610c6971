// Package menu implements the menu lifecycle: creation with order
// fan-out, updates with re-notification, and the two-phase delete that
// keeps listings consistent while teardown runs in the background.
package menu

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/noralunch/nora/pkg/config"
	"github.com/noralunch/nora/pkg/cutoff"
	"github.com/noralunch/nora/pkg/logger"
	"github.com/noralunch/nora/pkg/models"
	"github.com/noralunch/nora/pkg/queue"
	"github.com/noralunch/nora/pkg/storage"
)

var (
	// ErrInvalidOptions means no usable option survived cleaning
	ErrInvalidOptions = errors.New("menu needs at least one non-blank option")
	// ErrPastDate means the menu date is already over
	ErrPastDate = errors.New("you can't create menus for a past date")
	// ErrPastCutoff means today's cutoff hour has been reached
	ErrPastCutoff = errors.New("you can't create a menu for today now, it's too late")
)

// Dispatcher is the reminder workflow the lifecycle triggers
type Dispatcher interface {
	SendReminders(menuID string) error
	NotifyMenuChanged(menuID string) error
	NotifyMenuDeleted(menuID string) error
}

// Roster lists the employees that get an order on fan-out
type Roster interface {
	ListEligibleUsers() []models.EligibleUser
}

// Service provides menu lifecycle management
type Service struct {
	store      *storage.Store
	roster     Roster
	dispatcher Dispatcher
	queue      *queue.Queue
	logger     *logger.Logger
	cutoffHour int
	notifyHour int
	now        func() time.Time
}

// New creates a new menu service. notifyHour set to the immediate
// sentinel (config.NotifyImmediately) makes fan-out dispatch reminders
// right away.
func New(store *storage.Store, roster Roster, dispatcher Dispatcher, q *queue.Queue,
	cutoffHour, notifyHour int, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      store,
		roster:     roster,
		dispatcher: dispatcher,
		queue:      q,
		logger:     logger.New("menu"),
		cutoffHour: cutoffHour,
		notifyHour: notifyHour,
		now:        now,
	}
}

// CleanOptions normalizes a raw option list: non-string values are
// dropped, strings are trimmed, blanks are dropped. Order is preserved.
func CleanOptions(raw []interface{}) []string {
	options := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		options = append(options, s)
	}
	return options
}

// validate cleans the options and checks the date against the cutoff
// policy. Nothing is persisted when it fails.
func (s *Service) validate(date time.Time, raw []interface{}) ([]string, error) {
	options := CleanOptions(raw)
	if len(options) == 0 {
		return nil, ErrInvalidOptions
	}

	now := s.now()
	if cutoff.PastDay(date, now) {
		return nil, ErrPastDate
	}
	if !cutoff.CreatableDate(date, s.cutoffHour, now) {
		return nil, ErrPastCutoff
	}
	return options, nil
}

// Create validates and persists a new menu, then fans out orders for
// the roster in the background.
func (s *Service) Create(date time.Time, raw []interface{}) (*models.Menu, error) {
	options, err := s.validate(date, raw)
	if err != nil {
		return nil, err
	}

	m := &models.Menu{
		ID:      uuid.NewString(),
		Date:    date,
		Options: options,
	}
	if err := s.save(m); err != nil {
		return nil, err
	}
	s.logger.Info("Created menu %s for %s with %d options", m.ID, m.Date.Format("2006-01-02"), len(m.Options))

	menuID := m.ID
	s.queue.Enqueue("fan-out "+menuID, func() error {
		return s.FanOut(menuID)
	})
	return m, nil
}

// Update validates and persists changes to a menu. If reminders already
// went out the change-notification workflow runs instead of fan-out.
func (s *Service) Update(id string, date time.Time, raw []interface{}) (*models.Menu, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	options, err := s.validate(date, raw)
	if err != nil {
		return nil, err
	}

	m.Date = date
	m.Options = options
	if err := s.save(m); err != nil {
		return nil, err
	}
	s.logger.Info("Updated menu %s", m.ID)

	menuID := m.ID
	if m.Sent != nil {
		s.queue.Enqueue("notify-change "+menuID, func() error {
			return s.dispatcher.NotifyMenuChanged(menuID)
		})
	} else {
		s.queue.Enqueue("fan-out "+menuID, func() error {
			return s.FanOut(menuID)
		})
	}
	return m, nil
}

// Delete soft-deletes a menu and schedules teardown. The flag hides the
// menu from listings immediately; orders and the menu row itself are
// removed by the teardown task.
func (s *Service) Delete(id string) error {
	m, err := s.Get(id)
	if err != nil {
		return err
	}

	m.ToBeDeleted = true
	if err := s.save(m); err != nil {
		return err
	}
	s.logger.Info("Menu %s marked for deletion", m.ID)

	s.queue.Enqueue("teardown "+id, func() error {
		return s.dispatcher.NotifyMenuDeleted(id)
	})
	return nil
}

// Get returns a menu by id
func (s *Service) Get(id string) (*models.Menu, error) {
	var m models.Menu
	if err := s.store.Get(models.MenuKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns all menus not marked for deletion, sorted by date
func (s *Service) List() ([]*models.Menu, error) {
	keys, err := s.store.List(models.MenuPrefix)
	if err != nil {
		return nil, err
	}

	menus := make([]*models.Menu, 0, len(keys))
	for _, key := range keys {
		var m models.Menu
		if err := s.store.Get(key, &m); err != nil {
			s.logger.Error("Failed to get menu %s: %v", key, err)
			continue
		}
		if m.ToBeDeleted {
			continue
		}
		menus = append(menus, &m)
	}

	sort.Slice(menus, func(i, j int) bool { return menus[i].Date.Before(menus[j].Date) })
	return menus, nil
}

// FanOut gets-or-creates one order per roster user for the menu. It is
// keyed by (employee, menu) and safe to re-run: an employee never gets
// two orders for the same menu. With the immediate notify sentinel the
// fresh orders are dispatched right away.
func (s *Service) FanOut(menuID string) error {
	m, err := s.Get(menuID)
	if err != nil {
		return errors.Wrap(err, "fan-out")
	}

	users := s.roster.ListEligibleUsers()
	s.logger.Info("Fanning out menu %s to %d employees", menuID, len(users))

	existing, err := s.ordersByEmployee(menuID)
	if err != nil {
		return errors.Wrap(err, "fan-out")
	}

	for _, u := range users {
		if _, ok := existing[u.ID]; ok {
			continue
		}
		now := s.now()
		o := &models.Order{
			ID:           uuid.NewString(),
			EmployeeID:   u.ID,
			EmployeeName: u.DisplayName,
			MenuID:       m.ID,
			Date:         m.Date,
			Created:      now,
			Modified:     now,
		}
		if err := s.store.Set(models.OrderKey(o.ID), o); err != nil {
			s.logger.Error("Failed to create order for %s: %v", u.ID, err)
			continue
		}
	}

	if s.notifyHour == config.NotifyImmediately {
		return s.dispatcher.SendReminders(menuID)
	}
	return nil
}

// ordersByEmployee indexes the menu's existing orders by employee id
func (s *Service) ordersByEmployee(menuID string) (map[string]*models.Order, error) {
	keys, err := s.store.List(models.OrderPrefix)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]*models.Order)
	for _, key := range keys {
		var o models.Order
		if err := s.store.Get(key, &o); err != nil {
			s.logger.Error("Failed to get order %s: %v", key, err)
			continue
		}
		if o.MenuID == menuID {
			existing[o.EmployeeID] = &o
		}
	}
	return existing, nil
}

// save persists the menu and resyncs its date onto every order that
// still references it.
func (s *Service) save(m *models.Menu) error {
	if err := s.store.Set(models.MenuKey(m.ID), m); err != nil {
		return errors.Wrap(err, "failed to store menu")
	}

	keys, err := s.store.List(models.OrderPrefix)
	if err != nil {
		return errors.Wrap(err, "failed to list orders for date resync")
	}
	for _, key := range keys {
		var o models.Order
		if err := s.store.Get(key, &o); err != nil {
			s.logger.Error("Failed to get order %s: %v", key, err)
			continue
		}
		if o.MenuID != m.ID || o.Date.Equal(m.Date) {
			continue
		}
		o.Date = m.Date
		o.Modified = s.now()
		if err := s.store.Set(key, &o); err != nil {
			s.logger.Error("Failed to resync date on order %s: %v", o.ID, err)
		}
	}
	return nil
}
