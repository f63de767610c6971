package models

import (
	"fmt"
	"time"
)

// Storage key prefixes. Entities are stored as JSON under these keys.
const (
	MenuPrefix     = "menu:"
	OrderPrefix    = "order:"
	EmployeePrefix = "employee:"
	IdentityKey    = "identity"
)

// MenuKey returns the storage key for a menu
func MenuKey(id string) string { return MenuPrefix + id }

// OrderKey returns the storage key for an order
func OrderKey(id string) string { return OrderPrefix + id }

// EmployeeKey returns the storage key for a roster entry
func EmployeeKey(id string) string { return EmployeePrefix + id }

// Menu represents a list of meal options for a defined date
type Menu struct {
	ID      string     `json:"id"`
	Date    time.Time  `json:"date"`
	Options []string   `json:"options"`
	Sent    *time.Time `json:"sent,omitempty"`

	// ToBeDeleted marks a menu whose teardown is in flight. Listings
	// filter these out; the row disappears once teardown completes.
	ToBeDeleted bool `json:"to_be_deleted"`
}

// HasOption reports whether opt is one of the menu's current options
func (m *Menu) HasOption(opt string) bool {
	for _, o := range m.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// OrderState is the derived state of an order. It is computed from the
// sent/selected/fulfilled fields and never persisted.
type OrderState string

const (
	// StateDraft means the reminder has not been dispatched yet.
	// Draft orders are excluded from all listings.
	StateDraft OrderState = "draft"
	// StatePending means the reminder went out but no selection was made
	StatePending OrderState = "pending"
	// StateActive means the employee made a selection
	StateActive OrderState = "active"
	// StateReady means the order was fulfilled
	StateReady OrderState = "ready"
)

// Order represents the relationship between an employee and a
// particular menu. It also tracks the outbound message sent to the
// employee so it can be updated or deleted later.
type Order struct {
	ID           string `json:"id"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`

	// EmployeeChannel is the chat the reminder was delivered to.
	// Empty until the first successful send.
	EmployeeChannel string `json:"employee_channel,omitempty"`

	// MenuID is a weak reference: it is cleared when the menu is torn
	// down, while Date survives as a copied snapshot.
	MenuID string    `json:"menu_id,omitempty"`
	Date   time.Time `json:"date"`

	Selected string `json:"selected,omitempty"`
	Notes    string `json:"notes,omitempty"`

	Created   time.Time  `json:"created"`
	Modified  time.Time  `json:"modified"`
	Sent      *time.Time `json:"sent,omitempty"`
	Fulfilled *time.Time `json:"fulfilled,omitempty"`

	// MessageHandle identifies the outbound message for later update or
	// delete. Empty when the send failed or reminder mode was used.
	MessageHandle string `json:"message_handle,omitempty"`
}

// State returns the derived state of the order
func (o *Order) State() OrderState {
	switch {
	case o.Sent == nil:
		return StateDraft
	case o.Fulfilled != nil:
		return StateReady
	case o.Selected != "":
		return StateActive
	default:
		return StatePending
	}
}

// IsSent reports whether the reminder for this order was dispatched
func (o *Order) IsSent() bool { return o.Sent != nil }

// IsPending reports whether the order is sent with no selection and not fulfilled
func (o *Order) IsPending() bool { return o.State() == StatePending }

// IsActive reports whether the order is sent with a selection and not fulfilled
func (o *Order) IsActive() bool { return o.State() == StateActive }

// IsReady reports whether the order is sent and fulfilled
func (o *Order) IsReady() bool { return o.State() == StateReady }

// EligibleUser is a roster entry for an employee that can receive a
// daily menu.
type EligibleUser struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Locale      string    `json:"locale,omitempty"`
	Bot         bool      `json:"bot,omitempty"`
	Registered  time.Time `json:"registered"`
}

// Identity is the singleton credential record for the account that
// installed the bot. There is at most one; re-authorization overwrites
// it in place.
type Identity struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	AccessToken string `json:"access_token"`
}

// IsZero reports whether no identity has been recorded yet
func (i Identity) IsZero() bool {
	return i.UserID == "" && i.WorkspaceID == "" && i.AccessToken == ""
}

// String implements fmt.Stringer with the token redacted
func (i Identity) String() string {
	return fmt.Sprintf("Identity{user=%s workspace=%s}", i.UserID, i.WorkspaceID)
}
