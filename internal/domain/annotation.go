package domain

import "time"

// Addendum is an immutable note bound to one field of a completed Step.
type Addendum struct {
	ID        string    `json:"id"`
	StepID    string    `json:"step_id"`
	FieldKey  string    `json:"field_key"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	// Seq breaks CreatedAt ties so listing order equals insertion order.
	Seq int64 `json:"-"`
}

// DelegationStatus is the lifecycle of a Delegation.
type DelegationStatus string

const (
	DelegationPending    DelegationStatus = "pending"
	DelegationInProgress DelegationStatus = "in_progress"
	DelegationCompleted  DelegationStatus = "completed"
	DelegationDeclined   DelegationStatus = "declined"
)

// Valid reports whether s is a known delegation status.
func (s DelegationStatus) Valid() bool {
	switch s {
	case DelegationPending, DelegationInProgress, DelegationCompleted, DelegationDeclined:
		return true
	}
	return false
}

// Delegation is advisory routing of action-ownership for one or more Steps.
// It never changes a Step's responsible party and never gates transitions.
type Delegation struct {
	ID          string           `json:"id"`
	OrderID     string           `json:"order_id"`
	DelegatorID string           `json:"delegator_id"`
	DelegateID  string           `json:"delegate_id"`
	StepIDs     []string         `json:"step_ids"`
	Description string           `json:"description"`
	Notes       string           `json:"notes,omitempty"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	Status      DelegationStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// DelegationPatch is a partial delegation update.
type DelegationPatch struct {
	Status *DelegationStatus
	Notes  *string
}
