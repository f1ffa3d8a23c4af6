package domain

import (
	"fmt"
	"time"
)

// ActionItemStatus represents the lifecycle state of an action item
type ActionItemStatus string

const (
	ActionItemStatusPending   ActionItemStatus = "pending"
	ActionItemStatusSurfaced  ActionItemStatus = "surfaced"
	ActionItemStatusCompleted ActionItemStatus = "completed"
)

// ActionItem is an obligation phrase detected in a meeting transcript.
type ActionItem struct {
	ID          string
	SeriesID    string
	SourceID    string
	Text        string
	PatternName string
	Assignee    string
	Status      ActionItemStatus
	CreatedAt   time.Time
	SurfacedAt  *time.Time
	CompletedAt *time.Time
}

// ParseActionItemStatus converts a raw string into an ActionItemStatus.
func ParseActionItemStatus(s string) (ActionItemStatus, error) {
	switch ActionItemStatus(s) {
	case ActionItemStatusPending, ActionItemStatusSurfaced, ActionItemStatusCompleted:
		return ActionItemStatus(s), nil
	default:
		return "", NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidStatus.Message, fmt.Errorf("unknown status %q", s))
	}
}

// Surface moves a pending item to surfaced. Already surfaced or completed
// items are left untouched.
func (a *ActionItem) Surface(now time.Time) bool {
	if a.Status != ActionItemStatusPending {
		return false
	}
	a.Status = ActionItemStatusSurfaced
	a.SurfacedAt = &now
	return true
}

// Complete marks a pending or surfaced item as completed.
func (a *ActionItem) Complete(now time.Time) error {
	if a.Status == ActionItemStatusCompleted {
		return ErrInvalidTransition
	}
	a.Status = ActionItemStatusCompleted
	a.CompletedAt = &now
	return nil
}

// ValidateActionItem validates an ActionItem instance
func ValidateActionItem(a *ActionItem) error {
	if a == nil {
		return fmt.Errorf("action item cannot be nil")
	}
	if a.ID == "" {
		return fmt.Errorf("action item ID is required")
	}
	if a.Text == "" {
		return fmt.Errorf("action item text is required")
	}
	if _, err := ParseActionItemStatus(string(a.Status)); err != nil {
		return err
	}
	return nil
}
