package models

import "time"

// Event is a faculty-run submission window with two deadlines: new
// contributions close at ClosureDate, edits close at FinalClosureDate.
type Event struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	ClosureDate      time.Time    `json:"closure_date"`
	FinalClosureDate time.Time    `json:"final_closure_date"`
	Faculty          EventFaculty `json:"faculty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	DeletedAt        *time.Time   `json:"deleted_at,omitempty"`
}

// IsFirstClosed reports whether new submissions are no longer accepted at now.
func (e *Event) IsFirstClosed(now time.Time) bool {
	return !now.Before(e.ClosureDate)
}

// IsFinalClosed reports whether contributions can no longer be edited at now.
func (e *Event) IsFinalClosed(now time.Time) bool {
	return !now.Before(e.FinalClosureDate)
}

// EventWithCount pairs an event with its live contribution count.
type EventWithCount struct {
	Event
	ContributionCount int
}

// EventFilter defines listing criteria; soft-deleted events are excluded.
type EventFilter struct {
	Search      string
	FacultyID   string
	ClosureFrom *time.Time
	ClosureTo   *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
