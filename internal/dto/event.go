package dto

import (
	"time"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

// EventView is the event projection returned by the API with the open/closed
// flags computed against the request time.
type EventView struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Description       string              `json:"description"`
	ClosureDate       time.Time           `json:"closure_date"`
	FinalClosureDate  time.Time           `json:"final_closure_date"`
	Faculty           models.EventFaculty `json:"faculty"`
	IsFirstClosed     bool                `json:"is_first_closed"`
	IsFinalClosed     bool                `json:"is_final_closed"`
	ContributionCount int                 `json:"contribution_count"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// NewEventView projects an event at time now.
func NewEventView(e models.Event, contributions int, now time.Time) EventView {
	return EventView{
		ID:                e.ID,
		Name:              e.Name,
		Description:       e.Description,
		ClosureDate:       e.ClosureDate,
		FinalClosureDate:  e.FinalClosureDate,
		Faculty:           e.Faculty,
		IsFirstClosed:     e.IsFirstClosed(now),
		IsFinalClosed:     e.IsFinalClosed(now),
		ContributionCount: contributions,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}
