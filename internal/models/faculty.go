package models

import "time"

// Faculty is an organisational unit owning events, students and a marketing coordinator.
type Faculty struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	BannerImageURL string     `json:"banner_image_url"`
	MC             *McRef     `json:"mc"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Clone returns a deep copy so previous/next states never share snapshot pointers.
func (f *Faculty) Clone() *Faculty {
	if f == nil {
		return nil
	}
	c := *f
	c.MC = f.MC.Clone()
	if f.DeletedAt != nil {
		d := *f.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

// IsDeleted reports whether the faculty has been soft-deleted.
func (f *Faculty) IsDeleted() bool {
	return f != nil && f.DeletedAt != nil
}

// FacultySummary adds computed counts to a faculty for list responses.
type FacultySummary struct {
	Faculty
	EventCount        int `json:"event_count"`
	ContributionCount int `json:"contribution_count"`
	UserCount         int `json:"user_count"`
}

// FacultyFilter defines listing criteria; soft-deleted faculties are never returned.
type FacultyFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
