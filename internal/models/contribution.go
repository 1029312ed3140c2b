package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ContributionStatus is the moderation state of a contribution.
type ContributionStatus string

const (
	ContributionPending  ContributionStatus = "PENDING"
	ContributionApproved ContributionStatus = "APPROVED"
	ContributionRejected ContributionStatus = "REJECTED"
)

// ContributionFile describes one stored upload.
type ContributionFile struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	MIMEType      string `json:"mime_type"`
	Size          int64  `json:"size"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
}

// ContributionFiles is persisted as a jsonb array.
type ContributionFiles []ContributionFile

// Value implements driver.Valuer.
func (f ContributionFiles) Value() (driver.Value, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f)
}

// Scan implements sql.Scanner.
func (f *ContributionFiles) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*f = ContributionFiles{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported files type %T", src)
	}
	return json.Unmarshal(raw, f)
}

// Contribution is a student submission to an event.
type Contribution struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      ContributionStatus `json:"status"`
	IsPublic    bool               `json:"is_public"`
	Author      AuthorRef          `json:"author"`
	Event       EventRef           `json:"event"`
	Faculty     FacultyRef         `json:"faculty"`
	Files       ContributionFiles  `json:"files"`
	Comment     string             `json:"comment"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	DeletedAt   *time.Time         `json:"deleted_at,omitempty"`
}

// ContributionFilter defines listing criteria. VisibleToAuthorID widens an
// IsPublic=true filter so the author also sees their own private rows.
type ContributionFilter struct {
	EventID           string
	FacultyID         string
	AuthorID          string
	Status            *ContributionStatus
	IsPublic          *bool
	VisibleToAuthorID string
	Search            string
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

// ContributionStat is one aggregated row of contribution statistics.
type ContributionStat struct {
	FacultyID    string             `db:"faculty_id" json:"faculty_id"`
	FacultyName  string             `db:"faculty_name" json:"faculty_name"`
	Status       ContributionStatus `db:"status" json:"status"`
	Count        int                `db:"total" json:"count"`
	Contributors int                `db:"contributors" json:"contributors"`
}

// ContributionStatsFilter narrows statistics to one event or faculty.
type ContributionStatsFilter struct {
	EventID   string
	FacultyID string
}
