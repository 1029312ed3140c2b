package dto

import (
	"time"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

// FileURL is a short lived signed link to one contribution file.
type FileURL struct {
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	MIMEType  string    `json:"mime_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusCounts breaks down a faculty's contributions by moderation state.
type StatusCounts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// FacultyContributionStats aggregates contributions for one faculty.
type FacultyContributionStats struct {
	FacultyID    string       `json:"faculty_id"`
	FacultyName  string       `json:"faculty_name"`
	Total        int          `json:"total"`
	Contributors int          `json:"contributors"`
	Share        float64      `json:"share"`
	ByStatus     StatusCounts `json:"by_status"`
}

// ContributionStats is the statistics report for marketing managers.
type ContributionStats struct {
	Total       int                        `json:"total"`
	Faculties   []FacultyContributionStats `json:"faculties"`
	GeneratedAt time.Time                  `json:"generated_at"`
}

// NewContributionStats folds per-status rows into per-faculty totals. The
// contributor count per faculty is the largest per-status distinct author count,
// which is a lower bound when one author has rows in several states.
func NewContributionStats(rows []models.ContributionStat, now time.Time) ContributionStats {
	index := map[string]int{}
	out := ContributionStats{Faculties: []FacultyContributionStats{}, GeneratedAt: now}
	for _, row := range rows {
		i, ok := index[row.FacultyID]
		if !ok {
			i = len(out.Faculties)
			index[row.FacultyID] = i
			out.Faculties = append(out.Faculties, FacultyContributionStats{FacultyID: row.FacultyID, FacultyName: row.FacultyName})
		}
		fs := &out.Faculties[i]
		fs.Total += row.Count
		if row.Contributors > fs.Contributors {
			fs.Contributors = row.Contributors
		}
		switch row.Status {
		case models.ContributionPending:
			fs.ByStatus.Pending += row.Count
		case models.ContributionApproved:
			fs.ByStatus.Approved += row.Count
		case models.ContributionRejected:
			fs.ByStatus.Rejected += row.Count
		}
		out.Total += row.Count
	}
	if out.Total > 0 {
		for i := range out.Faculties {
			out.Faculties[i].Share = float64(out.Faculties[i].Total) / float64(out.Total)
		}
	}
	return out
}
