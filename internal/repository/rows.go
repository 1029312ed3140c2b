package repository

import (
	"database/sql"
	"time"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

// Row types mirror the flattened snapshot columns; nullable snapshot columns
// collapse into nil refs when converted to models.

type facultyRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Description    string         `db:"description"`
	BannerImageURL string         `db:"banner_image_url"`
	MCID           sql.NullString `db:"mc_id"`
	MCName         sql.NullString `db:"mc_name"`
	MCEmail        sql.NullString `db:"mc_email"`
	MCAvatarURL    sql.NullString `db:"mc_avatar_url"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	DeletedAt      *time.Time     `db:"deleted_at"`
}

const facultyColumns = "id, name, description, banner_image_url, mc_id, mc_name, mc_email, mc_avatar_url, created_at, updated_at, deleted_at"

func (r facultyRow) toModel() models.Faculty {
	f := models.Faculty{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		BannerImageURL: r.BannerImageURL,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		DeletedAt:      r.DeletedAt,
	}
	if r.MCID.Valid {
		f.MC = &models.McRef{ID: r.MCID.String, Name: r.MCName.String, Email: r.MCEmail.String, AvatarURL: r.MCAvatarURL.String}
	}
	return f
}

func facultyRowOf(f *models.Faculty) facultyRow {
	row := facultyRow{
		ID:             f.ID,
		Name:           f.Name,
		Description:    f.Description,
		BannerImageURL: f.BannerImageURL,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
		DeletedAt:      f.DeletedAt,
	}
	if f.MC != nil {
		row.MCID = nullString(f.MC.ID)
		row.MCName = nullString(f.MC.Name)
		row.MCEmail = nullString(f.MC.Email)
		row.MCAvatarURL = nullString(f.MC.AvatarURL)
	}
	return row
}

type facultySummaryRow struct {
	facultyRow
	EventCount        int `db:"event_count"`
	ContributionCount int `db:"contribution_count"`
	UserCount         int `db:"user_count"`
}

type userRow struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	FullName     string         `db:"full_name"`
	AvatarURL    string         `db:"avatar_url"`
	Role         string         `db:"role"`
	Active       bool           `db:"active"`
	FacultyID    sql.NullString `db:"faculty_id"`
	FacultyName  sql.NullString `db:"faculty_name"`
	LastLogin    *time.Time     `db:"last_login"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

const userColumns = "id, email, password_hash, full_name, avatar_url, role, active, faculty_id, faculty_name, last_login, created_at, updated_at"

func (r userRow) toModel() models.User {
	u := models.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		FullName:     r.FullName,
		AvatarURL:    r.AvatarURL,
		Role:         models.UserRole(r.Role),
		Active:       r.Active,
		LastLogin:    r.LastLogin,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.FacultyID.Valid {
		u.Faculty = &models.FacultyRef{ID: r.FacultyID.String, Name: r.FacultyName.String}
	}
	return u
}

func userRowOf(u *models.User) userRow {
	row := userRow{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		FullName:     u.FullName,
		AvatarURL:    u.AvatarURL,
		Role:         string(u.Role),
		Active:       u.Active,
		LastLogin:    u.LastLogin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Faculty != nil {
		row.FacultyID = nullString(u.Faculty.ID)
		row.FacultyName = nullString(u.Faculty.Name)
	}
	return row
}

type eventRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Description        string         `db:"description"`
	ClosureDate        time.Time      `db:"closure_date"`
	FinalClosureDate   time.Time      `db:"final_closure_date"`
	FacultyID          string         `db:"faculty_id"`
	FacultyName        string         `db:"faculty_name"`
	FacultyMCID        sql.NullString `db:"faculty_mc_id"`
	FacultyMCName      sql.NullString `db:"faculty_mc_name"`
	FacultyMCEmail     sql.NullString `db:"faculty_mc_email"`
	FacultyMCAvatarURL sql.NullString `db:"faculty_mc_avatar_url"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
	DeletedAt          *time.Time     `db:"deleted_at"`
}

const eventColumns = "id, name, description, closure_date, final_closure_date, faculty_id, faculty_name, faculty_mc_id, faculty_mc_name, faculty_mc_email, faculty_mc_avatar_url, created_at, updated_at, deleted_at"

func (r eventRow) toModel() models.Event {
	e := models.Event{
		ID:               r.ID,
		Name:             r.Name,
		Description:      r.Description,
		ClosureDate:      r.ClosureDate,
		FinalClosureDate: r.FinalClosureDate,
		Faculty:          models.EventFaculty{ID: r.FacultyID, Name: r.FacultyName},
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		DeletedAt:        r.DeletedAt,
	}
	if r.FacultyMCID.Valid {
		e.Faculty.MC = &models.McRef{
			ID:        r.FacultyMCID.String,
			Name:      r.FacultyMCName.String,
			Email:     r.FacultyMCEmail.String,
			AvatarURL: r.FacultyMCAvatarURL.String,
		}
	}
	return e
}

func eventRowOf(e *models.Event) eventRow {
	row := eventRow{
		ID:               e.ID,
		Name:             e.Name,
		Description:      e.Description,
		ClosureDate:      e.ClosureDate,
		FinalClosureDate: e.FinalClosureDate,
		FacultyID:        e.Faculty.ID,
		FacultyName:      e.Faculty.Name,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
		DeletedAt:        e.DeletedAt,
	}
	if mc := e.Faculty.MC; mc != nil {
		row.FacultyMCID = nullString(mc.ID)
		row.FacultyMCName = nullString(mc.Name)
		row.FacultyMCEmail = nullString(mc.Email)
		row.FacultyMCAvatarURL = nullString(mc.AvatarURL)
	}
	return row
}

type eventCountRow struct {
	eventRow
	ContributionCount int `db:"contribution_count"`
}

type contributionRow struct {
	ID              string                   `db:"id"`
	Title           string                   `db:"title"`
	Description     string                   `db:"description"`
	Status          string                   `db:"status"`
	IsPublic        bool                     `db:"is_public"`
	AuthorID        string                   `db:"author_id"`
	AuthorName      string                   `db:"author_name"`
	AuthorEmail     string                   `db:"author_email"`
	AuthorAvatarURL string                   `db:"author_avatar_url"`
	EventID         string                   `db:"event_id"`
	EventName       string                   `db:"event_name"`
	FacultyID       string                   `db:"faculty_id"`
	FacultyName     string                   `db:"faculty_name"`
	Files           models.ContributionFiles `db:"files"`
	Comment         string                   `db:"comment"`
	CreatedAt       time.Time                `db:"created_at"`
	UpdatedAt       time.Time                `db:"updated_at"`
	DeletedAt       *time.Time               `db:"deleted_at"`
}

const contributionColumns = "id, title, description, status, is_public, author_id, author_name, author_email, author_avatar_url, event_id, event_name, faculty_id, faculty_name, files, comment, created_at, updated_at, deleted_at"

func (r contributionRow) toModel() models.Contribution {
	files := r.Files
	if files == nil {
		files = models.ContributionFiles{}
	}
	return models.Contribution{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Status:      models.ContributionStatus(r.Status),
		IsPublic:    r.IsPublic,
		Author:      models.AuthorRef{ID: r.AuthorID, Name: r.AuthorName, Email: r.AuthorEmail, AvatarURL: r.AuthorAvatarURL},
		Event:       models.EventRef{ID: r.EventID, Name: r.EventName},
		Faculty:     models.FacultyRef{ID: r.FacultyID, Name: r.FacultyName},
		Files:       files,
		Comment:     r.Comment,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		DeletedAt:   r.DeletedAt,
	}
}

func contributionRowOf(c *models.Contribution) contributionRow {
	return contributionRow{
		ID:              c.ID,
		Title:           c.Title,
		Description:     c.Description,
		Status:          string(c.Status),
		IsPublic:        c.IsPublic,
		AuthorID:        c.Author.ID,
		AuthorName:      c.Author.Name,
		AuthorEmail:     c.Author.Email,
		AuthorAvatarURL: c.Author.AvatarURL,
		EventID:         c.Event.ID,
		EventName:       c.Event.Name,
		FacultyID:       c.Faculty.ID,
		FacultyName:     c.Faculty.Name,
		Files:           c.Files,
		Comment:         c.Comment,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		DeletedAt:       c.DeletedAt,
	}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}
