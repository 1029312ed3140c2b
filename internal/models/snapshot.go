package models

// Snapshots are denormalized copies of another entity's identifying fields.
// They are captured when the referencing row is written and only change when
// the faculty cascade or a profile update refreshes them.

// FacultyRef is the faculty snapshot stored on users and contributions.
type FacultyRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// McRef is the marketing coordinator snapshot stored on faculties and events.
type McRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Equal reports whether both snapshots carry the same values. Two nil refs are equal.
func (m *McRef) Equal(other *McRef) bool {
	if m == nil || other == nil {
		return m == nil && other == nil
	}
	return *m == *other
}

// Clone returns an independent copy.
func (m *McRef) Clone() *McRef {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// EventFaculty is the faculty snapshot stored on events; it carries the MC as well.
type EventFaculty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	MC   *McRef `json:"mc"`
}

// EventRef is the event snapshot stored on contributions.
type EventRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuthorRef is the author snapshot stored on contributions.
type AuthorRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// McRefFromUser captures the coordinator snapshot of a user.
func McRefFromUser(u *User) *McRef {
	if u == nil {
		return nil
	}
	return &McRef{ID: u.ID, Name: u.FullName, Email: u.Email, AvatarURL: u.AvatarURL}
}

// AuthorRefFromUser captures the author snapshot of a user.
func AuthorRefFromUser(u *User) AuthorRef {
	return AuthorRef{ID: u.ID, Name: u.FullName, Email: u.Email, AvatarURL: u.AvatarURL}
}

// FacultyRefOf captures the {id, name} snapshot of a faculty.
func FacultyRefOf(f *Faculty) *FacultyRef {
	if f == nil {
		return nil
	}
	return &FacultyRef{ID: f.ID, Name: f.Name}
}

// EventFacultyOf captures the faculty snapshot copied onto events.
func EventFacultyOf(f *Faculty) EventFaculty {
	return EventFaculty{ID: f.ID, Name: f.Name, MC: f.MC.Clone()}
}
