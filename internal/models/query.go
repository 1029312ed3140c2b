package models

// Collection names a persisted document set addressable by the query builder.
type Collection string

const (
	CollectionFaculties     Collection = "faculties"
	CollectionUsers         Collection = "users"
	CollectionEvents        Collection = "events"
	CollectionContributions Collection = "contributions"
)

// Field paths use the snapshot notation ("faculty.id", "faculty.mc.email") and
// are resolved to columns per collection by the repository layer.
const (
	FieldID              = "id"
	FieldName            = "name"
	FieldRole            = "role"
	FieldDeletedAt       = "deleted_at"
	FieldFacultyID       = "faculty.id"
	FieldFacultyName     = "faculty.name"
	FieldFacultyMCID     = "faculty.mc.id"
	FieldFacultyMCName   = "faculty.mc.name"
	FieldFacultyMCEmail  = "faculty.mc.email"
	FieldFacultyMCAvatar = "faculty.mc.avatar_url"
	FieldMCID            = "mc.id"
	FieldMCName          = "mc.name"
	FieldMCEmail         = "mc.email"
	FieldMCAvatar        = "mc.avatar_url"
	FieldEventID         = "event.id"
	FieldEventName       = "event.name"
	FieldAuthorID        = "author.id"
	FieldAuthorName      = "author.name"
	FieldAuthorEmail     = "author.email"
	FieldAuthorAvatar    = "author.avatar_url"
	FieldUpdatedAt       = "updated_at"
)

// Operator is a comparison applied by a Predicate.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNe      Operator = "ne"
	OpIsNull  Operator = "is_null"
	OpNotNull Operator = "not_null"
	OpILike   Operator = "ilike"
	OpGte     Operator = "gte"
	OpLte     Operator = "lte"
)

// Predicate compares one field with a value. Value is ignored by the null operators.
type Predicate struct {
	Field string
	Op    Operator
	Value interface{}
}

// Filter is a conjunction of predicates.
type Filter []Predicate

// Eq appends an equality predicate.
func (f Filter) Eq(field string, value interface{}) Filter {
	return append(f, Predicate{Field: field, Op: OpEq, Value: value})
}

// Ne appends an inequality predicate.
func (f Filter) Ne(field string, value interface{}) Filter {
	return append(f, Predicate{Field: field, Op: OpNe, Value: value})
}

// IsNull appends a null check.
func (f Filter) IsNull(field string) Filter {
	return append(f, Predicate{Field: field, Op: OpIsNull})
}

// NotNull appends a not-null check.
func (f Filter) NotNull(field string) Filter {
	return append(f, Predicate{Field: field, Op: OpNotNull})
}

// ILike appends a case-insensitive substring match.
func (f Filter) ILike(field, term string) Filter {
	return append(f, Predicate{Field: field, Op: OpILike, Value: "%" + term + "%"})
}

// Gte appends a lower bound.
func (f Filter) Gte(field string, value interface{}) Filter {
	return append(f, Predicate{Field: field, Op: OpGte, Value: value})
}

// Lte appends an upper bound.
func (f Filter) Lte(field string, value interface{}) Filter {
	return append(f, Predicate{Field: field, Op: OpLte, Value: value})
}

// Assignment sets one field. A nil Value writes NULL.
type Assignment struct {
	Field string
	Value interface{}
}

// Patch is an ordered list of field assignments.
type Patch []Assignment

// Set appends an assignment.
func (p Patch) Set(field string, value interface{}) Patch {
	return append(p, Assignment{Field: field, Value: value})
}

// SetNull appends an assignment writing NULL.
func (p Patch) SetNull(field string) Patch {
	return append(p, Assignment{Field: field, Value: nil})
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is a 1-based pagination window.
type Page struct {
	Page     int
	PageSize int
}

// NewPage clamps page and size to sane bounds.
func NewPage(page, size int) Page {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Page: page, PageSize: size}
}

// Offset returns the row offset of the window.
func (p Page) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Sort orders results by a field.
type Sort struct {
	Field string
	Desc  bool
}

// NewSort builds a Sort from the conventional sort_by/sort_order query params.
func NewSort(field, order, fallback string) Sort {
	if field == "" {
		field = fallback
	}
	return Sort{Field: field, Desc: order == "desc" || order == "DESC"}
}

// Touches reports whether the patch assigns field.
func (p Patch) Touches(field string) bool {
	for _, a := range p {
		if a.Field == field {
			return true
		}
	}
	return false
}
