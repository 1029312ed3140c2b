package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

var (
	// ErrUnknownField is returned when a filter, patch or sort names a field the collection does not expose.
	ErrUnknownField = errors.New("unknown field")
	// ErrEmptyFilter guards bulk updates against touching every row.
	ErrEmptyFilter = errors.New("bulk update requires a filter")
)

// collectionColumns maps snapshot field paths onto the flattened columns of each table.
var collectionColumns = map[models.Collection]map[string]string{
	models.CollectionFaculties: {
		models.FieldID:        "id",
		models.FieldName:      "name",
		"description":         "description",
		"banner_image_url":    "banner_image_url",
		models.FieldMCID:      "mc_id",
		models.FieldMCName:    "mc_name",
		models.FieldMCEmail:   "mc_email",
		models.FieldMCAvatar:  "mc_avatar_url",
		"created_at":          "created_at",
		models.FieldUpdatedAt: "updated_at",
		models.FieldDeletedAt: "deleted_at",
	},
	models.CollectionUsers: {
		models.FieldID:          "id",
		"email":                 "email",
		"full_name":             "full_name",
		"avatar_url":            "avatar_url",
		models.FieldRole:        "role",
		"active":                "active",
		models.FieldFacultyID:   "faculty_id",
		models.FieldFacultyName: "faculty_name",
		"last_login":            "last_login",
		"created_at":            "created_at",
		models.FieldUpdatedAt:   "updated_at",
	},
	models.CollectionEvents: {
		models.FieldID:              "id",
		models.FieldName:            "name",
		"description":               "description",
		"closure_date":              "closure_date",
		"final_closure_date":        "final_closure_date",
		models.FieldFacultyID:       "faculty_id",
		models.FieldFacultyName:     "faculty_name",
		models.FieldFacultyMCID:     "faculty_mc_id",
		models.FieldFacultyMCName:   "faculty_mc_name",
		models.FieldFacultyMCEmail:  "faculty_mc_email",
		models.FieldFacultyMCAvatar: "faculty_mc_avatar_url",
		"created_at":                "created_at",
		models.FieldUpdatedAt:       "updated_at",
		models.FieldDeletedAt:       "deleted_at",
	},
	models.CollectionContributions: {
		models.FieldID:           "id",
		"title":                  "title",
		"description":            "description",
		"status":                 "status",
		"is_public":              "is_public",
		models.FieldAuthorID:     "author_id",
		models.FieldAuthorName:   "author_name",
		models.FieldAuthorEmail:  "author_email",
		models.FieldAuthorAvatar: "author_avatar_url",
		models.FieldEventID:      "event_id",
		models.FieldEventName:    "event_name",
		models.FieldFacultyID:    "faculty_id",
		models.FieldFacultyName:  "faculty_name",
		"created_at":             "created_at",
		models.FieldUpdatedAt:    "updated_at",
		models.FieldDeletedAt:    "deleted_at",
	},
}

// queryBuilder renders typed filters, patches and sorts into PostgreSQL
// fragments with positional placeholders.
type queryBuilder struct {
	table   string
	alias   string
	columns map[string]string
	args    []interface{}
}

func newQueryBuilder(collection models.Collection) (*queryBuilder, error) {
	columns, ok := collectionColumns[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	return &queryBuilder{table: string(collection), columns: columns}, nil
}

// mustQueryBuilder is used by repositories whose collection is fixed at compile time.
func mustQueryBuilder(collection models.Collection) *queryBuilder {
	b, err := newQueryBuilder(collection)
	if err != nil {
		panic(err)
	}
	return b
}

// withAlias qualifies every column with the given table alias.
func (b *queryBuilder) withAlias(alias string) *queryBuilder {
	b.alias = alias
	return b
}

func (b *queryBuilder) bind(value interface{}) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *queryBuilder) column(field string) (string, error) {
	col, ok := b.columns[field]
	if !ok {
		return "", fmt.Errorf("%w %q on %s", ErrUnknownField, field, b.table)
	}
	if b.alias != "" {
		return b.alias + "." + col, nil
	}
	return col, nil
}

// where renders the conjunction of predicates, or "" when the filter is empty.
func (b *queryBuilder) where(filter models.Filter) (string, error) {
	parts := make([]string, 0, len(filter))
	for _, p := range filter {
		col, err := b.column(p.Field)
		if err != nil {
			return "", err
		}
		switch p.Op {
		case models.OpEq:
			parts = append(parts, col+" = "+b.bind(p.Value))
		case models.OpNe:
			parts = append(parts, col+" IS DISTINCT FROM "+b.bind(p.Value))
		case models.OpIsNull:
			parts = append(parts, col+" IS NULL")
		case models.OpNotNull:
			parts = append(parts, col+" IS NOT NULL")
		case models.OpILike:
			parts = append(parts, col+" ILIKE "+b.bind(p.Value))
		case models.OpGte:
			parts = append(parts, col+" >= "+b.bind(p.Value))
		case models.OpLte:
			parts = append(parts, col+" <= "+b.bind(p.Value))
		default:
			return "", fmt.Errorf("unsupported operator %q", p.Op)
		}
	}
	return strings.Join(parts, " AND "), nil
}

// set renders the assignment list of an UPDATE statement.
func (b *queryBuilder) set(patch models.Patch) (string, error) {
	if len(patch) == 0 {
		return "", errors.New("patch has no assignments")
	}
	parts := make([]string, 0, len(patch))
	for _, a := range patch {
		col, ok := b.columns[a.Field]
		if !ok {
			return "", fmt.Errorf("%w %q on %s", ErrUnknownField, a.Field, b.table)
		}
		if a.Value == nil {
			parts = append(parts, col+" = NULL")
			continue
		}
		parts = append(parts, col+" = "+b.bind(a.Value))
	}
	return strings.Join(parts, ", "), nil
}

// orderBy falls back to the given field when the requested one is not sortable.
func (b *queryBuilder) orderBy(sort models.Sort, fallback string) string {
	col, err := b.column(sort.Field)
	if err != nil {
		col, _ = b.column(fallback)
	}
	direction := "ASC"
	if sort.Desc {
		direction = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s", col, direction)
}

func (b *queryBuilder) limit(page models.Page) string {
	return fmt.Sprintf("LIMIT %d OFFSET %d", page.PageSize, page.Offset())
}
