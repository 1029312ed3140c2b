package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/uni-contrib-api/internal/models"
)

// ErrUnavailable marks failures where the database could not be reached at all.
var ErrUnavailable = errors.New("persistence unavailable")

// DocumentStore performs filtered bulk updates over the snapshot-bearing tables.
type DocumentStore struct {
	db *sqlx.DB
}

// NewDocumentStore creates a DocumentStore.
func NewDocumentStore(db *sqlx.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// UpdateOne patches the first row matching filter and returns the number of rows written.
func (s *DocumentStore) UpdateOne(ctx context.Context, collection models.Collection, filter models.Filter, patch models.Patch) (int64, error) {
	return s.update(ctx, collection, filter, patch, true)
}

// UpdateMany patches every row matching filter and returns the number of rows written.
func (s *DocumentStore) UpdateMany(ctx context.Context, collection models.Collection, filter models.Filter, patch models.Patch) (int64, error) {
	return s.update(ctx, collection, filter, patch, false)
}

// Count returns the number of rows matching filter.
func (s *DocumentStore) Count(ctx context.Context, collection models.Collection, filter models.Filter) (int64, error) {
	b, err := newQueryBuilder(collection)
	if err != nil {
		return 0, err
	}
	where, err := b.where(filter)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", b.table)
	if where != "" {
		query += " WHERE " + where
	}
	var total int64
	if err := s.db.GetContext(ctx, &total, query, b.args...); err != nil {
		return 0, classify(fmt.Errorf("count %s: %w", collection, err))
	}
	return total, nil
}

func (s *DocumentStore) update(ctx context.Context, collection models.Collection, filter models.Filter, patch models.Patch, single bool) (int64, error) {
	if len(filter) == 0 {
		return 0, ErrEmptyFilter
	}
	b, err := newQueryBuilder(collection)
	if err != nil {
		return 0, err
	}
	set, err := b.set(patch)
	if err != nil {
		return 0, err
	}
	if !patch.Touches(models.FieldUpdatedAt) {
		set += ", updated_at = " + b.bind(time.Now().UTC())
	}
	where, err := b.where(filter)
	if err != nil {
		return 0, err
	}

	var query string
	if single {
		query = fmt.Sprintf("UPDATE %[1]s SET %[2]s WHERE id = (SELECT id FROM %[1]s WHERE %[3]s LIMIT 1)", b.table, set, where)
	} else {
		query = fmt.Sprintf("UPDATE %s SET %s WHERE %s", b.table, set, where)
	}

	res, err := s.db.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, classify(fmt.Errorf("update %s: %w", collection, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(fmt.Errorf("update %s rows affected: %w", collection, err))
	}
	return n, nil
}

// classify wraps connection-level failures with ErrUnavailable so callers can
// tell them apart from statement errors.
func classify(err error) error {
	if err == nil || !isConnectionError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || code == "57P01" || code == "57P02" || code == "57P03"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
