// Package entitystore applies record updates to the CRM entity tables.
// Updates are upserts keyed by email, writing only allow-listed columns.
package entitystore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/tamnbq/bulkops-be/internal/domain"
	"github.com/tamnbq/bulkops-be/shared/postgresql"
)

// Store upserts records into entity tables.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store on top of a shared PostgreSQL client.
func NewStore(pg *postgresql.Client, logger *slog.Logger) *Store {
	return &Store{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// Upsert inserts the record if its email is absent, otherwise updates just
// the given fields and leaves every other column untouched. fields must
// already be allow-list filtered; identifiers come from that fixed table and
// values are always bind parameters.
func (s *Store) Upsert(ctx context.Context, entityType string, record domain.Record, fields []domain.EntityField) error {
	query, args, err := buildUpsert(entityType, record, fields)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %s record: %w", entityType, err)
	}

	s.logger.Debug("Record upserted",
		slog.String("entity_type", entityType),
		slog.String("email", record.Email()),
		slog.Int("fields", len(fields)),
	)
	return nil
}

func buildUpsert(entityType string, record domain.Record, fields []domain.EntityField) (string, []interface{}, error) {
	if !domain.IsEntityType(entityType) {
		return "", nil, domain.Permanent(fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, entityType))
	}

	email := record.Email()
	if email == "" {
		return "", nil, domain.Permanent(domain.ErrMissingEmail)
	}

	columns := []string{"email"}
	args := []interface{}{email}
	var setClauses []string

	for _, f := range fields {
		if f.Column == "email" {
			continue
		}
		columns = append(columns, f.Column)
		args = append(args, record[f.Name])
		setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", f.Column, f.Column))
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	conflict := "DO NOTHING"
	if len(setClauses) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(setClauses, ", ")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (email) %s",
		entityType,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		conflict,
	)
	return query, args, nil
}
