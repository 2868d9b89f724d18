package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
	"github.com/smallbiznis/scholara/internal/invoicearchive/domain"
	"github.com/smallbiznis/scholara/internal/invoicearchive/partition"
	dbutil "github.com/smallbiznis/scholara/pkg/db"
	"gorm.io/gorm"
)

const (
	livePartitionRegex = `^invoices_[0-9]{4}_q[1-4]$`
	anyPartitionRegex  = `^invoices(_archive)?_[0-9]{4}_q[1-4]$`
	rangeLayout        = "2006-01-02 15:04:05"
)

var columnPattern = regexp.MustCompile(`^[a-z][a-z_]*$`)

// PostgresCatalog drives invoice partitions with postgres declarative
// partitioning. Identifiers are validated and quoted before interpolation.
type PostgresCatalog struct {
	db        *gorm.DB
	supported bool
}

func NewCatalog(db *gorm.DB) domain.Catalog {
	supported := db != nil && db.Dialector != nil && db.Dialector.Name() == "postgres"
	return &PostgresCatalog{db: db, supported: supported}
}

func (c *PostgresCatalog) ListPartitions(ctx context.Context) ([]string, error) {
	if !c.supported {
		return nil, domain.ErrUnsupportedStore
	}
	var names []string
	err := c.db.WithContext(ctx).Raw(
		`SELECT tablename
		 FROM pg_tables
		 WHERE schemaname = current_schema() AND tablename ~ ?`,
		livePartitionRegex,
	).Scan(&names).Error
	return names, err
}

func (c *PostgresCatalog) PartitionExists(ctx context.Context, name string) (bool, error) {
	if !c.supported {
		return false, domain.ErrUnsupportedStore
	}
	if err := partition.ValidateIdentifier(name); err != nil {
		return false, err
	}
	var exists bool
	err := c.db.WithContext(ctx).Raw(
		`SELECT EXISTS (
			SELECT 1 FROM pg_tables
			WHERE schemaname = current_schema() AND tablename = ?
		)`,
		name,
	).Scan(&exists).Error
	return exists, err
}

func (c *PostgresCatalog) CreatePartition(ctx context.Context, spec domain.PartitionSpec) error {
	if !c.supported {
		return domain.ErrUnsupportedStore
	}
	if err := validateAll(spec.Name, spec.Parent); err != nil {
		return err
	}
	for _, idx := range spec.Indexes {
		if err := partition.ValidateIdentifier(idx.Name); err != nil {
			return err
		}
		if err := validateColumns(idx.Columns); err != nil {
			return err
		}
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		create := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')`,
			pq.QuoteIdentifier(spec.Name),
			pq.QuoteIdentifier(spec.Parent),
			spec.RangeStart.UTC().Format(rangeLayout),
			spec.RangeEnd.UTC().Format(rangeLayout),
		)
		if err := tx.Exec(create).Error; err != nil {
			return err
		}
		for _, idx := range spec.Indexes {
			stmt := fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`,
				pq.QuoteIdentifier(idx.Name),
				pq.QuoteIdentifier(spec.Name),
				quoteColumns(idx.Columns),
			)
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *PostgresCatalog) CountRows(ctx context.Context, name string) (int64, error) {
	if !c.supported {
		return 0, domain.ErrUnsupportedStore
	}
	if err := partition.ValidateIdentifier(name); err != nil {
		return 0, err
	}
	var count int64
	err := c.db.WithContext(ctx).Raw(
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pq.QuoteIdentifier(name)),
	).Scan(&count).Error
	if dbutil.IsUndefinedTable(err) {
		return 0, fmt.Errorf("%w: %s", domain.ErrPartitionNotFound, name)
	}
	return count, err
}

func (c *PostgresCatalog) RelationSize(ctx context.Context, name string) (string, error) {
	if !c.supported {
		return "", domain.ErrUnsupportedStore
	}
	if err := partition.ValidateIdentifier(name); err != nil {
		return "", err
	}
	var size string
	err := c.db.WithContext(ctx).Raw(
		`SELECT pg_size_pretty(pg_total_relation_size(to_regclass(?)))`,
		name,
	).Scan(&size).Error
	return size, err
}

func (c *PostgresCatalog) TotalSize(ctx context.Context) (string, error) {
	if !c.supported {
		return "", domain.ErrUnsupportedStore
	}
	var size string
	err := c.db.WithContext(ctx).Raw(
		`SELECT pg_size_pretty(COALESCE(SUM(pg_total_relation_size(to_regclass(quote_ident(tablename)))), 0)::bigint)
		 FROM pg_tables
		 WHERE schemaname = current_schema() AND tablename ~ ?`,
		anyPartitionRegex,
	).Scan(&size).Error
	return size, err
}

func (c *PostgresCatalog) EnsureArchiveTable(ctx context.Context, live, archive string) error {
	if !c.supported {
		return domain.ErrUnsupportedStore
	}
	if err := validateAll(live, archive); err != nil {
		return err
	}
	return c.db.WithContext(ctx).Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING DEFAULTS INCLUDING CONSTRAINTS)`,
		pq.QuoteIdentifier(archive),
		pq.QuoteIdentifier(live),
	)).Error
}

func (c *PostgresCatalog) MoveSettledRows(ctx context.Context, live, archive string, keep []domain.InvoiceStatus, batchSize int) (int64, error) {
	if !c.supported {
		return 0, domain.ErrUnsupportedStore
	}
	if err := validateAll(live, archive); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		return 0, domain.ErrInvalidPolicy
	}
	statuses := make([]string, 0, len(keep))
	for _, status := range keep {
		statuses = append(statuses, string(status))
	}

	liveIdent := pq.QuoteIdentifier(live)
	result := c.db.WithContext(ctx).Exec(fmt.Sprintf(
		`WITH moved AS (
			DELETE FROM %s
			WHERE ctid IN (
				SELECT ctid FROM %s
				WHERE status <> ALL(?)
				LIMIT ?
			)
			RETURNING *
		)
		INSERT INTO %s SELECT * FROM moved`,
		liveIdent,
		liveIdent,
		pq.QuoteIdentifier(archive),
	), pq.Array(statuses), batchSize)
	return result.RowsAffected, result.Error
}

func (c *PostgresCatalog) IsCompressed(ctx context.Context, name string, columns []string) (bool, error) {
	if !c.supported {
		return false, domain.ErrUnsupportedStore
	}
	if err := partition.ValidateIdentifier(name); err != nil {
		return false, err
	}
	if err := validateColumns(columns); err != nil {
		return false, err
	}
	var compressed int64
	err := c.db.WithContext(ctx).Raw(
		`SELECT COUNT(*)
		 FROM pg_attribute
		 WHERE attrelid = to_regclass(?) AND attname = ANY(?) AND attcompression = 'l'`,
		name,
		pq.Array(columns),
	).Scan(&compressed).Error
	if err != nil {
		return false, err
	}
	return compressed == int64(len(columns)), nil
}

// Compress sets lz4 compression on the given columns and rewrites the table.
// VACUUM FULL holds an ACCESS EXCLUSIVE lock for its whole duration.
func (c *PostgresCatalog) Compress(ctx context.Context, name string, columns []string) error {
	if !c.supported {
		return domain.ErrUnsupportedStore
	}
	if err := partition.ValidateIdentifier(name); err != nil {
		return err
	}
	if err := validateColumns(columns); err != nil {
		return err
	}
	ident := pq.QuoteIdentifier(name)
	for _, column := range columns {
		stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET COMPRESSION lz4`, ident, pq.QuoteIdentifier(column))
		if err := c.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return err
		}
	}
	return c.db.WithContext(ctx).Exec(fmt.Sprintf(`VACUUM FULL %s`, ident)).Error
}

func (c *PostgresCatalog) Drop(ctx context.Context, names ...string) error {
	if !c.supported {
		return domain.ErrUnsupportedStore
	}
	if len(names) == 0 {
		return nil
	}
	if err := validateAll(names...); err != nil {
		return err
	}
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, pq.QuoteIdentifier(name))
	}
	return c.db.WithContext(ctx).Exec(
		fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, strings.Join(quoted, ", ")),
	).Error
}

func validateAll(names ...string) error {
	for _, name := range names {
		if err := partition.ValidateIdentifier(name); err != nil {
			return err
		}
	}
	return nil
}

func validateColumns(columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: empty column list", domain.ErrInvalidIdentifier)
	}
	for _, column := range columns {
		if !columnPattern.MatchString(column) {
			return fmt.Errorf("%w: column %q", domain.ErrInvalidIdentifier, column)
		}
	}
	return nil
}

func quoteColumns(columns []string) string {
	quoted := make([]string, 0, len(columns))
	for _, column := range columns {
		quoted = append(quoted, pq.QuoteIdentifier(column))
	}
	return strings.Join(quoted, ", ")
}
