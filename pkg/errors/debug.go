package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// pgDetail is the subset of a postgres error worth logging. The gorm pool
// surfaces pgx errors; the migration connection opened by migrate.Open
// surfaces lib/pq errors.
type pgDetail struct {
	code, constraint, table, detail string
}

func postgresDetail(err error) (pgDetail, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return pgDetail{pgxErr.Code, pgxErr.ConstraintName, pgxErr.TableName, pgxErr.Detail}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return pgDetail{string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Detail}, true
	}
	return pgDetail{}, false
}

// LogFields flattens err into logger fields: the code, every link of the
// wrap chain and postgres details when present.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}

	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	fields := map[string]any{
		"error":       err.Error(),
		"error_code":  CodeOf(err),
		"error_chain": chain,
	}
	if pg, ok := postgresDetail(err); ok {
		fields["pg_code"] = pg.code
		if pg.constraint != "" {
			fields["pg_constraint"] = pg.constraint
		}
		if pg.table != "" {
			fields["pg_table"] = pg.table
		}
		if pg.detail != "" {
			fields["pg_detail"] = pg.detail
		}
	}
	return fields
}

// IsUniqueViolation reports a postgres unique constraint failure anywhere in
// the chain.
func IsUniqueViolation(err error) bool {
	pg, ok := postgresDetail(err)
	return ok && pg.code == "23505"
}
