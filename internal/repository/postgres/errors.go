package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
)

// SQLSTATE codes the store reacts to.
const (
	pgUniqueViolation    = "23505"
	pgQueryCanceled      = "57014"
	pgLockNotAvailable   = "55P03"
	pgTooManyConnections = "53300"
	pgAdminShutdown      = "57P01"
	pgCannotConnectNow   = "57P03"
)

// mapError converts a driver error into the workflow error vocabulary.
// AppErrors pass through untouched.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.StoreUnavailableError(op, err)
	}
	if pgconn.Timeout(err) {
		return apperrors.StoreUnavailableError(op, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return apperrors.StoreUnavailableError(op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgQueryCanceled, pgLockNotAvailable, pgTooManyConnections, pgAdminShutdown, pgCannotConnectNow:
			return apperrors.StoreUnavailableError(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
