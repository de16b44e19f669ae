package postgres

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dosevalidator/dpd-enricher/internal/catalog"
)

// SQLSTATE classes that no retry can fix: data exceptions, integrity
// violations and syntax/access errors.
var permanentClasses = map[string]bool{
	"22": true,
	"23": true,
	"42": true,
}

// SQLSTATE classes pointing at connection-level trouble.
var transientClasses = map[string]bool{
	"08": true, // connection exception
	"57": true, // operator intervention (includes admin shutdown)
}

// classified wraps a store error with the retry taxonomy kind. The writer
// matches on the kind instead of driver error types.
func classified(err error) error {
	if err == nil {
		return nil
	}
	return catalog.WithKind(classify(err), err)
}

func classify(err error) catalog.ErrorKind {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 {
			class := pgErr.Code[:2]
			if permanentClasses[class] {
				return catalog.KindPermanent
			}
			if transientClasses[class] {
				return catalog.KindTransient
			}
		}
		return catalog.KindUnknown
	}

	if pgconn.SafeToRetry(err) {
		return catalog.KindTransient
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return catalog.KindTransient
	}

	return catalog.KindUnknown
}
