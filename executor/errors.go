package executor

import (
	"mulldb/storage"
	"mulldb/txn"
)

// QueryError carries a PostgreSQL SQLSTATE error code alongside a
// human-readable message, so the wire protocol layer can report the
// correct ErrorResponse field without inspecting storage internals.
type QueryError struct {
	Code    string
	Message string
}

func (e *QueryError) Error() string {
	return e.Message
}

// WrapError maps a storage-layer error to a QueryError with the
// appropriate SQLSTATE code. Errors that are already a *QueryError
// (e.g. from coercion) pass through unchanged.
func WrapError(err error) *QueryError {
	if err == nil {
		return nil
	}
	if qe, ok := err.(*QueryError); ok {
		return qe
	}
	switch e := err.(type) {
	case *txn.AbortedError:
		// Protocol-category error (§7): Wait-Die die, TSO out-of-order,
		// or OCC validation failure all surface as the standard
		// PostgreSQL serialization_failure code, the conventional signal
		// to the client that retrying the transaction may succeed.
		return &QueryError{Code: "40001", Message: e.Error()}
	case *storage.TableExistsError:
		return &QueryError{Code: "42P07", Message: e.Error()}
	case *storage.TableNotFoundError:
		return &QueryError{Code: "42P01", Message: e.Error()}
	case *storage.ColumnNotFoundError:
		return &QueryError{Code: "42703", Message: e.Error()}
	case *storage.ColumnExistsError:
		return &QueryError{Code: "42701", Message: e.Error()}
	case *storage.ValueCountError:
		return &QueryError{Code: "42601", Message: e.Error()}
	case *storage.UniqueViolationError:
		return &QueryError{Code: "23505", Message: e.Error()}
	case *storage.IndexExistsError:
		return &QueryError{Code: "42710", Message: e.Error()}
	case *storage.IndexNotFoundError:
		return &QueryError{Code: "42704", Message: e.Error()}
	default:
		return &QueryError{Code: "XX000", Message: err.Error()}
	}
}
