package command

import (
	"errors"

	"github.com/example/bank-es/internal/domain/account"
	"github.com/example/bank-es/internal/domain/aggregate"
)

// Result categories used for metrics and transport mapping.
const (
	ResultOK                 = "ok"
	ResultInvalidArgument    = "invalid_argument"
	ResultInsufficientFunds  = "insufficient_funds"
	ResultNotFound           = "not_found"
	ResultForbidden          = "forbidden"
	ResultVersionConflict    = "version_conflict"
	ResultTransferIncomplete = "transfer_incomplete"
	ResultError              = "error"
)

// Classify maps a command error to its category. Transfer failures are checked
// first because they wrap the underlying cause.
func Classify(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrTransferIncomplete):
		return ResultTransferIncomplete
	case errors.Is(err, account.ErrInvalidArgument), errors.Is(err, aggregate.ErrInvalidAggregateID):
		return ResultInvalidArgument
	case errors.Is(err, account.ErrInsufficientFunds):
		return ResultInsufficientFunds
	case errors.Is(err, aggregate.ErrAggregateNotFound):
		return ResultNotFound
	case errors.Is(err, ErrNotOwner):
		return ResultForbidden
	case errors.Is(err, aggregate.ErrVersionConflict):
		return ResultVersionConflict
	default:
		return ResultError
	}
}
