package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/asset-ledger/internal/core/domain"
)

// httpStatusClientClosedRequest is the nginx convention for a request the
// client abandoned before the response.
const httpStatusClientClosedRequest = 499

// errorMapping is the single table from domain errors to transport codes.
var errorMapping = []struct {
	target error
	http   int
	grpc   codes.Code
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound, "not_found"},
	{domain.ErrValidation, http.StatusBadRequest, codes.InvalidArgument, "validation"},
	{domain.ErrInvalidTransition, http.StatusUnprocessableEntity, codes.FailedPrecondition, "invalid_transition"},
	{domain.ErrCapacityExceeded, http.StatusUnprocessableEntity, codes.ResourceExhausted, "capacity_exceeded"},
	{domain.ErrDuplicateAssignment, http.StatusConflict, codes.AlreadyExists, "duplicate_assignment"},
	{domain.ErrAlreadyExists, http.StatusConflict, codes.AlreadyExists, "already_exists"},
	{domain.ErrConcurrencyConflict, http.StatusConflict, codes.Aborted, "concurrency_conflict"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, codes.DeadlineExceeded, "deadline_exceeded"},
	{context.Canceled, httpStatusClientClosedRequest, codes.Canceled, "canceled"},
}

type mappedError struct {
	http int
	grpc codes.Code
	code string
	body ErrorResponse
}

func mapError(err error) mappedError {
	for _, m := range errorMapping {
		if !errors.Is(err, m.target) {
			continue
		}
		body := ErrorResponse{Error: err.Error(), Code: m.code}
		var invalid *domain.InvalidTransitionError
		if errors.As(err, &invalid) {
			body.ValidNextStates = statusStrings(invalid.ValidNext)
		}
		body.Retryable = domain.IsRetryable(err)
		return mappedError{http: m.http, grpc: m.grpc, code: m.code, body: body}
	}
	return mappedError{
		http: http.StatusInternalServerError,
		grpc: codes.Internal,
		code: "internal",
		body: ErrorResponse{Error: "internal error", Code: "internal"},
	}
}
