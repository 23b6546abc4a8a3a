package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
)

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindCartNotFound, domain.KindItemNotFound:
		return http.StatusNotFound
	case domain.KindPreconditionRequired:
		return http.StatusPreconditionRequired
	case domain.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case domain.KindInsufficientStock, domain.KindVersionConflict,
		domain.KindCartBusy, domain.KindIdempotencyConflict, domain.KindIdempotencyInFlight:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// transientKind reports failures a client resolves by retrying,
// possibly after re-basing on the current cart state; their
// idempotency records are released rather than stored for replay.
func transientKind(kind domain.ErrorKind) bool {
	return kind == domain.KindCartBusy ||
		kind == domain.KindVersionConflict ||
		kind == domain.KindPreconditionFailed
}

func errorResponse(err *domain.Error) ErrorResponse {
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  string(err.Kind),
	}

	switch err.Kind {
	case domain.KindInsufficientStock:
		qty := err.AvailableQuantity
		resp.AvailableQuantity = &qty
	case domain.KindVersionConflict, domain.KindPreconditionFailed:
		v := err.CurrentVersion
		resp.CurrentVersion = &v
	case domain.KindCartBusy:
		ms := err.RetryAfter.Milliseconds()
		resp.RetryAfterMs = &ms
	case domain.KindIdempotencyConflict:
		resp.StoredHash = err.StoredHash
		resp.ProvidedHash = err.ProvidedHash
	}

	return resp
}

func respondDomainError(w http.ResponseWriter, err *domain.Error) {
	if err.Kind == domain.KindCartBusy && err.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(err.RetryAfter)))
	}
	respondJSON(w, statusFor(err.Kind), errorResponse(err))
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
