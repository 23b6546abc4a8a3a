package domain

import (
	"time"

	"github.com/google/uuid"
)

type IdempotencyStatus string

const (
	IdempotencyProcessing IdempotencyStatus = "processing"
	IdempotencyDone       IdempotencyStatus = "done"
)

// IdempotencyRecord is the dedup state for one client-supplied key.
// ResponseBody/HTTPStatus are only set once Status is done.
type IdempotencyRecord struct {
	Key             string
	CartID          uuid.UUID
	Endpoint        string
	RequestHash     string
	Status          IdempotencyStatus
	HTTPStatus      int
	ResponseBody    []byte
	OwnerInstanceID string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

const (
	idempotencyKeyMinLen = 8
	idempotencyKeyMaxLen = 128
)

// ValidateIdempotencyKey rejects keys outside the accepted charset or
// length bounds before any state transition happens.
func ValidateIdempotencyKey(key string) error {
	if len(key) < idempotencyKeyMinLen || len(key) > idempotencyKeyMaxLen {
		return Validationf("Idempotency-Key", "idempotency key length must be between %d and %d", idempotencyKeyMinLen, idempotencyKeyMaxLen)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return Validationf("Idempotency-Key", "idempotency key contains invalid character %q", r)
		}
	}
	return nil
}
