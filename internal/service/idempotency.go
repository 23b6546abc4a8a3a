package service

import (
	"context"
	"fmt"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/logger"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/google/uuid"
)

type IdempotencyOutcome string

const (
	// OutcomeStarted means the caller owns the key and must run the
	// business logic, then call Finish.
	OutcomeStarted IdempotencyOutcome = "started"
	// OutcomeInFlight means the original request is still executing.
	OutcomeInFlight IdempotencyOutcome = "in_flight"
	// OutcomeReplay means a stored response must be returned verbatim.
	OutcomeReplay IdempotencyOutcome = "replay"
	// OutcomeConflict means the key was reused with a different payload.
	OutcomeConflict IdempotencyOutcome = "conflict"
)

type IdempotencyDecision struct {
	Outcome    IdempotencyOutcome
	Record     domain.IdempotencyRecord
	RetryAfter time.Duration
}

// IdempotencyService is the keyed dedup/replay state machine:
// absent -> processing -> done. It is an independent serialization
// primitive, keyed by the client-supplied key rather than cart id.
type IdempotencyService struct {
	repo       port.IdempotencyRepository
	log        *logger.Logger
	instanceID string
	staleAfter time.Duration
	retention  time.Duration
}

const (
	// DefaultStaleAfter is the crash-presumption threshold for a
	// processing record before another request may take it over.
	DefaultStaleAfter = 30 * time.Second
	// DefaultRetention is how long finished records stay replayable.
	DefaultRetention = 48 * time.Hour
)

func NewIdempotencyService(repo port.IdempotencyRepository, log *logger.Logger, staleAfter, retention time.Duration) *IdempotencyService {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &IdempotencyService{
		repo:       repo,
		log:        log,
		instanceID: uuid.NewString(),
		staleAfter: staleAfter,
		retention:  retention,
	}
}

// Begin claims the key or decides what to do with its existing record.
// Business logic must only run on OutcomeStarted.
func (s *IdempotencyService) Begin(ctx context.Context, key string, cartID uuid.UUID, endpoint, requestHash string, now time.Time) (IdempotencyDecision, error) {
	if err := domain.ValidateIdempotencyKey(key); err != nil {
		return IdempotencyDecision{}, err
	}

	fresh := domain.IdempotencyRecord{
		Key:             key,
		CartID:          cartID,
		Endpoint:        endpoint,
		RequestHash:     requestHash,
		Status:          domain.IdempotencyProcessing,
		OwnerInstanceID: s.instanceID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.retention),
	}

	// A bounded number of attempts covers the races around concurrent
	// insert, takeover and revival of the same key.
	for attempt := 0; attempt < 3; attempt++ {
		inserted, err := s.repo.Insert(ctx, fresh)
		if err != nil {
			return IdempotencyDecision{}, fmt.Errorf("repo.Insert: %w", err)
		}
		if inserted {
			return IdempotencyDecision{Outcome: OutcomeStarted, Record: fresh}, nil
		}

		existing, found, err := s.repo.Get(ctx, key)
		if err != nil {
			return IdempotencyDecision{}, fmt.Errorf("repo.Get: %w", err)
		}
		if !found {
			// Deleted between insert and read; claim it again.
			continue
		}

		if existing.RequestHash != requestHash {
			s.log.Warn("idempotency key conflict",
				"key", key, "endpoint", endpoint,
				"stored_hash", existing.RequestHash, "provided_hash", requestHash)
			return IdempotencyDecision{Outcome: OutcomeConflict, Record: existing}, nil
		}

		if !existing.ExpiresAt.After(now) {
			revived, err := s.repo.ReviveExpired(ctx, key, now, fresh)
			if err != nil {
				return IdempotencyDecision{}, fmt.Errorf("repo.ReviveExpired: %w", err)
			}
			if revived {
				return IdempotencyDecision{Outcome: OutcomeStarted, Record: fresh}, nil
			}
			continue
		}

		if existing.Status == domain.IdempotencyDone {
			s.log.Info("idempotency replay", "key", key, "endpoint", endpoint, "http_status", existing.HTTPStatus)
			return IdempotencyDecision{Outcome: OutcomeReplay, Record: existing}, nil
		}

		staleBefore := now.Add(-s.staleAfter)
		if existing.CreatedAt.Before(staleBefore) {
			taken, err := s.repo.TakeOverProcessing(ctx, key, staleBefore, fresh)
			if err != nil {
				return IdempotencyDecision{}, fmt.Errorf("repo.TakeOverProcessing: %w", err)
			}
			if taken {
				s.log.Warn("idempotency takeover of presumed-crashed record",
					"key", key, "previous_owner", existing.OwnerInstanceID)
				return IdempotencyDecision{Outcome: OutcomeStarted, Record: fresh}, nil
			}
			continue
		}

		retryAfter := s.staleAfter - now.Sub(existing.CreatedAt)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return IdempotencyDecision{Outcome: OutcomeInFlight, Record: existing, RetryAfter: retryAfter}, nil
	}

	// Lost every race; the caller retries like any in-flight collision.
	return IdempotencyDecision{Outcome: OutcomeInFlight, Record: fresh, RetryAfter: time.Second}, nil
}

// Finish stores the outcome for future replay and marks the key done.
func (s *IdempotencyService) Finish(ctx context.Context, key string, httpStatus int, body []byte, now time.Time) error {
	if err := s.repo.MarkDone(ctx, key, httpStatus, body, now); err != nil {
		return fmt.Errorf("repo.MarkDone: %w", err)
	}
	return nil
}

// Abort releases a claimed key after a transient failure (lock busy,
// version conflict) so a client retry is not answered with a replay of
// the transient error.
func (s *IdempotencyService) Abort(ctx context.Context, key string) error {
	if err := s.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("repo.Delete: %w", err)
	}
	return nil
}

// DeleteExpired sweeps records past their retention window.
func (s *IdempotencyService) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}
