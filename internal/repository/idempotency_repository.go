package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CreativeSeo33/new3-sub001/internal/domain"
	"github.com/CreativeSeo33/new3-sub001/internal/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type idempotencyRepository struct {
	pool *pgxpool.Pool
}

func NewIdempotency(pool *pgxpool.Pool) port.IdempotencyRepository {
	return &idempotencyRepository{pool: pool}
}

// Insert claims the key; the unique constraint decides the race.
func (r *idempotencyRepository) Insert(ctx context.Context, rec domain.IdempotencyRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO idempotency_keys
			(key, cart_id, endpoint, request_hash, status, owner_instance_id, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.CartID, rec.Endpoint, rec.RequestHash, rec.Status,
		rec.OwnerInstanceID, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return false, fmt.Errorf("insert idempotency key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, bool, error) {
	var rec domain.IdempotencyRecord

	err := r.pool.QueryRow(ctx, `
		SELECT key, cart_id, endpoint, request_hash, status, http_status, response_body,
		       owner_instance_id, created_at, expires_at
		FROM idempotency_keys WHERE key = $1`, key).Scan(
		&rec.Key, &rec.CartID, &rec.Endpoint, &rec.RequestHash, &rec.Status,
		&rec.HTTPStatus, &rec.ResponseBody, &rec.OwnerInstanceID, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("select idempotency key: %w", err)
	}
	return rec, true, nil
}

func (r *idempotencyRepository) TakeOverProcessing(ctx context.Context, key string, staleBefore time.Time, rec domain.IdempotencyRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE idempotency_keys SET
			owner_instance_id = $1, created_at = $2, expires_at = $3
		WHERE key = $4 AND status = $5 AND created_at < $6`,
		rec.OwnerInstanceID, rec.CreatedAt, rec.ExpiresAt,
		key, domain.IdempotencyProcessing, staleBefore)
	if err != nil {
		return false, fmt.Errorf("take over idempotency key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *idempotencyRepository) ReviveExpired(ctx context.Context, key string, now time.Time, rec domain.IdempotencyRecord) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE idempotency_keys SET
			cart_id = $1, endpoint = $2, request_hash = $3, status = $4,
			http_status = 0, response_body = NULL,
			owner_instance_id = $5, created_at = $6, expires_at = $7
		WHERE key = $8 AND expires_at < $9`,
		rec.CartID, rec.Endpoint, rec.RequestHash, domain.IdempotencyProcessing,
		rec.OwnerInstanceID, rec.CreatedAt, rec.ExpiresAt,
		key, now)
	if err != nil {
		return false, fmt.Errorf("revive idempotency key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, httpStatus int, body []byte, now time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE idempotency_keys SET status = $1, http_status = $2, response_body = $3
		WHERE key = $4`,
		domain.IdempotencyDone, httpStatus, body, key)
	if err != nil {
		return fmt.Errorf("mark idempotency key done: %w", err)
	}
	return nil
}

func (r *idempotencyRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete idempotency key: %w", err)
	}
	return nil
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
