package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloudipam/internal/domain/ipam"
)

// retentionPeriod is written into new records' expires_at column. Records are
// never actually expired; the column exists so a retention job can be added
// without a schema migration.
const retentionPeriod = 10 * 365 * 24 * time.Hour

// Service caches the outcome of mutating requests keyed by client-supplied
// request ids, so network-level retries replay the stored response instead of
// re-running the operation.
type Service struct {
	repo ipam.Repository
}

// NewService creates a new idempotency service
func NewService(repo ipam.Repository) *Service {
	return &Service{
		repo: repo,
	}
}

// Result is what Execute hands back: either the fresh outcome of fn or the
// verbatim replay of an earlier call with the same request id.
type Result struct {
	Response json.RawMessage
	Status   int
	Replayed bool
}

// HashParams canonicalizes the request parameters and returns their SHA-256
// hex digest. The request id itself is excluded, and JSON object keys are
// emitted sorted, so retries hash identically regardless of field order.
func HashParams(params map[string]any) (string, error) {
	canonical := make(map[string]any, len(params))
	for k, v := range params {
		if k == "request_id" {
			continue
		}
		canonical[k] = v
	}
	// encoding/json sorts map keys at every nesting level
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize params: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Execute runs fn under the idempotency contract. An unknown request id runs
// fn and, on success, stores its response; a known id with matching
// endpoint, method and parameters replays the stored response; a known id
// reused with any of them changed is rejected with ErrParameterMismatch. Failed operations are
// never cached, so a client may retry a failed request id. An empty request
// id bypasses the layer entirely.
func (s *Service) Execute(ctx context.Context, requestID, endpoint, method string, params map[string]any, fn func(ctx context.Context) (any, int, error)) (*Result, error) {
	if requestID == "" {
		resp, status, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("failed to encode response: %w", err)
		}
		return &Result{Response: data, Status: status}, nil
	}

	hash, err := HashParams(params)
	if err != nil {
		return nil, err
	}

	if rec, err := s.repo.GetIdempotencyRecord(ctx, requestID); err != nil {
		return nil, fmt.Errorf("failed to look up request id: %w", err)
	} else if rec != nil {
		if rec.Endpoint != endpoint || rec.Method != method || rec.RequestHash != hash {
			return nil, ipam.ErrParameterMismatch
		}
		return &Result{Response: rec.ResponseData, Status: rec.StatusCode, Replayed: true}, nil
	}

	resp, status, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	now := time.Now().UTC()
	rec := &ipam.IdempotencyRecord{
		RequestID:     requestID,
		Endpoint:      endpoint,
		Method:        method,
		RequestHash:   hash,
		RequestParams: rawParams,
		ResponseData:  data,
		StatusCode:    status,
		CreatedAt:     now,
		ExpiresAt:     now.Add(retentionPeriod),
	}
	if err := s.repo.CreateIdempotencyRecord(ctx, rec); err != nil {
		if errors.Is(err, ipam.ErrDuplicateRequestID) {
			// lost a race against a concurrent retry; replay its record
			stored, lookupErr := s.repo.GetIdempotencyRecord(ctx, requestID)
			if lookupErr == nil && stored != nil {
				if stored.Endpoint != endpoint || stored.Method != method || stored.RequestHash != hash {
					return nil, ipam.ErrParameterMismatch
				}
				return &Result{Response: stored.ResponseData, Status: stored.StatusCode, Replayed: true}, nil
			}
		}
		return nil, fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return &Result{Response: data, Status: status}, nil
}

// Stats reports the size of the idempotency cache.
type Stats struct {
	TotalRecords int `json:"total_records"`
}

// GetStats returns cache statistics.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	count, err := s.repo.CountIdempotencyRecords(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{TotalRecords: count}, nil
}
