package ipam

import (
	"encoding/json"
	"time"
)

// IdempotencyRecord caches the outcome of a mutating request keyed by its
// request id. Records are permanent; ExpiresAt is a sentinel far-future
// timestamp kept only for storage engines whose schema demands one.
type IdempotencyRecord struct {
	RequestID     string          `json:"request_id"`
	Endpoint      string          `json:"endpoint"`
	Method        string          `json:"method"`
	RequestHash   string          `json:"request_hash"`
	RequestParams json.RawMessage `json:"request_params"`
	ResponseData  json.RawMessage `json:"response_data"`
	StatusCode    int             `json:"status_code"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}
