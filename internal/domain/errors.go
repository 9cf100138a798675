package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")
)

// APIRequestError is a non-2xx response from a venue. Payload is the venue's
// "error" field, verbatim, and nil when absent.
type APIRequestError struct {
	StatusCode int
	URL        string
	Payload    json.RawMessage
}

// NewAPIRequestError builds an APIRequestError from a response body, lifting
// the top-level "error" field when the body is a JSON object that has one.
func NewAPIRequestError(statusCode int, url string, body []byte) *APIRequestError {
	e := &APIRequestError{StatusCode: statusCode, URL: url}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		e.Payload = envelope.Error
	}
	return e
}

func (e *APIRequestError) Error() string {
	msg := fmt.Sprintf("received status code %d instead of 200", e.StatusCode)
	if e.URL != "" {
		msg += " from " + e.URL
	}
	if len(e.Payload) > 0 {
		msg += ": " + string(e.Payload)
	}
	return msg
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *APIRequestError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// RequestTooLargeError is returned before any network call when a batch
// request would exceed the venue's size limit. Callers recover by splitting
// the batch.
type RequestTooLargeError struct {
	Partition PartitionKey
	Markets   int
	Size      int
	Limit     int
}

func (e *RequestTooLargeError) Error() string {
	return fmt.Sprintf("batch request for %s (%d markets) is %d chars, limit %d",
		e.Partition, e.Markets, e.Size, e.Limit)
}

// DecodeError reports a venue record with a missing or malformed field.
type DecodeError struct {
	Venue Venue
	ID    string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	id := e.ID
	if id == "" {
		id = "<unknown>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: decode %s: field %q: %v", e.Venue, id, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: decode %s: field %q missing", e.Venue, id, e.Field)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ReconciliationError lists response identifiers that matched no requested
// market. It is raised only after every matching record was applied.
type ReconciliationError struct {
	Partition PartitionKey
	IDs       []string
}

func (e *ReconciliationError) Error() string {
	ids := append([]string(nil), e.IDs...)
	sort.Strings(ids)
	return fmt.Sprintf("%s: %d unknown identifiers in response: %s",
		e.Partition, len(ids), strings.Join(ids, ", "))
}
