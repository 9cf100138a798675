package venue

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketsync/internal/domain"
)

// DefaultTimeout bounds every venue request when the caller supplies no client.
const DefaultTimeout = 30 * time.Second

// maxResponseSize caps how much of a response body Do reads.
var maxResponseSize int64 = 64 << 20

// ErrResponseTooLarge is returned when a response body exceeds the read cap.
var ErrResponseTooLarge = errors.New("venue: response too large")

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns the shared client used for venue calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Do sends req and returns the body of a 2xx response. Any other status is
// returned as *domain.APIRequestError. Transport failures, timeouts included,
// are wrapped and returned as-is.
func Do(client Doer, req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > maxResponseSize {
		return nil, fmt.Errorf("read response: %w: body exceeds %d bytes", ErrResponseTooLarge, maxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewAPIRequestError(resp.StatusCode, req.URL.String(), body)
	}
	return body, nil
}
