package ors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sells-group/orsmap/internal/resilience"
)

// APIError is a non-2xx reply, or a 2xx reply carrying an error body.
type APIError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ors: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

// ORS internal error codes that mean the location has no usable road graph.
// See https://giscience.github.io/openrouteservice/api-reference/error-codes
var unroutableCodes = map[int]bool{
	2009: true, // directions: route could not be found
	2010: true, // directions: point not found
	3002: true, // isochrones: unable to build
	3099: true, // isochrones: unknown
}

var unroutablePhrases = []string{
	"could not find routable point",
	"unable to build an isochrone",
	"route could not be found",
	"no route",
	"not routable",
	"point not found",
}

// Unroutable reports whether the service rejected the request because no
// path exists near the requested point.
func (e *APIError) Unroutable() bool {
	if unroutableCodes[e.Code] {
		return true
	}
	msg := strings.ToLower(e.Message)
	for _, p := range unroutablePhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// AsAPIError finds an *APIError in err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsUnroutable reports whether err is an unroutable-location failure.
func IsUnroutable(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Unroutable()
}

// newAPIError builds the error for a failed reply. Retryable statuses are
// additionally marked transient.
func newAPIError(op string, status int, body []byte) error {
	code, msg := parseErrorBody(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	apiErr := &APIError{Op: op, StatusCode: status, Code: code, Message: msg}
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(apiErr, status)
	}
	return apiErr
}

const maxMessageLen = 512

// parseErrorBody extracts the message from {"error":{"code":..,"message":..}},
// {"error":"..."} or a raw text body.
func parseErrorBody(body []byte) (int, string) {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && len(env.Error) > 0 {
		var obj struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(env.Error, &obj); err == nil && obj.Message != "" {
			return obj.Code, obj.Message
		}
		var s string
		if err := json.Unmarshal(env.Error, &s); err == nil && s != "" {
			return 0, s
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}
	return 0, msg
}

// bodyError reports an error object embedded in a 2xx body.
func bodyError(op string, status int, body []byte) error {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 || string(env.Error) == "null" {
		return nil
	}
	code, msg := parseErrorBody(body)
	return &APIError{Op: op, StatusCode: status, Code: code, Message: msg}
}
