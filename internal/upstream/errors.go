package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"pricelens-gateway/pkg/apierror"
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	KindTransport   ErrorKind = "transport"
	KindApplication ErrorKind = "application"
	KindDecode      ErrorKind = "decode"
)

// Error is a failed backend call.
type Error struct {
	Kind    ErrorKind
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s %s: %s: %v", e.Method, e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("upstream %s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// APIError converts e to the gateway's error response.
func (e *Error) APIError() *apierror.Error {
	return apierror.FromStatus(e.Status, e.Message)
}

// AsAPIError maps any error from this package to an API error, or returns nil.
func AsAPIError(err error) *apierror.Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.APIError()
	}
	return nil
}

// User-readable transport messages.
const (
	msgTimeout     = "The server took too long to respond. Please try again."
	msgUnreachable = "Unable to reach the server. Please check your connection and try again."
	msgReset       = "The connection to the server was interrupted. Please try again."
	msgNetwork     = "A network error occurred. Please try again."
	msgCanceled    = "The request was canceled."
	msgFallback    = "Something went wrong. Please try again later."
)

// transportError classifies a client.Do failure.
func transportError(method, path string, err error) *Error {
	e := &Error{Kind: KindTransport, Method: method, Path: path, Err: err}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		e.Status, e.Message = 499, msgCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		e.Status, e.Message = http.StatusGatewayTimeout, msgTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		e.Status, e.Message = http.StatusServiceUnavailable, msgUnreachable
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		e.Status, e.Message = http.StatusBadGateway, msgReset
	default:
		e.Status, e.Message = http.StatusBadGateway, msgNetwork
	}
	return e
}

// applicationError builds an error from a non-2xx response, taking the
// message from the structured body when present.
func applicationError(method, path string, status int, body []byte) *Error {
	return &Error{
		Kind:    KindApplication,
		Method:  method,
		Path:    path,
		Status:  status,
		Message: extractMessage(body),
	}
}

// extractMessage reads detail, message or error from a JSON error body. The
// error field may itself be an object carrying a message.
func extractMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return msgFallback
	}
	for _, key := range []string{"detail", "message", "error"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		// FastAPI validation errors: [{"msg": "..."}]
		var list []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0].Msg != "" {
			return list[0].Msg
		}
	}
	return msgFallback
}
