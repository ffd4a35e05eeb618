package collector

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError means the request never produced an HTTP response
// (connection refused, DNS failure, canceled context).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response. Body is the trimmed plain-text body.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// GenericSpeedtestFailure is reported when the collector says success:false
// without a message.
const GenericSpeedtestFailure = "Speedtest failed"

// ApplicationError is a 200 response that reports success:false.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return GenericSpeedtestFailure
	}
	return e.Message
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func IsServer(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

func IsApplication(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}
