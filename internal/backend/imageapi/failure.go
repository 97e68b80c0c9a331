package imageapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Failure is the decoded body of a non-success response. Exactly one of the
// concrete variants below is produced by decodeFailure.
type Failure interface {
	Message() string
}

// StructuredFailure is the documented {"error":{"message":...}} shape.
type StructuredFailure struct {
	Text string
}

func (f StructuredFailure) Message() string { return f.Text }

// RawTextFailure carries the body verbatim when it is not the documented shape.
type RawTextFailure struct {
	Body string
}

func (f RawTextFailure) Message() string { return f.Body }

// StatusOnlyFailure is used when the body is empty.
type StatusOnlyFailure struct {
	StatusCode int
}

func (f StatusOnlyFailure) Message() string { return fmt.Sprintf("HTTP %d", f.StatusCode) }

type errorEnvelope struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func decodeFailure(statusCode int, body []byte) Failure {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return StructuredFailure{Text: envelope.Error.Message}
	}
	if text := bytes.TrimSpace(body); len(text) > 0 {
		return RawTextFailure{Body: string(text)}
	}
	return StatusOnlyFailure{StatusCode: statusCode}
}

// APIError is returned for any non-2xx answer from the image service.
type APIError struct {
	StatusCode int
	Failure    Failure
}

func (e *APIError) Error() string {
	return e.Failure.Message()
}
