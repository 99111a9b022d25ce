// Package ipc carries maintenance requests from foreground processes to the
// maintenance service over a Unix domain socket.
//
// Each connection carries one request and one response. A message is a
// frame of a 4-byte big-endian payload length followed by a JSON payload.
package ipc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/2thetop/scalar/errors"
)

// ProtocolVersion is the only protocol version the server accepts.
const ProtocolVersion = 1

// MaxFrameSize bounds a frame payload.
const MaxFrameSize = 10 * 1024 * 1024

// DefaultSocketName is the socket file name inside the .scalar directory.
const DefaultSocketName = "maintenance.sock"

// Commands.
const (
	CommandRunMaintenance = "run_maintenance"
	CommandGetStatus      = "get_status"
)

// Error codes carried in responses.
const (
	ErrCodeProtocolMismatch = "PROTOCOL_MISMATCH"
	ErrCodeUnknownCommand   = "UNKNOWN_COMMAND"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// Request is a single command.
type Request struct {
	ProtocolVersion int             `json:"protocol_version"`
	Command         string          `json:"command"`
	Params          json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorDetail    `json:"error,omitempty"`
}

// ErrorDetail describes a rejected request.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunMaintenanceParams are the parameters of run_maintenance.
type RunMaintenanceParams struct {
	Task string `json:"task"`
}

// RunMaintenanceResult is returned by a successful run_maintenance.
type RunMaintenanceResult struct {
	RequestID string `json:"request_id"`
	Task      string `json:"task"`
}

// Timer describes one registered recurring timer.
type Timer struct {
	Task          string  `json:"task"`
	DueSeconds    float64 `json:"due_seconds"`
	PeriodSeconds float64 `json:"period_seconds"`
}

// Status is returned by get_status.
type Status struct {
	Pending   int     `json:"pending"`
	Running   string  `json:"running,omitempty"`
	Completed int     `json:"completed"`
	Stopped   bool    `json:"stopped"`
	Timers    []Timer `json:"timers"`
}

// NewRequest builds a request for command with params marshaled as JSON.
func NewRequest(command string, params any) (*Request, error) {
	req := &Request{
		ProtocolVersion: ProtocolVersion,
		Command:         command,
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to marshal params")
		}
		req.Params = data
	}
	return req, nil
}

// SuccessResponse builds a successful response carrying data.
func SuccessResponse(data any) *Response {
	resp := &Response{Success: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return ErrorResponse(ErrCodeInternal, "failed to marshal response")
		}
		resp.Data = raw
	}
	return resp
}

// ErrorResponse builds a failed response.
func ErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// DecodeData unmarshals the response data into v.
func (r *Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return errors.New(errors.CodeInvalidInput, "response carries no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "failed to decode response data")
	}
	return nil
}

// WriteFrame writes v as one length-prefixed JSON frame.
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "failed to marshal frame")
	}
	if len(data) > MaxFrameSize {
		return errors.Newf(errors.CodeInvalidInput, "frame too large: %d bytes", len(data))
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return errors.Wrap(err, errors.CodeNetwork, "failed to write frame length")
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return errors.Wrap(err, errors.CodeNetwork, "failed to write frame payload")
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame into v.
func ReadFrame(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return errors.Wrap(err, errors.CodeNetwork, "failed to read frame length")
	}
	if length > MaxFrameSize {
		return errors.Newf(errors.CodeInvalidInput, "frame too large: %d bytes", length)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return errors.Wrap(err, errors.CodeNetwork, "failed to read frame payload")
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "failed to unmarshal frame")
	}
	return nil
}
