package ipc

import (
	"context"
	"net"
	"time"

	"github.com/2thetop/scalar/errors"
)

// Client sends requests to a Server.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    DefaultConnTimeout,
	}
}

// SetTimeout sets the dial and exchange timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Send writes req and waits for the response.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.FromContext(ctx.Err())
		}
		return nil, errors.WithContext(
			errors.Wrap(err, errors.CodeUnavailable, "failed to connect to maintenance service"),
			"socket", c.socketPath,
		)
	}
	defer func() { _ = conn.Close() }()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := WriteFrame(conn, req); err != nil {
		return nil, err
	}

	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendCommand builds and sends a request for command.
func (c *Client) SendCommand(ctx context.Context, command string, params any) (*Response, error) {
	req, err := NewRequest(command, params)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// RunMaintenance asks the service to run task now and returns the request id.
func (c *Client) RunMaintenance(ctx context.Context, task string) (string, error) {
	resp, err := c.SendCommand(ctx, CommandRunMaintenance, RunMaintenanceParams{Task: task})
	if err != nil {
		return "", err
	}
	if err := responseError(resp); err != nil {
		return "", err
	}

	var result RunMaintenanceResult
	if err := resp.DecodeData(&result); err != nil {
		return "", err
	}
	return result.RequestID, nil
}

// GetStatus returns the service's queue and timer status.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	resp, err := c.SendCommand(ctx, CommandGetStatus, nil)
	if err != nil {
		return nil, err
	}
	if err := responseError(resp); err != nil {
		return nil, err
	}

	var status Status
	if err := resp.DecodeData(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// responseError converts a failed response into an error.
func responseError(resp *Response) error {
	if resp.Success {
		return nil
	}
	if resp.Error == nil {
		return errors.New(errors.CodeUnknown, "request failed without detail")
	}

	code := errors.CodeUnknown
	switch resp.Error.Code {
	case ErrCodeValidation, ErrCodeUnknownCommand, ErrCodeProtocolMismatch:
		code = errors.CodeInvalidInput
	case ErrCodeUnavailable:
		code = errors.CodeUnavailable
	case ErrCodeInternal:
		code = errors.CodeInternal
	}
	return errors.WithContext(errors.New(code, resp.Error.Message), "ipc_code", resp.Error.Code)
}
