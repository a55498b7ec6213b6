package control

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"shv.dev/broker/internal/rtypes"
)

// Client is the CLI-side handle to a running broker's control socket. It
// logs via logrus rather than slog -- a separate, human-oriented register
// from the broker's own structured log.
type Client struct {
	socket string
	log    *logrus.Logger
}

// NewClient returns a client for the control socket at path.
func NewClient(socket string) *Client {
	return &Client{socket: socket, log: logrus.StandardLogger()}
}

// Status queries the running broker's status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	c.log.WithField("socket", c.socket).Debug("querying broker status")
	resp, err := call(ctx, c.socket, MethodStatus, rtypes.Null())
	if err != nil {
		return Status{}, err
	}
	if resp.IsError() {
		return Status{}, fmt.Errorf("control: status: %s", resp.ErrorMessage())
	}
	return StatusFromValue(resp.Value)
}

// Reload asks the running broker to reload its configuration.
func (c *Client) Reload(ctx context.Context) error {
	c.log.WithField("socket", c.socket).Info("requesting configuration reload")
	resp, err := call(ctx, c.socket, MethodReload, rtypes.Null())
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("control: reload: %s", resp.ErrorMessage())
	}
	return nil
}

// Shutdown asks the running broker to stop gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	c.log.WithField("socket", c.socket).Info("requesting graceful shutdown")
	resp, err := call(ctx, c.socket, MethodShutdown, rtypes.Null())
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("control: shutdown: %s", resp.ErrorMessage())
	}
	return nil
}

// Ping is a short-timeout Status call used to check liveness without
// printing a full status report.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := c.Status(ctx)
	return err
}
