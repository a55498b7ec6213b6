package cmd

import (
	"context"

	"shv.dev/broker/internal/control"
)

// ClientInterface is the subset of control.Client that the admin-client
// subcommands (status/reload/stop) depend on, so tests can substitute a
// fake broker without standing up a real control socket.
type ClientInterface interface {
	Status(ctx context.Context) (control.Status, error)
	Reload(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Ping(ctx context.Context) error
}

// newControlClient is overridden in tests.
var newControlClient = func(socket string) ClientInterface {
	return control.NewClient(socket)
}
