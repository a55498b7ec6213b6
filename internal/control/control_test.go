package control

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, h Handlers) (*Server, string) {
	t.Helper()
	socket := filepath.Join(t.TempDir(), "control.sock")
	srv := NewServer(socket, h)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)
	require.Eventually(t, srv.Ready, time.Second, 5*time.Millisecond)
	return srv, socket
}

func TestControlStatusRoundtrip(t *testing.T) {
	want := Status{Version: "1.2.3", UptimeSeconds: 42, PeerCount: 3, ListenAddrs: []string{"tcp://[::]:3755"}}
	_, socket := startServer(t, Handlers{Status: func() Status { return want }})

	client := NewClient(socket)
	got, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestControlReload(t *testing.T) {
	called := false
	_, socket := startServer(t, Handlers{Reload: func() error { called = true; return nil }})

	client := NewClient(socket)
	require.NoError(t, client.Reload(context.Background()))
	assert.True(t, called)
}

func TestControlStatusWithoutHandlerNotImplemented(t *testing.T) {
	_, socket := startServer(t, Handlers{})

	client := NewClient(socket)
	_, err := client.Status(context.Background())
	assert.Error(t, err)
}
