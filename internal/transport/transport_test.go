package transport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpointTCP(t *testing.T) {
	ep, err := ParseEndpoint("tcp://[::]:3755?password=admin!123&user=admin")
	require.NoError(t, err)
	assert.Equal(t, SchemeTCP, ep.Scheme)
	assert.Equal(t, 3755, ep.Port)
	assert.Equal(t, "admin!123", ep.Options["password"])
	assert.False(t, ep.UsesSerialFraming())
}

func TestParseEndpointDefaultPort(t *testing.T) {
	ep, err := ParseEndpoint("tcp://localhost")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, ep.Port)
}

func TestParseEndpointUnixSocket(t *testing.T) {
	ep, err := ParseEndpoint("unix:///var/run/shvbroker.sock")
	require.NoError(t, err)
	assert.Equal(t, "/var/run/shvbroker.sock", ep.Path)
}

func TestParseEndpointSerial(t *testing.T) {
	ep, err := ParseEndpoint("serial:///dev/ttyUSB0?baudrate=115200")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", ep.Path)
	assert.True(t, ep.UsesSerialFraming())
	baud, err := ep.BaudRate()
	require.NoError(t, err)
	assert.Equal(t, 115200, baud)
}

func TestParseEndpointUnknownScheme(t *testing.T) {
	_, err := ParseEndpoint("ftp://example.com")
	assert.Error(t, err)
}

func TestTCPDialListenRoundtrip(t *testing.T) {
	ln, err := Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		accepted <- c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, "tcp://"+ln.Addr())
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, client.WriteFrame([]byte("hello")))
	got, err := server.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestUnixDialListenRoundtrip(t *testing.T) {
	sock := "unix://" + filepath.Join(t.TempDir(), "broker.sock")
	ln, err := Listen(sock)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		accepted <- c
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := Dial(ctx, sock)
	require.NoError(t, err)
	defer client.Close()

	server := <-accepted
	defer server.Close()

	require.NoError(t, server.WriteFrame([]byte("world")))
	got, err := client.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)
}
