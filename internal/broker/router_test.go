package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shv.dev/broker/internal/config"
	"shv.dev/broker/internal/rpcmsg"
	"shv.dev/broker/internal/rtypes"
	"shv.dev/broker/internal/transport"
)

// testClient wraps a dialed *transport.Conn with send/recv helpers that
// encode/decode through the same ChainPack path the real broker uses.
type testClient struct {
	t    *testing.T
	conn *transport.Conn
}

func dialTestClient(t *testing.T, addr string) *testClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "tcp://"+addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) recv() rpcmsg.Message {
	c.t.Helper()
	raw, err := c.conn.ReadFrame()
	require.NoError(c.t, err)
	msg, err := decodeMessage(raw)
	require.NoError(c.t, err)
	return msg
}

func (c *testClient) send(msg rpcmsg.Message) {
	c.t.Helper()
	require.NoError(c.t, writeMessage(c.conn, msg))
}

// login performs the login handshake: wait for hello, send a login request
// with a SHA1 challenge response, return the parsed response.
func (c *testClient) login(user, password, mountPoint, deviceID string) rpcmsg.Message {
	c.t.Helper()
	hello := c.recv()
	nonce := hello.Value.Map()["nonce"].String()
	response := sha1hex(nonce + sha1hex(password))

	device := map[string]rtypes.Value{}
	if mountPoint != "" {
		device["mountPoint"] = rtypes.NewString(mountPoint)
	}
	if deviceID != "" {
		device["deviceId"] = rtypes.NewString(deviceID)
	}
	params := rtypes.NewMap(map[string]rtypes.Value{
		"login": rtypes.NewMap(map[string]rtypes.Value{
			"user":     rtypes.NewString(user),
			"password": rtypes.NewString(response),
			"type":     rtypes.NewString(LoginSHA1),
		}),
		"options": rtypes.NewMap(map[string]rtypes.Value{
			"device": rtypes.NewMap(device),
		}),
	})
	c.send(rpcmsg.NewRequest("", "login", 1, params))
	return c.recv()
}

func testConfig(t *testing.T) *config.GlobalConfig {
	return &config.GlobalConfig{
		Listen: []string{"tcp://127.0.0.1:0"},
		User: map[string]config.UserConfig{
			"admin":  {Password: "adminpass", Role: []string{"admin"}},
			"device": {Password: "devicepass", Role: []string{"device"}},
		},
		Role: map[string]config.RoleConfig{
			"admin": {Access: map[string][]string{
				"dev": {"**:*:*"},
			}},
			"device": {Access: map[string][]string{
				"wr": {"**:*:*"},
			}},
		},
	}
}

func startTestBroker(t *testing.T, cfg *config.GlobalConfig) (string, *Broker) {
	t.Helper()
	b, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(b.Status().ListenAddrs) > 0
	}, 2*time.Second, 10*time.Millisecond)

	return b.Status().ListenAddrs[0], b
}

// An admin login followed by ls/dir on the broker-intrinsic tree.
func TestAdminLoginAndBrowseIntrinsicTree(t *testing.T) {
	addr, _ := startTestBroker(t, testConfig(t))
	admin := dialTestClient(t, addr)

	resp := admin.login("admin", "adminpass", "", "")
	assert.False(t, resp.IsError())

	admin.send(rpcmsg.NewRequest("", "ls", 2, rtypes.Null()))
	ls := admin.recv()
	require.False(t, ls.IsError())
	names := map[string]bool{}
	for _, v := range ls.Value.List() {
		names[v.String()] = true
	}
	assert.True(t, names[".app"])
	assert.True(t, names[".broker"])

	admin.send(rpcmsg.NewRequest("", "dir", 3, rtypes.Null()))
	dir := admin.recv()
	require.False(t, dir.IsError())
	methods := map[string]bool{}
	for _, v := range dir.Value.List() {
		methods[v.String()] = true
	}
	assert.True(t, methods["ls"])
	assert.True(t, methods["dir"])
}

// A device mounts, an admin subscribes to its signals, the device emits
// a signal and the admin receives it rewritten under the mount prefix.
func TestDeviceMountSignalReachesSubscribedAdmin(t *testing.T) {
	addr, _ := startTestBroker(t, testConfig(t))

	device := dialTestClient(t, addr)
	resp := device.login("device", "devicepass", "test/device", "dev-1")
	require.False(t, resp.IsError())

	admin := dialTestClient(t, addr)
	resp = admin.login("admin", "adminpass", "", "")
	require.False(t, resp.IsError())

	subParams := rtypes.NewMap(map[string]rtypes.Value{
		"path":   rtypes.NewString("test/**"),
		"method": rtypes.NewString("*"),
		"signal": rtypes.NewString("*"),
	})
	admin.send(rpcmsg.NewRequest(".broker/currentClient", "subscribe", 2, subParams))
	subResp := admin.recv()
	require.False(t, subResp.IsError())

	device.send(rpcmsg.NewSignal("temperature", "get", "chng", rtypes.NewInt(21)))

	signal := admin.recv()
	method, _ := signal.Method()
	assert.Equal(t, "get", method)
	assert.Equal(t, "test/device/temperature", signal.Path())
	assert.Equal(t, int64(21), signal.Value.Int())
}

// A second device attempting the same explicit mount point is rejected.
func TestSecondDeviceAtSameMountPointRejected(t *testing.T) {
	addr, _ := startTestBroker(t, testConfig(t))

	first := dialTestClient(t, addr)
	resp := first.login("device", "devicepass", "test/device", "dev-1")
	require.False(t, resp.IsError())

	second := dialTestClient(t, addr)
	resp = second.login("device", "devicepass", "test/device", "dev-2")
	require.True(t, resp.IsError())
	assert.Equal(t, rpcmsg.ErrMethodCallException, resp.ErrorCode())
}

// When the mounted destination disconnects mid-request, the caller's
// pending call is answered with "destination disconnected" rather than
// left hanging.
func TestPendingRequestAnsweredWhenDestinationDisconnects(t *testing.T) {
	addr, _ := startTestBroker(t, testConfig(t))

	device := dialTestClient(t, addr)
	resp := device.login("device", "devicepass", "test/device", "dev-1")
	require.False(t, resp.IsError())

	admin := dialTestClient(t, addr)
	resp = admin.login("admin", "adminpass", "", "")
	require.False(t, resp.IsError())

	admin.send(rpcmsg.NewRequest("test/device/status", "get", 2, rtypes.Null()))

	// Give the router a moment to route the forwarded request onto the
	// device's pending table before it disappears.
	time.Sleep(50 * time.Millisecond)
	device.conn.Close()

	errResp := admin.recv()
	require.True(t, errResp.IsError())
	assert.Equal(t, rpcmsg.ErrMethodCallException, errResp.ErrorCode())
	assert.Equal(t, "destination disconnected", errResp.ErrorMessage())
}
