package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shv.dev/broker/internal/config"
	"shv.dev/broker/internal/rtypes"
)

func loginParams(user, password, typ, mountPoint, deviceID string) rtypes.Value {
	login := map[string]rtypes.Value{
		"user":     rtypes.NewString(user),
		"password": rtypes.NewString(password),
		"type":     rtypes.NewString(typ),
	}
	device := map[string]rtypes.Value{
		"mountPoint": rtypes.NewString(mountPoint),
		"deviceId":   rtypes.NewString(deviceID),
	}
	options := map[string]rtypes.Value{
		"device": rtypes.NewMap(device),
	}
	return rtypes.NewMap(map[string]rtypes.Value{
		"login":   rtypes.NewMap(login),
		"options": rtypes.NewMap(options),
	})
}

func TestParseLoginRequestExtractsFields(t *testing.T) {
	lr, err := parseLoginRequest(loginParams("alice", "secret", LoginPlain, "devices/sensor1", "sensor-1"))
	require.NoError(t, err)
	assert.Equal(t, "alice", lr.User)
	assert.Equal(t, "secret", lr.Password)
	assert.Equal(t, LoginPlain, lr.Type)
	assert.Equal(t, "devices/sensor1", lr.DeviceMountPoint)
	assert.Equal(t, "sensor-1", lr.DeviceID)
}

func TestParseLoginRequestDefaultsTypeToSHA1(t *testing.T) {
	lr, err := parseLoginRequest(loginParams("alice", "secret", "", "", ""))
	require.NoError(t, err)
	assert.Equal(t, LoginSHA1, lr.Type)
}

func TestParseLoginRequestRejectsNonMap(t *testing.T) {
	_, err := parseLoginRequest(rtypes.NewString("not a map"))
	assert.Error(t, err)
}

func TestVerifyCredentialsPlain(t *testing.T) {
	user := config.UserConfig{Password: "secret"}
	assert.True(t, verifyCredentials(user, "nonce", loginRequestOf(LoginPlain, "secret")))
	assert.False(t, verifyCredentials(user, "nonce", loginRequestOf(LoginPlain, "wrong")))
}

func TestVerifyCredentialsSHA1ChallengeResponse(t *testing.T) {
	user := config.UserConfig{Password: "secret"}
	nonce := "abc123"
	stored := sha1hex("secret")
	response := sha1hex(nonce + stored)
	assert.True(t, verifyCredentials(user, nonce, loginRequestOf(LoginSHA1, response)))
	assert.False(t, verifyCredentials(user, nonce, loginRequestOf(LoginSHA1, "bogus")))
}

func TestVerifyCredentialsTokenRequiresNoStoredPassword(t *testing.T) {
	connectOnly := config.UserConfig{}
	assert.True(t, verifyCredentials(connectOnly, "nonce", loginRequestOf(LoginToken, "any-token")))

	withPassword := config.UserConfig{Password: "secret"}
	assert.False(t, verifyCredentials(withPassword, "nonce", loginRequestOf(LoginToken, "any-token")))
}

func loginRequestOf(typ, password string) loginRequest {
	return loginRequest{Type: typ, Password: password}
}

func TestExpandMountPointSubstitutions(t *testing.T) {
	assert.Equal(t, "devices/sensor1", expandMountPoint("devices/%d", "sensor1", "device", "alice", 0))
	assert.Equal(t, "devices/sensor1", expandMountPoint("devices/sensor1%i", "sensor1", "device", "alice", 0))
	assert.Equal(t, "devices/sensor12", expandMountPoint("devices/sensor1%i", "sensor1", "device", "alice", 2))
	assert.Equal(t, "devices/sensor10", expandMountPoint("devices/sensor1%I", "sensor1", "device", "alice", 0))
	assert.Equal(t, "test/role/alice", expandMountPoint("test/%r/%u", "sensor1", "role", "alice", 0))
	assert.Equal(t, "100%", expandMountPoint("100%%", "", "", "", 0))
}

func TestMatchAutoSetupFirstMatchingRule(t *testing.T) {
	rules := []config.AutoSetupRule{
		{DeviceID: []string{"sensor-*"}, Roles: []string{"device"}, MountPoint: "devices/%d"},
		{DeviceID: []string{"*"}, MountPoint: "devices/other/%d"},
	}
	rule, ok := matchAutoSetup(rules, "sensor-1", []string{"device"})
	require.True(t, ok)
	assert.Equal(t, "devices/%d", rule.MountPoint)

	rule, ok = matchAutoSetup(rules, "gateway-1", []string{"device"})
	require.True(t, ok)
	assert.Equal(t, "devices/other/%d", rule.MountPoint)
}

func TestMatchAutoSetupNoMatch(t *testing.T) {
	_, ok := matchAutoSetup([]config.AutoSetupRule{{DeviceID: []string{"sensor-*"}}}, "gateway-1", nil)
	assert.False(t, ok)
}
