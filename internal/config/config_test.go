package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTmpConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "shvbrokerd.toml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTmpConfig(t, `
name = "broker1"
listen = ["tcp://[::]:3755"]

[user.admin]
password = "admin!123"
role = ["admin"]

[role.admin]
mountPoints = ["**"]
[role.admin.access]
su = ["**:*:*"]
`))
	require.NoError(t, err)
	assert.Equal(t, "broker1", cfg.Name)
	assert.Equal(t, []string{"tcp://[::]:3755"}, cfg.Listen)
	assert.Equal(t, "admin!123", cfg.User["admin"].Password)
	assert.Equal(t, []string{"**"}, cfg.Role["admin"].MountPoints)
	assert.Equal(t, "info", cfg.Log.Level) // default applied
}

func TestValidateRejectsUnknownAccessLevel(t *testing.T) {
	cfg := &GlobalConfig{
		Listen: []string{"tcp://[::]:3755"},
		Role: map[string]RoleConfig{
			"x": {Access: map[string][]string{"bogus": {"**:*:*"}}},
		},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "unknown access level")
}

func TestValidateRequiresListenOrConnect(t *testing.T) {
	cfg := &GlobalConfig{}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "listen")
}

func TestAccessLevelOrdering(t *testing.T) {
	assert.Less(t, int(AccessBrowse), int(AccessRead))
	assert.Less(t, int(AccessRead), int(AccessWrite))
	assert.Less(t, int(AccessWrite), int(AccessCmd))
	assert.Less(t, int(AccessCmd), int(AccessConfig))
	assert.Less(t, int(AccessConfig), int(AccessServ))
	assert.Less(t, int(AccessServ), int(AccessSuperServ))
	assert.Less(t, int(AccessSuperServ), int(AccessDev))
	assert.Less(t, int(AccessDev), int(AccessSu))
}

func TestAutoSetupRequiresMountPoint(t *testing.T) {
	cfg := &GlobalConfig{
		Listen:    []string{"tcp://[::]:3755"},
		AutoSetup: []AutoSetupRule{{DeviceID: []string{"*"}}},
	}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "mountPoint")
}
