// Package config loads the broker's TOML configuration using viper: one
// typed root struct populated via mapstructure, defaults seeded before
// unmarshal, validation afterward.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// AccessLevel ranks the broker's named access levels.
type AccessLevel int

// Named access levels, ordered bws < rd < wr < cmd < cfg < srv < ssrv < dev < su.
const (
	AccessBrowse AccessLevel = 1
	AccessRead   AccessLevel = 8
	AccessWrite  AccessLevel = 16
	AccessCmd    AccessLevel = 24
	AccessConfig AccessLevel = 32
	AccessServ   AccessLevel = 40
	AccessSuperServ AccessLevel = 48
	AccessDev    AccessLevel = 56
	AccessSu     AccessLevel = 63
)

var accessLevelNames = map[string]AccessLevel{
	"bws":  AccessBrowse,
	"rd":   AccessRead,
	"wr":   AccessWrite,
	"cmd":  AccessCmd,
	"cfg":  AccessConfig,
	"srv":  AccessServ,
	"ssrv": AccessSuperServ,
	"dev":  AccessDev,
	"su":   AccessSu,
}

// ParseAccessLevel resolves an access-level name to its numeric rank.
func ParseAccessLevel(name string) (AccessLevel, bool) {
	lvl, ok := accessLevelNames[name]
	return lvl, ok
}

// GlobalConfig is the top-level broker configuration.
type GlobalConfig struct {
	Name      string                  `mapstructure:"name"`
	Listen    []string                `mapstructure:"listen"`
	Connect   []ConnectConfig         `mapstructure:"connect"`
	User      map[string]UserConfig   `mapstructure:"user"`
	Role      map[string]RoleConfig   `mapstructure:"role"`
	AutoSetup []AutoSetupRule         `mapstructure:"autosetup"`
	Log       LogConfig               `mapstructure:"log"`
	Control   ControlConfig           `mapstructure:"control"`
}

// ConnectConfig describes one outbound ("connect") peer.
type ConnectConfig struct {
	URL           string   `mapstructure:"url"`
	Role          []string `mapstructure:"role"`
	MountPoint    string   `mapstructure:"mountPoint"`
	Subscriptions []string `mapstructure:"subscriptions"`
}

// UserConfig describes one statically configured user.
type UserConfig struct {
	Password string   `mapstructure:"password"`
	SHA1Pass string   `mapstructure:"sha1pass"`
	Role     []string `mapstructure:"role"`
}

// RoleConfig maps access levels to RI patterns and restricts mount points.
type RoleConfig struct {
	Access      map[string][]string `mapstructure:"access"`
	MountPoints []string            `mapstructure:"mountPoints"`
}

// AutoSetupRule is one entry of the ordered autosetup[] table.
type AutoSetupRule struct {
	DeviceID      []string `mapstructure:"deviceId"`
	Roles         []string `mapstructure:"roles"`
	MountPoint    string   `mapstructure:"mountPoint"`
	Subscriptions []string `mapstructure:"subscriptions"`
}

// ControlConfig configures the process-level admin plane (internal/control),
// not part of the SHV wire protocol.
type ControlConfig struct {
	Socket string `mapstructure:"socket"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Outputs []LogOutputConfig `mapstructure:"outputs"`
}

// LogOutputConfig is one sink: either "console" or a rotating "file".
type LogOutputConfig struct {
	Type     string         `mapstructure:"type"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures lumberjack.v2 log rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// Load reads path as TOML and returns a validated GlobalConfig.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("control.socket", "/var/run/shvbrokerd.sock")
}

// Validate enforces the schema invariants: known log level and format, at
// least one listen or connect entry, known access-level names in every
// role, and a mountPoint on every autosetup rule. Role names referenced by
// users, connect entries, and autosetup rules are not checked.
func (cfg *GlobalConfig) Validate() error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("invalid log.level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("invalid log.format %q", cfg.Log.Format)
	}
	if len(cfg.Listen) == 0 && len(cfg.Connect) == 0 {
		return fmt.Errorf("at least one listen[] or connect[] entry is required")
	}
	for name, role := range cfg.Role {
		for levelName := range role.Access {
			if _, ok := ParseAccessLevel(levelName); !ok {
				return fmt.Errorf("role %q: unknown access level %q", name, levelName)
			}
		}
	}
	for i, rule := range cfg.AutoSetup {
		if rule.MountPoint == "" {
			return fmt.Errorf("autosetup[%d]: mountPoint is required", i)
		}
	}
	return nil
}

// SortedRoleNames returns the configured role names in deterministic
// (lexical) order.
func (cfg *GlobalConfig) SortedRoleNames() []string {
	names := make([]string, 0, len(cfg.Role))
	for n := range cfg.Role {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
