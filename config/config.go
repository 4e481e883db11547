// Package config resolves the settings of a lookup run.
//
// Values are merged, lowest precedence first, from built-in defaults, an
// optional YAML file (--config), PERCEPTIVE_* environment variables and
// command-line flags. The resulting Config is a plain value and is not
// changed after Load returns.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"perceptive/fetcher"
	"perceptive/lookup"
)

// Setting keys, shared by flags, the config file and environment variables
const (
	KeyGateway        = "ipfs_gateway"
	KeyServer         = "ipfs_server"
	KeyForceGateway   = "force_gateway"
	KeyIndexPath      = "index_path"
	KeyLocalIndex     = "local_index"
	KeyExportIndex    = "export_index"
	KeyDistance       = "distance"
	KeyGatewayTimeout = "gateway_timeout"
	KeyDaemonTimeout  = "daemon_timeout"
	KeyHasher         = "hasher"
	KeyDebug          = "debug"
	KeyLogFile        = "logfile"
)

// EnvPrefix prefixes environment variable overrides, e.g. PERCEPTIVE_IPFS_SERVER
const EnvPrefix = "PERCEPTIVE"

// Config holds every setting of a run
type Config struct {
	// GatewayURL is the IPFS HTTP gateway. It is also the fallback when a daemon is used.
	GatewayURL string

	// DaemonAddr is the IPFS daemon RPC address; empty means gateway only
	DaemonAddr string

	// ForceGateway ignores DaemonAddr
	ForceGateway bool

	// IndexPath is the network path of the index, used when LocalIndex is empty
	IndexPath string

	// LocalIndex is a JSON or sqlite index file
	LocalIndex string

	// ExportIndex, if set, receives a sqlite copy of the resolved index
	ExportIndex string

	MaxDistance    int
	GatewayTimeout time.Duration
	DaemonTimeout  time.Duration

	// Hasher selects the perceptual hash implementation (gocv or goimagehash)
	Hasher string

	Debug   bool
	LogFile string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		GatewayURL:     "http://gateway.ipfs.io",
		IndexPath:      "/ipns/QmRW2PTGpWk2X5sDbAvyDLV8668skcF8ADr1FcaP8VtC1q",
		MaxDistance:    8,
		GatewayTimeout: 15 * time.Second,
		DaemonTimeout:  30 * time.Second,
		Hasher:         "gocv",
		LogFile:        "perceptive.log",
	}
}

// DefaultDaemonAddr is suggested in usage text for --ipfs_server
const DefaultDaemonAddr = "127.0.0.1:5001"

// Load merges the config file (if any), environment and the flags in fs
func Load(configFile string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault(KeyGateway, def.GatewayURL)
	v.SetDefault(KeyServer, def.DaemonAddr)
	v.SetDefault(KeyForceGateway, def.ForceGateway)
	v.SetDefault(KeyIndexPath, def.IndexPath)
	v.SetDefault(KeyLocalIndex, def.LocalIndex)
	v.SetDefault(KeyExportIndex, def.ExportIndex)
	v.SetDefault(KeyDistance, def.MaxDistance)
	v.SetDefault(KeyGatewayTimeout, def.GatewayTimeout)
	v.SetDefault(KeyDaemonTimeout, def.DaemonTimeout)
	v.SetDefault(KeyHasher, def.Hasher)
	v.SetDefault(KeyDebug, def.Debug)
	v.SetDefault(KeyLogFile, def.LogFile)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("cannot read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil && isKey(f.Name) {
				bindErr = v.BindPFlag(f.Name, f)
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("cannot bind flags: %w", bindErr)
		}
	}

	cfg := Config{
		GatewayURL:     v.GetString(KeyGateway),
		DaemonAddr:     v.GetString(KeyServer),
		ForceGateway:   v.GetBool(KeyForceGateway),
		IndexPath:      v.GetString(KeyIndexPath),
		LocalIndex:     v.GetString(KeyLocalIndex),
		ExportIndex:    v.GetString(KeyExportIndex),
		MaxDistance:    v.GetInt(KeyDistance),
		GatewayTimeout: v.GetDuration(KeyGatewayTimeout),
		DaemonTimeout:  v.GetDuration(KeyDaemonTimeout),
		Hasher:         v.GetString(KeyHasher),
		Debug:          v.GetBool(KeyDebug),
		LogFile:        v.GetString(KeyLogFile),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no run could use
func (c Config) Validate() error {
	if c.MaxDistance < 0 {
		return fmt.Errorf("distance must not be negative, got %d", c.MaxDistance)
	}
	if c.GatewayTimeout <= 0 || c.DaemonTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.GatewayURL == "" && (c.DaemonAddr == "" || c.ForceGateway) {
		return fmt.Errorf("no IPFS gateway configured")
	}
	if c.LocalIndex == "" && c.IndexPath == "" {
		return fmt.Errorf("either a local index or an index path is required")
	}
	return nil
}

// Fetcher returns the settings of the content fetcher
func (c Config) Fetcher() fetcher.Config {
	return fetcher.Config{
		DaemonAddr:     c.DaemonAddr,
		GatewayURL:     c.GatewayURL,
		ForceGateway:   c.ForceGateway,
		GatewayTimeout: c.GatewayTimeout,
		DaemonTimeout:  c.DaemonTimeout,
	}
}

// Lookup returns the settings of the orchestrator
func (c Config) Lookup() lookup.Config {
	return lookup.Config{
		IndexPath:   c.IndexPath,
		LocalIndex:  c.LocalIndex,
		ExportIndex: c.ExportIndex,
		MaxDistance: c.MaxDistance,
	}
}

func isKey(name string) bool {
	switch name {
	case KeyGateway, KeyServer, KeyForceGateway, KeyIndexPath, KeyLocalIndex, KeyExportIndex,
		KeyDistance, KeyGatewayTimeout, KeyDaemonTimeout, KeyHasher, KeyDebug, KeyLogFile:
		return true
	}
	return false
}
