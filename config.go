package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. OPENDRIVE_TCP_PORT.
const EnvPrefix = "OPENDRIVE"

// Config is the complete service configuration.
type Config struct {
	TCP       TCPConfig       `mapstructure:"tcp"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Synthetic SyntheticConfig `mapstructure:"synthetic"`
	Geo       GeoConfig       `mapstructure:"geo"`
	Log       LogConfig       `mapstructure:"log"`
}

// TCPConfig is the producer endpoint.
type TCPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns host:port.
func (c TCPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HTTPConfig is the observer-facing web server.
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	StaticDir       string        `mapstructure:"static_dir"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SyntheticConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// GeoConfig anchors the local frame for the GTFS-RT export.
type GeoConfig struct {
	OriginLat float64 `mapstructure:"origin_lat"`
	OriginLon float64 `mapstructure:"origin_lon"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tcp.host", "0.0.0.0")
	v.SetDefault("tcp.port", 5000)
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.static_dir", "./static")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("synthetic.interval", syntheticInterval)
	v.SetDefault("geo.origin_lat", 0.0)
	v.SetDefault("geo.origin_lon", 0.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// addFlags declares the serve flags. Flag names match config keys.
func addFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML configuration file")
	fs.String("tcp.host", "0.0.0.0", "Producer listen host")
	fs.Int("tcp.port", 5000, "Producer listen port")
	fs.Int("http.port", 8000, "HTTP port")
	fs.String("http.static_dir", "./static", "Directory served at /static/ and /")
	fs.Duration("http.shutdown_timeout", 10*time.Second, "HTTP server shutdown timeout")
	fs.Duration("synthetic.interval", syntheticInterval, "Synthetic trace tick period")
	fs.Float64("geo.origin_lat", 0, "Latitude of the local frame origin")
	fs.Float64("geo.origin_lon", 0, "Longitude of the local frame origin")
	fs.String("log.level", "info", "Log level (debug, info, warn, error)")
	fs.String("log.format", "json", "Log format (json, console)")
}

// loadConfig resolves flags, environment, config file and defaults, in that
// order of precedence.
func loadConfig(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.TCP.Port < 1 || c.TCP.Port > 65535 {
		errs = append(errs, fmt.Errorf("tcp.port %d outside [1, 65535]", c.TCP.Port))
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d outside [1, 65535]", c.HTTP.Port))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	if c.Synthetic.Interval <= 0 {
		errs = append(errs, errors.New("synthetic.interval must be positive"))
	}
	if c.Geo.OriginLat < -90 || c.Geo.OriginLat > 90 {
		errs = append(errs, fmt.Errorf("geo.origin_lat %v outside [-90, 90]", c.Geo.OriginLat))
	}
	if c.Geo.OriginLon < -180 || c.Geo.OriginLon > 180 {
		errs = append(errs, fmt.Errorf("geo.origin_lon %v outside [-180, 180]", c.Geo.OriginLon))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}
