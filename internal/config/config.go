// Package config loads serialshare settings from file, environment and
// defaults using viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Station-Manager/serialshare"
	"github.com/Station-Manager/serialshare/admin"
	"github.com/Station-Manager/serialshare/com0com"
	"github.com/Station-Manager/serialshare/internal/logging"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SERIALSHARE"
	fileName  = "serialshare"
)

type Config struct {
	Serial SerialConfig   `mapstructure:"serial"`
	Driver DriverConfig   `mapstructure:"driver"`
	Admin  AdminConfig    `mapstructure:"admin"`
	Hub    HubConfig      `mapstructure:"hub"`
	Log    logging.Config `mapstructure:"log"`

	// File is the absolute path of the config file that was read, empty when
	// none was found.
	File string `mapstructure:"-"`
}

// SerialConfig holds the line settings in the form users write them.
type SerialConfig struct {
	Baud        int           `mapstructure:"baud"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    float64       `mapstructure:"stop_bits"`
	FlowControl string        `mapstructure:"flow_control"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	DTR         bool          `mapstructure:"dtr"`
	RTS         bool          `mapstructure:"rts"`
}

type DriverConfig struct {
	// SetupcPaths are probed before the default install locations.
	SetupcPaths []string      `mapstructure:"setupc_paths"`
	COMFloor    int           `mapstructure:"com_floor"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AdminConfig struct {
	Addr            string        `mapstructure:"addr"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectInterval time.Duration `mapstructure:"connect_interval"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ConnTimeout     time.Duration `mapstructure:"conn_timeout"`

	// LogFile is where the elevated service logs; it has no console.
	LogFile string `mapstructure:"log_file"`
}

type HubConfig struct {
	Paths []string `mapstructure:"paths"`
}

func setDefaults(v *viper.Viper) {
	def := serialshare.DefaultSessionConfig("")
	v.SetDefault("serial.baud", def.BaudRate)
	v.SetDefault("serial.data_bits", def.DataBits)
	v.SetDefault("serial.parity", def.Parity.String())
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.flow_control", def.FlowControl.String())
	v.SetDefault("serial.read_timeout", def.ReadTimeout)
	v.SetDefault("serial.dtr", def.DTR)
	v.SetDefault("serial.rts", def.RTS)

	v.SetDefault("driver.setupc_paths", []string{})
	v.SetDefault("driver.com_floor", com0com.DefaultCOMFloor)
	v.SetDefault("driver.timeout", 2*time.Minute)

	v.SetDefault("admin.addr", admin.DefaultAddr)
	v.SetDefault("admin.connect_attempts", admin.DefaultConnectAttempts)
	v.SetDefault("admin.connect_interval", admin.DefaultConnectInterval)
	v.SetDefault("admin.poll_interval", admin.DefaultPollInterval)
	v.SetDefault("admin.conn_timeout", admin.DefaultConnTimeout)
	v.SetDefault("admin.log_file", filepath.Join(os.TempDir(), "serialshare-admin.log"))

	v.SetDefault("hub.paths", []string{})

	lc := logging.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.console", lc.Console)
	v.SetDefault("log.file", lc.File)
	v.SetDefault("log.max_size_mb", lc.MaxSizeMB)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age_days", lc.MaxAgeDays)
}

// Load reads file, or serialshare.yaml from the working directory or the
// user config directory when file is empty. A missing default file is not an
// error. SERIALSHARE_* environment variables override file values, e.g.
// SERIALSHARE_SERIAL_BAUD.
func Load(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, fileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		if abs, err := filepath.Abs(used); err == nil {
			used = abs
		}
		cfg.File = used
	}
	return &cfg, nil
}

// SessionConfig converts the line settings for opening port.
func (c SerialConfig) SessionConfig(port string) (serialshare.SessionConfig, error) {
	parity, err := serialshare.ParseParity(c.Parity)
	if err != nil {
		return serialshare.SessionConfig{}, err
	}
	stop, err := serialshare.ParseStopBits(c.StopBits)
	if err != nil {
		return serialshare.SessionConfig{}, err
	}
	flow, err := serialshare.ParseFlowControl(c.FlowControl)
	if err != nil {
		return serialshare.SessionConfig{}, err
	}

	cfg := serialshare.SessionConfig{
		PortName:    port,
		BaudRate:    c.Baud,
		DataBits:    c.DataBits,
		Parity:      parity,
		StopBits:    stop,
		FlowControl: flow,
		ReadTimeout: c.ReadTimeout,
		DTR:         c.DTR,
		RTS:         c.RTS,
	}
	if err = serialshare.ValidateConfig(&cfg); err != nil {
		return serialshare.SessionConfig{}, err
	}
	return cfg, nil
}

// ClientConfig is the admin client configuration for token. A relaunched
// service is pointed at the same config file so it sees the same setupc
// paths and log file.
func (c *Config) ClientConfig(token string) admin.ClientConfig {
	cc := admin.ClientConfig{
		Addr:            c.Admin.Addr,
		Token:           token,
		ConnectAttempts: c.Admin.ConnectAttempts,
		ConnectInterval: c.Admin.ConnectInterval,
	}
	if c.File != "" {
		cc.ServiceArgs = []string{"--config", c.File}
	}
	return cc
}
