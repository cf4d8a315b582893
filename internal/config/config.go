// Package config loads CLI settings from defaults, an optional config file,
// UPDATECHECK_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/git-pkgs/updatecheck/internal/core"
)

const envPrefix = "UPDATECHECK"

// Keys
const (
	KeyDistTag       = "dist_tag"
	KeyCheckInterval = "check_interval"
	KeyMetaDir       = "meta_dir"
	KeyRegistry      = "registry"
	KeyTimeout       = "timeout"
	KeyApplyOwner    = "apply_owner"
	KeyConcurrency   = "concurrency"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyLogFile       = "log.file"
	KeyLogMaxSize    = "log.max_size"
	KeyLogMaxBackups = "log.max_backups"
	KeyLogCompress   = "log.compress"
)

// Config holds the resolved settings.
type Config struct {
	DistTag       string        `mapstructure:"dist_tag"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	MetaDir       string        `mapstructure:"meta_dir"`
	Registry      string        `mapstructure:"registry"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ApplyOwner    bool          `mapstructure:"apply_owner"`
	Concurrency   int           `mapstructure:"concurrency"`
	Log           LogConfig     `mapstructure:"log"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// Options controls where Load looks for settings.
type Options struct {
	// File is an optional config file; its format follows the extension.
	File string

	// Flags are bound by name. Flag "dist-tag" binds key "dist_tag" and
	// "log-level" binds "log.level".
	Flags *pflag.FlagSet
}

// Load resolves the configuration and validates it.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", opts.File, err)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDistTag, core.DefaultDistTag)
	v.SetDefault(KeyCheckInterval, "1h")
	v.SetDefault(KeyMetaDir, filepath.Join(os.TempDir(), "updatecheck"))
	v.SetDefault(KeyRegistry, "")
	v.SetDefault(KeyTimeout, "10s")
	v.SetDefault(KeyApplyOwner, true)
	v.SetDefault(KeyConcurrency, 15)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSize, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyLogCompress, false)
}

var flagAliases = map[string]string{
	"interval": KeyCheckInterval,
}

// flagKey maps a flag name to its config key.
func flagKey(name string) string {
	if key, ok := flagAliases[name]; ok {
		return key
	}
	if rest, ok := strings.CutPrefix(name, "log-"); ok {
		return "log." + strings.ReplaceAll(rest, "-", "_")
	}
	return strings.ReplaceAll(name, "-", "_")
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := flagKey(f.Name)
		if !v.IsSet(key) {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("binding flag --%s: %w", f.Name, bindErr)
		}
	})
	return err
}

// durationDecodeHook accepts Go duration strings ("90s", "1h30m") and bare
// numbers, which are read as milliseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	target := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return time.Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed, nil
			}
			if ms, err := strconv.ParseFloat(v, 64); err == nil {
				return millis(ms), nil
			}
			return nil, fmt.Errorf("invalid duration %q", v)
		case int:
			return time.Duration(v) * time.Millisecond, nil
		case int64:
			return time.Duration(v) * time.Millisecond, nil
		case uint64:
			return time.Duration(v) * time.Millisecond, nil
		case float64:
			return millis(v), nil
		case time.Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type %T", v)
		}
	}
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
