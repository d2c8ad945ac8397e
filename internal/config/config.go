package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harshul/devharness/internal/logger"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// FileName is the optional per-project configuration file.
const FileName = "devharness.yaml"

// Config is the harness configuration. It is loaded per command invocation
// and passed down explicitly; nothing keeps a copy across mode switches.
type Config struct {
	Root       string               `mapstructure:"root"`
	ModeFile   string               `mapstructure:"mode_file"`
	PIDDir     string               `mapstructure:"pid_dir"`
	LogDir     string               `mapstructure:"log_dir"`
	TrackerDir string               `mapstructure:"tracker_dir"`
	Vite       Vite                 `mapstructure:"vite"`
	NextJS     NextJS               `mapstructure:"nextjs"`
	Commands   Commands             `mapstructure:"commands"`
	Timeouts   Timeouts             `mapstructure:"timeouts"`
	Logging    logger.LoggingConfig `mapstructure:"logging"`
}

// Vite describes the Vite dev server and its companion API server.
type Vite struct {
	Dir        string `mapstructure:"dir"`
	DevCommand string `mapstructure:"dev_command"`
	APIDir     string `mapstructure:"api_dir"`
	APICommand string `mapstructure:"api_command"`
}

// NextJS describes the single Next.js server.
type NextJS struct {
	Dir        string `mapstructure:"dir"`
	DevCommand string `mapstructure:"dev_command"`
}

// Commands are optional external commands. Empty means "use the built-in path".
type Commands struct {
	Stop string `mapstructure:"stop"`
	// Switch may contain {library} and {version} placeholders, e.g. "make react-{version}".
	Switch string `mapstructure:"switch"`
}

// Timeouts bounds every blocking operation.
type Timeouts struct {
	Probe       time.Duration `mapstructure:"probe"`
	Connect     time.Duration `mapstructure:"connect"`
	Start       time.Duration `mapstructure:"start"`
	SwitchStart time.Duration `mapstructure:"switch_start"`
	Install     time.Duration `mapstructure:"install"`
	Command     time.Duration `mapstructure:"command"`
	Settle      time.Duration `mapstructure:"settle"`
	KillGrace   time.Duration `mapstructure:"kill_grace"`
}

// Load reads configuration for the project rooted at root. configFile may be
// empty, in which case <root>/devharness.yaml is used if it exists.
func Load(root, configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DEVHARNESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if root == "" {
		root = v.GetString("root")
	}
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}

	if configFile != "" {
		expanded, err := homedir.Expand(configFile)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Root = root
	return &cfg, nil
}

// Default returns the built-in configuration for root without touching disk.
func Default(root string) *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.Root = root
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", ".")
	v.SetDefault("mode_file", ".framework-mode")
	v.SetDefault("pid_dir", ".pids")
	v.SetDefault("log_dir", ".logs")
	v.SetDefault("tracker_dir", ".devharness/readiness")

	v.SetDefault("vite.dir", "frameworks/vite-react")
	v.SetDefault("vite.dev_command", "npm run dev -- --port 5173 --strictPort")
	v.SetDefault("vite.api_dir", ".")
	v.SetDefault("vite.api_command", "node server.js")

	v.SetDefault("nextjs.dir", "frameworks/nextjs")
	v.SetDefault("nextjs.dev_command", "npm run dev -- -p 3000")

	v.SetDefault("commands.stop", "")
	v.SetDefault("commands.switch", "")

	v.SetDefault("timeouts.probe", 5*time.Second)
	v.SetDefault("timeouts.connect", 500*time.Millisecond)
	v.SetDefault("timeouts.start", 60*time.Second)
	v.SetDefault("timeouts.switch_start", 120*time.Second)
	v.SetDefault("timeouts.install", 5*time.Minute)
	v.SetDefault("timeouts.command", 30*time.Second)
	v.SetDefault("timeouts.settle", 2*time.Second)
	v.SetDefault("timeouts.kill_grace", time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output_path", "stderr")
}

func resolveRoot(root string) (string, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("project root %s is not a directory", abs)
	}
	return abs, nil
}

// Path resolves p against the project root unless it is already absolute.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ModePath is the absolute location of the framework-mode flag file.
func (c *Config) ModePath() string { return c.Path(c.ModeFile) }

// PIDPath is the absolute PID record directory.
func (c *Config) PIDPath() string { return c.Path(c.PIDDir) }

// LogPath is the absolute server log directory.
func (c *Config) LogPath() string { return c.Path(c.LogDir) }

// TrackerPath is the absolute readiness handoff directory.
func (c *Config) TrackerPath() string { return c.Path(c.TrackerDir) }
