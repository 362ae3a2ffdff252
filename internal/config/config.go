// Package config loads the lip sync configuration.
//
// Values are resolved by viper in precedence order: command-line flags bound
// with BindFlags, LIPSYNC_* environment variables, the YAML config file, then
// defaults. The config file is either given explicitly or read from
// $XDG_CONFIG_HOME/go-lipsync/config.yaml when it exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/alnah/go-lipsync/internal/lipsync"
)

// Config keys.
const (
	KeyScratchDir  = "scratch-dir"
	KeyWindow      = "window"
	KeyMinSegment  = "min-segment"
	KeyParallel    = "parallel"
	KeyToolTimeout = "tool-timeout"
	KeyFFmpegPath  = "ffmpeg-path"
	KeyFFprobePath = "ffprobe-path"
	KeyRhubarbPath = "rhubarb-path"
	KeyRecognizer  = "recognizer"
	KeyExtShapes   = "extended-shapes"
	KeyListen      = "listen"
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
)

// EnvPrefix prefixes environment variables: window is LIPSYNC_WINDOW.
const EnvPrefix = "LIPSYNC"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// extendedShapes are the optional rhubarb shapes beyond A-F.
const extendedShapes = "GHX"

const (
	appDir   = "go-lipsync"
	fileName = "config.yaml"
)

// Config is the effective configuration.
type Config struct {
	ScratchDir  string
	Window      time.Duration
	MinSegment  time.Duration
	Parallel    int
	ToolTimeout time.Duration
	FFmpegPath  string
	FFprobePath string
	RhubarbPath string
	Recognizer  string
	// ExtendedShapes lists the extended shapes rhubarb may use, e.g. "GX".
	// Empty keeps rhubarb's default (all of G, H and X).
	ExtendedShapes string
	Listen         string
	LogLevel       string
	LogFormat      string
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Window:      30 * time.Second,
		MinSegment:  50 * time.Millisecond,
		Parallel:    runtime.NumCPU(),
		ToolTimeout: 2 * time.Minute,
		Recognizer:  lipsync.RecognizerPhonetic,
		Listen:      ":5000",
		LogLevel:    "info",
		LogFormat:   LogFormatText,
	}
}

// NewViper returns a viper instance carrying the defaults and bound to the
// LIPSYNC_* environment.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyScratchDir, d.ScratchDir)
	v.SetDefault(KeyWindow, d.Window)
	v.SetDefault(KeyMinSegment, d.MinSegment)
	v.SetDefault(KeyParallel, d.Parallel)
	v.SetDefault(KeyToolTimeout, d.ToolTimeout)
	v.SetDefault(KeyFFmpegPath, d.FFmpegPath)
	v.SetDefault(KeyFFprobePath, d.FFprobePath)
	v.SetDefault(KeyRhubarbPath, d.RhubarbPath)
	v.SetDefault(KeyRecognizer, d.Recognizer)
	v.SetDefault(KeyExtShapes, d.ExtendedShapes)
	v.SetDefault(KeyListen, d.Listen)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag of fs named after a config key.
// A flag set on the command line overrides every other source.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || !isKey(f.Name) {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})
	return err
}

func isKey(name string) bool {
	switch name {
	case KeyScratchDir, KeyWindow, KeyMinSegment, KeyParallel, KeyToolTimeout,
		KeyFFmpegPath, KeyFFprobePath, KeyRhubarbPath, KeyRecognizer, KeyExtShapes,
		KeyListen, KeyLogLevel, KeyLogFormat:
		return true
	}
	return false
}

// dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/go-lipsync.
func dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDir), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	d, err := dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, fileName), nil
}

// Load reads file into v and returns the validated effective configuration.
// An empty file selects the default path, which may be absent; an explicit
// file must exist.
func Load(v *viper.Viper, file string) (Config, error) {
	if file == "" {
		if p, err := Path(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				file = p
			}
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrConfigFile, file, err)
		}
	}

	cfg := Config{
		ScratchDir:     ExpandPath(v.GetString(KeyScratchDir)),
		Parallel:       v.GetInt(KeyParallel),
		FFmpegPath:     ExpandPath(v.GetString(KeyFFmpegPath)),
		FFprobePath:    ExpandPath(v.GetString(KeyFFprobePath)),
		RhubarbPath:    ExpandPath(v.GetString(KeyRhubarbPath)),
		Recognizer:     v.GetString(KeyRecognizer),
		ExtendedShapes: strings.ToUpper(v.GetString(KeyExtShapes)),
		Listen:         v.GetString(KeyListen),
		LogLevel:       strings.ToLower(v.GetString(KeyLogLevel)),
		LogFormat:      strings.ToLower(v.GetString(KeyLogFormat)),
	}
	var err error
	if cfg.Window, err = duration(v, KeyWindow); err != nil {
		return Config{}, err
	}
	if cfg.MinSegment, err = duration(v, KeyMinSegment); err != nil {
		return Config{}, err
	}
	if cfg.ToolTimeout, err = duration(v, KeyToolTimeout); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// duration reads key as a duration. Values from files and the environment
// must carry a unit: viper would read a bare 30 as 30ns.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	switch raw := v.Get(key).(type) {
	case time.Duration:
		return raw, nil
	case string:
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %q is not a duration with a unit, e.g. 30s or 1m", ErrInvalid, key, raw)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("%w: %s: %v is not a duration with a unit, e.g. 30s or 1m", ErrInvalid, key, raw)
	}
}

// Validate checks value ranges. Parallel is only checked for sign; the
// pipeline clamps it to the available cores.
func (c Config) Validate() error {
	switch {
	case c.Window <= 0:
		return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, KeyWindow, c.Window)
	case c.MinSegment < 0 || c.MinSegment >= c.Window:
		return fmt.Errorf("%w: %s must be in [0, %v), got %v", ErrInvalid, KeyMinSegment, c.Window, c.MinSegment)
	case c.Parallel < 0:
		return fmt.Errorf("%w: %s cannot be negative, got %d", ErrInvalid, KeyParallel, c.Parallel)
	case c.ToolTimeout < 0:
		return fmt.Errorf("%w: %s cannot be negative, got %v", ErrInvalid, KeyToolTimeout, c.ToolTimeout)
	case c.Listen == "":
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalid, KeyListen)
	}
	if c.Recognizer != lipsync.RecognizerPhonetic && c.Recognizer != lipsync.RecognizerPocketSphinx {
		return fmt.Errorf("%w: %s must be %q or %q, got %q", ErrInvalid, KeyRecognizer, lipsync.RecognizerPhonetic, lipsync.RecognizerPocketSphinx, c.Recognizer)
	}
	for i, r := range c.ExtendedShapes {
		if !strings.ContainsRune(extendedShapes, r) || strings.ContainsRune(c.ExtendedShapes[:i], r) {
			return fmt.Errorf("%w: %s must be distinct letters of %s, got %q", ErrInvalid, KeyExtShapes, extendedShapes, c.ExtendedShapes)
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, KeyLogLevel, err)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("%w: %s must be %q or %q, got %q", ErrInvalid, KeyLogFormat, LogFormatText, LogFormatJSON, c.LogFormat)
	}
	return nil
}

// fileView is the YAML layout of a config file.
type fileView struct {
	ScratchDir  string `yaml:"scratch-dir"`
	Window      string `yaml:"window"`
	MinSegment  string `yaml:"min-segment"`
	Parallel    int    `yaml:"parallel"`
	ToolTimeout string `yaml:"tool-timeout"`
	FFmpegPath  string `yaml:"ffmpeg-path"`
	FFprobePath string `yaml:"ffprobe-path"`
	RhubarbPath string `yaml:"rhubarb-path"`
	Recognizer  string `yaml:"recognizer"`
	ExtShapes   string `yaml:"extended-shapes"`
	Listen      string `yaml:"listen"`
	LogLevel    string `yaml:"log-level"`
	LogFormat   string `yaml:"log-format"`
}

// YAML renders c in config file layout, readable back by Load.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(fileView{
		ScratchDir:  c.ScratchDir,
		Window:      c.Window.String(),
		MinSegment:  c.MinSegment.String(),
		Parallel:    c.Parallel,
		ToolTimeout: c.ToolTimeout.String(),
		FFmpegPath:  c.FFmpegPath,
		FFprobePath: c.FFprobePath,
		RhubarbPath: c.RhubarbPath,
		Recognizer:  c.Recognizer,
		ExtShapes:   c.ExtendedShapes,
		Listen:      c.Listen,
		LogLevel:    c.LogLevel,
		LogFormat:   c.LogFormat,
	})
}

// ValidScratchDir checks that d exists, or can be created, and is writable.
func ValidScratchDir(d string) error {
	if d == "" {
		d = os.TempDir()
	}

	info, err := os.Stat(d)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(d, 0750); err != nil { // #nosec G301 -- user scratch dir
				return fmt.Errorf("cannot create directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", d)
	}

	f, err := os.CreateTemp(d, ".go-lipsync-write-test-*")
	if err != nil {
		return fmt.Errorf("directory is not writable: %w", err)
	}
	name := f.Name()
	closeErr := f.Close()
	_ = os.Remove(name)
	if closeErr != nil {
		return fmt.Errorf("directory is not writable: %w", closeErr)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, p[2:])
	}
	return p
}
