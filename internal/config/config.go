package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	appdefaults "github.com/saker-ai/vrchat-bridge/config"
	"github.com/saker-ai/vrchat-bridge/internal/logger"
)

// SystemConfig holds the listen address pieces.
type SystemConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// OSCConfig is the downstream VRChat OSC receiver.
type OSCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// QuotaWindow is one (limit, window) pair for a category.
type QuotaWindow struct {
	Limit         int `mapstructure:"limit"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

// QuotaConfig maps categories to their window sets.
type QuotaConfig struct {
	FailOpen   bool                     `mapstructure:"fail_open"`
	Categories map[string][]QuotaWindow `mapstructure:"categories"`
}

// CaptureConfig bounds and shapes audio capture.
type CaptureConfig struct {
	MaxDurationSeconds int    `mapstructure:"max_duration_seconds"`
	GraceSeconds       int    `mapstructure:"grace_seconds"`
	SampleRate         int    `mapstructure:"sample_rate"`
	Channels           int    `mapstructure:"channels"`
	TranscriberURL     string `mapstructure:"transcriber_url"`
	TranscriberRate    int    `mapstructure:"transcriber_rate"`
	OpusBitrate        int    `mapstructure:"opus_bitrate"`
}

// AuditConfig locates the append-only audit sink.
type AuditConfig struct {
	Dir    string `mapstructure:"dir"`
	Buffer int    `mapstructure:"buffer"`
}

// Config is the full process configuration, immutable after Load.
type Config struct {
	RootDir        string        `mapstructure:"-"`
	HTTPAddr       string        `mapstructure:"http_addr"`
	AuthToken      string        `mapstructure:"auth_token"`
	MaxMoveSeconds float64       `mapstructure:"max_move_seconds"`
	Whitelist      []string      `mapstructure:"whitelist"`
	TLSCertPath    string        `mapstructure:"tls_cert_path"`
	TLSKeyPath     string        `mapstructure:"tls_key_path"`
	TLSDisable     bool          `mapstructure:"tls_disable"`
	SystemConfig   SystemConfig  `mapstructure:"system_config"`
	OSC            OSCConfig     `mapstructure:"osc"`
	Quota          QuotaConfig   `mapstructure:"quota"`
	Capture        CaptureConfig `mapstructure:"capture"`
	Audit          AuditConfig   `mapstructure:"audit"`
	Log            logger.Config `mapstructure:"log"`
}

// Load reads the embedded defaults, merges conf.yaml from the root dir if
// present, and applies BRIDGE_* environment overrides.
func Load() (Config, error) {
	rootDir, err := resolveRootDir()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigName("conf")
	v.SetConfigType("yaml")
	v.AddConfigPath(rootDir)

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	setDefaults(v)

	v.SetEnvPrefix("bridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	return finish(v, rootDir)
}

// LoadFile reads configuration from an explicit path, still layered over the
// embedded defaults and environment.
func LoadFile(configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		return Load()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	setDefaults(v)

	v.SetEnvPrefix("bridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(absPath)
	if err := v.MergeInConfig(); err != nil {
		return Config{}, err
	}

	return finish(v, filepath.Dir(absPath))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", "")
	v.SetDefault("auth_token", "")
	v.SetDefault("osc.host", "127.0.0.1")
	v.SetDefault("osc.port", 9000)
	v.SetDefault("max_move_seconds", 5)
	v.SetDefault("quota.fail_open", true)
	v.SetDefault("capture.max_duration_seconds", 30)
	v.SetDefault("capture.grace_seconds", 2)
	v.SetDefault("capture.sample_rate", 48000)
	v.SetDefault("capture.channels", 1)
	v.SetDefault("capture.transcriber_rate", 16000)
	v.SetDefault("capture.opus_bitrate", 32000)
	v.SetDefault("audit.buffer", 256)
	v.SetDefault("tls_disable", true)
	v.SetDefault("tls_cert_path", "")
	v.SetDefault("tls_key_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", true)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "vrchat-bridge.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)
}

func finish(v *viper.Viper, rootDir string) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	deriveHTTPAddr(&cfg)
	derivePaths(&cfg)

	if cfg.Capture.MaxDurationSeconds <= 0 || cfg.Capture.MaxDurationSeconds > 30 {
		cfg.Capture.MaxDurationSeconds = 30
	}
	if cfg.Capture.GraceSeconds <= 0 {
		cfg.Capture.GraceSeconds = 2
	}
	if cfg.MaxMoveSeconds <= 0 {
		cfg.MaxMoveSeconds = 5
	}
	if len(cfg.Whitelist) == 0 {
		cfg.Whitelist = []string{"/chatbox/", "/input/", "/avatar/parameters/"}
	}

	return cfg, nil
}

func deriveHTTPAddr(cfg *Config) {
	if cfg.HTTPAddr != "" {
		return
	}
	host := cfg.SystemConfig.Host
	port := cfg.SystemConfig.Port
	if port == 0 {
		port = 8765
	}
	if host == "" {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
		return
	}
	cfg.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(port))
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv("BRIDGE_ROOT_DIR")); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func derivePaths(cfg *Config) {
	cfg.Audit.Dir = resolvePath(cfg.RootDir, cfg.Audit.Dir, filepath.Join("data", "audit"))
	cfg.TLSCertPath = resolvePath(cfg.RootDir, cfg.TLSCertPath, filepath.Join("certs", "server.crt"))
	cfg.TLSKeyPath = resolvePath(cfg.RootDir, cfg.TLSKeyPath, filepath.Join("certs", "server.key"))
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
