// Package config handles loading and validating the tts-server configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for the tts-server daemon.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	GRPC    GRPCConfig    `mapstructure:"grpc"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Encoder EncoderConfig `mapstructure:"encoder"`
	Storage StorageConfig `mapstructure:"storage"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the host:port the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GRPCConfig configures the gRPC health transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TTSConfig selects and configures the speech pipeline backend and the
// orchestration knobs around it.
type TTSConfig struct {
	Backend        string            `mapstructure:"backend"` // "kokoro"
	Kokoro         KokoroConfig      `mapstructure:"kokoro"`
	Voices         map[string]string `mapstructure:"voices"` // language tag -> voice override
	Speed          float64           `mapstructure:"speed"`
	SampleRate     int               `mapstructure:"sample_rate"`
	Prewarm        []string          `mapstructure:"prewarm"` // language tags to build pipelines for at startup
	MaxConcurrent  int               `mapstructure:"max_concurrent"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
}

// KokoroConfig holds settings for a Kokoro-FastAPI model server.
//
// SplitPattern is a regular expression used to cut the input text into
// segments that are phonemized separately. Empty means the whole text is
// phonemized in one call.
type KokoroConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SplitPattern  string        `mapstructure:"split_pattern"`
	MaxAudioBytes int64         `mapstructure:"max_audio_bytes"`
}

// EncoderConfig configures the external audio encoder.
type EncoderConfig struct {
	Binary  string `mapstructure:"binary"`
	Codec   string `mapstructure:"codec"`
	Bitrate string `mapstructure:"bitrate"`
}

// StorageConfig controls the temporary artifact workspace.
type StorageConfig struct {
	TempDir       string        `mapstructure:"temp_dir"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ArchiveConfig enables copying delivered audio into a NATS object store.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	NATSURL string `mapstructure:"nats_url"`
	Bucket  string `mapstructure:"bucket"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./tts-server.yaml, ./configs/tts-server.yaml, /etc/tts-server/tts-server.yaml.
func Load(configFile string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("tts-server")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tts-server")
	}

	// Environment variables: TTS_SERVER_SERVER_PORT, TTS_SERVER_TTS_KOKORO_ENDPOINT, etc.
	v.SetEnvPrefix("TTS_SERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional: env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${KOKORO_API_KEY}")
	cfg.TTS.Kokoro.APIKey = resolveEnvRef(cfg.TTS.Kokoro.APIKey)
	cfg.Archive.NATSURL = resolveEnvRef(cfg.Archive.NATSURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5007)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("tts.backend", "kokoro")
	v.SetDefault("tts.kokoro.endpoint", "http://localhost:8880")
	v.SetDefault("tts.kokoro.api_key", "")
	v.SetDefault("tts.kokoro.timeout", 120*time.Second)
	v.SetDefault("tts.kokoro.split_pattern", "")
	v.SetDefault("tts.kokoro.max_audio_bytes", 64<<20)
	v.SetDefault("tts.voices", map[string]string{})
	v.SetDefault("tts.speed", 1.0)
	v.SetDefault("tts.sample_rate", 24000)
	v.SetDefault("tts.prewarm", []string{})
	v.SetDefault("tts.max_concurrent", 0)
	v.SetDefault("tts.request_timeout", time.Duration(0))
	v.SetDefault("encoder.binary", "ffmpeg")
	v.SetDefault("encoder.codec", "libopus")
	v.SetDefault("encoder.bitrate", "24k")
	v.SetDefault("storage.temp_dir", filepath.Join(os.TempDir(), "tts_audio"))
	v.SetDefault("storage.retention", 15*time.Minute)
	v.SetDefault("storage.sweep_interval", 5*time.Minute)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("archive.bucket", "TTS_AUDIO")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.GRPC.Enabled && (c.GRPC.Port <= 0 || c.GRPC.Port > 65535) {
		return fmt.Errorf("grpc.port out of range: %d", c.GRPC.Port)
	}
	if c.TTS.SampleRate <= 0 {
		return fmt.Errorf("tts.sample_rate must be positive, got %d", c.TTS.SampleRate)
	}
	if c.TTS.Speed <= 0 {
		return fmt.Errorf("tts.speed must be positive, got %v", c.TTS.Speed)
	}
	if c.TTS.MaxConcurrent < 0 {
		return fmt.Errorf("tts.max_concurrent must not be negative, got %d", c.TTS.MaxConcurrent)
	}
	if c.Storage.TempDir == "" {
		return fmt.Errorf("storage.temp_dir must be set")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive.bucket must be set when archive is enabled")
	}
	return nil
}

// resolveEnvRef expands a value of the exact form "${NAME}" from the
// environment. Anything else, or an unset NAME, is returned unchanged.
func resolveEnvRef(val string) string {
	name, ok := strings.CutPrefix(strings.TrimSpace(val), "${")
	if !ok {
		return val
	}
	name, ok = strings.CutSuffix(name, "}")
	if !ok || name == "" {
		return val
	}
	if env, found := os.LookupEnv(name); found && env != "" {
		return env
	}
	return val
}

// SetupLogging installs the process-wide slog logger, writing to stdout.
func SetupLogging(cfg LoggingConfig) {
	slog.SetDefault(slog.New(NewLogHandler(os.Stdout, cfg)))
}

// NewLogHandler builds the slog handler for cfg. Unknown levels mean info;
// any format other than "text" means JSON. Debug logging adds source locations.
func NewLogHandler(w io.Writer, cfg LoggingConfig) slog.Handler {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
