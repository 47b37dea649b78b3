package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/videogreeter/internal/common"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Speech    SpeechConfig    `yaml:"speech"`
	LipSync   LipSyncConfig   `yaml:"lipsync"`
	Messaging MessagingConfig `yaml:"messaging"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxBodySize   ByteSize      `yaml:"maxBodySize"`
	PoolSize      int           `yaml:"poolSize"`      // max concurrently running jobs
	APIKey        string        `yaml:"apiKey"`        // optional static API key header (X-API-Key)
	ShutdownGrace time.Duration `yaml:"shutdownGrace"` // time to wait for running jobs before forced stop
	LogLevel      string        `yaml:"logLevel"`      // debug|info|warn|error
}

// DatabaseConfig selects the job store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite|postgres
	Path   string `yaml:"path"`   // sqlite file, defaults to storageDir/videogreeter.db
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// StorageConfig selects where speech artifacts are kept while the lip-sync provider fetches them.
type StorageConfig struct {
	Type          string     `yaml:"type"`          // local|s3
	Dir           string     `yaml:"dir"`           // local root, also holds the sqlite db
	PublicBaseURL string     `yaml:"publicBaseUrl"` // externally reachable base for local artifacts
	S3            S3Settings `yaml:"s3"`
}

// S3Settings config for the S3 artifact store.
type S3Settings struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"` // optional, for S3-compatible stores
}

// SpeechConfig selects the speech-synthesis provider.
type SpeechConfig struct {
	Provider   string             `yaml:"provider"` // mock|elevenlabs
	VoiceID    string             `yaml:"voiceId"`
	Mock       MockSpeechSettings `yaml:"mock"`
	ElevenLabs ElevenLabsSettings `yaml:"elevenlabs"`
}

// MockSpeechSettings config for the mock synthesizer.
type MockSpeechSettings struct {
	Delay time.Duration `yaml:"delay"`
}

// ElevenLabsSettings config for the ElevenLabs text-to-speech API.
type ElevenLabsSettings struct {
	BaseURL         string  `yaml:"baseUrl"`
	APIKey          string  `yaml:"apiKey"`
	ModelID         string  `yaml:"modelId"`
	OutputFormat    string  `yaml:"outputFormat"`
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarityBoost"`
}

// LipSyncConfig selects the lip-sync provider and the template video.
type LipSyncConfig struct {
	Provider         string              `yaml:"provider"` // mock|syncso
	TemplateVideoURL string              `yaml:"templateVideoUrl"`
	Mock             MockLipSyncSettings `yaml:"mock"`
	SyncSo           SyncSoSettings      `yaml:"syncso"`
}

// MockLipSyncSettings config for the mock lip-sync provider.
type MockLipSyncSettings struct {
	CompleteAfter *int   `yaml:"completeAfter"` // number of status queries reporting pending; nil defaults to 2
	OutputURL     string `yaml:"outputUrl"`
}

// SyncSoSettings config for the sync.so generation API.
type SyncSoSettings struct {
	BaseURL  string `yaml:"baseUrl"`
	APIKey   string `yaml:"apiKey"`
	Model    string `yaml:"model"`
	SyncMode string `yaml:"syncMode"`
}

// MessagingConfig selects the delivery channel.
type MessagingConfig struct {
	Provider string         `yaml:"provider"` // mock|twilio
	Twilio   TwilioSettings `yaml:"twilio"`
}

// TwilioSettings config for WhatsApp delivery via the Twilio Messages API.
type TwilioSettings struct {
	BaseURL     string `yaml:"baseUrl"`
	AccountSID  string `yaml:"accountSid"`
	AuthToken   string `yaml:"authToken"`
	FromNumber  string `yaml:"fromNumber"`
	AttachMedia bool   `yaml:"attachMedia"` // send the video as MediaUrl in addition to the link in the body
}

// PipelineConfig tunes the job orchestrator.
type PipelineConfig struct {
	PollInterval    time.Duration `yaml:"pollInterval"`
	PollAttempts    int           `yaml:"pollAttempts"`
	ScriptTemplate  string        `yaml:"scriptTemplate"`  // text/template, fields .Name .Country
	MessageTemplate string        `yaml:"messageTemplate"` // text/template, fields .Name .Country .URL
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	// Longer suffixes first so "KIB" is not matched as "B".
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var VIDEOGREETER_CONFIG, then default to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("VIDEOGREETER_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in raw YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Dir != "" {
		if err := os.MkdirAll(cfg.Storage.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure storage dir: %w", err)
		}
	}
	if cfg.Database.Driver == common.DriverSQLite && cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.Storage.Dir, "videogreeter.db")
	}
	return &cfg, nil
}

// SlogLevel maps the configured log level onto slog, defaulting to info.
func (s ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(s.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = ByteSize(64 * 1024)
	}
	if cfg.Server.PoolSize <= 0 {
		cfg.Server.PoolSize = common.DefaultPoolSize
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	// Database defaults
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = common.DriverSQLite
	}

	// Storage defaults
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = common.StorageLocal
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "data"
	}
	if cfg.Storage.PublicBaseURL == "" {
		host := cfg.Server.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		cfg.Storage.PublicBaseURL = "http://" + host
	}
	cfg.Storage.PublicBaseURL = strings.TrimRight(cfg.Storage.PublicBaseURL, "/")
	cfg.Storage.S3.Prefix = normalizePathPrefix(cfg.Storage.S3.Prefix)

	// Speech defaults
	if cfg.Speech.Provider == "" {
		cfg.Speech.Provider = common.ProviderMock
	}
	if cfg.Speech.VoiceID == "" {
		cfg.Speech.VoiceID = "JBFqnCBsd6RMkjVDRZzb"
	}
	if strings.TrimSpace(cfg.Speech.ElevenLabs.BaseURL) == "" {
		cfg.Speech.ElevenLabs.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.Speech.ElevenLabs.ModelID == "" {
		cfg.Speech.ElevenLabs.ModelID = "eleven_multilingual_v2"
	}
	if cfg.Speech.ElevenLabs.OutputFormat == "" {
		cfg.Speech.ElevenLabs.OutputFormat = "mp3_44100_128"
	}
	if cfg.Speech.ElevenLabs.Stability == 0 {
		cfg.Speech.ElevenLabs.Stability = 0.5
	}
	if cfg.Speech.ElevenLabs.SimilarityBoost == 0 {
		cfg.Speech.ElevenLabs.SimilarityBoost = 0.75
	}

	// Lip-sync defaults
	if cfg.LipSync.Provider == "" {
		cfg.LipSync.Provider = common.ProviderMock
	}
	if cfg.LipSync.TemplateVideoURL == "" {
		cfg.LipSync.TemplateVideoURL = "https://assets.sync.so/docs/example-video.mp4"
	}
	if cfg.LipSync.Mock.CompleteAfter == nil {
		n := 2
		cfg.LipSync.Mock.CompleteAfter = &n
	}
	if cfg.LipSync.Mock.OutputURL == "" {
		cfg.LipSync.Mock.OutputURL = cfg.LipSync.TemplateVideoURL
	}
	if strings.TrimSpace(cfg.LipSync.SyncSo.BaseURL) == "" {
		cfg.LipSync.SyncSo.BaseURL = "https://api.sync.so"
	}
	if cfg.LipSync.SyncSo.Model == "" {
		cfg.LipSync.SyncSo.Model = "lipsync-2"
	}
	if cfg.LipSync.SyncSo.SyncMode == "" {
		cfg.LipSync.SyncSo.SyncMode = "cut_off"
	}

	// Messaging defaults
	if cfg.Messaging.Provider == "" {
		cfg.Messaging.Provider = common.ProviderMock
	}
	if strings.TrimSpace(cfg.Messaging.Twilio.BaseURL) == "" {
		cfg.Messaging.Twilio.BaseURL = "https://api.twilio.com"
	}

	// Pipeline defaults
	if cfg.Pipeline.PollInterval == 0 {
		cfg.Pipeline.PollInterval = 10 * time.Second
	}
	if cfg.Pipeline.PollAttempts == 0 {
		cfg.Pipeline.PollAttempts = common.DefaultPollAttempts
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case common.DriverSQLite:
	case common.DriverPostgres:
		if strings.TrimSpace(cfg.Database.DSN) == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}

	switch cfg.Storage.Type {
	case common.StorageLocal:
		if _, err := url.ParseRequestURI(cfg.Storage.PublicBaseURL); err != nil {
			return fmt.Errorf("storage.publicBaseUrl: %w", err)
		}
	case common.StorageS3:
		if strings.TrimSpace(cfg.Storage.S3.Bucket) == "" {
			return errors.New("storage.s3.bucket is required")
		}
		if strings.TrimSpace(cfg.Storage.S3.Region) == "" {
			return errors.New("storage.s3.region is required")
		}
	default:
		return fmt.Errorf("unsupported storage.type %q", cfg.Storage.Type)
	}

	switch cfg.Speech.Provider {
	case common.ProviderMock:
	case common.ProviderElevenLabs:
		if strings.TrimSpace(cfg.Speech.ElevenLabs.APIKey) == "" {
			return errors.New("speech.elevenlabs.apiKey is required")
		}
	default:
		return fmt.Errorf("unsupported speech.provider %q", cfg.Speech.Provider)
	}

	if _, err := url.ParseRequestURI(cfg.LipSync.TemplateVideoURL); err != nil {
		return fmt.Errorf("lipsync.templateVideoUrl: %w", err)
	}
	switch cfg.LipSync.Provider {
	case common.ProviderMock:
		if n := cfg.LipSync.Mock.CompleteAfter; n != nil && *n < 0 {
			return errors.New("lipsync.mock.completeAfter must not be negative")
		}
	case common.ProviderSyncSo:
		if strings.TrimSpace(cfg.LipSync.SyncSo.APIKey) == "" {
			return errors.New("lipsync.syncso.apiKey is required")
		}
	default:
		return fmt.Errorf("unsupported lipsync.provider %q", cfg.LipSync.Provider)
	}

	switch cfg.Messaging.Provider {
	case common.ProviderMock:
	case common.ProviderTwilio:
		tw := cfg.Messaging.Twilio
		if strings.TrimSpace(tw.AccountSID) == "" {
			return errors.New("messaging.twilio.accountSid is required")
		}
		if strings.TrimSpace(tw.AuthToken) == "" {
			return errors.New("messaging.twilio.authToken is required")
		}
		if strings.TrimSpace(tw.FromNumber) == "" {
			return errors.New("messaging.twilio.fromNumber is required")
		}
	default:
		return fmt.Errorf("unsupported messaging.provider %q", cfg.Messaging.Provider)
	}

	if cfg.Pipeline.PollAttempts < 1 {
		return errors.New("pipeline.pollAttempts must be at least 1")
	}
	if cfg.Pipeline.PollInterval < 0 {
		return errors.New("pipeline.pollInterval must not be negative")
	}
	return nil
}

func normalizePathPrefix(p string) string {
	if p == "" {
		return p
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p = p + "/"
	}
	return p
}
