package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey    = "X-API-Key" // #nosec G101 - header name constant, not a credential
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeMP3  = "audio/mpeg"
)

// API paths
const (
	PathHealthz       = "/healthz"
	PathGenerateVideo = "/api/video/generate-video"
	PathVideoStatus   = "/api/video/status"
	PathAudio         = "/audio"
)

// Defaults and limits
const (
	DefaultPoolSize     = 64
	DefaultPollAttempts = 60
	SQLiteBusyTimeoutMS = 5000
)

// Subdirectory names
const (
	AudioDirName = "audio"
)

// Artifact file extensions
const (
	ExtMP3 = ".mp3"
)

// Supported drivers and provider names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StorageLocal = "local"
	StorageS3    = "s3"

	ProviderMock       = "mock"
	ProviderElevenLabs = "elevenlabs"
	ProviderSyncSo     = "syncso"
	ProviderTwilio     = "twilio"
)
