package common

import "testing"

func TestConstantsValues(t *testing.T) {
	if ContentTypeJSON != "application/json" {
		t.Fatalf("ContentTypeJSON = %q", ContentTypeJSON)
	}
	if HeaderAPIKey != "X-API-Key" {
		t.Fatalf("HeaderAPIKey = %q", HeaderAPIKey)
	}
	if PathHealthz != "/healthz" || PathGenerateVideo != "/api/video/generate-video" || PathVideoStatus != "/api/video/status" {
		t.Fatalf("paths mismatch: %q, %q, %q", PathHealthz, PathGenerateVideo, PathVideoStatus)
	}
	if DefaultPoolSize <= 0 || DefaultPollAttempts <= 0 {
		t.Fatalf("defaults should be positive")
	}
	if AudioDirName == "" || ExtMP3 != ".mp3" {
		t.Fatalf("artifact naming constants mismatch")
	}
	if DriverSQLite == DriverPostgres || StorageLocal == StorageS3 {
		t.Fatalf("driver/storage names must be distinct")
	}
}
