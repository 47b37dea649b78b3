package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/videogreeter/internal/common"
)

var _ ArtifactStore = (*LocalStore)(nil)

// LocalStore stores artifacts on disk under baseDir/audio and serves them
// from publicBaseURL/audio.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a store rooted at baseDir/audio.
func NewLocalStore(baseDir, publicBaseURL string) *LocalStore {
	return &LocalStore{
		dir:     filepath.Join(baseDir, common.AudioDirName),
		baseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// Dir returns the directory artifacts are written to.
func (s *LocalStore) Dir() string { return s.dir }

// Handler serves stored artifacts. Mount it at common.PathAudio + "/".
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix(common.PathAudio+"/", http.FileServer(http.Dir(s.dir)))
}

func (s *LocalStore) Store(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure audio dir: %w", err)
	}

	dstPath := filepath.Join(s.dir, name)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}
	if _, err := dst.Write(data); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	return s.baseURL + common.PathAudio + "/" + url.PathEscape(name), nil
}

func (s *LocalStore) Delete(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix := s.baseURL + common.PathAudio + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	name, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil {
		return fmt.Errorf("decode artifact name: %w", err)
	}
	name, err = cleanKey(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// cleanKey rejects keys that would escape the artifact directory.
func cleanKey(key string) (string, error) {
	k := strings.TrimSpace(key)
	if k == "" || k != path.Base(k) || k == "." || k == ".." || strings.ContainsAny(k, `/\`) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return k, nil
}
