// Package artifacts stores raw scan reports on the filesystem, one file per
// scan record.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/raysh454/zapdash/internal/logging"
)

var (
	// ErrArtifactNotFound is returned when no artifact is stored under a key.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrInvalidKey is returned for keys that are empty or could escape the
	// store root.
	ErrInvalidKey = errors.New("invalid artifact key")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Info describes a stored artifact.
type Info struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	SHA256  string    `json:"sha256"`
	ModTime time.Time `json:"modTime"`
}

// FSStore keeps artifacts under root, sharded by the first two characters of
// the key: root/ab/abcdef....json.
type FSStore struct {
	root   string
	logger logging.Logger
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string, logger logging.Logger) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("artifact root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &FSStore{
		root:   root,
		logger: logger.With(logging.Field{Key: "component", Value: "artifacts"}),
	}, nil
}

// Root returns the store directory.
func (s *FSStore) Root() string { return s.root }

func validateKey(key string) error {
	if !keyPattern.MatchString(key) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (s *FSStore) path(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.root, shard, key+".json")
}

// Write stores content under key, replacing any previous artifact.
func (s *FSStore) Write(ctx context.Context, key string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := AtomicWriteFile(s.path(key), content, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	s.logger.Debug("artifact written",
		logging.Field{Key: "key", Value: key},
		logging.Field{Key: "bytes", Value: len(content)})
	return nil
}

// Read returns the artifact stored under key.
func (s *FSStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, key)
		}
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether an artifact is stored under key.
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat artifact %s: %w", key, err)
}

// Stat returns size, checksum and modification time of an artifact.
func (s *FSStore) Stat(ctx context.Context, key string) (*Info, error) {
	data, err := s.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("stat artifact %s: %w", key, err)
	}
	sum := sha256.Sum256(data)
	return &Info{
		Key:     key,
		Size:    fi.Size(),
		SHA256:  hex.EncodeToString(sum[:]),
		ModTime: fi.ModTime(),
	}, nil
}

// Delete removes the artifact under key. Deleting a missing artifact is not
// an error.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete artifact %s: %w", key, err)
	}
	return nil
}
