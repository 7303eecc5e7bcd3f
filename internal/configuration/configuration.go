package configuration

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/eugenenazirov/streamfx/internal/settings"
	"github.com/eugenenazirov/streamfx/internal/version"
)

const (
	// VersionKey is the settings field holding the packed version the file
	// was last written with.
	VersionKey = "version"

	// DefaultBackupExtension is appended to the settings path for backups.
	DefaultBackupExtension = ".bk"

	dirPerm fs.FileMode = 0o750
)

// ErrReadOnly is returned by Save on a configuration opened WithReadOnly.
var ErrReadOnly = errors.New("configuration opened read-only")

// Configuration owns the shared settings handle and the path it is
// persisted to.
type Configuration struct {
	data      *settings.Data
	path      string
	backupExt string
	readOnly  bool
	logger    *zap.Logger

	// fileMu serializes Save and Reload. savedSum is the digest of the bytes
	// the last Save wrote.
	fileMu   sync.Mutex
	saved    bool
	savedSum [sha256.Size]byte
}

// Option configures a Configuration.
type Option func(*Configuration)

// WithLogger sets the logger used for load and save diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Configuration) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBackupExtension overrides the backup suffix. An empty value disables
// backups.
func WithBackupExtension(ext string) Option {
	return func(c *Configuration) {
		c.backupExt = ext
	}
}

// WithReadOnly opens the settings without write intent: the parent
// directory is not created and Save fails with ErrReadOnly.
func WithReadOnly() Option {
	return func(c *Configuration) {
		c.readOnly = true
	}
}

// New loads the settings stored at path, creating the parent directory if
// needed unless opened WithReadOnly. A missing file yields an empty handle; an unreadable file is
// recovered from its backup when possible and reported as an error otherwise.
func New(path string, opts ...Option) (*Configuration, error) {
	if path == "" {
		return nil, errors.New("configuration path must not be empty")
	}

	c := &Configuration{
		path:      filepath.Clean(path),
		backupExt: DefaultBackupExtension,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if !c.readOnly {
		if err := os.MkdirAll(filepath.Dir(c.path), dirPerm); err != nil {
			return nil, fmt.Errorf("create configuration directory: %w", err)
		}
	}

	data, err := c.load()
	if err != nil {
		return nil, err
	}
	c.data = data

	return c, nil
}

func (c *Configuration) load() (*settings.Data, error) {
	data, used, err := settings.LoadFileSafe(c.path, c.backupExt)
	switch {
	case err == nil:
		if used != c.path {
			c.logger.Warn("configuration restored from backup",
				zap.String("path", c.path),
				zap.String("backup", used),
			)
		}
		c.logger.Debug("configuration loaded",
			zap.String("path", used),
			zap.Int("fields", data.Len()),
		)
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Debug("configuration file absent, starting empty", zap.String("path", c.path))
		return settings.New(), nil
	default:
		return nil, fmt.Errorf("load configuration: %w", err)
	}
}

// Get returns the shared settings handle.
func (c *Configuration) Get() *settings.Data {
	return c.data
}

// Path returns the file the settings are persisted to.
func (c *Configuration) Path() string {
	return c.path
}

// Version returns the packed version stored in the settings, or 0 when the
// field is absent.
func (c *Configuration) Version() uint64 {
	return c.data.Uint(VersionKey, 0)
}

// IsDifferentVersion reports whether the stored version differs from the
// version compiled into this build, in either direction.
func (c *Configuration) IsDifferentVersion() bool {
	return c.Version() != version.Current()
}

// IsCompatibleVersion reports whether the stored version shares major and
// minor with the compiled version.
func (c *Configuration) IsCompatibleVersion() bool {
	return version.Compatible(c.Version(), version.Current())
}

// Save stamps the compiled version and writes the settings to disk.
func (c *Configuration) Save() error {
	if c.readOnly {
		return ErrReadOnly
	}

	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	if err := c.data.Set(VersionKey, version.Current()); err != nil {
		return fmt.Errorf("stamp version: %w", err)
	}

	var buf bytes.Buffer
	if err := c.data.Encode(&buf); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	if err := settings.WriteFileSafe(c.path, c.backupExt, buf.Bytes()); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	c.saved = true
	c.savedSum = sha256.Sum256(buf.Bytes())

	c.logger.Debug("configuration saved",
		zap.String("path", c.path),
		zap.String("version", version.Format(version.Current())),
	)
	return nil
}

// Reload re-reads the file into the existing handle so current holders see
// the new contents. A missing file leaves the handle untouched.
func (c *Configuration) Reload() error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	return c.reloadLocked()
}

// reloadIfChanged reloads unless the file still holds what the last Save
// wrote, in which case the in-memory handle is at least as new as the file.
func (c *Configuration) reloadIfChanged() (bool, error) {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	if c.saved {
		raw, err := os.ReadFile(c.path)
		if err == nil && sha256.Sum256(raw) == c.savedSum {
			return false, nil
		}
	}
	if err := c.reloadLocked(); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Configuration) reloadLocked() error {
	data, used, err := settings.LoadFileSafe(c.path, c.backupExt)
	if err != nil {
		return fmt.Errorf("reload configuration: %w", err)
	}
	c.data.Replace(data.Snapshot())

	c.logger.Info("configuration reloaded", zap.String("path", used))
	return nil
}

// Close persists any in-memory changes. It does nothing for a read-only
// configuration.
func (c *Configuration) Close() error {
	if c.readOnly {
		return nil
	}
	return c.Save()
}
