package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driven"
	"github.com/custodia-labs/algosync/internal/logger"
)

// Ensure Loader implements the interface.
var _ driven.ConfigLoader = (*Loader)(nil)

// Environment variables read by Load.
const (
	EnvApplicationID = "ALGOLIA_APPLICATION_ID"
	EnvAdminAPIKey   = "ALGOLIA_ADMIN_API_KEY"
	EnvSearchAPIKey  = "ALGOLIA_SEARCH_API_KEY"
	EnvIndexPrefix   = "ALGOLIA_PREFIX_INDEX_NAME"
	EnvEnvironment   = "ALGOSYNC_ENVIRONMENT"

	// EnvConfigPath overrides the default configuration file path.
	EnvConfigPath = "ALGOSYNC_CONFIG"
)

// watchSettleDelay is how long Watch waits after the last file event.
const watchSettleDelay = 100 * time.Millisecond

// Loader reads the configuration file.
type Loader struct {
	mu         sync.RWMutex
	filePath   string
	behaviours map[string]any
}

// NewLoader creates a loader for path. An empty path resolves to
// $ALGOSYNC_CONFIG or ~/.algosync/config.toml.
func NewLoader(path string) (*Loader, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".algosync", "config.toml")
	}
	return &Loader{filePath: path}, nil
}

// SetBehaviour attaches a class behaviour applied on every Load.
func (l *Loader) SetBehaviour(class string, behaviour any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.behaviours == nil {
		l.behaviours = make(map[string]any)
	}
	l.behaviours[class] = behaviour
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.filePath
}

// Load reads, overrides and validates the configuration. A missing file
// yields the defaults, which still need credentials from the environment.
func (l *Loader) Load() (*domain.Config, error) {
	raw, err := l.Read()
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return raw.Domain(l.behaviours)
}

// Read decodes the file and applies environment overrides without
// validating the result.
func (l *Loader) Read() (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(l.filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("config: %s not found, using defaults", l.filePath)
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrConfiguration, l.filePath, err)
	default:
		if err := decode(l.filePath, data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, l.filePath, err)
		}
	}
	applyEnv(&cfg)
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Algolia.ApplicationID, EnvApplicationID)
	override(&cfg.Algolia.AdminAPIKey, EnvAdminAPIKey)
	override(&cfg.Algolia.SearchAPIKey, EnvSearchAPIKey)
	override(&cfg.Algolia.IndexPrefix, EnvIndexPrefix)
	override(&cfg.Algolia.Environment, EnvEnvironment)
}

// Watch reloads the configuration whenever the file changes and sends
// each valid result. Invalid edits are logged and skipped. The channel
// closes when ctx is done.
func (l *Loader) Watch(ctx context.Context) (<-chan *domain.Config, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Editors replace files by rename, so the directory is watched.
	if err := watcher.Add(filepath.Dir(l.filePath)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", l.filePath, err)
	}

	out := make(chan *domain.Config)
	go func() {
		defer close(out)
		defer watcher.Close()

		// Writes arrive as bursts of events; reload once they settle.
		settle := time.NewTimer(time.Hour)
		settle.Stop()
		defer settle.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if l.isConfigEvent(event) {
					settle.Reset(watchSettleDelay)
				}
			case <-settle.C:
				cfg, err := l.Load()
				if err != nil {
					logger.Warn("config: reload %s: %v", l.filePath, err)
					continue
				}
				logger.Info("config: reloaded %s", l.filePath)
				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config: watcher: %v", err)
			}
		}
	}()
	return out, nil
}

func (l *Loader) isConfigEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(l.filePath) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
