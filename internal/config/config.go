// Package config loads binding configuration from YAML files.
//
// A file mirrors engine.Config with Go duration strings ("300ms") and an
// optional rules file holding CUE constraints keyed by field path:
//
//	debounce: 250ms
//	validate_on_change: true
//	rules: contact.cue
//	history:
//	  limit: 20
//	  encrypt: true
//	storage:
//	  driver: sqlite
//	  path: history.db
//
// Fields absent from the file keep the values of Default().
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bindform/internal/codec"
	"github.com/roach88/bindform/internal/engine"
	"github.com/roach88/bindform/internal/history"
	"github.com/roach88/bindform/internal/ir"
	"github.com/roach88/bindform/internal/observer"
	"github.com/roach88/bindform/internal/store"
	"github.com/roach88/bindform/internal/validate"
)

// Storage drivers accepted in storage.driver.
const (
	DriverMemory = "memory"
	DriverSQLite = store.DriverCGO
	DriverPureGo = store.DriverPureGo
)

// File is the on-disk binding configuration.
type File struct {
	Debounce                      time.Duration  `yaml:"debounce"`
	ValidateOnChange              bool           `yaml:"validate_on_change"`
	AllowUpdateOnFailedValidation bool           `yaml:"allow_update_on_failed_validation"`
	ReadOnly                      bool           `yaml:"read_only"`
	OneWayBinding                 bool           `yaml:"one_way_binding"`
	ValidationClass               string         `yaml:"validation_class"`
	DefaultValues                 map[string]any `yaml:"default_values"`

	// Rules is the path of a CUE file. Relative paths resolve against
	// the directory of the config file.
	Rules string `yaml:"rules"`

	Observer ObserverConfig `yaml:"observer"`
	History  HistoryConfig  `yaml:"history"`
	Storage  StorageConfig  `yaml:"storage"`
}

// ObserverConfig controls the field observer.
type ObserverConfig struct {
	Enabled bool          `yaml:"enabled"`
	Delay   time.Duration `yaml:"delay"`
}

// HistoryConfig controls snapshots and their encoding.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Limit         int           `yaml:"limit"`
	SnapshotDelay time.Duration `yaml:"snapshot_delay"`
	AutoSave      time.Duration `yaml:"autosave"`
	Compress      bool          `yaml:"compress"`
	Encrypt       bool          `yaml:"encrypt"`
	// HostEntropy mixes machine identifiers into the encryption key, so
	// an encrypted history only opens on the host that wrote it.
	HostEntropy bool `yaml:"host_entropy"`
}

// StorageConfig selects the history backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite3 | sqlite
	Path   string `yaml:"path"`
}

// Default returns the configuration used when a file sets nothing.
func Default() *File {
	return &File{
		Debounce:         engine.DefaultDebounce,
		ValidateOnChange: true,
		ValidationClass:  engine.DefaultValidationClass,
		Observer: ObserverConfig{
			Enabled: true,
			Delay:   observer.DefaultDelay,
		},
		History: HistoryConfig{
			Enabled:       true,
			Limit:         history.DefaultLimit,
			SnapshotDelay: engine.DefaultSnapshotDelay,
			Compress:      true,
			Encrypt:       true,
		},
		Storage: StorageConfig{Driver: DriverMemory},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML over Default(). Unknown keys are errors. Relative
// rules and storage paths are resolved against baseDir.
func Parse(data []byte, baseDir string) (*File, error) {
	f := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if f.Rules != "" && !filepath.IsAbs(f.Rules) && baseDir != "" {
		f.Rules = filepath.Join(baseDir, f.Rules)
	}
	if f.Storage.Path != "" && !filepath.IsAbs(f.Storage.Path) && baseDir != "" {
		f.Storage.Path = filepath.Join(baseDir, f.Storage.Path)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks ranges and required combinations.
func (f *File) Validate() error {
	var errs []error
	if f.Debounce < 0 {
		errs = append(errs, errors.New("debounce must not be negative"))
	}
	if f.Observer.Delay < 0 {
		errs = append(errs, errors.New("observer.delay must not be negative"))
	}
	if f.History.Limit < 0 {
		errs = append(errs, errors.New("history.limit must not be negative"))
	}
	if f.History.SnapshotDelay < 0 {
		errs = append(errs, errors.New("history.snapshot_delay must not be negative"))
	}
	if f.History.AutoSave < 0 {
		errs = append(errs, errors.New("history.autosave must not be negative"))
	}
	switch f.Storage.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPureGo:
		if f.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", f.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", f.Storage.Driver))
	}
	return errors.Join(errs...)
}

// EngineConfig converts f into an engine.Config. Rules are compiled and
// default values converted; Storage, Clock, Logger and Hooks are left for
// the caller (see OpenStorage).
func (f *File) EngineConfig() (engine.Config, error) {
	cfg := engine.Config{
		Debounce:                      f.Debounce,
		ValidateOnChange:              f.ValidateOnChange,
		AllowUpdateOnFailedValidation: f.AllowUpdateOnFailedValidation,
		ReadOnly:                      f.ReadOnly,
		OneWayBinding:                 f.OneWayBinding,
		ValidationClass:               f.ValidationClass,
		EnableFieldObserver:           f.Observer.Enabled,
		ObserverDelay:                 f.Observer.Delay,
		DisableHistory:                !f.History.Enabled,
		HistoryLimit:                  f.History.Limit,
		SnapshotDelay:                 f.History.SnapshotDelay,
		AutoSaveInterval:              f.History.AutoSave,
		CompressHistory:               f.History.Compress,
		EncryptHistory:                f.History.Encrypt,
	}
	if f.History.HostEntropy {
		cfg.HostEntropy = codec.HostEntropy()
	}

	if len(f.DefaultValues) > 0 {
		cfg.DefaultValues = make(map[string]ir.Value, len(f.DefaultValues))
		for path, raw := range f.DefaultValues {
			v, err := ir.FromGo(raw)
			if err != nil {
				return engine.Config{}, fmt.Errorf("default_values[%q]: %w", path, err)
			}
			cfg.DefaultValues[path] = v
		}
	}

	if f.Rules != "" {
		rules, err := validate.CompileCUEFile(f.Rules)
		if err != nil {
			return engine.Config{}, fmt.Errorf("rules: %w", err)
		}
		cfg.Validators = rules
	}
	return cfg, nil
}

// OpenStorage opens the configured history backend. The returned close
// function is never nil.
func (f *File) OpenStorage() (history.Backend, func() error, error) {
	switch f.Storage.Driver {
	case DriverSQLite, DriverPureGo:
		st, err := store.Open(f.Storage.Path, store.WithDriver(f.Storage.Driver))
		if err != nil {
			return nil, nil, fmt.Errorf("open storage: %w", err)
		}
		return st, st.Close, nil
	default:
		return store.NewMemory(), func() error { return nil }, nil
	}
}

// OpenHistory opens the history log of formID in backend with the codec
// a binding configured by f would use, so logs written by a bound form
// can be read back offline.
func (f *File) OpenHistory(ctx context.Context, backend history.Backend, formID string) (*history.Log, error) {
	var entropy []byte
	if f.History.HostEntropy {
		entropy = codec.HostEntropy()
	}
	c, err := codec.ForForm(formID, f.History.Compress, f.History.Encrypt, entropy)
	if err != nil {
		return nil, err
	}
	opts := []history.Option{history.WithLimit(f.History.Limit), history.WithCodec(c)}
	if f.History.Encrypt {
		opts = append(opts, history.WithPersistentGuard())
	}
	return history.Open(ctx, backend, formID, opts...)
}
