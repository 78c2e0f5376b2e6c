package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/bindform/internal/clock"
	"github.com/roach88/bindform/internal/form"
	"github.com/roach88/bindform/internal/history"
	"github.com/roach88/bindform/internal/ir"
	"github.com/roach88/bindform/internal/observer"
	"github.com/roach88/bindform/internal/store"
	"github.com/roach88/bindform/internal/validate"
)

// Defaults applied by DefaultConfig and, for zero durations and limits,
// by Bind.
const (
	DefaultDebounce        = 300 * time.Millisecond
	DefaultSnapshotDelay   = 100 * time.Millisecond
	DefaultValidationClass = "is-invalid"
)

// Hooks are caller callbacks. All are optional. Hooks run after the
// session lock is released, in the order their causes happened, and may
// call back into the session.
type Hooks struct {
	// OnFieldChange fires after a field edit changed the object.
	OnFieldChange func(path string, value ir.Value)

	// OnObjectUpdate fires after any change to the object. obj is a copy.
	OnObjectUpdate func(obj ir.Object)

	// OnValidationFail fires for each value rejected by a rule.
	OnValidationFail func(path string, value ir.Value)

	// OnBeforeSubmit may veto a submission by returning false.
	OnBeforeSubmit func(ctx context.Context, obj ir.Object) bool

	// SubmissionHandler sends the object somewhere.
	SubmissionHandler func(ctx context.Context, obj ir.Object) (any, error)

	// OnAfterSubmit receives the handler's result and error.
	OnAfterSubmit func(ctx context.Context, result any, err error, obj ir.Object)

	// OnValidationFeedback replaces the default feedback, which toggles
	// the validation class on the field.
	OnValidationFeedback func(field form.Field, valid bool, class string)
}

// Config configures one binding.
//
// The zero value is not the default configuration: start from
// DefaultConfig and override fields. Bind fills zero durations, limits
// and collaborators with their defaults, but leaves booleans as given.
type Config struct {
	// Debounce is the quiet time before a field edit is committed.
	Debounce time.Duration

	// ValidateOnChange together with !AllowUpdateOnFailedValidation makes
	// a failed validation block the update.
	ValidateOnChange              bool
	AllowUpdateOnFailedValidation bool

	// Validators maps bound paths to rules.
	Validators map[string]validate.Rule

	// ReadOnly disables every bound field, including fields added later,
	// and ignores their events.
	ReadOnly bool

	// DefaultValues supplies a value for a path that is absent or null
	// in the object when fields are refreshed.
	DefaultValues map[string]ir.Value

	// EnableFieldObserver rescans the field set when named elements are
	// added to or removed from the form.
	EnableFieldObserver bool
	ObserverDelay       time.Duration

	HistoryLimit   int
	DisableHistory bool

	// SnapshotDelay debounces history recording after changes.
	SnapshotDelay time.Duration

	EncryptHistory  bool
	CompressHistory bool

	// HostEntropy is mixed into the history key. nil keeps the key a
	// function of the form identifier alone.
	HostEntropy []byte

	// OneWayBinding stops external writes from being pushed to fields.
	OneWayBinding bool

	// AutoSaveInterval, when positive, records history on this interval
	// instead of after each change.
	AutoSaveInterval time.Duration

	ValidationClass string

	// Storage holds history. Default: a fresh store.Memory.
	Storage history.Backend

	Clock  clock.Clock
	IDs    history.IDGenerator
	Logger *slog.Logger

	Hooks Hooks
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:                      DefaultDebounce,
		ValidateOnChange:              true,
		AllowUpdateOnFailedValidation: true,
		EnableFieldObserver:           true,
		ObserverDelay:                 observer.DefaultDelay,
		HistoryLimit:                  history.DefaultLimit,
		SnapshotDelay:                 DefaultSnapshotDelay,
		ValidationClass:               DefaultValidationClass,
	}
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.ObserverDelay <= 0 {
		c.ObserverDelay = observer.DefaultDelay
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = history.DefaultLimit
	}
	if c.SnapshotDelay <= 0 {
		c.SnapshotDelay = DefaultSnapshotDelay
	}
	if c.ValidationClass == "" {
		c.ValidationClass = DefaultValidationClass
	}
	if c.Storage == nil {
		c.Storage = store.NewMemory()
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
	if c.IDs == nil {
		c.IDs = history.UUIDv7Generator{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// blocks reports whether a failed validation stops the update.
func (c Config) blocks() bool {
	return c.ValidateOnChange && !c.AllowUpdateOnFailedValidation
}
