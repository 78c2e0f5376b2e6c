// Package history keeps a bounded, ordered log of bound-object snapshots
// per form and persists it through a codec into a key-value backend.
//
// The log lives under one key per form ("<form>_bindFormHistory"). It is
// best-effort: a blob that cannot be decoded is logged and replaced by an
// empty log rather than failing the binding.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/bindform/internal/clock"
	"github.com/roach88/bindform/internal/codec"
	"github.com/roach88/bindform/internal/ir"
)

// Defaults.
const (
	DefaultLimit         = 10
	DefaultGuardInterval = 500 * time.Millisecond

	// TimestampFormat is ISO-8601 UTC with millisecond precision.
	TimestampFormat = "2006-01-02T15:04:05.000Z"

	keySuffix      = "_bindFormHistory"
	guardKeySuffix = "_bindFormHistoryGuard"
)

// ErrNotFound is returned when no entry matches a reference.
var ErrNotFound = errors.New("history entry not found")

// Backend is a key-value text store.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Entry is one recorded snapshot. State is the canonical JSON of the
// bound object at recording time.
type Entry struct {
	ID        string
	Seq       int64
	Timestamp string
	Digest    string
	State     string
}

// Meta is an Entry without its state.
type Meta struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	Timestamp string `json:"timestamp"`
	Digest    string `json:"digest"`
}

// Meta strips the state.
func (e Entry) Meta() Meta {
	return Meta{ID: e.ID, Seq: e.Seq, Timestamp: e.Timestamp, Digest: e.Digest}
}

// Key returns the backend key of a form's log.
func Key(formID string) string { return formID + keySuffix }

// Lister is a backend that can enumerate its keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Forms returns the IDs of the forms with a persisted log, sorted.
func Forms(ctx context.Context, l Lister) ([]string, error) {
	keys, err := l.Keys(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if id, ok := strings.CutSuffix(k, keySuffix); ok && id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GuardKey returns the backend key of a form's persisted guard.
func GuardKey(formID string) string { return formID + guardKeySuffix }

type options struct {
	limit         int
	guardInterval time.Duration
	codec         *codec.Codec
	clock         clock.Clock
	ids           IDGenerator
	logger        *slog.Logger
	persistGuard  bool
}

// Option configures Open.
type Option func(*options)

// WithLimit bounds the log. Non-positive values use DefaultLimit.
func WithLimit(n int) Option { return func(o *options) { o.limit = n } }

// WithGuardInterval sets the window in which an identical snapshot is
// not recorded again.
func WithGuardInterval(d time.Duration) Option { return func(o *options) { o.guardInterval = d } }

// WithCodec sets the persistence codec. Default: codec.Identity().
func WithCodec(c *codec.Codec) Option { return func(o *options) { o.codec = c } }

// WithClock sets the time source for timestamps and the guard.
func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

// WithIDs sets the entry ID generator. Default: UUIDv7Generator.
func WithIDs(g IDGenerator) Option { return func(o *options) { o.ids = g } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithPersistentGuard stores the de-duplication guard in its own blob so
// it survives rebinding. Used with encrypted logs.
func WithPersistentGuard() Option { return func(o *options) { o.persistGuard = true } }

// Log is the history of one form.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex. Backend calls happen under the lock, so appends persist in order.
type Log struct {
	mu      sync.Mutex
	formID  string
	backend Backend
	opts    options
	seq     *clock.Sequence
	entries []Entry

	lastState string
	lastTime  time.Time
}

// Open loads the log of formID from backend.
func Open(ctx context.Context, backend Backend, formID string, opts ...Option) (*Log, error) {
	if backend == nil {
		return nil, errors.New("history: nil backend")
	}
	if formID == "" {
		return nil, errors.New("history: empty form id")
	}

	o := options{
		limit:         DefaultLimit,
		guardInterval: DefaultGuardInterval,
		codec:         codec.Identity(),
		clock:         clock.System(),
		ids:           UUIDv7Generator{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.limit <= 0 {
		o.limit = DefaultLimit
	}

	l := &Log{formID: formID, backend: backend, opts: o}
	if err := l.load(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// load reads the persisted log. Backend errors are returned; decode
// errors are logged and yield an empty log.
func (l *Log) load(ctx context.Context) error {
	text, ok, err := l.backend.Get(ctx, Key(l.formID))
	if err != nil {
		return fmt.Errorf("load history %s: %w", l.formID, err)
	}

	var maxSeq int64
	if ok && text != "" {
		entries, err := decodeEntries(l.opts.codec, text)
		if err != nil {
			l.opts.logger.Warn("discarding unreadable history",
				"form", l.formID,
				"error", err)
		} else {
			l.entries = entries
		}
	}
	if over := len(l.entries) - l.opts.limit; over > 0 {
		l.entries = l.entries[over:]
	}
	for _, e := range l.entries {
		maxSeq = max(maxSeq, e.Seq)
	}
	l.seq = clock.NewSequenceAt(maxSeq)

	if l.opts.persistGuard {
		l.loadGuard(ctx)
	} else if n := len(l.entries); n > 0 {
		last := l.entries[n-1]
		if t, err := time.Parse(TimestampFormat, last.Timestamp); err == nil {
			l.lastState, l.lastTime = last.State, t
		}
	}
	return nil
}

func (l *Log) loadGuard(ctx context.Context) {
	text, ok, err := l.backend.Get(ctx, GuardKey(l.formID))
	if err != nil || !ok {
		return
	}
	obj, err := l.opts.codec.DecodeObject(text)
	if err != nil {
		l.opts.logger.Warn("discarding unreadable history guard",
			"form", l.formID,
			"error", err)
		return
	}
	state, _ := obj["state"].(ir.String)
	at, _ := obj["at"].(ir.String)
	t, err := time.Parse(TimestampFormat, string(at))
	if err != nil {
		return
	}
	l.lastState, l.lastTime = string(state), t
}

// FormID returns the form the log belongs to.
func (l *Log) FormID() string { return l.formID }

// Limit returns the configured bound.
func (l *Log) Limit() int { return l.opts.limit }

// Append records a snapshot of obj unless it equals the last recorded
// snapshot and the guard interval has not elapsed since that recording.
// Returns the entry and whether it was recorded. When persisting fails
// the in-memory log keeps the entry and the error is returned.
func (l *Log) Append(ctx context.Context, obj ir.Object) (Entry, bool, error) {
	state, err := ir.CanonicalString(obj)
	if err != nil {
		return Entry{}, false, fmt.Errorf("snapshot: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.clock.Now().UTC()
	if state == l.lastState && !l.lastTime.IsZero() && now.Sub(l.lastTime) < l.opts.guardInterval {
		return Entry{}, false, nil
	}

	entry := Entry{
		ID:        l.opts.ids.Generate(),
		Seq:       l.seq.Next(),
		Timestamp: now.Format(TimestampFormat),
		Digest:    ir.DigestOf(state),
		State:     state,
	}
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.opts.limit; over > 0 {
		l.entries = append([]Entry(nil), l.entries[over:]...)
	}
	l.lastState, l.lastTime = state, now

	if err := l.persistLocked(ctx); err != nil {
		return entry, true, err
	}
	return entry, true, nil
}

func (l *Log) persistLocked(ctx context.Context) error {
	text, err := encodeEntries(l.opts.codec, l.entries)
	if err != nil {
		return fmt.Errorf("encode history %s: %w", l.formID, err)
	}
	if err := l.backend.Put(ctx, Key(l.formID), text); err != nil {
		return fmt.Errorf("persist history %s: %w", l.formID, err)
	}

	if l.opts.persistGuard {
		guard, err := l.opts.codec.Encode(ir.Object{
			"state": ir.String(l.lastState),
			"at":    ir.String(l.lastTime.Format(TimestampFormat)),
		})
		if err != nil {
			return fmt.Errorf("encode history guard %s: %w", l.formID, err)
		}
		if err := l.backend.Put(ctx, GuardKey(l.formID), guard); err != nil {
			return fmt.Errorf("persist history guard %s: %w", l.formID, err)
		}
	}
	return nil
}

// List returns entry timestamps, oldest first.
func (l *Log) List() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Timestamp
	}
	return out
}

// Entries returns entry metadata, oldest first.
func (l *Log) Entries() []Meta {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Meta, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Meta()
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Lookup finds an entry by ID, else by exact timestamp. When several
// entries share a timestamp the latest one wins.
func (l *Log) Lookup(ref string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		if e.ID == ref {
			return e, nil
		}
	}
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Timestamp == ref {
			return l.entries[i], nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, ref)
}

// Restore returns the object recorded by the entry matching ref.
func (l *Log) Restore(ref string) (ir.Object, error) {
	e, err := l.Lookup(ref)
	if err != nil {
		return nil, err
	}
	obj, err := ir.UnmarshalObject([]byte(e.State))
	if err != nil {
		return nil, fmt.Errorf("restore %q: %w", ref, err)
	}
	return obj, nil
}

// Clear removes every entry and deletes the persisted blobs.
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.lastState, l.lastTime = "", time.Time{}
	if err := l.backend.Delete(ctx, Key(l.formID)); err != nil {
		return fmt.Errorf("clear history %s: %w", l.formID, err)
	}
	if err := l.backend.Delete(ctx, GuardKey(l.formID)); err != nil {
		return fmt.Errorf("clear history guard %s: %w", l.formID, err)
	}
	return nil
}
