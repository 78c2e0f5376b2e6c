package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/bindform/internal/clock"
	"github.com/roach88/bindform/internal/codec"
	"github.com/roach88/bindform/internal/debounce"
	"github.com/roach88/bindform/internal/form"
	"github.com/roach88/bindform/internal/history"
	"github.com/roach88/bindform/internal/ir"
	"github.com/roach88/bindform/internal/objpath"
	"github.com/roach88/bindform/internal/observer"
	"github.com/roach88/bindform/internal/validate"
)

// Session is the binding of one form to one object.
//
// Thread-safety model:
//   - All state is guarded by mu; timer callbacks (commit, snapshot,
//     rescan, autosave) take mu like any caller
//   - Hooks and engine-raised field events are queued while mu is held
//     and dispatched after it is released
//   - After Destroy returns no callback mutates the object
//
// INVARIANTS:
//   - The session is the only writer of obj; callers get copies
//   - Every write of obj passes objpath.Set, so identical writes are no-ops
//   - A field is pushed only when its state differs from the target
type Session struct {
	reg    *Registry
	form   form.Form
	id     string
	cfg    Config
	logger *slog.Logger

	effects *effectQueue
	guard   *pushGuard

	mu        sync.Mutex
	closed    bool
	obj       ir.Object
	cache     *objpath.Cache
	validator *validate.Validator
	history   *history.Log
	fields    []form.Field
	offs      map[form.Field]func()
	offSubmit func()
	observer  *observer.Observer
	snapshot  *debounce.Func[struct{}]
	autosave  clock.Timer
	dirty     bool

	// commitMu guards commits; listeners reach it without mu.
	commitMu       sync.Mutex
	commits        map[string]*debounce.Func[form.Field]
	commitsStopped bool
}

func newSession(ctx context.Context, reg *Registry, f form.Form, initial ir.Object, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	id := f.ID()

	obj := initial.Clone()
	if obj == nil {
		obj = ir.Object{}
	}

	s := &Session{
		reg:     reg,
		form:    f,
		id:      id,
		cfg:     cfg,
		logger:  cfg.Logger.With("form", id),
		effects: newEffectQueue(),
		guard:   newPushGuard(),
		obj:     obj,
		cache:   objpath.NewCache(),
		offs:    make(map[form.Field]func()),
		commits: make(map[string]*debounce.Func[form.Field]),
	}
	s.validator = validate.New(cfg.Validators, s.onValidationFail)

	if !cfg.DisableHistory {
		c, err := codec.ForForm(id, cfg.CompressHistory, cfg.EncryptHistory, cfg.HostEntropy)
		if err != nil {
			return nil, wrapError("bind", "", err)
		}
		opts := []history.Option{
			history.WithLimit(cfg.HistoryLimit),
			history.WithCodec(c),
			history.WithClock(cfg.Clock),
			history.WithIDs(cfg.IDs),
			history.WithLogger(s.logger),
		}
		if cfg.EncryptHistory {
			opts = append(opts, history.WithPersistentGuard())
		}
		hl, err := history.Open(ctx, cfg.Storage, id, opts...)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", id, err)
		}
		s.history = hl
	}

	s.snapshot = debounce.New(cfg.Clock, cfg.SnapshotDelay, func(struct{}) {
		_ = s.do("snapshot", func() error {
			s.appendLocked(context.Background(), "change")
			return nil
		})
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attachLocked(f.Fields())
	s.refreshLocked("")
	s.offSubmit = f.OnSubmit(s.onSubmitEvent)
	if cfg.EnableFieldObserver {
		s.observer = observer.New(observer.Config{
			Form:   f,
			Clock:  cfg.Clock,
			Delay:  cfg.ObserverDelay,
			Rescan: s.rescan,
			Logger: s.logger,
		})
	}
	if cfg.AutoSaveInterval > 0 {
		s.autosave = clock.Ticker(cfg.Clock, cfg.AutoSaveInterval, s.autosaveTick)
	}

	s.logger.Info("form bound",
		"fields", len(s.fields),
		"history", s.history != nil,
		"observer", cfg.EnableFieldObserver,
	)
	return s, nil
}

// do runs fn under the session lock, then dispatches queued effects.
// A destroyed session returns NOT_BOUND without running fn.
func (s *Session) do(op string, fn func() error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return &Error{Code: CodeNotBound, Op: op, Err: fmt.Errorf("session for form %q destroyed", s.id)}
	}
	err := fn()
	s.mu.Unlock()

	s.effects.Drain()
	return err
}

// ID returns the form identifier.
func (s *Session) ID() string { return s.id }

// Form returns the bound form.
func (s *Session) Form() form.Form { return s.form }

// Fields returns the currently bound fields.
func (s *Session) Fields() []form.Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.fields)
}

// Get returns a copy of the value at path.
func (s *Session) Get(path string) (ir.Value, bool, error) {
	if _, err := objpath.Split(path); err != nil {
		return nil, false, wrapError("get", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.cache.Get(s.obj, path)
	if !ok {
		return nil, false, nil
	}
	return ir.Clone(v), true, nil
}

// Export returns a copy of the bound object. Mutating it has no effect
// on the session.
func (s *Session) Export() ir.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obj.Clone()
}

// Refresh pushes the object into every bound field.
func (s *Session) Refresh() error {
	return s.do("refresh", func() error {
		s.refreshLocked("")
		return nil
	})
}

// SetField writes v at path. On change the fields bound to path, below
// it or above it are pushed (unless OneWayBinding), OnObjectUpdate fires and a
// history snapshot is scheduled. Returns whether the object changed.
func (s *Session) SetField(path string, v ir.Value) (bool, error) {
	if _, err := objpath.Split(path); err != nil {
		return false, wrapError("set_field", path, err)
	}
	if v == nil {
		v = ir.Null{}
	}

	var changed bool
	err := s.do("set_field", func() error {
		var err error
		changed, err = objpath.Set(s.obj, path, v)
		if err != nil {
			return wrapError("set_field", path, err)
		}
		if !changed {
			return nil
		}
		s.cache.Invalidate()
		if !s.cfg.OneWayBinding {
			s.refreshLocked(path)
		}
		s.changedLocked(path, v, false)
		return nil
	})
	return changed, err
}

// Import merges the top-level keys of obj into the bound object and
// refreshes the fields. One snapshot is scheduled when anything changed.
func (s *Session) Import(obj ir.Object) (bool, error) {
	var changed bool
	err := s.do("import", func() error {
		changed = s.mergeLocked(obj)
		if !changed {
			return nil
		}
		s.cache.Invalidate()
		s.refreshLocked("")
		s.changedLocked("", nil, false)
		return nil
	})
	return changed, err
}

// ListHistory returns the recorded timestamps, oldest first.
func (s *Session) ListHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return nil
	}
	return s.history.List()
}

// HistoryEntries returns the recorded entries without their state.
func (s *Session) HistoryEntries() []history.Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return nil
	}
	return s.history.Entries()
}

// RestoreHistory merges the snapshot matching ref (an entry ID or a
// timestamp) into the object and refreshes the fields. It records no
// new entry. A miss returns NOT_FOUND and changes nothing.
func (s *Session) RestoreHistory(ref string) error {
	return s.do("restore_history", func() error {
		if s.history == nil {
			return &Error{Code: CodeNotFound, Op: "restore_history", Err: history.ErrNotFound}
		}
		state, err := s.history.Restore(ref)
		if err != nil {
			s.logger.Warn("no history entry for reference", "ref", ref)
			return wrapError("restore_history", "", err)
		}
		changed := s.mergeLocked(state)
		s.cache.Invalidate()
		s.refreshLocked("")
		if changed {
			s.objectUpdatedLocked()
		}
		return nil
	})
}

// SaveHistory records a snapshot now, subject to the de-duplication
// guard. With history disabled it records nothing.
func (s *Session) SaveHistory(ctx context.Context) (history.Meta, bool, error) {
	var (
		meta     history.Meta
		recorded bool
	)
	err := s.do("save_history", func() error {
		if s.history == nil {
			return nil
		}
		e, ok, err := s.history.Append(ctx, s.obj)
		if err != nil {
			return wrapError("save_history", "", err)
		}
		meta, recorded = e.Meta(), ok
		return nil
	})
	return meta, recorded, err
}

// ClearHistory deletes the form's persisted history.
func (s *Session) ClearHistory(ctx context.Context) error {
	return s.do("clear_history", func() error {
		if s.history == nil {
			return nil
		}
		return wrapError("clear_history", "", s.history.Clear(ctx))
	})
}

// ValidateAll reports whether every bound field's current value passes
// its rule. It stops at the first failure.
func (s *Session) ValidateAll() (bool, error) {
	var ok bool
	err := s.do("validate_all", func() error {
		ok = s.validator.ValidateAll(s.readingsLocked())
		return nil
	})
	return ok, err
}

// Submit runs the submission flow: validate every field, ask
// OnBeforeSubmit, call SubmissionHandler, report to OnAfterSubmit.
// Returns whether the handler ran, and its error.
func (s *Session) Submit(ctx context.Context) (bool, error) {
	var (
		valid bool
		obj   ir.Object
	)
	err := s.do("submit", func() error {
		valid = s.validator.ValidateAll(s.readingsLocked())
		if valid {
			obj = s.obj.Clone()
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !valid {
		s.logger.Debug("submit aborted by validation")
		return false, nil
	}

	hooks := s.cfg.Hooks
	if hooks.OnBeforeSubmit != nil && !hooks.OnBeforeSubmit(ctx, obj.Clone()) {
		s.logger.Debug("submit vetoed")
		return false, nil
	}

	var (
		result    any
		submitErr error
	)
	if hooks.SubmissionHandler != nil {
		result, submitErr = hooks.SubmissionHandler(ctx, obj.Clone())
	}
	if hooks.OnAfterSubmit != nil {
		hooks.OnAfterSubmit(ctx, result, submitErr, obj)
	}
	if submitErr != nil {
		s.logger.Warn("submission failed", "error", submitErr)
	}
	return true, submitErr
}

func (s *Session) onSubmitEvent(ctx context.Context) {
	_, _ = s.Submit(ctx)
}

// Destroy detaches the session from its form: listeners, observer,
// debouncers and timers are stopped and the registry forgets the form.
// Safe to call more than once.
func (s *Session) Destroy() {
	if s.destroy() && s.reg != nil {
		s.reg.forget(s)
	}
}

func (s *Session) destroy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true

	s.commitMu.Lock()
	s.commitsStopped = true
	for _, d := range s.commits {
		d.Stop()
	}
	s.commits = nil
	s.commitMu.Unlock()

	s.snapshot.Stop()
	if s.autosave != nil {
		s.autosave.Stop()
	}
	if s.observer != nil {
		s.observer.Stop()
	}
	for f, off := range s.offs {
		off()
		delete(s.offs, f)
	}
	if s.offSubmit != nil {
		s.offSubmit()
	}
	s.logger.Info("form unbound")
	return true
}

// Closed reports whether the session was destroyed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ---------------------------------------------------------------------------
// Field to object

// onEvent is the listener attached to every bound field. It runs without
// the session lock.
func (s *Session) onEvent(ev form.Event) {
	if s.cfg.ReadOnly || s.guard.Active(ev.Field) {
		return
	}
	if d := s.committer(ev.Field.Name()); d != nil {
		d.Call(ev.Field)
	}
}

func (s *Session) committer(path string) *debounce.Func[form.Field] {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	if s.commitsStopped {
		return nil
	}
	d, ok := s.commits[path]
	if !ok {
		d = debounce.New(s.cfg.Clock, s.cfg.Debounce, s.commit)
		s.commits[path] = d
	}
	return d
}

func (s *Session) commit(f form.Field) {
	_ = s.do("commit", func() error {
		path := f.Name()
		v := s.readLocked(f)

		valid := s.validator.Validate(path, v)
		s.feedbackLocked(f, valid)
		if !valid && s.cfg.blocks() {
			s.logger.Debug("update blocked by validation", "path", path)
			return nil
		}

		changed, err := objpath.Set(s.obj, path, v)
		if err != nil {
			s.logger.Warn("commit failed", "path", path, "error", err)
			return nil
		}
		if !changed {
			return nil
		}
		s.cache.Invalidate()
		s.mirrorLocked(f, path, v)
		s.changedLocked(path, v, true)
		return nil
	})
}

// readLocked reads a field as a value: checked state for a checkbox, the
// checked member of a radio group, the selection list of a multiple
// select, the value otherwise. Strings are NFC-normalized.
func (s *Session) readLocked(f form.Field) ir.Value {
	switch f.Kind() {
	case form.KindCheckbox:
		return ir.Bool(f.Checked())
	case form.KindRadio:
		if f.Checked() {
			return ir.String(norm.NFC.String(f.Value()))
		}
		name := f.Name()
		for _, o := range s.fields {
			if o.Kind() == form.KindRadio && o.Name() == name && o.Checked() {
				return ir.String(norm.NFC.String(o.Value()))
			}
		}
		return ir.Null{}
	case form.KindSelectMultiple:
		vals := f.Values()
		for i, v := range vals {
			vals[i] = norm.NFC.String(v)
		}
		return ir.Strings(vals...)
	default:
		return ir.String(norm.NFC.String(f.Value()))
	}
}

// readingsLocked collects current field values for ValidateAll. A radio
// group contributes one reading.
func (s *Session) readingsLocked() []validate.Reading {
	seenRadio := make(map[string]bool)
	out := make([]validate.Reading, 0, len(s.fields))
	for _, f := range s.fields {
		name := f.Name()
		if f.Kind() == form.KindRadio {
			if seenRadio[name] {
				continue
			}
			seenRadio[name] = true
		}
		out = append(out, validate.Reading{Path: name, Value: s.readLocked(f)})
	}
	return out
}

// mirrorLocked pushes a committed value to the other fields bound to the
// same path.
func (s *Session) mirrorLocked(src form.Field, path string, v ir.Value) {
	for _, f := range s.fields {
		if f != src && f.Name() == path {
			s.writeLocked(f, v)
		}
	}
}

// ---------------------------------------------------------------------------
// Object to fields

// refreshLocked pushes the object into the fields bound to prefix, below
// it or above it (a write at "a.b" may replace a scalar at "a"); an empty
// prefix selects every field.
func (s *Session) refreshLocked(prefix string) {
	for _, f := range s.fields {
		if prefix != "" && !objpath.Within(f.Name(), prefix) && !objpath.Within(prefix, f.Name()) {
			continue
		}
		s.pushLocked(f)
	}
}

func (s *Session) pushLocked(f form.Field) {
	path := f.Name()
	v := s.targetLocked(path)
	valid := s.validator.Validate(path, v)
	s.feedbackLocked(f, valid)
	if !valid && s.cfg.blocks() {
		return
	}
	s.writeLocked(f, v)
}

// targetLocked resolves the value a field should show, falling back to
// DefaultValues when the path is absent or null.
func (s *Session) targetLocked(path string) ir.Value {
	v, ok := s.cache.Get(s.obj, path)
	if !ok || ir.IsNull(v) {
		if d, found := s.cfg.DefaultValues[path]; found {
			return d
		}
	}
	if !ok {
		return ir.Null{}
	}
	return v
}

// writeLocked sets a field's state from v when it differs. A select
// whose selection changed gets a change event once the lock is released.
func (s *Session) writeLocked(f form.Field, v ir.Value) {
	switch f.Kind() {
	case form.KindCheckbox:
		if want := ir.Truthy(v); f.Checked() != want {
			f.SetChecked(want)
		}
	case form.KindRadio:
		if want := f.Value() == ir.Stringify(v); f.Checked() != want {
			f.SetChecked(want)
		}
	case form.KindSelectOne, form.KindSelectMultiple:
		want := selection(f.Kind(), v)
		before := f.Values()
		if slices.Equal(before, want) {
			return
		}
		f.SetValues(want)
		if slices.Equal(before, f.Values()) {
			return
		}
		s.effects.Enqueue(func() {
			s.guard.Enter(f)
			defer s.guard.Exit(f)
			f.Trigger(form.EventChange)
		})
	default:
		if want := ir.Stringify(v); f.Value() != want {
			f.SetValue(want)
		}
	}
}

func selection(kind form.Kind, v ir.Value) []string {
	if kind == form.KindSelectMultiple {
		return ir.StringList(v)
	}
	str := ir.Stringify(v)
	if str == "" {
		return nil
	}
	return []string{str}
}

func (s *Session) feedbackLocked(f form.Field, valid bool) {
	class := s.cfg.ValidationClass
	if h := s.cfg.Hooks.OnValidationFeedback; h != nil {
		s.effects.Enqueue(func() { h(f, valid, class) })
		return
	}
	f.ToggleClass(class, !valid)
}

// ---------------------------------------------------------------------------
// Change bookkeeping

// mergeLocked assigns the top-level keys of src. Returns whether any
// key changed.
func (s *Session) mergeLocked(src ir.Object) bool {
	changed := false
	for _, k := range src.SortedKeys() {
		v := src[k]
		if v == nil {
			v = ir.Null{}
		}
		if cur, ok := s.obj[k]; ok && ir.Equal(cur, v) {
			continue
		}
		s.obj[k] = ir.Clone(v)
		changed = true
	}
	return changed
}

// changedLocked queues the change hooks and schedules history.
func (s *Session) changedLocked(path string, v ir.Value, fieldEdit bool) {
	if h := s.cfg.Hooks.OnFieldChange; fieldEdit && h != nil {
		v = ir.Clone(v)
		s.effects.Enqueue(func() { h(path, v) })
	}
	s.objectUpdatedLocked()
	s.scheduleSnapshotLocked()
}

func (s *Session) objectUpdatedLocked() {
	if h := s.cfg.Hooks.OnObjectUpdate; h != nil {
		obj := s.obj.Clone()
		s.effects.Enqueue(func() { h(obj) })
	}
}

func (s *Session) onValidationFail(path string, v ir.Value) {
	s.logger.Debug("validation failed", "path", path)
	if h := s.cfg.Hooks.OnValidationFail; h != nil {
		v = ir.Clone(v)
		s.effects.Enqueue(func() { h(path, v) })
	}
}

func (s *Session) scheduleSnapshotLocked() {
	if s.history == nil {
		return
	}
	if s.cfg.AutoSaveInterval > 0 {
		s.dirty = true
		return
	}
	s.snapshot.Call(struct{}{})
}

func (s *Session) autosaveTick() {
	_ = s.do("autosave", func() error {
		if !s.dirty {
			return nil
		}
		s.dirty = false
		s.appendLocked(context.Background(), "autosave")
		return nil
	})
}

func (s *Session) appendLocked(ctx context.Context, reason string) {
	if s.history == nil {
		return
	}
	e, recorded, err := s.history.Append(ctx, s.obj)
	if err != nil {
		s.logger.Warn("history append failed", "reason", reason, "error", err)
		return
	}
	if recorded {
		s.logger.Debug("history recorded", "reason", reason, "id", e.ID, "seq", e.Seq)
	}
}

// ---------------------------------------------------------------------------
// Field set

func (s *Session) attachLocked(fields []form.Field) {
	for _, f := range fields {
		if _, ok := s.offs[f]; !ok {
			s.offs[f] = f.On(s.onEvent)
		}
		if s.cfg.ReadOnly {
			f.SetDisabled(true)
		}
	}
	s.fields = fields
}

// rescan recomputes the field set after a structural change: listeners
// of removed fields are detached, new fields are attached and pushed.
func (s *Session) rescan() {
	_ = s.do("rescan", func() error {
		next := s.form.Fields()
		live := make(map[form.Field]bool, len(next))
		paths := make(map[string]bool, len(next))
		for _, f := range next {
			live[f] = true
			paths[f.Name()] = true
		}

		removed := 0
		for f, off := range s.offs {
			if !live[f] {
				off()
				delete(s.offs, f)
				removed++
			}
		}
		var added []form.Field
		for _, f := range next {
			if _, ok := s.offs[f]; !ok {
				added = append(added, f)
			}
		}

		s.attachLocked(next)
		for _, f := range added {
			s.pushLocked(f)
		}

		s.commitMu.Lock()
		for p, d := range s.commits {
			if !paths[p] {
				d.Stop()
				delete(s.commits, p)
			}
		}
		s.commitMu.Unlock()

		s.logger.Debug("field set rescanned", "added", len(added), "removed", removed, "total", len(next))
		return nil
	})
}
