package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bindform/internal/dom"
	"github.com/roach88/bindform/internal/form"
	"github.com/roach88/bindform/internal/history"
	"github.com/roach88/bindform/internal/ir"
	"github.com/roach88/bindform/internal/objpath"
	"github.com/roach88/bindform/internal/store"
	"github.com/roach88/bindform/internal/testutil"
	"github.com/roach88/bindform/internal/validate"
)

const twoFieldForm = `<form id="profile">
  <input type="text" name="field1">
  <input type="checkbox" name="field2">
</form>`

const richForm = `<form id="order">
  <input type="text" name="customer.name">
  <input type="radio" name="size" value="s">
  <input type="radio" name="size" value="m">
  <select name="country">
    <option value="fr">France</option>
    <option value="ch" selected>Switzerland</option>
  </select>
  <select name="colors" multiple>
    <option>red</option>
    <option value="g">green</option>
    <option>blue</option>
  </select>
</form>`

// recorder collects hook calls as readable lines.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, c := range r.all() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func canon(v ir.Value) string {
	s, err := ir.CanonicalString(v)
	if err != nil {
		return err.Error()
	}
	return s
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnFieldChange: func(path string, v ir.Value) {
			r.add("field_change %s=%s", path, canon(v))
		},
		OnObjectUpdate: func(obj ir.Object) {
			r.add("object_update %s", canon(obj))
		},
		OnValidationFail: func(path string, v ir.Value) {
			r.add("validation_fail %s=%s", path, canon(v))
		},
	}
}

type fixture struct {
	t    *testing.T
	doc  *dom.Document
	clk  *testutil.FakeClock
	mem  *store.Memory
	reg  *Registry
	rec  *recorder
	sess *Session
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, markup string, initial ir.Object, mutate func(*Config)) *fixture {
	t.Helper()
	d, err := dom.ParseString(markup)
	require.NoError(t, err)

	fx := &fixture{
		t:   t,
		doc: d,
		clk: testutil.NewFakeClock(time.Time{}),
		mem: store.NewMemory(),
		rec: &recorder{},
	}
	fx.reg = NewRegistry(quietLogger())
	fx.sess = fx.bind(initial, mutate)
	t.Cleanup(fx.sess.Destroy)
	return fx
}

func (fx *fixture) config(mutate func(*Config)) Config {
	cfg := DefaultConfig()
	cfg.Clock = fx.clk
	cfg.IDs = testutil.NewCountingGenerator("entry")
	cfg.Storage = fx.mem
	cfg.Hooks = fx.rec.hooks()
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

func (fx *fixture) bind(initial ir.Object, mutate func(*Config)) *Session {
	fx.t.Helper()
	s, err := fx.reg.Bind(context.Background(), fx.doc, initial, fx.config(mutate))
	require.NoError(fx.t, err)
	return s
}

// settle lets every debounce window and snapshot delay pass.
func (fx *fixture) settle() {
	fx.clk.Advance(time.Second)
}

func nonEmpty(v ir.Value) bool { return ir.Stringify(v) != "" }

func TestTwoFieldScenario(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a"), "field2": ir.Bool(false)}, nil)

	assert.Equal(t, "a", fx.doc.Field("field1").Value())
	assert.False(t, fx.doc.Field("field2").Checked())

	require.NoError(t, fx.doc.Type("field1", "b"))
	fx.clk.Advance(DefaultDebounce)
	assert.Equal(t, ir.String("b"), fx.sess.Export()["field1"])
	assert.Empty(t, fx.sess.ListHistory(), "snapshot waits for its own delay")

	fx.clk.Advance(DefaultSnapshotDelay)
	require.Len(t, fx.sess.ListHistory(), 1)

	require.NoError(t, fx.doc.Check("field2", "", true))
	fx.settle()

	assert.Equal(t, ir.Object{"field1": ir.String("b"), "field2": ir.Bool(true)}, fx.sess.Export())
	assert.Len(t, fx.sess.ListHistory(), 2)
	assert.Equal(t, []string{
		`field_change field1="b"`,
		`object_update {"field1":"b","field2":false}`,
		`field_change field2=true`,
		`object_update {"field1":"b","field2":true}`,
	}, fx.rec.all())
}

func TestOneLogicalChangeYieldsOneEntry(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("")}, nil)

	for _, text := range []string{"h", "he", "hel", "hell", "hello"} {
		require.NoError(t, fx.doc.Type("field1", text))
		fx.clk.Advance(50 * time.Millisecond)
	}
	fx.settle()
	fx.settle()

	assert.Equal(t, ir.String("hello"), fx.sess.Export()["field1"])
	assert.Equal(t, 1, fx.rec.count("field_change"))
	assert.Len(t, fx.sess.ListHistory(), 1)
}

func TestEditsOnDifferentPathsDoNotCancelEachOther(t *testing.T) {
	fx := newFixture(t, twoFieldForm, nil, nil)

	require.NoError(t, fx.doc.Type("field1", "x"))
	fx.clk.Advance(100 * time.Millisecond)
	require.NoError(t, fx.doc.Check("field2", "", true))
	fx.settle()

	assert.Equal(t, ir.Object{"field1": ir.String("x"), "field2": ir.Bool(true)}, fx.sess.Export())
}

func TestFailedValidationBlocksWhenConfigured(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a")}, func(c *Config) {
		c.Validators = map[string]validate.Rule{"field1": nonEmpty}
		c.AllowUpdateOnFailedValidation = false
	})

	require.NoError(t, fx.doc.Type("field1", ""))
	fx.settle()

	assert.Equal(t, ir.String("a"), fx.sess.Export()["field1"])
	assert.Equal(t, []string{`validation_fail field1=""`}, fx.rec.all())
	assert.True(t, fx.doc.Field("field1").HasClass(DefaultValidationClass))
	assert.Empty(t, fx.sess.ListHistory())

	require.NoError(t, fx.doc.Type("field1", "ok"))
	fx.settle()
	assert.Equal(t, ir.String("ok"), fx.sess.Export()["field1"])
	assert.False(t, fx.doc.Field("field1").HasClass(DefaultValidationClass))
}

func TestFailedValidationStillUpdatesByDefault(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a")}, func(c *Config) {
		c.Validators = map[string]validate.Rule{"field1": nonEmpty}
	})

	require.NoError(t, fx.doc.Type("field1", ""))
	fx.settle()

	assert.Equal(t, ir.String(""), fx.sess.Export()["field1"])
	assert.Equal(t, 1, fx.rec.count("validation_fail"))
	assert.True(t, fx.doc.Field("field1").HasClass(DefaultValidationClass))
}

func TestValidationFeedbackHookReplacesClassToggle(t *testing.T) {
	var got []string
	fx := newFixture(t, twoFieldForm, nil, func(c *Config) {
		c.Validators = map[string]validate.Rule{"field1": nonEmpty}
		c.ValidationClass = "bad"
		c.Hooks.OnValidationFeedback = func(f form.Field, valid bool, class string) {
			got = append(got, fmt.Sprintf("%s:%v:%s", f.Name(), valid, class))
		}
	})

	assert.Equal(t, []string{"field1:false:bad", "field2:true:bad"}, got)
	assert.False(t, fx.doc.Field("field1").HasClass("bad"))
}

func TestSubmitBlockedByValidation(t *testing.T) {
	var submitted []ir.Object
	var after []string
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("")}, func(c *Config) {
		c.Validators = map[string]validate.Rule{"field1": nonEmpty}
		c.Hooks.SubmissionHandler = func(_ context.Context, obj ir.Object) (any, error) {
			submitted = append(submitted, obj)
			return "sent", nil
		}
		c.Hooks.OnAfterSubmit = func(_ context.Context, result any, err error, _ ir.Object) {
			after = append(after, fmt.Sprintf("%v/%v", result, err))
		}
	})

	ok, err := fx.sess.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, submitted)
	assert.Empty(t, after)

	_, err = fx.sess.SetField("field1", ir.String("x"))
	require.NoError(t, err)

	ok, err = fx.sess.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, submitted, 1)
	assert.Equal(t, ir.String("x"), submitted[0]["field1"])
	assert.Equal(t, []string{"sent/<nil>"}, after)
}

func TestSubmitEventAndVeto(t *testing.T) {
	veto := true
	var calls int
	fx := newFixture(t, twoFieldForm, nil, func(c *Config) {
		c.Hooks.OnBeforeSubmit = func(context.Context, ir.Object) bool { return !veto }
		c.Hooks.SubmissionHandler = func(context.Context, ir.Object) (any, error) {
			calls++
			return nil, errors.New("offline")
		}
	})

	fx.doc.Submit(context.Background())
	assert.Equal(t, 0, calls)

	veto = false
	fx.doc.Submit(context.Background())
	assert.Equal(t, 1, calls)

	ok, err := fx.sess.Submit(context.Background())
	assert.True(t, ok)
	assert.EqualError(t, err, "offline")
}

func TestRestoreMissChangesNothing(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a")}, nil)

	err := fx.sess.RestoreHistory("2001-01-01T00:00:00.000Z")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, history.ErrNotFound)
	assert.Equal(t, ir.Object{"field1": ir.String("a")}, fx.sess.Export())
}

func TestRestoreRefreshesWithoutRecording(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a")}, nil)

	require.NoError(t, fx.doc.Type("field1", "first"))
	fx.settle()
	require.NoError(t, fx.doc.Type("field1", "second"))
	fx.settle()

	entries := fx.sess.HistoryEntries()
	require.Len(t, entries, 2)

	require.NoError(t, fx.sess.RestoreHistory(entries[0].ID))
	assert.Equal(t, "first", fx.doc.Field("field1").Value())
	assert.Equal(t, ir.String("first"), fx.sess.Export()["field1"])

	fx.settle()
	assert.Len(t, fx.sess.HistoryEntries(), 2)

	// Timestamps work as references too.
	require.NoError(t, fx.sess.RestoreHistory(entries[1].Timestamp))
	assert.Equal(t, "second", fx.doc.Field("field1").Value())
}

func TestSetFieldPushesAndSchedulesOneSnapshot(t *testing.T) {
	fx := newFixture(t, richForm, nil, nil)

	changed, err := fx.sess.SetField("customer.name", ir.String("Ada"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "Ada", fx.doc.Field("customer.name").Value())

	changed, err = fx.sess.SetField("customer.name", ir.String("Ada"))
	require.NoError(t, err)
	assert.False(t, changed)

	fx.settle()
	assert.Equal(t, 0, fx.rec.count("field_change"))
	assert.Equal(t, 1, fx.rec.count("object_update"))
	assert.Len(t, fx.sess.ListHistory(), 1)
}

func TestSetFieldPushesSubpaths(t *testing.T) {
	fx := newFixture(t, richForm, nil, nil)

	_, err := fx.sess.SetField("customer", ir.Object{"name": ir.String("Lin")})
	require.NoError(t, err)
	assert.Equal(t, "Lin", fx.doc.Field("customer.name").Value())
}

func TestSelectPushDoesNotEcho(t *testing.T) {
	fx := newFixture(t, richForm, nil, nil)
	var seen []form.EventType
	fx.doc.Field("country").On(func(ev form.Event) { seen = append(seen, ev.Type) })

	_, err := fx.sess.SetField("country", ir.String("fr"))
	require.NoError(t, err)
	fx.settle()

	assert.Equal(t, []form.EventType{form.EventChange}, seen, "other listeners see the push")
	assert.Equal(t, "fr", fx.doc.Field("country").Value())
	assert.Equal(t, 0, fx.rec.count("field_change"), "the engine ignores its own push")
	assert.Len(t, fx.sess.ListHistory(), 1)
	assert.Equal(t, 0, fx.sess.guard.Size())
}

func TestRefreshIsIdempotent(t *testing.T) {
	fx := newFixture(t, richForm, ir.Object{
		"customer": ir.Object{"name": ir.String("Ada")},
		"size":     ir.String("m"),
		"country":  ir.String("fr"),
		"colors":   ir.Strings("red", "blue"),
	}, nil)

	assert.Equal(t, "Ada", fx.doc.Field("customer.name").Value())
	assert.True(t, fx.doc.FieldsNamed("size")[1].Checked())
	assert.Equal(t, []string{"fr"}, fx.doc.Field("country").Values())
	assert.Equal(t, []string{"red", "blue"}, fx.doc.Field("colors").Values())

	var records []form.Mutation
	fx.doc.Observe(func(batch []form.Mutation) { records = append(records, batch...) })
	var events int
	for _, f := range fx.doc.Fields() {
		f.On(func(form.Event) { events++ })
	}

	require.NoError(t, fx.sess.Refresh())
	require.NoError(t, fx.sess.Refresh())

	assert.Empty(t, records)
	assert.Zero(t, events)
}

func TestRadioAndMultipleSelectCommit(t *testing.T) {
	fx := newFixture(t, richForm, ir.Object{"size": ir.String("m")}, nil)

	require.NoError(t, fx.doc.Choose("size", "s"))
	require.NoError(t, fx.doc.Select("colors", "red", "g"))
	fx.settle()

	obj := fx.sess.Export()
	assert.Equal(t, ir.String("s"), obj["size"])
	assert.Equal(t, ir.Strings("red", "g"), obj["colors"])
}

func TestCommittedStringsAreNFC(t *testing.T) {
	fx := newFixture(t, twoFieldForm, nil, nil)

	require.NoError(t, fx.doc.Type("field1", "e\u0301te"))
	fx.settle()

	assert.Equal(t, ir.String("\u00e9te"), fx.sess.Export()["field1"])
}

func TestMirrorsToFieldsOnSamePath(t *testing.T) {
	fx := newFixture(t, `<form id="m"><input name="title"><input name="title"></form>`, nil, nil)
	fields := fx.doc.FieldsNamed("title")

	fields[0].SetValue("shared")
	fields[0].Trigger(form.EventInput)
	fx.settle()

	assert.Equal(t, "shared", fields[1].Value())
	assert.Equal(t, 1, fx.rec.count("field_change"))
}

func TestDefaultValuesFillAbsentPaths(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field2": ir.Null{}}, func(c *Config) {
		c.DefaultValues = map[string]ir.Value{"field1": ir.String("guest"), "field2": ir.Bool(true)}
	})

	assert.Equal(t, "guest", fx.doc.Field("field1").Value())
	assert.True(t, fx.doc.Field("field2").Checked())
	assert.Equal(t, ir.Object{"field2": ir.Null{}}, fx.sess.Export(), "defaults are not written back")
}

func TestOneWayBindingSkipsPush(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a")}, func(c *Config) {
		c.OneWayBinding = true
	})

	_, err := fx.sess.SetField("field1", ir.String("b"))
	require.NoError(t, err)

	assert.Equal(t, "a", fx.doc.Field("field1").Value())
	assert.Equal(t, ir.String("b"), fx.sess.Export()["field1"])
}

func TestImportMergesAndRecordsOnce(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a"), "keep": ir.Int(1)}, nil)

	changed, err := fx.sess.Import(ir.Object{"field1": ir.String("q"), "field2": ir.Bool(true)})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "q", fx.doc.Field("field1").Value())
	assert.True(t, fx.doc.Field("field2").Checked())

	changed, err = fx.sess.Import(ir.Object{"field1": ir.String("q")})
	require.NoError(t, err)
	assert.False(t, changed)

	fx.settle()
	assert.Equal(t, ir.Object{"field1": ir.String("q"), "field2": ir.Bool(true), "keep": ir.Int(1)}, fx.sess.Export())
	assert.Len(t, fx.sess.ListHistory(), 1)
}

func TestExportIsACopy(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a")}, nil)

	out := fx.sess.Export()
	out["field1"] = ir.String("mutated")

	v, ok, err := fx.sess.Get("field1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.String("a"), v)
}

func TestInvalidPath(t *testing.T) {
	fx := newFixture(t, twoFieldForm, nil, nil)

	_, err := fx.sess.SetField("a..b", ir.Int(1))
	require.Error(t, err)
	assert.True(t, IsInvalidArgument(err))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, objpath.ErrInvalidArgument)

	_, _, err = fx.sess.Get("")
	assert.True(t, IsInvalidArgument(err))
}

func TestObserverBindsAddedFields(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"extra": ir.String("x")}, nil)

	require.NoError(t, fx.doc.AppendHTML(`<div><input name="extra"></div>`))
	assert.Equal(t, "", fx.doc.Field("extra").Value())

	fx.clk.Advance(200 * time.Millisecond)
	assert.Equal(t, "x", fx.doc.Field("extra").Value())
	assert.Len(t, fx.sess.Fields(), 3)

	require.NoError(t, fx.doc.Type("extra", "y"))
	fx.settle()
	assert.Equal(t, ir.String("y"), fx.sess.Export()["extra"])

	before := fx.doc.ListenerCount()
	fx.doc.Remove("extra")
	fx.settle()
	assert.Equal(t, before-1, fx.doc.ListenerCount())
	assert.Len(t, fx.sess.Fields(), 2)
}

func TestReadOnlyDisablesFieldsAndIgnoresEdits(t *testing.T) {
	fx := newFixture(t, twoFieldForm, ir.Object{"field1": ir.String("a")}, func(c *Config) {
		c.ReadOnly = true
	})

	assert.True(t, fx.doc.Field("field1").Disabled())
	assert.True(t, fx.doc.Field("field2").Disabled())

	require.NoError(t, fx.doc.Type("field1", "b"))
	fx.settle()
	assert.Equal(t, ir.String("a"), fx.sess.Export()["field1"])

	require.NoError(t, fx.doc.AppendHTML(`<input name="late">`))
	fx.settle()
	assert.True(t, fx.doc.Field("late").Disabled())
}

func TestAutoSaveRecordsOnIntervalOnly(t *testing.T) {
	fx := newFixture(t, twoFieldForm, nil, func(c *Config) {
		c.AutoSaveInterval = 2 * time.Second
	})

	require.NoError(t, fx.doc.Type("field1", "draft"))
	fx.clk.Advance(time.Second)
	assert.Empty(t, fx.sess.ListHistory())

	fx.clk.Advance(time.Second)
	assert.Len(t, fx.sess.ListHistory(), 1)

	fx.clk.Advance(4 * time.Second)
	assert.Len(t, fx.sess.ListHistory(), 1, "unchanged object is not saved again")
}

func TestDisabledHistory(t *testing.T) {
	fx := newFixture(t, twoFieldForm, nil, func(c *Config) {
		c.DisableHistory = true
	})

	require.NoError(t, fx.doc.Type("field1", "b"))
	fx.settle()

	assert.Nil(t, fx.sess.ListHistory())
	_, recorded, err := fx.sess.SaveHistory(context.Background())
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.True(t, IsNotFound(fx.sess.RestoreHistory("x")))
	keys, err := fx.mem.Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSaveHistoryGuard(t *testing.T) {
	fx := newFixture(t, twoFieldForm, nil, nil)
	ctx := context.Background()

	meta, recorded, err := fx.sess.SaveHistory(ctx)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, "entry-1", meta.ID)

	_, recorded, err = fx.sess.SaveHistory(ctx)
	require.NoError(t, err)
	assert.False(t, recorded, "same state within the guard interval")

	fx.clk.Advance(history.DefaultGuardInterval)
	_, recorded, err = fx.sess.SaveHistory(ctx)
	require.NoError(t, err)
	assert.True(t, recorded)

	require.NoError(t, fx.sess.ClearHistory(ctx))
	assert.Empty(t, fx.sess.ListHistory())
}

func TestEncryptedHistorySurvivesRebind(t *testing.T) {
	encrypted := func(c *Config) {
		c.EncryptHistory = true
		c.CompressHistory = true
	}
	fx := newFixture(t, twoFieldForm, nil, encrypted)
	ctx := context.Background()

	require.NoError(t, fx.doc.Type("field1", "secret"))
	fx.settle()
	require.NoError(t, fx.reg.Unbind(fx.doc))

	raw, ok, err := fx.mem.Get(ctx, history.Key("profile"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(raw, "zstd+xchacha20poly1305:"))
	assert.NotContains(t, raw, "secret")

	_, ok, err = fx.mem.Get(ctx, history.GuardKey("profile"))
	require.NoError(t, err)
	assert.True(t, ok)

	s := fx.bind(nil, encrypted)
	defer s.Destroy()
	entries := s.HistoryEntries()
	require.Len(t, entries, 1)
	require.NoError(t, s.RestoreHistory(entries[0].ID))
	assert.Equal(t, "secret", fx.doc.Field("field1").Value())
}

func TestDecimalValuesSurviveEncryptedHistory(t *testing.T) {
	const cartForm = `<form id="cart">
  <input type="text" name="price">
  <input type="text" name="qty">
  <input type="text" name="discount">
</form>`
	initial, err := ir.UnmarshalObject([]byte(`{"price":1.5,"qty":1e3,"discount":-0.25}`))
	require.NoError(t, err)
	encrypted := func(c *Config) {
		c.EncryptHistory = true
		c.CompressHistory = true
	}
	fx := newFixture(t, cartForm, initial, encrypted)
	ctx := context.Background()

	assert.Equal(t, "1.5", fx.doc.Field("price").Value())
	assert.Equal(t, "1000", fx.doc.Field("qty").Value())
	assert.Equal(t, "-0.25", fx.doc.Field("discount").Value())

	_, recorded, err := fx.sess.SaveHistory(ctx)
	require.NoError(t, err)
	require.True(t, recorded)

	changed, err := fx.sess.SetField("price", ir.Float(9.99))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "9.99", fx.doc.Field("price").Value())

	changed, err = fx.sess.SetField("qty", ir.Float(1000))
	require.NoError(t, err)
	assert.False(t, changed)
	fx.settle()
	require.Len(t, fx.sess.HistoryEntries(), 2)
	require.NoError(t, fx.reg.Unbind(fx.doc))

	s := fx.bind(nil, encrypted)
	defer s.Destroy()
	entries := s.HistoryEntries()
	require.Len(t, entries, 2)

	require.NoError(t, s.RestoreHistory(entries[0].ID))
	assert.True(t, ir.Equal(initial, s.Export()), canon(s.Export()))
	assert.Equal(t, "1.5", fx.doc.Field("price").Value())

	require.NoError(t, s.RestoreHistory(entries[1].ID))
	assert.Equal(t, ir.Float(9.99), s.Export()["price"])
}

func TestSetFieldRefreshesParentField(t *testing.T) {
	const nestedForm = `<form id="nested">
  <input type="text" name="a">
  <input type="text" name="a.b">
</form>`
	fx := newFixture(t, nestedForm, ir.Object{"a": ir.String("plain")}, nil)
	assert.Equal(t, "plain", fx.doc.Field("a").Value())
	assert.Equal(t, "", fx.doc.Field("a.b").Value())

	changed, err := fx.sess.SetField("a.b", ir.String("x"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, `{"b":"x"}`, fx.doc.Field("a").Value())
	assert.Equal(t, "x", fx.doc.Field("a.b").Value())
}

func TestBindAndUnbindLifecycle(t *testing.T) {
	fx := newFixture(t, twoFieldForm, nil, nil)

	_, err := fx.reg.Bind(context.Background(), fx.doc, nil, fx.config(nil))
	assert.True(t, IsAlreadyBound(err))
	assert.ErrorIs(t, err, ErrAlreadyBound)
	assert.Equal(t, 1, fx.reg.Len())

	require.NoError(t, fx.doc.Type("field1", "pending"))
	require.NoError(t, fx.reg.Unbind(fx.doc))

	fx.settle()
	assert.Empty(t, fx.sess.Export(), "a commit pending at unbind is dropped")
	assert.Zero(t, fx.doc.ListenerCount())
	assert.Zero(t, fx.doc.ObserverCount())
	assert.Zero(t, fx.clk.Pending())
	assert.True(t, fx.sess.Closed())

	err = fx.reg.Unbind(fx.doc)
	assert.True(t, IsNotBound(err))

	_, err = fx.sess.SetField("field1", ir.String("late"))
	assert.True(t, IsNotBound(err))

	s := fx.bind(nil, nil)
	defer s.Destroy()
	got, ok := fx.reg.Lookup(fx.doc)
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestDestroyForgetsRegistration(t *testing.T) {
	fx := newFixture(t, twoFieldForm, nil, nil)

	fx.sess.Destroy()
	fx.sess.Destroy()

	_, ok := fx.reg.Lookup(fx.doc)
	assert.False(t, ok)
	assert.Zero(t, fx.reg.Len())
}

func TestHooksMayCallBackIntoSession(t *testing.T) {
	var fx *fixture
	fx = newFixture(t, twoFieldForm, nil, func(c *Config) {
		c.Hooks.OnFieldChange = func(path string, v ir.Value) {
			if path == "field1" {
				_, err := fx.sess.SetField("field2", ir.Bool(ir.Stringify(v) != ""))
				assert.NoError(t, err)
			}
		}
	})

	require.NoError(t, fx.doc.Type("field1", "on"))
	fx.settle()

	assert.True(t, fx.doc.Field("field2").Checked())
	assert.Equal(t, ir.Bool(true), fx.sess.Export()["field2"])
	assert.Len(t, fx.sess.ListHistory(), 1)
}

func TestBindNilForm(t *testing.T) {
	_, err := NewRegistry(quietLogger()).Bind(context.Background(), nil, nil, DefaultConfig())
	assert.True(t, IsInvalidArgument(err))
}
