// Package codec converts bound-object snapshots to and from stored text.
//
// The default codec is the identity over canonical JSON. Optional stages
// (compression, then encryption) are injected as Stage values; when any
// stage is present the text becomes "<stage+stage>:" followed by the
// base64 payload. Encode and Decode are exact inverses for a fixed stage
// list.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/bindform/internal/ir"
)

// ErrCodec matches every codec failure via errors.Is.
var ErrCodec = errors.New("codec error")

// Error describes a failed encode or decode.
type Error struct {
	Op    string // "encode" or "decode"
	Stage string // stage name, empty for the serialization step
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("codec %s [%s]: %v", e.Op, e.Stage, e.Err)
	}
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes every *Error match ErrCodec.
func (e *Error) Is(target error) bool { return target == ErrCodec }

// Stage is one reversible byte transformation.
type Stage interface {
	Name() string
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

// Codec serializes values through an ordered list of stages.
type Codec struct {
	stages []Stage
	header string
}

// New creates a codec applying stages in order on Encode and in reverse
// on Decode. With no stages the codec is plain canonical JSON.
func New(stages ...Stage) *Codec {
	names := make([]string, 0, len(stages))
	kept := make([]Stage, 0, len(stages))
	for _, s := range stages {
		if s == nil {
			continue
		}
		kept = append(kept, s)
		names = append(names, s.Name())
	}
	return &Codec{stages: kept, header: strings.Join(names, "+")}
}

// Identity returns the stage-less codec.
func Identity() *Codec {
	return New()
}

// Stages returns the header describing the stage list ("" for identity).
func (c *Codec) Stages() string {
	return c.header
}

// Encode serializes v.
func (c *Codec) Encode(v ir.Value) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", &Error{Op: "encode", Err: err}
	}
	if len(c.stages) == 0 {
		return string(data), nil
	}

	for _, s := range c.stages {
		data, err = s.Encode(data)
		if err != nil {
			return "", &Error{Op: "encode", Stage: s.Name(), Err: err}
		}
	}
	return c.header + ":" + base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses text produced by Encode with the same stage list.
func (c *Codec) Decode(text string) (ir.Value, error) {
	data := []byte(text)

	if len(c.stages) > 0 {
		header, payload, ok := strings.Cut(text, ":")
		if !ok {
			return nil, &Error{Op: "decode", Err: errors.New("missing stage header")}
		}
		if header != c.header {
			return nil, &Error{Op: "decode", Err: fmt.Errorf("stage mismatch: stored %q, configured %q", header, c.header)}
		}
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, &Error{Op: "decode", Err: fmt.Errorf("payload: %w", err)}
		}
		data = raw
		for i := len(c.stages) - 1; i >= 0; i-- {
			s := c.stages[i]
			data, err = s.Decode(data)
			if err != nil {
				return nil, &Error{Op: "decode", Stage: s.Name(), Err: err}
			}
		}
	}

	v, err := ir.UnmarshalValue(data)
	if err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}
	return v, nil
}

// EncodeObject is Encode for an object.
func (c *Codec) EncodeObject(obj ir.Object) (string, error) {
	return c.Encode(obj)
}

// DecodeObject decodes text that must hold an object.
func (c *Codec) DecodeObject(text string) (ir.Object, error) {
	v, err := c.Decode(text)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, &Error{Op: "decode", Err: fmt.Errorf("expected object, got %s", ir.KindOf(v))}
	}
	return obj, nil
}
