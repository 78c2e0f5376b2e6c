package validate

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bindform/internal/ir"
)

// CompileError reports a CUE document that could not be turned into rules.
type CompileError struct {
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// CompileCUE turns a CUE document into one rule per leaf path.
//
//	name:  string & =~"^[A-Z]"
//	age?:  int & >=18
//	address: zip: =~"^[0-9]{5}$"
//
// yields rules for "name", "age" and "address.zip". A value passes when
// it unifies with the leaf constraint and the result is concrete.
func CompileCUE(src string) (map[string]Rule, error) {
	return compileCUE("rules.cue", src)
}

// CompileCUEFile reads and compiles a CUE rule file.
func CompileCUEFile(path string) (map[string]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return compileCUE(path, string(data))
}

func compileCUE(filename, src string) (map[string]Rule, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if root.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Message: "rules must be a struct of field constraints", Pos: root.Pos()}
	}

	// A cue.Context is not safe for concurrent use; every rule compiled
	// from one document shares this lock.
	var mu sync.Mutex
	rules := make(map[string]Rule)
	if err := collectLeaves(ctx, &mu, root, nil, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func collectLeaves(ctx *cue.Context, mu *sync.Mutex, v cue.Value, prefix []string, out map[string]Rule) error {
	it, err := v.Fields(cue.Optional(true))
	if err != nil {
		return formatCUEError(err)
	}
	for it.Next() {
		sel := it.Selector()
		if sel.IsDefinition() || sel.PkgPath() != "" {
			continue
		}
		path := append(append([]string(nil), prefix...), sel.Unquoted())
		field := it.Value()

		if field.IncompleteKind() == cue.StructKind {
			if err := collectLeaves(ctx, mu, field, path, out); err != nil {
				return err
			}
			continue
		}
		out[strings.Join(path, ".")] = cueRule(ctx, mu, field)
	}
	return nil
}

func cueRule(ctx *cue.Context, mu *sync.Mutex, constraint cue.Value) Rule {
	return func(value ir.Value) bool {
		mu.Lock()
		defer mu.Unlock()

		encoded := ctx.Encode(ir.ToGo(value))
		if encoded.Err() != nil {
			return false
		}
		return constraint.Unify(encoded).Validate(cue.Concrete(true)) == nil
	}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Message: first.Error(), Pos: positions[0]}
	}
	return &CompileError{Message: first.Error()}
}
