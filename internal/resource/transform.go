package resource

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// transformProgram is a compiled filter value transform. The expression sees
// the raw parameter string as `value` and returns the mapped value, e.g.
// `lower(trim(value))` or `value == "tram" ? "TRAM" : upper(value)`.
type transformProgram struct {
	source string
	prog   *vm.Program
}

func compileTransform(source string) (*transformProgram, error) {
	prog, err := expr.Compile(source, expr.Env(map[string]any{"value": ""}))
	if err != nil {
		return nil, fmt.Errorf("compile transform: %w", err)
	}
	return &transformProgram{source: source, prog: prog}, nil
}

// apply maps a raw query value. Failures surface as validation errors, never
// as silent pass-through.
func (t *transformProgram) apply(field, raw string) (string, *AppError) {
	out, err := expr.Run(t.prog, map[string]any{"value": raw})
	if err != nil {
		return "", ValidationErrorf(field, "transform", "invalid value for %s: %v", field, err)
	}
	s, ok := out.(string)
	if !ok {
		return "", ValidationErrorf(field, "transform", "invalid value for %s", field)
	}
	return s, nil
}
