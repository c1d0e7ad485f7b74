// Package ingest consumes activity events from the message bus and writes
// them to the index.
package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/checker/decls"

	"github.com/chainfeedhq/chainfeed/pkg/model"
)

// Filter drops unwanted activities before they reach the index. Rules are CEL
// expressions over an 'activity' variable holding the document as a map; an
// activity matching any rule is dropped.
type Filter struct {
	programs []cel.Program
}

// NewFilter compiles the drop rules. Rules are fixed at startup, so a rule
// that fails to compile is a configuration error.
func NewFilter(rules []string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Declarations(
			decls.NewVar("activity", decls.NewMapType(decls.String, decls.Dyn)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating filter environment: %w", err)
	}

	programs := make([]cel.Program, 0, len(rules))
	for _, rule := range rules {
		ast, issues := env.Compile(rule)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compiling drop rule %q: %w", rule, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("building drop rule %q: %w", rule, err)
		}
		programs = append(programs, prg)
	}

	return &Filter{programs: programs}, nil
}

// Drop reports whether the activity matches any drop rule.
func (f *Filter) Drop(doc *model.ActivityDocument) (bool, error) {
	if len(f.programs) == 0 {
		return false, nil
	}

	activity, err := docAsMap(doc)
	if err != nil {
		return false, err
	}
	input := map[string]interface{}{"activity": activity}

	for _, prg := range f.programs {
		out, _, err := prg.Eval(input)
		if err != nil {
			return false, fmt.Errorf("evaluating drop rule: %w", err)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return false, fmt.Errorf("drop rule must return boolean, got %T", out.Value())
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func docAsMap(doc *model.ActivityDocument) (map[string]interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding activity for rule evaluation: %w", err)
	}
	var activity map[string]interface{}
	if err := json.Unmarshal(raw, &activity); err != nil {
		return nil, fmt.Errorf("decoding activity for rule evaluation: %w", err)
	}
	return activity, nil
}
