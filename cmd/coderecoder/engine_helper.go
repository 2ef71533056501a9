package main

import (
	"github.com/coderecoder/coderecoder/internal/engine"
)

// withEngine activates an engine bound to projectFlag, runs fn, and
// always deactivates afterward — CLI invocations are one-shot
// processes, so the activate/deactivate lifecycle spec.md §4.9
// describes collapses to "around a single command" here rather than
// spanning multiple separate invocations.
func withEngine(fn func(*engine.Engine) error) error {
	eng := engine.New(log)
	if _, err := eng.Activate(engine.ActivateParams{ProjectPath: projectFlag}); err != nil {
		return err
	}
	defer eng.Deactivate(engine.DeactivateParams{SaveHistory: true})
	return fn(eng)
}
