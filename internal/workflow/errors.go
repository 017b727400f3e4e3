// Package workflow defines the generation pipeline orchestration. This file
// centralizes sentinel errors returned by the orchestrator so callers and
// tests can check them consistently.
package workflow

import "errors"

// ErrMissingDependency is returned when a chained stage finds no persisted
// artifact from its predecessor. The stage fails immediately and makes no
// language-model call.
var ErrMissingDependency = errors.New("no artifact found for predecessor run")
