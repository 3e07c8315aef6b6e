// Package core is the orchestration layer.  It composes the transport
// and the capability into the running relay and provides a builder that
// assembles it from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  session  →  capability  →  core  →  cmd (CLI)
//
// The builder in this package is the single place where configuration
// turns into wired components.
package core

import "context"

// Mode is a complete operational mode that owns its lifecycle from
// binding to teardown.  [ServeMode] is the relay's only mode.
type Mode interface {
	Run(ctx context.Context) error
}
