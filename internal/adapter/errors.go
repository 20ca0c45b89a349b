// Package adapter holds the error contract shared by every pluggable
// backend (metrics sources, models, storage blobs) and the managers that
// own them. Callers classify failures with eris.Is against these sentinels.
package adapter

import "github.com/rotisserie/eris"

var (
	// ErrConnectionFailure means an adapter's one-time connect did not
	// succeed; the owning manager refuses all further calls.
	ErrConnectionFailure = eris.New("adapter: connection failure")

	// ErrInvalidArgument means a caller handed a manager malformed input
	// (nil or empty products, missing frame, ...).
	ErrInvalidArgument = eris.New("adapter: invalid argument")

	// ErrInvalidParameter is raised by a model's ValidateParams when a
	// fit-time parameter is missing or mistyped; the message names the key.
	ErrInvalidParameter = eris.New("adapter: invalid parameter")

	// ErrMissingDependency means a required collaborator was absent, for
	// example fitting without a storage handle.
	ErrMissingDependency = eris.New("adapter: missing dependency")

	// ErrEstimationFailure wraps a failure inside a model's computation.
	// The original cause is preserved in the chain, never swallowed.
	ErrEstimationFailure = eris.New("adapter: estimation failure")
)
