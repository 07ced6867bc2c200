package particles

import "errors"

// Error kinds surfaced by a step. Every error returned from SimulateStep wraps
// exactly one of these, so callers can classify with errors.Is.
var (
	// ErrAllocationExhausted means a container could not grow to hold the
	// requested particles.
	ErrAllocationExhausted = errors.New("particles: allocation exhausted")

	// ErrInvalidDescription means a step description is malformed or
	// inconsistent with the schema of the state it is applied to.
	ErrInvalidDescription = errors.New("particles: invalid step description")

	// ErrProviderFailure means an emitter, force, event or action could not
	// produce a result.
	ErrProviderFailure = errors.New("particles: provider failure")
)
