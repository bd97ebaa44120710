package sdk

// FailurePolicy controls whether a run continues after node failures.
type FailurePolicy string

const (
	// FailureHalt stops the run on the first node failure.
	FailureHalt FailurePolicy = "halt"
	// FailureContinuePossible continues while at least one unblocked node
	// remains in the levels still to run.
	FailureContinuePossible FailurePolicy = "continue_possible"
	// FailureAlways continues regardless of failures (guards still apply).
	FailureAlways FailurePolicy = "always"
)

// TokenGuard is called after each level with the accumulated token total.
// Returning false aborts further levels.
type TokenGuard func(totalTokens, ceiling int) bool

// DepthGuard is called before each level with the level index.
// Returning false aborts further levels.
type DepthGuard func(levelIndex, ceiling int) bool

// Options is the recognized engine configuration.
type Options struct {
	MaxParallel                int
	PersistIntermediateOutputs bool
	FailurePolicy              FailurePolicy
	TokenCeiling               int
	DepthCeiling               int
	UseCache                   bool
	ValidateOutputs            bool
	StrictSchemaAlignment      bool

	TokenGuard TokenGuard
	DepthGuard DepthGuard
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() *Options {
	return &Options{
		MaxParallel:                5,
		PersistIntermediateOutputs: true,
		FailurePolicy:              FailureContinuePossible,
		UseCache:                   true,
		ValidateOutputs:            true,
	}
}

// Normalize fills zero values with defaults and clamps invalid settings.
func (o *Options) Normalize() {
	if o.MaxParallel < 1 {
		o.MaxParallel = 5
	}
	switch o.FailurePolicy {
	case FailureHalt, FailureContinuePossible, FailureAlways:
	default:
		o.FailurePolicy = FailureContinuePossible
	}
}
