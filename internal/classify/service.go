package classify

import (
	"context"
	"errors"

	"github.com/estoqa/catalog/internal/catalog"
)

// ErrOracleUnavailable marks oracle failures: unreachable endpoint, timeout,
// or output that fails schema validation. Callers treat it as a signal to
// defer work rather than record a wrong identity.
var ErrOracleUnavailable = errors.New("oracle unavailable")

// Result is a canonicalization answer from the oracle, already validated
// against the response schema and mapped onto catalog types.
type Result struct {
	Decomposition catalog.Decomposition
	RawResponse   string
}

// SampleProduct is one existing master offered to the oracle during matching.
type SampleProduct struct {
	SKU           string
	CanonicalName string
	Category      string
}

// MatchResult reports whether the oracle recognized a raw description as an
// existing master from the offered sample.
type MatchResult struct {
	Matched    bool
	SKU        string
	Confidence float64
}

// Provider is a canonicalization oracle. Implementations must return
// ErrOracleUnavailable (possibly wrapped) for connectivity, timeout and
// malformed-output failures so the pipeline can fail closed.
type Provider interface {
	Name() string
	Canonicalize(ctx context.Context, rawDescription string) (Result, error)
	Match(ctx context.Context, rawDescription string, sample []SampleProduct) (MatchResult, error)
}
