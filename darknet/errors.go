package darknet

import (
	"github.com/born-ml/darknet/internal/cfg"
	"github.com/born-ml/darknet/internal/engine"
	"github.com/born-ml/darknet/internal/graph"
	"github.com/born-ml/darknet/internal/weights"
)

// Errors, usable with errors.Is.
var (
	// ErrMalformedConfig: the cfg text is not a sequence of [kind] blocks of
	// key=value lines, or a required field is missing or not a number.
	ErrMalformedConfig = cfg.ErrMalformedConfig

	// ErrUnknownLayerKind: a block kind this runtime cannot build.
	ErrUnknownLayerKind = graph.ErrUnknownLayerKind

	// ErrBadReference: a route or shortcut points at itself, forward, or
	// before the first layer.
	ErrBadReference = graph.ErrBadReference

	// ErrShapeMismatch: tensors could not be combined during Forward.
	ErrShapeMismatch = engine.ErrShapeMismatch

	// ErrNoDetections: Forward ran but no detection layer produced output.
	// This is an empty result, not a failure of the network.
	ErrNoDetections = engine.ErrNoDetections

	// ErrTruncatedWeights: the weights file ended before every parameter was
	// filled.
	ErrTruncatedWeights = weights.ErrTruncatedWeights

	// ErrLayerMismatch: with WithStrictWeights, the weights file has data
	// left after the last layer.
	ErrLayerMismatch = weights.ErrLayerMismatch
)

// Error types carrying the location of a failure, usable with errors.As.
type (
	SyntaxError = cfg.SyntaxError
	BuildError  = graph.BuildError
	ShapeError  = engine.ShapeError
	LoadError   = weights.LoadError
)
