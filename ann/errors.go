package ann

import "errors"

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimensionality. It is a configuration error and is never retried.
	ErrDimensionMismatch = errors.New("vector dimension does not match index")

	// ErrMalformedIndex indicates a persisted index that cannot be decoded.
	ErrMalformedIndex = errors.New("malformed index file")

	// ErrIndexBuilt indicates an Add after Build.
	ErrIndexBuilt = errors.New("index already built")

	// ErrEmptyIndex indicates a Build with no vectors added.
	ErrEmptyIndex = errors.New("index has no vectors")

	// ErrInvalidDimension indicates a non-positive dimensionality.
	ErrInvalidDimension = errors.New("dimension must be positive")
)
