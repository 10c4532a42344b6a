package plugin

import "errors"

// Sentinel errors shared by the manifest and Go-source loaders.
var (
	// Expression errors
	ErrUnsafeOperation   = errors.New("unsafe operation attempted")
	ErrInvalidExpression = errors.New("invalid expression syntax")
	ErrUndefinedVariable = errors.New("undefined variable")

	// Loader errors
	ErrInvalidManifest = errors.New("invalid command manifest")
	ErrInvalidSource   = errors.New("invalid command source")
)
