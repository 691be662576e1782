package action

import "errors"

// Sentinel errors for action definitions.
var (
	// ErrInvalidDefinition indicates Define was called with invalid options.
	ErrInvalidDefinition = errors.New("action: invalid definition")

	// ErrDuplicateAction indicates a name was registered twice.
	ErrDuplicateAction = errors.New("action: duplicate action type")

	// ErrMissingField indicates a key field is absent from the context.
	ErrMissingField = errors.New("action: key field missing from context")
)
