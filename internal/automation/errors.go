package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrNotFound) {
//	    // handle not found case
//	}
//
// Transport failures surface as bridge.ErrTransport wrapped inside
// ErrActionExecution.
var (
	// ErrValidation is returned when an automation or patch is malformed.
	ErrValidation = errors.New("automation: invalid")

	// ErrDuplicateID is returned when creating an automation whose id is taken.
	ErrDuplicateID = errors.New("automation: duplicate id")

	// ErrNotFound is returned when an automation id does not exist.
	ErrNotFound = errors.New("automation: not found")

	// ErrActionExecution is returned when an action in a sequence fails.
	ErrActionExecution = errors.New("automation: action failed")

	// ErrPersistence is returned when the rule file cannot be read or written.
	ErrPersistence = errors.New("automation: persistence failed")
)
