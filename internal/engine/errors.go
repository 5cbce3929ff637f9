package engine

import "errors"

// Resolution engine errors
var (
	// ErrConflictAlreadyResolving indicates a concurrent resolution
	// already claimed this document; the caller must not block or retry
	ErrConflictAlreadyResolving = errors.New("conflict is already being resolved")

	// ErrUnknownStrategy indicates an unrecognized resolution strategy
	ErrUnknownStrategy = errors.New("unknown resolution strategy")

	// ErrUnknownRevision indicates a choose-winner target revision that
	// is not part of the conflict's revision set
	ErrUnknownRevision = errors.New("revision is not part of this conflict")

	// ErrStrategyNotApplicable indicates merge-permissions applied to a
	// conflict kind other than group_conflict/role_conflict
	ErrStrategyNotApplicable = errors.New("strategy not applicable to this conflict kind")

	// ErrIncompleteCustomResolution indicates a custom field map missing
	// fields required by the document type's schema
	ErrIncompleteCustomResolution = errors.New("custom resolution is missing required fields")
)
