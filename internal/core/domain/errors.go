package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested query record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates a filter query the store cannot evaluate,
	// such as an unknown field name or an operator the field does not support.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMalformedInput indicates a persisted record collection could not be decoded.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidInput indicates malformed or invalid input to an adapter.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not available for this adapter.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown connector or normaliser type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Extraction Errors.

	// ErrExtractionTimeout indicates the extractor did not answer within its deadline.
	// The gateway reports it as an empty result; callers see it only in logs and counts.
	ErrExtractionTimeout = errors.New("extraction timed out")

	// ErrExtractionProcess indicates the extractor process could not be (re)started.
	ErrExtractionProcess = errors.New("extraction process failure")

	// Connector Errors.

	// ErrConnectorValidation indicates connector validation failed.
	// The source is misconfigured or credentials are invalid.
	ErrConnectorValidation = errors.New("connector validation failed")

	// ErrConnectorClosed indicates the connector has been closed.
	ErrConnectorClosed = errors.New("connector closed")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)
