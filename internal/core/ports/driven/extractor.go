package driven

import "context"

// Extractor returns the structural properties of a KQL query text:
// referenced tables, operators, function calls and joins.
//
// Implementations never fail the caller. A timeout or an unavailable
// backend yields an empty map, and an unparsable query yields a map with
// "valid_query" set to false.
type Extractor interface {
	// Submit analyses text. id correlates the request and may be empty.
	Submit(ctx context.Context, text, id string) map[string]any
}

// ExtractorLifecycle is an Extractor backed by a long-lived worker.
type ExtractorLifecycle interface {
	Extractor

	// Start launches the worker. Must be called once before Submit.
	Start()

	// Stop ends the worker and waits for it to exit.
	Stop()
}
