// Package extraction bridges KQL property extraction requests to an
// external extractor process.
//
// The extractor reads "<id>,<base64 query>" lines on stdin and writes one
// JSON line per request on stdout. Gateway owns the process, restarts it
// when it exits and converts failures into empty or invalid-query results
// so a bad query never stops a bulk ingest.
package extraction
