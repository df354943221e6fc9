// Package kb implements the knowledge-base engine: resources, memories,
// and sessions persisted in SQLite, with relevance search over content.
//
// The engine is synchronous and stateful, and it is NOT safe for
// concurrent use. All calls after Initialize must come from a single
// goroutine; in the service this is the bridge worker.
package kb
