// Package pagination walks paginated FEC endpoints and fans out independent
// fetch targets.
//
// The FEC API returns envelopes of shape
// {results: [...], pagination: {page, pages, last_indexes: {...}}}. A
// Paginator walks one resource sequentially to completion, copying the
// last_indexes cursor into each follow-up request; pacing and retry live in
// the client. A Coordinator runs many logically independent Paginator
// invocations (one per candidate name or committee id) on a bounded worker
// pool and merges the results. Failure of one target never aborts the others;
// downstream dedup is hash-based, so merge order does not matter.
package pagination
