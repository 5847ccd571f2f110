// Package types holds the shared error taxonomy used across researchflow.
//
// The four failure classes callers must distinguish:
//
//   - BUDGET_INSUFFICIENT  — no tier fits the available budget; the run never starts.
//   - BREAKER_EXHAUSTED    — one external call failed after all retries and fallback.
//   - STREAM_TOTAL_FAILURE — the first unit of a stream failed with nothing to salvage.
//   - RUN_CANCELLED        — the caller abandoned the run at a pass boundary.
//
// Partial success is deliberately NOT an error code: a stream that salvages prior
// progress reports it as data (stream.StatusPartial), never as an error.
package types
