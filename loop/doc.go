// Package loop orchestrates a bounded multi-pass research run: reserve a
// token budget up front, drive each pass's work units through a
// checkpointed stream processor guarded by retry breakers, assemble the
// accumulated results into evidence, and let the satisfaction evaluator
// decide whether another pass is worth it.
package loop
