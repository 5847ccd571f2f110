// Package stream implements the checkpointed stream processor: an ordered
// list of work units is driven through a caller-supplied processing
// function, progress is persisted after every confirmed success, and a
// restarted process resumes from the last checkpoint instead of redoing
// completed work.
//
// Failure semantics are a type-level contract (see Status): a unit failure
// after prior progress yields StatusPartial with the salvaged results and
// no error; only a failure with nothing accumulated propagates as
// STREAM_TOTAL_FAILURE. Checkpoint storage is pluggable — memory, Redis,
// and GORM/SQLite implementations ship in this package.
package stream
