// Package evaluate decides after each research pass whether the
// accumulated evidence is good enough to stop. Four independent
// criteria (coverage, quality, completeness, contradictions) feed a
// COMPLETE/CONTINUE decision, and a hard pass limit guarantees
// bounded termination regardless of data quality.
package evaluate
