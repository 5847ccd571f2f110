package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/types"
)

// Status tags the terminal state of one stream pass. The partial/total
// distinction is a type-level contract, not a control-flow accident.
type Status string

const (
	// StatusComplete means every unit was processed.
	StatusComplete Status = "complete"
	// StatusPartial means a later unit failed but earlier results were
	// salvaged; a normal, reportable terminal state, not an error.
	StatusPartial Status = "partial"
	// StatusTotalFailure means the first unprocessed unit failed with no
	// prior results to salvage.
	StatusTotalFailure Status = "total_failure"
)

// Outcome is the result of one Process call.
type Outcome[R any] struct {
	Status               Status `json:"status"`
	Results              []R    `json:"results"`
	UnitsProcessed       int    `json:"units_processed"`
	CallsMade            int    `json:"calls_made"`
	RecoveredFromFailure bool   `json:"recovered_from_failure"`
	UsedCheckpoint       bool   `json:"used_checkpoint"`
	FailedUnit           string `json:"failed_unit,omitempty"`
	Cause                error  `json:"-"`
}

// ProcessorConfig configures a Processor. Only StreamID is required.
type ProcessorConfig[U, R any] struct {
	// StreamID keys the checkpoint; one checkpoint exists per stream.
	StreamID string
	// OwnerTag labels the checkpoint with its owning run.
	OwnerTag string
	// UnitID names a unit for checkpoints and logs. Nil falls back to
	// the positional index.
	UnitID func(unit U) string
	// OnUnitArtifact, when set, is invoked after each successful unit so
	// callers can write a lightweight partial artifact for inspection.
	// Its error is logged, never propagated.
	OnUnitArtifact func(ctx context.Context, index int, result R) error
	// OnFinalArtifact, when set, is invoked once after all units succeed
	// with the combined results. Its error is logged, never propagated.
	OnFinalArtifact func(ctx context.Context, results []R) error
	// OnCheckpointSave, when set, is invoked after each confirmed
	// checkpoint write.
	OnCheckpointSave func()
	// OnCheckpointDelete, when set, is invoked after the checkpoint is
	// removed on full success.
	OnCheckpointDelete func()
}

// Processor consumes an ordered list of work units, checkpointing after
// every confirmed success and resuming from the last checkpoint on restart.
// Units are processed strictly in order; checkpoint persistence requires a
// stable, observable ordering.
type Processor[U, R any] struct {
	config ProcessorConfig[U, R]
	store  Store
	logger *zap.Logger
}

// NewProcessor creates a checkpointed stream processor.
func NewProcessor[U, R any](config ProcessorConfig[U, R], store Store, logger *zap.Logger) *Processor[U, R] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor[U, R]{
		config: config,
		store:  store,
		logger: logger.With(
			zap.String("component", "stream_processor"),
			zap.String("stream_id", config.StreamID)),
	}
}

// Process runs fn over each unit in order with crash recovery.
//
// Callers are expected to route fn through a breaker instance; the
// processor treats any returned error as unit failure and any returned
// value as success, regardless of content.
//
// A failure with prior accumulated results ends the stream as
// StatusPartial without an error — the salvaged results are a degraded
// but usable outcome and the checkpoint is retained for resumption. A
// failure with nothing accumulated is StatusTotalFailure and returns a
// STREAM_TOTAL_FAILURE error alongside the outcome.
func (p *Processor[U, R]) Process(ctx context.Context, units []U, fn func(ctx context.Context, unit U) (R, error)) (*Outcome[R], error) {
	outcome := &Outcome[R]{}

	accumulated, callsMade, start, err := p.resume(ctx, len(units), outcome)
	if err != nil {
		return nil, err
	}

	for i := start; i < len(units); i++ {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrRunCancelled, "stream abandoned by caller").
				WithCause(ctx.Err())
		}

		name := p.unitName(i, units[i])
		result, unitErr := fn(ctx, units[i])
		callsMade++

		if unitErr != nil {
			return p.finishFailed(name, unitErr, accumulated, callsMade, outcome)
		}

		accumulated = append(accumulated, result)
		p.persist(ctx, accumulated, callsMade, i, name)

		if p.config.OnUnitArtifact != nil {
			if artErr := p.config.OnUnitArtifact(ctx, i, result); artErr != nil {
				p.logger.Warn("unit artifact hook failed",
					zap.Int("unit", i), zap.Error(artErr))
			}
		}
	}

	if p.config.OnFinalArtifact != nil {
		if artErr := p.config.OnFinalArtifact(ctx, accumulated); artErr != nil {
			p.logger.Warn("final artifact hook failed", zap.Error(artErr))
		}
	}

	// Full success: nothing left to resume from.
	if err := p.store.Delete(ctx, p.config.StreamID); err != nil {
		p.logger.Warn("failed to delete checkpoint after success", zap.Error(err))
	} else if p.config.OnCheckpointDelete != nil {
		p.config.OnCheckpointDelete()
	}

	outcome.Status = StatusComplete
	outcome.Results = accumulated
	outcome.UnitsProcessed = len(units)
	outcome.CallsMade = callsMade

	p.logger.Info("stream completed",
		zap.Int("units", len(units)),
		zap.Bool("used_checkpoint", outcome.UsedCheckpoint))
	return outcome, nil
}

// resume loads an existing checkpoint, seeding the accumulator and the
// starting index. A checkpoint covering more units than were supplied is
// treated as stale and ignored.
func (p *Processor[U, R]) resume(ctx context.Context, unitCount int, outcome *Outcome[R]) (accumulated []R, callsMade, start int, err error) {
	cp, loadErr := p.store.Load(ctx, p.config.StreamID)
	if loadErr != nil {
		if types.IsCode(loadErr, types.ErrCheckpointNotFound) {
			return nil, 0, 0, nil
		}
		return nil, 0, 0, fmt.Errorf("loading checkpoint: %w", loadErr)
	}

	if cp.UnitsProcessed <= 0 || cp.UnitsProcessed > unitCount {
		p.logger.Warn("ignoring stale checkpoint",
			zap.Int("units_processed", cp.UnitsProcessed),
			zap.Int("units_supplied", unitCount))
		return nil, 0, 0, nil
	}

	if jsonErr := json.Unmarshal(cp.Results, &accumulated); jsonErr != nil {
		return nil, 0, 0, types.NewError(types.ErrCheckpointCorrupt, "checkpoint results are not decodable").
			WithCause(jsonErr)
	}

	outcome.UsedCheckpoint = true
	p.logger.Info("resuming from checkpoint",
		zap.Int("units_processed", cp.UnitsProcessed),
		zap.String("last_unit", cp.LastUnit))
	return accumulated, cp.CallsMade, cp.UnitsProcessed, nil
}

// persist writes the checkpoint strictly after a confirmed success.
// A store failure leaves the previous checkpoint in place, which still
// reflects a valid (shorter) prefix, so processing continues.
func (p *Processor[U, R]) persist(ctx context.Context, accumulated []R, callsMade, index int, name string) {
	data, err := json.Marshal(accumulated)
	if err != nil {
		p.logger.Error("failed to encode checkpoint results", zap.Error(err))
		return
	}

	cp := &Checkpoint{
		StreamID:       p.config.StreamID,
		OwnerTag:       p.config.OwnerTag,
		UnitsProcessed: index + 1,
		Results:        data,
		CallsMade:      callsMade,
		LastUnit:       name,
		UpdatedAt:      time.Now(),
	}
	if err := p.store.Save(ctx, cp); err != nil {
		p.logger.Warn("checkpoint save failed, progress not durable",
			zap.Int("unit", index), zap.Error(err))
		return
	}
	if p.config.OnCheckpointSave != nil {
		p.config.OnCheckpointSave()
	}
}

func (p *Processor[U, R]) finishFailed(name string, unitErr error, accumulated []R, callsMade int, outcome *Outcome[R]) (*Outcome[R], error) {
	outcome.FailedUnit = name
	outcome.Cause = unitErr
	outcome.CallsMade = callsMade
	outcome.UnitsProcessed = len(accumulated)

	if len(accumulated) > 0 {
		// Salvage: stop here, keep the checkpoint for resumption, and
		// report the partial accumulator as success-with-degradation.
		outcome.Status = StatusPartial
		outcome.RecoveredFromFailure = true
		outcome.Results = accumulated
		p.logger.Warn("unit failed, salvaging prior progress",
			zap.String("unit", outcome.FailedUnit),
			zap.Int("salvaged", len(accumulated)),
			zap.Error(unitErr))
		return outcome, nil
	}

	outcome.Status = StatusTotalFailure
	p.logger.Error("stream total failure, nothing to salvage",
		zap.String("unit", outcome.FailedUnit),
		zap.Error(unitErr))
	return outcome, types.NewError(types.ErrStreamTotalFailure, "first unit failed with no prior results").
		WithCause(unitErr)
}

// unitName resolves the human-readable identity of a unit, falling back
// to the positional index when no UnitID extractor was configured.
func (p *Processor[U, R]) unitName(index int, unit U) string {
	if p.config.UnitID != nil {
		return p.config.UnitID(unit)
	}
	return fmt.Sprintf("unit-%d", index)
}
