package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/types"
)

type page struct {
	URL string
}

type extract struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

func newTestProcessor(store Store) *Processor[page, extract] {
	return NewProcessor(ProcessorConfig[page, extract]{
		StreamID: "run-1/pass-1",
		OwnerTag: "run-1",
		UnitID:   func(u page) string { return u.URL },
	}, store, zap.NewNop())
}

func fivePages() []page {
	units := make([]page, 5)
	for i := range units {
		units[i] = page{URL: fmt.Sprintf("https://example.com/%d", i+1)}
	}
	return units
}

func okProcess(ctx context.Context, u page) (extract, error) {
	return extract{URL: u.URL, Text: "text of " + u.URL}, nil
}

func TestProcess_AllUnitsSucceed(t *testing.T) {
	store := NewMemoryStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	outcome, err := p.Process(ctx, fivePages(), okProcess)
	require.NoError(t, err)

	assert.Equal(t, StatusComplete, outcome.Status)
	assert.Len(t, outcome.Results, 5)
	assert.Equal(t, 5, outcome.UnitsProcessed)
	assert.False(t, outcome.RecoveredFromFailure)
	assert.False(t, outcome.UsedCheckpoint)

	// success deletes the checkpoint
	_, err = store.Load(ctx, "run-1/pass-1")
	assert.True(t, types.IsCode(err, types.ErrCheckpointNotFound))
}

func TestProcess_ResumeFromCheckpoint(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	units := fivePages()

	// 第一次运行：第 4 个单元让进程"崩溃"
	p := newTestProcessor(store)
	calls := 0
	_, err := p.Process(ctx, units, func(ctx context.Context, u page) (extract, error) {
		calls++
		if calls == 4 {
			return extract{}, errors.New("process crashed here")
		}
		return okProcess(ctx, u)
	})
	require.NoError(t, err) // partial salvage, not an error
	require.Equal(t, 3, calls-1)

	// 重启后：只处理剩下的 4-5 两个单元
	p2 := newTestProcessor(store)
	resumedCalls := 0
	outcome, err := p2.Process(ctx, units, func(ctx context.Context, u page) (extract, error) {
		resumedCalls++
		return okProcess(ctx, u)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, resumedCalls, "only units 4-5 are reprocessed")
	assert.True(t, outcome.UsedCheckpoint)
	assert.Equal(t, StatusComplete, outcome.Status)
	require.Len(t, outcome.Results, 5)
	assert.Equal(t, "https://example.com/1", outcome.Results[0].URL)
	assert.Equal(t, "https://example.com/5", outcome.Results[4].URL)
}

func TestProcess_PartialFailureSalvage(t *testing.T) {
	store := NewMemoryStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	outcome, err := p.Process(ctx, fivePages(), func(ctx context.Context, u page) (extract, error) {
		if u.URL == "https://example.com/4" {
			return extract{}, errors.New("fetch blew up")
		}
		return okProcess(ctx, u)
	})

	require.NoError(t, err, "partial success must not raise")
	assert.Equal(t, StatusPartial, outcome.Status)
	assert.True(t, outcome.RecoveredFromFailure)
	assert.Len(t, outcome.Results, 3)
	assert.Equal(t, "https://example.com/4", outcome.FailedUnit)
	require.Error(t, outcome.Cause)

	// checkpoint 保留用于续跑
	cp, err := store.Load(ctx, "run-1/pass-1")
	require.NoError(t, err)
	assert.Equal(t, 3, cp.UnitsProcessed)
	assert.Equal(t, "https://example.com/3", cp.LastUnit)
	assert.Equal(t, "run-1", cp.OwnerTag)
}

func TestProcess_TotalFailurePropagates(t *testing.T) {
	store := NewMemoryStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	outcome, err := p.Process(ctx, fivePages(), func(ctx context.Context, u page) (extract, error) {
		return extract{}, errors.New("everything is down")
	})

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrStreamTotalFailure))
	assert.Equal(t, StatusTotalFailure, outcome.Status)
	assert.Empty(t, outcome.Results)
}

func TestProcess_CheckpointAfterEverySuccess(t *testing.T) {
	store := NewMemoryStore()
	p := newTestProcessor(store)
	ctx := context.Background()

	seen := make([]int, 0, 5)
	_, err := p.Process(ctx, fivePages(), func(c context.Context, u page) (extract, error) {
		// 观察每个单元处理前 checkpoint 只覆盖已确认成功的前缀
		cp, loadErr := store.Load(ctx, "run-1/pass-1")
		if types.IsCode(loadErr, types.ErrCheckpointNotFound) {
			seen = append(seen, 0)
		} else {
			seen = append(seen, cp.UnitsProcessed)
		}
		return okProcess(c, u)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestProcess_ArtifactHooks(t *testing.T) {
	store := NewMemoryStore()
	var unitArtifacts []int
	var finalCount int

	p := NewProcessor(ProcessorConfig[page, extract]{
		StreamID: "run-2/pass-1",
		OnUnitArtifact: func(ctx context.Context, index int, result extract) error {
			unitArtifacts = append(unitArtifacts, index)
			if index == 1 {
				return errors.New("artifact write hiccup") // 只记录，不中断
			}
			return nil
		},
		OnFinalArtifact: func(ctx context.Context, results []extract) error {
			finalCount = len(results)
			return nil
		},
	}, store, zap.NewNop())

	outcome, err := p.Process(context.Background(), fivePages(), okProcess)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, outcome.Status)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, unitArtifacts)
	assert.Equal(t, 5, finalCount)
}

func TestProcess_CheckpointHooks(t *testing.T) {
	store := NewMemoryStore()
	var saves, deletes int

	p := NewProcessor(ProcessorConfig[page, extract]{
		StreamID:           "run-3/pass-1",
		UnitID:             func(u page) string { return u.URL },
		OnCheckpointSave:   func() { saves++ },
		OnCheckpointDelete: func() { deletes++ },
	}, store, zap.NewNop())

	outcome, err := p.Process(context.Background(), fivePages(), okProcess)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, outcome.Status)
	// 每个成功单元一次写入，整轮成功后一次删除
	assert.Equal(t, 5, saves)
	assert.Equal(t, 1, deletes)

	// partial：只有成功的前缀被写入，检查点保留等待恢复
	saves, deletes = 0, 0
	p = NewProcessor(ProcessorConfig[page, extract]{
		StreamID:           "run-3/pass-2",
		UnitID:             func(u page) string { return u.URL },
		OnCheckpointSave:   func() { saves++ },
		OnCheckpointDelete: func() { deletes++ },
	}, store, zap.NewNop())

	outcome, err = p.Process(context.Background(), fivePages(), func(ctx context.Context, u page) (extract, error) {
		if u.URL == "https://example.com/4" {
			return extract{}, errors.New("upstream 503")
		}
		return okProcess(ctx, u)
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, outcome.Status)
	assert.Equal(t, 3, saves)
	assert.Equal(t, 0, deletes)
}

func TestProcess_StaleCheckpointIgnored(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// checkpoint 声称完成了 9 个单元，但这次只给了 2 个
	require.NoError(t, store.Save(ctx, &Checkpoint{
		StreamID:       "run-1/pass-1",
		UnitsProcessed: 9,
		Results:        []byte(`[]`),
	}))

	p := newTestProcessor(store)
	outcome, err := p.Process(ctx, fivePages()[:2], okProcess)
	require.NoError(t, err)
	assert.False(t, outcome.UsedCheckpoint)
	assert.Len(t, outcome.Results, 2)
}

func TestProcess_CorruptCheckpoint(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &Checkpoint{
		StreamID:       "run-1/pass-1",
		UnitsProcessed: 2,
		Results:        []byte(`{not json`),
	}))

	p := newTestProcessor(store)
	_, err := p.Process(ctx, fivePages(), okProcess)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCheckpointCorrupt))
}

func TestProcess_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	p := newTestProcessor(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, fivePages(), okProcess)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRunCancelled))
}
