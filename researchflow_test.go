package researchflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/evaluate"
	"github.com/BaSui01/researchflow/loop"
	"github.com/BaSui01/researchflow/stream"
	"github.com/BaSui01/researchflow/types"
)

func TestNew_DefaultsToMemoryStore(t *testing.T) {
	rt, err := New(WithLogger(zap.NewNop()))

	require.NoError(t, err)
	assert.NotNil(t, rt.Governor)
	assert.NotNil(t, rt.Breakers)
	assert.NotNil(t, rt.Evaluator)
	assert.IsType(t, &stream.MemoryStore{}, rt.Store)
	assert.Nil(t, rt.Metrics, "metrics are off unless a namespace is given")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Evaluator.MaxPasses = 0

	_, err := New(WithConfig(cfg), WithLogger(zap.NewNop()))

	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidConfig))
}

func TestNew_SQLiteStoreFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Checkpoint.Store = "sqlite"
	cfg.Checkpoint.SQLitePath = filepath.Join(t.TempDir(), "checkpoints.db")

	rt, err := New(WithConfig(cfg), WithLogger(zap.NewNop()))

	require.NoError(t, err)
	assert.IsType(t, &stream.GormStore{}, rt.Store)
}

func TestNew_RejectsBadLogLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "loud"

	_, err := New(WithConfig(cfg))

	assert.Error(t, err)
}

func TestRuntime_EndToEndRunOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig()
	cfg.Checkpoint.Store = "redis"

	rt, err := New(
		WithConfig(cfg),
		WithLogger(zap.NewNop()),
		WithRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
	)
	require.NoError(t, err)

	units := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"}
	ctrl, err := NewController(rt, loop.ControllerConfig[string, evaluate.Item]{
		Planner: func(ctx context.Context, pass int, prev *evaluate.PassResult) ([]string, error) {
			return units, nil
		},
		Worker: func(ctx context.Context, unit string) (evaluate.Item, error) {
			return evaluate.Item{
				Source: "https://" + unit + ".example.com",
				Domain: unit + ".example.com",
			}, nil
		},
		Assembler: func(ctx context.Context, results []evaluate.Item) (evaluate.Evidence, error) {
			return evaluate.Evidence{Items: results, Confidence: 0.9}, nil
		},
	})
	require.NoError(t, err)

	report, err := ctrl.Run(context.Background(), loop.Request{
		Goal:            "check ferry schedules",
		AvailableBudget: 10000,
	})

	require.NoError(t, err)
	assert.True(t, report.Completed)
	assert.Len(t, report.Passes, 1)
}
