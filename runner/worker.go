package runner

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
)

// Worker executes every iteration of one test bed during a parallel run.
// Implementations must be safe for concurrent use.
type Worker interface {
	Run(ctx context.Context, cfg *config.ExpandedConfig, specs []specifier.Specifier, repeat int) TestBedResult
}

// InProcessWorker runs the test bed on a goroutine of the current process
type InProcessWorker struct {
	executor *testBedExecutor
}

// NewInProcessWorker creates a worker that builds runners with factory
func NewInProcessWorker(factory Factory, logger log.Logger) *InProcessWorker {
	return &InProcessWorker{executor: newTestBedExecutor(factory, logger.New("component", "inprocess-worker"))}
}

// Run implements Worker
func (w *InProcessWorker) Run(ctx context.Context, cfg *config.ExpandedConfig, specs []specifier.Specifier, repeat int) TestBedResult {
	return w.executor.execute(ctx, cfg, specs, repeat)
}
