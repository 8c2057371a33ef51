package orchestrator

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
	"github.com/surgeproject/surge/internal/common/util"
	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

// Runner runs one execution to a terminal status. *Orchestrator is the
// production implementation.
type Runner interface {
	Run(ctx context.Context, executionId string, progress ProgressFunc) Result
}

// Snapshot is a point-in-time view of one execution.
type Snapshot struct {
	ExecutionId string           `json:"execution_id"`
	Status      ExecutionStatus  `json:"status"`
	State       domain.DemoState `json:"state"`
}

// ExecutionManager launches and tracks executions. At most one execution may
// be active per (fleet, stream) pair; Start rejects a second with
// ErrConflict. Finished executions stay queryable for the life of the
// process.
type ExecutionManager struct {
	runner Runner

	mu         sync.Mutex
	executions map[string]*execution
	pairs      map[string]string // resource pair -> active execution id
}

func NewExecutionManager(runner Runner) *ExecutionManager {
	return &ExecutionManager{
		runner:     runner,
		executions: map[string]*execution{},
		pairs:      map[string]string{},
	}
}

// Start launches an execution against the given resource pair and returns
// its id without waiting for it to finish.
func (m *ExecutionManager) Start(ctx context.Context, fleet provider.FleetRef, streamName string) (string, error) {
	key := pairKey(fleet, streamName)

	m.mu.Lock()
	if holder, active := m.pairs[key]; active {
		m.mu.Unlock()
		return "", &surgeerrors.ErrConflict{Fleet: fleet.String(), Stream: streamName, ExecutionId: holder}
	}
	id := util.NewULID()
	runCtx, cancel := context.WithCancel(ctx)
	e := &execution{
		id:      id,
		pairKey: key,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  StatusInitializing,
	}
	m.executions[id] = e
	m.pairs[key] = id
	m.mu.Unlock()

	log.WithField("execution", id).Infof("accepted execution for fleet %s, stream %s", fleet, streamName)
	go m.run(runCtx, e)
	return id, nil
}

func (m *ExecutionManager) run(ctx context.Context, e *execution) {
	defer close(e.done)
	result := m.runner.Run(ctx, e.id, e.progress)
	e.finish(result)

	m.mu.Lock()
	if m.pairs[e.pairKey] == e.id {
		delete(m.pairs, e.pairKey)
	}
	m.mu.Unlock()
	e.cancel()
}

// Status returns a point-in-time view of the execution.
func (m *ExecutionManager) Status(executionId string) (Snapshot, error) {
	e, err := m.lookup(executionId)
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshot(), nil
}

// Stop requests the execution stop. The execution cleans up and settles in a
// terminal status asynchronously; use Wait to observe it.
func (m *ExecutionManager) Stop(executionId string) error {
	e, err := m.lookup(executionId)
	if err != nil {
		return err
	}
	log.WithField("execution", executionId).Info("stop requested")
	e.cancel()
	return nil
}

// Wait blocks until the execution reaches a terminal status.
func (m *ExecutionManager) Wait(ctx context.Context, executionId string) (Result, error) {
	e, err := m.lookup(executionId)
	if err != nil {
		return Result{}, err
	}
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-e.done:
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.result, nil
}

// Snapshots lists every tracked execution, newest first.
func (m *ExecutionManager) Snapshots() []Snapshot {
	m.mu.Lock()
	tracked := maps.Values(m.executions)
	m.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(tracked))
	for _, e := range tracked {
		snapshots = append(snapshots, e.snapshot())
	}
	slices.SortFunc(snapshots, func(a, b Snapshot) bool {
		return a.ExecutionId > b.ExecutionId
	})
	return snapshots
}

func (m *ExecutionManager) lookup(executionId string) (*execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[executionId]
	if !ok {
		return nil, &surgeerrors.ErrNotFound{Type: "execution", Value: executionId}
	}
	return e, nil
}

func pairKey(fleet provider.FleetRef, streamName string) string {
	return fleet.String() + "|" + streamName
}

// execution tracks one run. The id, key and channels are immutable; the
// mutable view is guarded by mu and updated through the progress callback.
type execution struct {
	id      string
	pairKey string
	cancel  context.CancelFunc
	done    chan struct{}

	mu     sync.Mutex
	status ExecutionStatus
	state  domain.DemoState
	result *Result
}

func (e *execution) progress(status ExecutionStatus, state domain.DemoState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
	e.state = state.DeepCopy()
}

func (e *execution) finish(result Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.result = &result
	e.status = result.Status
	e.state = result.State.DeepCopy()
}

func (e *execution) snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{ExecutionId: e.id, Status: e.status, State: e.state.DeepCopy()}
}
