package worker

import (
	"sync"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/temporal/client"
	"github.com/flexprice/deprovisioner/internal/types"
	"go.temporal.io/sdk/worker"
)

// TemporalWorkerManager keeps one worker per task queue.
type TemporalWorkerManager interface {
	GetOrCreateWorker(taskQueue types.TemporalTaskQueue, options worker.Options) (worker.Worker, error)
	StartWorker(taskQueue types.TemporalTaskQueue) error
	StopWorker(taskQueue types.TemporalTaskQueue) error
	StopAllWorkers() error
}

// DefaultOptions sizes a worker for the deprovisioning load, which is low
// volume and mostly waiting on timers.
func DefaultOptions() worker.Options {
	return worker.Options{
		MaxConcurrentActivityExecutionSize:     10,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
		EnableSessionWorker:                    false,
	}
}

type workerManager struct {
	client client.TemporalClient
	logger *logger.Logger

	mu      sync.Mutex
	workers map[types.TemporalTaskQueue]worker.Worker
	started map[types.TemporalTaskQueue]bool
}

func NewTemporalWorkerManager(client client.TemporalClient, logger *logger.Logger) TemporalWorkerManager {
	return &workerManager{
		client:  client,
		logger:  logger,
		workers: make(map[types.TemporalTaskQueue]worker.Worker),
		started: make(map[types.TemporalTaskQueue]bool),
	}
}

// GetOrCreateWorker returns the worker of taskQueue. options only apply the
// first time the worker is created.
func (m *workerManager) GetOrCreateWorker(taskQueue types.TemporalTaskQueue, options worker.Options) (worker.Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.workers[taskQueue]; ok {
		return w, nil
	}

	sdkClient := m.client.Client()
	if sdkClient == nil {
		return nil, ierr.NewError("temporal client not started").
			WithHint("Start the temporal client before creating workers").
			Mark(ierr.ErrInternal)
	}

	w := worker.New(sdkClient, taskQueue.String(), options)
	m.workers[taskQueue] = w
	m.logger.Infow("temporal worker created", "task_queue", taskQueue)
	return w, nil
}

func (m *workerManager) StartWorker(taskQueue types.TemporalTaskQueue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[taskQueue]
	if !ok {
		return ierr.NewErrorf("no worker registered for task queue %s", taskQueue).
			WithHint("Register workflows and activities before starting the worker").
			Mark(ierr.ErrNotFound)
	}
	if m.started[taskQueue] {
		return nil
	}

	if err := w.Start(); err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to start worker for task queue %s", taskQueue).
			Mark(ierr.ErrSystem)
	}
	m.started[taskQueue] = true
	m.logger.Infow("temporal worker started", "task_queue", taskQueue)
	return nil
}

func (m *workerManager) StopWorker(taskQueue types.TemporalTaskQueue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[taskQueue]
	if !ok {
		return nil
	}
	if m.started[taskQueue] {
		w.Stop()
	}
	delete(m.workers, taskQueue)
	delete(m.started, taskQueue)
	m.logger.Infow("temporal worker stopped", "task_queue", taskQueue)
	return nil
}

func (m *workerManager) StopAllWorkers() error {
	m.mu.Lock()
	queues := make([]types.TemporalTaskQueue, 0, len(m.workers))
	for tq := range m.workers {
		queues = append(queues, tq)
	}
	m.mu.Unlock()

	for _, tq := range queues {
		if err := m.StopWorker(tq); err != nil {
			return err
		}
	}
	return nil
}
