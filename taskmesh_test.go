package taskmesh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
)

type meshEngine struct {
	mu        sync.Mutex
	tasks     []core.ExternalTask
	completed []string
	ended     map[string]bool
	xml       map[string]string
}

func (e *meshEngine) FetchAndLock(context.Context, core.FetchAndLockRequest) ([]core.ExternalTask, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	batch := e.tasks
	e.tasks = nil
	return batch, nil
}

func (e *meshEngine) Complete(_ context.Context, taskID string, _ core.Variables) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, taskID)
	return nil
}

func (e *meshEngine) Fail(context.Context, string, *core.TaskFailure) error { return nil }

func (e *meshEngine) ProcessInstanceEnded(_ context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended[id], nil
}

func (e *meshEngine) DefinitionXML(_ context.Context, definitionID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rawXML, ok := e.xml[definitionID]
	if !ok {
		return "", core.ErrDefinitionNotFound
	}
	return rawXML, nil
}

func (e *meshEngine) completedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.completed...)
}

type echoService struct{ name string }

func (h *echoService) Name() string { return h.name }

func (h *echoService) Invoke(_ context.Context, inv core.Invocation) (core.Variables, error) {
	return core.Variables{"echo": inv.Task.ID}, nil
}

func TestMeshDispatchesAndDetectsCompletion(t *testing.T) {
	eng := &meshEngine{
		tasks: []core.ExternalTask{
			testutil.NewTaskBuilder("t1").Instance("p1").Topic("summarize").Activity("s1").Build(),
		},
		ended: map[string]bool{"p1": true},
		xml: map[string]string{
			"def-1": testutil.NewDefinitionBuilder("proc").
				ServiceTask("s1", "summarize", [2]string{"service.name", "summarizer"}).
				Build(),
		},
	}

	cfg := config.Default()
	cfg.Dispatch.Topics = []string{"summarize"}
	cfg.Dispatch.Workers = 1
	cfg.Dispatch.LongPollTimeout = 0
	cfg.Dispatch.PollInterval = 5 * time.Millisecond
	cfg.Completion.PollInterval = 5 * time.Millisecond
	cfg.Completion.WarmupDelay = 0

	mesh, err := New(func(o *Options) {
		o.Config = cfg
		o.Engine = eng
	})
	require.NoError(t, err)
	mesh.Register(&echoService{name: "summarizer"})

	var completedMu sync.Mutex
	var completedInstances []string
	mesh.OnInstanceComplete(func(id string) {
		completedMu.Lock()
		completedInstances = append(completedInstances, id)
		completedMu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = mesh.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		completedMu.Lock()
		defer completedMu.Unlock()
		return len(completedInstances) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mesh did not shut down")
	}

	assert.Equal(t, []string{"t1"}, eng.completedIDs())
	completedMu.Lock()
	assert.Equal(t, []string{"p1"}, completedInstances)
	completedMu.Unlock()
	assert.Empty(t, mesh.Tracker().InstanceIDs(), "completed instance state released")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.Workers = 0
	_, err := New(func(o *Options) { o.Config = cfg })
	require.Error(t, err)
}

func TestNewBuildsRESTClientFromConfig(t *testing.T) {
	mesh, err := New()
	require.NoError(t, err)
	assert.NotNil(t, mesh.Dispatcher())
	assert.NotNil(t, mesh.Definitions())
}
