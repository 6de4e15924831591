package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

func newTestClient(t *testing.T, handler http.Handler) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewRESTClient(srv.URL, func(o *Options) {
		o.RetryBackoffBase = time.Millisecond
	})
	require.NoError(t, err)
	return c
}

func TestNewRESTClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewRESTClient("engine-rest")
	assert.Error(t, err)
}

func TestRESTClient_FetchAndLock(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/external-task/fetchAndLock", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"task-1","topicName":"summarize","processInstanceId":"p1"}]`))
	}))

	tasks, err := c.FetchAndLock(context.Background(), core.FetchAndLockRequest{
		WorkerID: "worker-1",
		MaxTasks: 5,
		Topics:   []core.TopicSubscription{{Name: "summarize", LockDuration: 30 * time.Second}},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-1", tasks[0].ID)
	assert.Equal(t, "worker-1", tasks[0].WorkerID)

	assert.Equal(t, "worker-1", gotBody["workerId"])
	assert.Equal(t, float64(5), gotBody["maxTasks"])
	topics := gotBody["topics"].([]any)
	require.Len(t, topics, 1)
	assert.Equal(t, float64(30000), topics[0].(map[string]any)["lockDuration"])
}

func TestRESTClient_CompleteSendsVariables(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/external-task/task-1/complete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.Complete(context.Background(), "task-1", core.Variables{"summary": "done"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"summary": "done"}, gotBody["variables"])
}

func TestRESTClient_FailCarriesRetryHint(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/external-task/task-1/failure", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))

	failure := &core.TaskFailure{
		TaskID:     "task-1",
		Kind:       core.FailureServiceTimeout,
		Message:    "service timed out",
		Retryable:  true,
		Retries:    2,
		RetryDelay: 5 * time.Second,
	}
	err := c.Fail(context.Background(), "task-1", failure)
	require.NoError(t, err)
	assert.Equal(t, "service timed out", gotBody["errorMessage"])
	assert.Equal(t, float64(2), gotBody["retries"])
	assert.Equal(t, float64(5000), gotBody["retryTimeout"])
}

func TestRESTClient_CompleteSurfacesEngineError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "lock expired", http.StatusInternalServerError)
	}))
	err := c.Complete(context.Background(), "task-1", nil)
	assert.Error(t, err)
}

func TestRESTClient_ProcessInstanceEnded(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/process-instance/running":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"running"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	ended, err := c.ProcessInstanceEnded(context.Background(), "running")
	require.NoError(t, err)
	assert.False(t, ended)

	ended, err = c.ProcessInstanceEnded(context.Background(), "gone")
	require.NoError(t, err)
	assert.True(t, ended)
}

func TestRESTClient_DefinitionXML(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/process-definition/def-1/xml", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"def-1","bpmn20Xml":"<definitions/>"}`))
	}))

	rawXML, err := c.DefinitionXML(context.Background(), "def-1")
	require.NoError(t, err)
	assert.Equal(t, "<definitions/>", rawXML)
}

func TestRESTClient_DefinitionXMLNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.DefinitionXML(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrDefinitionNotFound)
}

func TestRESTClient_RetriesIdempotentReads(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"def-1","bpmn20Xml":"<definitions/>"}`))
	}))

	rawXML, err := c.DefinitionXML(context.Background(), "def-1")
	require.NoError(t, err)
	assert.Equal(t, "<definitions/>", rawXML)
	assert.Equal(t, int32(2), calls.Load())
}
