package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
)

func TestHTTPHandler_InvokePostsPayloadAndReturnsVariables(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"variables":{"summary":"three points"}}`))
	}))
	defer srv.Close()

	h := NewHTTPHandler("summarizer", srv.URL)
	task := testutil.NewTaskBuilder("task-1").Instance("p1").Topic("summarize").Variable("input", "text").Build()
	out, err := h.Invoke(context.Background(), core.Invocation{
		Task: task,
		Descriptor: core.TaskDescriptor{
			ID:         "t1",
			Properties: []core.Property{{Name: "prompt", Value: "Summarize"}},
		},
		Thread: "thread_abc",
	})
	require.NoError(t, err)
	assert.Equal(t, core.Variables{"summary": "three points"}, out)

	assert.Equal(t, "task-1", gotPayload["taskId"])
	assert.Equal(t, "p1", gotPayload["processInstanceId"])
	assert.Equal(t, "thread_abc", gotPayload["thread"])
	props := gotPayload["properties"].([]any)
	require.Len(t, props, 1)
	assert.Equal(t, "prompt", props[0].(map[string]any)["name"])
}

func TestHTTPHandler_ErrorPayloadSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer srv.Close()

	h := NewHTTPHandler("summarizer", srv.URL)
	_, err := h.Invoke(context.Background(), core.Invocation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestHTTPHandler_HTTPErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	h := NewHTTPHandler("summarizer", srv.URL)
	_, err := h.Invoke(context.Background(), core.Invocation{})
	assert.Error(t, err)
}

func TestHTTPHandler_RespectsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	h := NewHTTPHandler("slow", srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Invoke(ctx, core.Invocation{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPHandler_ConversationalMarker(t *testing.T) {
	plain := NewHTTPHandler("plain", "http://svc")
	assert.Empty(t, plain.AssistantID())

	conv := NewHTTPHandler("conv", "http://svc", func(o *HTTPOptions) { o.AssistantID = "asst_1" })
	var h core.ServiceHandler = conv
	c, ok := h.(core.Conversational)
	require.True(t, ok)
	assert.Equal(t, "asst_1", c.AssistantID())
}
