package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

type namedHandler struct {
	name string
}

func (h *namedHandler) Name() string { return h.name }

func (h *namedHandler) Invoke(context.Context, core.Invocation) (core.Variables, error) {
	return core.Variables{"handled_by": h.name}, nil
}

func TestRegistry_ResolveByName(t *testing.T) {
	r := NewRegistry()
	h := &namedHandler{name: "summarizer"}
	r.Register(h)

	got, err := r.Resolve(core.TaskDescriptor{ServiceName: "summarizer"})
	require.NoError(t, err)
	assert.Same(t, core.ServiceHandler(h), got)
}

func TestRegistry_ExactVersionWins(t *testing.T) {
	r := NewRegistry()
	v1 := &namedHandler{name: "summarizer"}
	v2 := &namedHandler{name: "summarizer"}
	r.RegisterVersion(v1, "v1")
	r.RegisterVersion(v2, "v2")

	got, err := r.Resolve(core.TaskDescriptor{ServiceName: "summarizer", ServiceVersion: "v2"})
	require.NoError(t, err)
	assert.Same(t, core.ServiceHandler(v2), got)
}

func TestRegistry_FallsBackToDefaultVersion(t *testing.T) {
	r := NewRegistry()
	def := &namedHandler{name: "summarizer"}
	r.Register(def)

	got, err := r.Resolve(core.TaskDescriptor{ServiceName: "summarizer", ServiceVersion: "v9"})
	require.NoError(t, err)
	assert.Same(t, core.ServiceHandler(def), got)
}

func TestRegistry_UnknownServiceUnresolved(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve(core.TaskDescriptor{ServiceName: "nobody"})
	assert.ErrorIs(t, err, core.ErrRoutingUnresolved)
}

func TestRegistry_VersionOnlyNoDefault(t *testing.T) {
	r := NewRegistry()
	r.RegisterVersion(&namedHandler{name: "summarizer"}, "v1")

	_, err := r.Resolve(core.TaskDescriptor{ServiceName: "summarizer", ServiceVersion: "v2"})
	assert.ErrorIs(t, err, core.ErrRoutingUnresolved)
}
