package cache

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// DefinitionOptions configures a DefinitionCache.
type DefinitionOptions struct {
	// DefinitionTTL bounds how long a parsed definition is served.
	DefinitionTTL time.Duration
	// PropertyTTL bounds how long extracted task descriptors are served.
	// Independent from DefinitionTTL so routing metadata can outlive or
	// expire before the full parsed tree.
	PropertyTTL time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// Logger used for cache lifecycle events.
	Logger logging.Logger
}

// DefinitionCache owns parsed process definitions and their extracted task
// descriptors. On Put the raw XML is parsed exactly once and every
// descriptor is extracted in the same pass; lookups never re-parse.
//
// The cache is the exclusive owner of its ProcessDefinition values: they are
// immutable and replaced, never mutated, so returned pointers are safe to
// hold across sweeps.
type DefinitionCache struct {
	definitions *Cache[*core.ProcessDefinition]
	descriptors *Cache[core.TaskDescriptor]
	logger      logging.Logger
}

// NewDefinitionCache constructs a DefinitionCache with the given options.
func NewDefinitionCache(optFns ...func(o *DefinitionOptions)) *DefinitionCache {
	opts := DefinitionOptions{
		DefinitionTTL: 30 * time.Minute,
		PropertyTTL:   30 * time.Minute,
		Now:           time.Now,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	withNow := func(o *Options) { o.Now = opts.Now }
	return &DefinitionCache{
		definitions: New[*core.ProcessDefinition](opts.DefinitionTTL, withNow),
		descriptors: New[core.TaskDescriptor](opts.PropertyTTL, withNow),
		logger:      opts.Logger,
	}
}

// Get returns the cached definition or a miss. Callers resolving a miss
// fetch the raw XML from the engine out-of-band and call Put.
func (c *DefinitionCache) Get(definitionID string) (*core.ProcessDefinition, bool) {
	return c.definitions.Get(definitionID)
}

// Put parses the raw XML and caches the definition plus all of its task
// descriptors. Malformed XML is never cached; the parse error is returned
// so the caller can retry the fetch on next access.
func (c *DefinitionCache) Put(definitionID, rawXML string) (*core.ProcessDefinition, error) {
	def, err := ParseDefinition(definitionID, rawXML)
	if err != nil {
		c.logger.Warn("definition parse failed", "definition_id", definitionID, "error", err)
		return nil, err
	}
	c.definitions.Put(definitionID, def)
	for _, d := range def.Tasks {
		c.descriptors.Put(descriptorKey(definitionID, d.ID), d)
	}
	c.logger.Debug("definition cached", "definition_id", definitionID, "tasks", len(def.Tasks))
	return def, nil
}

// GetTaskProperties returns the descriptor for (definitionID, taskID). It is
// served from the descriptor cache; when that entry has expired but the
// definition itself is still warm the descriptor is re-derived from the
// parsed tree without touching the engine.
func (c *DefinitionCache) GetTaskProperties(definitionID, taskID string) (core.TaskDescriptor, bool) {
	if d, ok := c.descriptors.Get(descriptorKey(definitionID, taskID)); ok {
		return d, true
	}
	def, ok := c.definitions.Get(definitionID)
	if !ok {
		return core.TaskDescriptor{}, false
	}
	d, ok := def.Task(taskID)
	if ok {
		c.descriptors.Put(descriptorKey(definitionID, taskID), d)
	}
	return d, ok
}

// Invalidate drops the definition and all descriptors extracted from it.
func (c *DefinitionCache) Invalidate(definitionID string) {
	c.definitions.Delete(definitionID)
	c.descriptors.DeletePrefix(definitionID + "/")
}

// SweepExpired removes expired entries from both underlying caches and
// returns the total count removed. Idempotent.
func (c *DefinitionCache) SweepExpired() int {
	return c.definitions.SweepExpired() + c.descriptors.SweepExpired()
}

// Metrics returns aggregate hit/miss counters across both caches.
func (c *DefinitionCache) Metrics() (hits, misses uint64) {
	dh, dm := c.definitions.Metrics()
	ph, pm := c.descriptors.Metrics()
	return dh + ph, dm + pm
}

func descriptorKey(definitionID, taskID string) string {
	return definitionID + "/" + taskID
}
