// Package replay provides the content-addressed invocation cache consulted
// before every repeatable model call. A resumed or re-run stage whose inputs
// are byte-identical to a journaled invocation reuses the recorded output
// instead of calling the model again. Entries are never evicted; the journal
// is the cache.
package replay

import (
	"context"

	"council/core"
	"council/journal"
	"council/logging"
)

// Cache resolves repeated invocations from the journal.
type Cache struct {
	journal journal.Journal
	logger  logging.Logger
	// OnHit and OnMiss are invoked per lookup, for metrics.
	OnHit  func(stage core.Stage)
	OnMiss func(stage core.Stage)
}

// Options configures a Cache.
type Options struct {
	Logger logging.Logger
}

// New creates a cache over the given journal.
func New(j journal.Journal, optFns ...func(o *Options)) *Cache {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Cache{journal: j, logger: opts.Logger}
}

// Lookup returns the journaled entry for an identical prior invocation.
// A lookup failure is a miss, never an error: the caller proceeds to invoke
// the model.
func (c *Cache) Lookup(ctx context.Context, sessionID string, stage core.Stage, agentID, input string) (*journal.Entry, bool) {
	hash := journal.HashInput(input)
	e, err := c.journal.Find(ctx, sessionID, stage, agentID, hash)
	if err != nil {
		if c.OnMiss != nil {
			c.OnMiss(stage)
		}
		return nil, false
	}
	c.logger.Debug("replay cache hit",
		"session_id", sessionID, "stage", string(stage), "agent_id", agentID)
	if c.OnHit != nil {
		c.OnHit(stage)
	}
	return e, true
}

// Record journals a fresh invocation so future identical calls replay it.
func (c *Cache) Record(ctx context.Context, e *journal.Entry) error {
	return c.journal.Append(ctx, e)
}
