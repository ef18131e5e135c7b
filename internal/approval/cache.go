package approval

import "sync"

// Cache holds remembered approval records in memory. Run-scoped entries
// are keyed with their run id so they can never leak into another run;
// session and permanent entries are keyed by signature alone and live
// for the process lifetime. Safe for concurrent use across runs.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Record
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Record)}
}

func runKey(runID, sig string) string { return "run|" + runID + "|" + sig }
func flatKey(sig string) string       { return "sig|" + sig }

// Lookup returns a remembered record matching the signature, checking
// the run-scoped entry for runID first.
func (c *Cache) Lookup(sig, runID string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rec, ok := c.entries[runKey(runID, sig)]; ok {
		return rec, true
	}
	rec, ok := c.entries[flatKey(sig)]
	return rec, ok
}

// Put stores a record under the key its remember scope dictates.
// Records without remember set are ignored.
func (c *Cache) Put(rec Record) {
	if !rec.Remember {
		return
	}
	sig := Signature(rec.Request.Context)
	key := flatKey(sig)
	if rec.RememberScope == ScopeRun {
		key = runKey(rec.Request.RunID, sig)
	}
	c.mu.Lock()
	c.entries[key] = rec
	c.mu.Unlock()
}

// DropRun removes every entry remembered for a single run, for callers
// that retire run state eagerly.
func (c *Cache) DropRun(runID string) {
	prefix := "run|" + runID + "|"
	c.mu.Lock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
