package pql

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zero-day-ai/pql/graph"
	"github.com/zero-day-ai/pql/query"
)

// Default cache sizes.
const (
	DefaultMaxGraphs  = 16
	DefaultMaxQueries = 256
)

// graphKey identifies a built graph: the source snapshot plus the context it
// was built for.
type graphKey struct {
	Snapshot string
	Context  string
}

func (k graphKey) String() string {
	return k.Snapshot + "|" + k.Context
}

type cachedGraph struct {
	graph    *graph.Graph
	warnings []graph.BuildWarning
}

// CacheStats counts cache traffic since the cache was created.
type CacheStats struct {
	GraphHits   int64 `json:"graph_hits"`
	GraphMisses int64 `json:"graph_misses"`
	QueryHits   int64 `json:"query_hits"`
	QueryMisses int64 `json:"query_misses"`
	Graphs      int   `json:"graphs"`
	Queries     int   `json:"queries"`
}

// Cache holds built graphs and parsed queries, each bounded and evicting the
// least recently used entry. It is safe for concurrent use and may be shared
// by several engines.
type Cache struct {
	graphs  *lru.Cache[graphKey, cachedGraph]
	queries *lru.Cache[string, *query.Query]

	graphHits   atomic.Int64
	graphMisses atomic.Int64
	queryHits   atomic.Int64
	queryMisses atomic.Int64
}

// NewCache creates a cache holding up to maxGraphs graphs and maxQueries
// parsed queries. Non-positive sizes use the defaults.
func NewCache(maxGraphs, maxQueries int) *Cache {
	if maxGraphs <= 0 {
		maxGraphs = DefaultMaxGraphs
	}
	if maxQueries <= 0 {
		maxQueries = DefaultMaxQueries
	}
	// lru.New only fails for a non-positive size.
	graphs, _ := lru.New[graphKey, cachedGraph](maxGraphs)
	queries, _ := lru.New[string, *query.Query](maxQueries)
	return &Cache{graphs: graphs, queries: queries}
}

func (c *Cache) graph(key graphKey) (cachedGraph, bool) {
	entry, ok := c.graphs.Get(key)
	if ok {
		c.graphHits.Add(1)
	} else {
		c.graphMisses.Add(1)
	}
	return entry, ok
}

func (c *Cache) putGraph(key graphKey, entry cachedGraph) {
	c.graphs.Add(key, entry)
}

func (c *Cache) query(text string) (*query.Query, bool) {
	q, ok := c.queries.Get(text)
	if ok {
		c.queryHits.Add(1)
	} else {
		c.queryMisses.Add(1)
	}
	return q, ok
}

func (c *Cache) putQuery(text string, q *query.Query) {
	c.queries.Add(text, q)
}

// Lookup returns a cached graph and marks it recently used. It does not
// count a hit or miss.
func (c *Cache) Lookup(snapshot, contextKey string) (*graph.Graph, bool) {
	entry, ok := c.graphs.Get(graphKey{Snapshot: snapshot, Context: contextKey})
	return entry.graph, ok
}

// InvalidateSnapshot drops every graph built from snapshot and returns how
// many were removed.
func (c *Cache) InvalidateSnapshot(snapshot string) int {
	n := 0
	for _, key := range c.graphs.Keys() {
		if key.Snapshot == snapshot && c.graphs.Remove(key) {
			n++
		}
	}
	return n
}

// Purge empties both caches. Counters are kept.
func (c *Cache) Purge() {
	c.graphs.Purge()
	c.queries.Purge()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		GraphHits:   c.graphHits.Load(),
		GraphMisses: c.graphMisses.Load(),
		QueryHits:   c.queryHits.Load(),
		QueryMisses: c.queryMisses.Load(),
		Graphs:      c.graphs.Len(),
		Queries:     c.queries.Len(),
	}
}
