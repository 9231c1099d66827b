// Package pql answers structured queries against a network-device
// configuration.
//
// A configuration (addresses, services, groups, applications, tags and
// policy rules) is turned into a graph of typed nodes and directed edges for
// one device context, and queried with PQL, a small MATCH / WHERE / RETURN
// language:
//
//	MATCH (g:address-group)
//	MATCH (a:address)
//	WHERE g.edges_out CONTAINS {target: a.id, relation: "contains"}
//	RETURN g.name, a.name
//
// # Packages
//
//   - cfgtree: the normalized configuration tree the builder reads
//   - graph: the graph model and the builder
//   - query: the PQL lexer and parser
//   - executor: query evaluation
//   - protoconv: structpb encoding of values and results
//   - queue, worker: Redis-backed batch execution
//   - config: pql.yaml loading
//   - health: queue and worker health checks
//   - cmd/pql: the command line tool
//
// # Getting Started
//
// The package-level functions are stateless:
//
//	tree, err := cfgtree.LoadYAML("firewall.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	g, warnings, err := pql.BuildGraph(tree, graph.Context{
//		DeviceKind: graph.DeviceFirewall,
//		Scope:      cfgtree.ScopeVsys,
//		ScopeName:  "vsys1",
//		Version:    "10.1",
//	})
//	q, err := pql.Parse(`MATCH (r:security-rule) WHERE r.from == "Trust" RETURN r.name`)
//	res, err := pql.Execute(g, q)
//
// # Engine
//
// An Engine adds what long-lived callers need: a graph cache keyed by
// snapshot and context, a parsed-query cache, execution limits, batch
// execution and OpenTelemetry tracing and metrics.
//
//	engine, err := pql.New(
//		pql.WithLogger(logger),
//		pql.WithTracer(tp.Tracer("pql")),
//		pql.WithMeterProvider(mp),
//		pql.WithLimits(executor.Options{MaxCandidates: 1_000_000}),
//	)
//	g, _, err := engine.Graph(ctx, tree, gctx)
//	res, err := engine.Query(ctx, g, text)
//
// Graphs and parsed queries are immutable and safe to share between
// goroutines; the Cache is the only mutable shared state.
package pql
