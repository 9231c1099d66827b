// Package protoconv converts graph values and query results to and from
// google.protobuf.Struct so they can travel as protojson payloads, for
// example on the Redis result channel used by the batch worker.
//
// The conversion is lossy in two documented ways: Struct has a single number
// type, so integral numbers decode as graph.Int and all others as
// graph.Float; and Struct fields are unordered, so decoded maps list their
// keys sorted.
package protoconv
