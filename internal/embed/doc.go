// Package embed implements the Embedder Service Client described by the
// indexer's component contracts: a local HTTP client to an out-of-process
// embedding sidecar, plus a query-side caching wrapper.
//
// The sidecar's process lifecycle (spawn, health probing, respawn) lives in
// the lifecycle package; this package only speaks the wire protocol.
package embed
