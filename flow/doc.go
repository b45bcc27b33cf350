// Package flow provides the execution core of the cepflow dataflow framework.
//
// # Reading Guide
//
// Start with these files to understand the graph model:
//   - step.go: the leaf node (Step) wrapping one WorkHolder
//   - simul.go: the composite node (Simul) owning an ordered subgraph
//   - transport.go: one data channel between two DataHolders
//   - wiring.go: name-based wiring ("step.channel") and array helpers
//   - shortcut.go: topology optimization passes and connection checks
//   - process.go: the per-process SPMD execution protocol
//   - vm.go: the VirtualMachine gating execution
//
// # Lifecycle
//
// A driver builds a Simul tree with AddStep and Connect, then finalizes the
// transports with ShortcutConnections followed by SimplifyConnections or
// OptimizeConnectionsWith, assigns ranks with RunOnNode and validates with
// CheckConnections. After that the topology is frozen and Process may be
// called repeatedly once the root's VirtualMachine is Running.
//
// # Extension points
//
//   - WorkHolder: the processing unit inside a Step (see flow/work)
//   - TransportHolder: the mechanism behind a Transport (see flow/th)
//   - Profiler: timing spans around boundary I/O (see flow/trace)
//   - Controller: external start/stop/abort source (see flow/cluster)
//
// Sub-packages register their implementations via init() functions that set
// package-level factory variables (NewMemoryHolderFunc).
package flow
