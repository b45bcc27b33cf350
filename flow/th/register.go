// register.go wires the in-memory holder into the flow package's
// registration variable (NewMemoryHolderFunc). This init() runs when any
// package imports flow/th. Test code in package flow uses
// th_import_test.go for the blank import.
package th

import "github.com/cepflow/cepflow/flow"

func init() {
	flow.NewMemoryHolderFunc = func() flow.TransportHolder { return NewMemory() }
}
