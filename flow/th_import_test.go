package flow_test

// Blank import triggers flow/th's init(), which registers NewMemoryHolderFunc.
// This allows package flow's internal test files to run the shortcut and
// simplify passes without directly importing flow/th (which would create an
// import cycle).
import _ "github.com/cepflow/cepflow/flow/th"
