package th

import (
	"fmt"

	"github.com/cepflow/cepflow/flow"
)

// ValidKinds is the set of recognized transport kind names.
var ValidKinds = map[string]bool{"": true, flow.MemoryType: true, ExchangeType: true}

// New returns a prototype TransportHolder for kind. The empty kind means
// memory. ex is required for the exchange kind.
func New(kind string, ex *Exchange) (flow.TransportHolder, error) {
	switch kind {
	case "", flow.MemoryType:
		return NewMemory(), nil
	case ExchangeType:
		if ex == nil {
			return nil, fmt.Errorf("transport kind %q needs an exchange", kind)
		}
		return NewExchangeHolder(ex), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}
