package synthvid

import (
	"fmt"

	"github.com/rcrowley/go-metrics"
	"github.com/synthvid/synthvid/message"
)

type MessageMetrics struct {
	rx map[message.Type]metrics.Counter
	tx map[message.Type]metrics.Counter

	rxUnknown metrics.Counter
	txUnknown metrics.Counter
}

func (m *MessageMetrics) Rx(t message.Type, i int64) {
	if m == nil {
		return
	}
	if c, ok := m.rx[t]; ok {
		c.Inc(i)
	} else if m.rxUnknown != nil {
		m.rxUnknown.Inc(i)
	}
}

func (m *MessageMetrics) Tx(t message.Type, i int64) {
	if m == nil {
		return
	}
	if c, ok := m.tx[t]; ok {
		c.Inc(i)
	} else if m.txUnknown != nil {
		m.txUnknown.Inc(i)
	}
}

func newMessageMetrics() *MessageMetrics {
	gen := func(dir string, types []message.Type) map[message.Type]metrics.Counter {
		h := make(map[message.Type]metrics.Counter, len(types))
		for _, t := range types {
			h[t] = metrics.GetOrRegisterCounter(fmt.Sprintf("messages.%s.%s", dir, message.TypeName(t)), nil)
		}
		return h
	}

	return &MessageMetrics{
		rx: gen("rx", []message.Type{
			message.TypeVersionResponse,
			message.TypeVRAMAck,
			message.TypeResolutionUpdateAck,
			message.TypeFeatureChange,
		}),
		tx: gen("tx", []message.Type{
			message.TypeVersionRequest,
			message.TypeVRAMLocation,
			message.TypeResolutionUpdate,
			message.TypeCursorPosition,
			message.TypeCursorShape,
			message.TypeImageUpdate,
		}),

		rxUnknown: metrics.GetOrRegisterCounter("messages.rx.other", nil),
		txUnknown: metrics.GetOrRegisterCounter("messages.tx.other", nil),
	}
}
