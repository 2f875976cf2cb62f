package synthvid

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/synthvid/synthvid/message"
)

// Channel is the transaction capable transport the engine speaks through.
// SendTransaction suspends the caller until the correlated response
// arrives, the request times out, or the channel dies. ResolvePending is
// how the inbound handler wakes the waiting sender.
type Channel interface {
	Send(b []byte) error
	SendTransaction(id uint64, b []byte) ([]byte, error)
	ResolvePending(id uint64, data []byte) bool
	Close() error
}

// Largest legal inbound frame: a complete cursor shape message.
const maxFrameLen = message.PipeHeaderLen + message.HeaderLen + 18 + message.CursorMaxSize

const DefaultRequestTimeout = 5 * time.Second

// PipeChannel runs the pipe framing over a stream transport, a unix or
// vsock socket in production and net.Pipe in tests. Inbound frames are
// handed to the handler installed via Listen; responses are matched to
// waiting senders strictly by transaction id, not arrival order.
type PipeChannel struct {
	l       *logrus.Logger
	conn    io.ReadWriteCloser
	timeout time.Duration

	writeLock sync.Mutex

	pendingLock sync.Mutex
	pending     map[uint64]chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func NewPipeChannel(l *logrus.Logger, conn io.ReadWriteCloser, timeout time.Duration) *PipeChannel {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &PipeChannel{
		l:       l,
		conn:    conn,
		timeout: timeout,
		pending: make(map[uint64]chan []byte),
		closed:  make(chan struct{}),
	}
}

func (p *PipeChannel) Send(b []byte) error {
	select {
	case <-p.closed:
		return ErrChannelClosed
	default:
	}

	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	if _, err := p.conn.Write(b); err != nil {
		return fmt.Errorf("channel write: %w", err)
	}
	return nil
}

// SendTransaction registers a pending transaction for id, writes the frame
// and blocks until ResolvePending delivers the correlated response. At
// most one transaction per id may be outstanding; a duplicate registration
// is a logic error in the caller, not a channel fault.
func (p *PipeChannel) SendTransaction(id uint64, b []byte) ([]byte, error) {
	ch, err := p.registerPending(id)
	if err != nil {
		return nil, err
	}

	if err := p.Send(b); err != nil {
		p.unregisterPending(id)
		return nil, err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		p.unregisterPending(id)
		return nil, fmt.Errorf("transaction %#x: %w", id, ErrRequestTimeout)
	case <-p.closed:
		p.unregisterPending(id)
		return nil, ErrChannelClosed
	}
}

func (p *PipeChannel) registerPending(id uint64) (chan []byte, error) {
	p.pendingLock.Lock()
	defer p.pendingLock.Unlock()
	if _, ok := p.pending[id]; ok {
		return nil, fmt.Errorf("%w: %#x", ErrTransactionPending, id)
	}
	ch := make(chan []byte, 1)
	p.pending[id] = ch
	return ch, nil
}

func (p *PipeChannel) unregisterPending(id uint64) {
	p.pendingLock.Lock()
	delete(p.pending, id)
	p.pendingLock.Unlock()
}

// ResolvePending wakes the sender waiting on id with data, consuming the
// pending transaction. Returns false when nobody is waiting, a stale or
// duplicate response.
func (p *PipeChannel) ResolvePending(id uint64, data []byte) bool {
	p.pendingLock.Lock()
	ch, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.pendingLock.Unlock()
	if !ok {
		return false
	}

	ch <- data
	return true
}

// Listen reads frames until the transport fails or the channel is closed,
// handing each graphics message (header plus payload) to handler on the
// delivery goroutine. Handlers must not block; anything touching engine
// state is expected to hand off.
func (p *PipeChannel) Listen(handler func(msg []byte)) {
	defer p.Close()

	hdr := make([]byte, message.PipeHeaderLen)
	for {
		if _, err := io.ReadFull(p.conn, hdr); err != nil {
			p.logReadErr(err)
			return
		}

		pipeType := binary.LittleEndian.Uint32(hdr[0:4])
		size := binary.LittleEndian.Uint32(hdr[4:8])
		if size < message.HeaderLen || message.PipeHeaderLen+int(size) > maxFrameLen {
			p.l.WithField("size", size).Error("Invalid frame size, closing channel")
			return
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(p.conn, body); err != nil {
			p.logReadErr(err)
			return
		}

		if pipeType != message.PipeTypeData {
			p.l.WithField("pipeType", pipeType).Debug("Ignoring non data pipe packet")
			continue
		}

		handler(body)
	}
}

func (p *PipeChannel) logReadErr(err error) {
	select {
	case <-p.closed:
		// shutdown in progress, the read error is expected
	default:
		if err != io.EOF {
			p.l.WithError(err).Error("Channel read failed")
		} else {
			p.l.Info("Channel disconnected")
		}
	}
}

// Close tears the channel down and unblocks every waiting transaction with
// ErrChannelClosed.
func (p *PipeChannel) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
	})
	return err
}
