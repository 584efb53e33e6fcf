package summation

import (
	"encoding/binary"
	"math"

	"github.com/stelzch/allreduce/internal/transport"
	"github.com/stelzch/allreduce/pkg/collections"
	apperrors "github.com/stelzch/allreduce/pkg/errors"
)

// MaxMessageLength is the number of entries batched into one message.
const MaxMessageLength = 4

// entrySize is the wire size of one entry: u64 index + f64 value.
const entrySize = 16

// MessageBufferEntry is one (index, value) record of intermediate-result
// traffic.
type MessageBufferEntry struct {
	Index uint64
	Value float64
}

// MessageBuffer batches intermediate results between rank pairs. It keeps
// at most one outbox destination at a time; entries for a different target
// force a flush first. It is owned by a single rank goroutine.
type MessageBuffer struct {
	tp transport.Transport

	target   int
	outbox   []MessageBufferEntry
	inbox    map[uint64]float64
	requests []transport.Request

	// sendBufferClear tracks whether the outbox storage may be refilled
	// or is still pinned by in-flight sends.
	sendBufferClear bool

	stats Stats
}

// NewMessageBuffer creates a message buffer over the given endpoint.
func NewMessageBuffer(tp transport.Transport) *MessageBuffer {
	return &MessageBuffer{
		tp:              tp,
		target:          -1,
		outbox:          make([]MessageBufferEntry, 0, MaxMessageLength),
		inbox:           make(map[uint64]float64),
		sendBufferClear: true,
	}
}

// Put appends an entry destined for targetRank, flushing beforehand if the
// outbox is full or currently addressed to a different rank.
func (m *MessageBuffer) Put(targetRank int, index uint64, value float64) error {
	if len(m.outbox) >= MaxMessageLength || (m.target >= 0 && m.target != targetRank) {
		if err := m.Flush(); err != nil {
			return err
		}
	}

	if !m.sendBufferClear {
		if err := m.Wait(); err != nil {
			return err
		}
	}

	m.target = targetRank
	m.outbox = append(m.outbox, MessageBufferEntry{Index: index, Value: value})

	if len(m.outbox) == MaxMessageLength {
		return m.Flush()
	}
	return nil
}

// Flush enqueues a non-blocking send of the outbox contents. A flush with
// an empty outbox is a no-op.
func (m *MessageBuffer) Flush() error {
	if len(m.outbox) == 0 {
		return nil
	}

	buf := collections.ByteSlicePool.Get()
	*buf = encodeEntries(*buf, m.outbox)

	req, err := m.tp.Isend(m.target, transport.MessageBufferTag, *buf)
	collections.ByteSlicePool.Put(buf)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTransportFailure, "message buffer flush", err)
	}

	m.requests = append(m.requests, req)
	m.stats.SentMessages++
	m.stats.SentSummands += uint64(len(m.outbox))

	m.outbox = m.outbox[:0]
	m.target = -1
	m.sendBufferClear = false
	return nil
}

// Wait blocks until every previously enqueued send has completed. It is
// idempotent.
func (m *MessageBuffer) Wait() error {
	for _, req := range m.requests {
		if err := req.Wait(); err != nil {
			return apperrors.Wrap(apperrors.CodeTransportFailure, "message buffer wait", err)
		}
	}
	m.requests = m.requests[:0]
	m.sendBufferClear = true
	return nil
}

// Receive blocks on one message from sourceRank and files its entries into
// the inbox.
func (m *MessageBuffer) Receive(sourceRank int) error {
	payload, err := m.tp.Recv(sourceRank, transport.MessageBufferTag)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTransportFailure, "message buffer receive", err)
	}

	if len(payload)%entrySize != 0 {
		return apperrors.Newf(apperrors.CodeTransportFailure,
			"message buffer payload of %d bytes is not a whole number of entries", len(payload))
	}

	for off := 0; off < len(payload); off += entrySize {
		index := binary.LittleEndian.Uint64(payload[off:])
		value := math.Float64frombits(binary.LittleEndian.Uint64(payload[off+8:]))
		m.inbox[index] = value
	}

	m.stats.AwaitedMessages++
	return nil
}

// Get returns the value published for index by sourceRank. If the entry is
// already in the inbox no I/O happens; otherwise the outbox is flushed and
// drained first so the peer cannot be waiting on us, then messages are
// received until the entry arrives. Both sides traverse the
// rank-intersecting indices in ascending order, so the entry is normally in
// the very next message.
func (m *MessageBuffer) Get(sourceRank int, index uint64) (float64, error) {
	if value, ok := m.inbox[index]; ok {
		delete(m.inbox, index)
		return value, nil
	}

	if err := m.Flush(); err != nil {
		return 0, err
	}
	if err := m.Wait(); err != nil {
		return 0, err
	}

	for {
		if err := m.Receive(sourceRank); err != nil {
			return 0, err
		}
		if value, ok := m.inbox[index]; ok {
			delete(m.inbox, index)
			return value, nil
		}
	}
}

// Stats returns the message accounting so far.
func (m *MessageBuffer) Stats() Stats {
	return m.stats
}

func encodeEntries(dst []byte, entries []MessageBufferEntry) []byte {
	for _, e := range entries {
		dst = binary.LittleEndian.AppendUint64(dst, e.Index)
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(e.Value))
	}
	return dst
}
