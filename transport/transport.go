// Package transport implements the packet transport external contract
// (spec §4.2): addressed, best-effort-with-retry delivery of control
// messages over a radio.Adapter, reporting Queued/Ack/Busy/Fail without
// ever blocking the caller beyond a single non-blocking call. Retries and
// acknowledgement bookkeeping are entirely driven by repeated calls to
// Update, matching the cooperative single-tick model the rest of the
// design runs under (spec §5).
package transport

import (
	"time"

	"github.com/rkotov-iot/meshlink/clock"
	"github.com/rkotov-iot/meshlink/protocol"
	"github.com/rkotov-iot/meshlink/radio"
)

// SendResult is the immediate, synchronous outcome of Send. It never
// reports final delivery: that arrives later through the onAck/onError
// callbacks, since a send outlives the call that started it.
type SendResult int

const (
	// ResultQueued means the first transmission attempt was handed to the
	// radio adapter; delivery is now tracked across future Update calls.
	ResultQueued SendResult = iota
	// ResultBusy means the retry queue is full; the caller should back off
	// and retry the Send itself later.
	ResultBusy
	// ResultFail means the adapter rejected the very first attempt (e.g. an
	// unknown peer); nothing is queued.
	ResultFail
)

const (
	defaultMaxRetries = 3
	defaultAckTimeout = 200 * time.Millisecond
	maxPending        = 16
)

type inboundData struct {
	data []byte
	from protocol.MAC
}

type pendingSend struct {
	dest     protocol.LogicalID
	mac      protocol.MAC
	tag      byte
	payload  []byte
	seq      uint8
	attempts int
	deadline int64
}

// Transport multiplexes one radio.Adapter into addressed, acknowledged
// control-message delivery for a single bus. It is not safe for
// concurrent use: like the rest of the design, it is driven from one
// cooperative tick.
type Transport struct {
	adapter radio.Adapter
	clk     clock.Source

	busID   [protocol.BusIDLen]byte
	localID protocol.LogicalID

	peerMAC map[protocol.LogicalID]protocol.MAC

	nextSeq uint8
	pending []*pendingSend
	inbox   []inboundData

	maxRetries int
	ackTimeout time.Duration

	onReceive func(tag byte, payload []byte, senderID protocol.LogicalID, senderMAC protocol.MAC)
	onAck     func(dest protocol.LogicalID, tag byte)
	onError   func(err error, dest protocol.LogicalID)
}

// New returns a Transport bound to adapter, with no bus or destinations
// configured yet. Call Configure before Send or Update do anything useful.
func New(adapter radio.Adapter, clk clock.Source) *Transport {
	t := &Transport{
		adapter:    adapter,
		clk:        clk,
		peerMAC:    make(map[protocol.LogicalID]protocol.MAC),
		maxRetries: defaultMaxRetries,
		ackTimeout: defaultAckTimeout,
	}
	adapter.SetReceiveCallback(t.onRadioReceive)
	return t
}

// Configure sets the identity this transport sends and receives as, and
// installs the callbacks it reports through. onReceive fires once per
// inbound data frame, control message or application payload (an
// addressed frame is auto-acknowledged first; a broadcast one is not);
// onAck fires when a previously Sent message is confirmed delivered;
// onError fires with protocol.ErrConnectionLost once a send exhausts its
// retries.
func (t *Transport) Configure(
	busID [protocol.BusIDLen]byte,
	localID protocol.LogicalID,
	onReceive func(tag byte, payload []byte, senderID protocol.LogicalID, senderMAC protocol.MAC),
	onAck func(dest protocol.LogicalID, tag byte),
	onError func(err error, dest protocol.LogicalID),
) {
	t.busID = busID
	t.localID = localID
	t.onReceive = onReceive
	t.onAck = onAck
	t.onError = onError
}

// SetRetryPolicy overrides the default maximum number of transmission
// attempts (the first send included) and the per-attempt acknowledgement
// timeout.
func (t *Transport) SetRetryPolicy(maxRetries int, ackTimeout time.Duration) {
	if maxRetries > 0 {
		t.maxRetries = maxRetries
	}
	if ackTimeout > 0 {
		t.ackTimeout = ackTimeout
	}
}

// SetPeerMAC records the radio MAC a logical id is currently reachable at.
// Discovery and membership call this whenever they learn or update a
// mapping (gateway roaming, fresh id assignment).
func (t *Transport) SetPeerMAC(id protocol.LogicalID, mac protocol.MAC) {
	t.peerMAC[id] = mac
}

// PeerMAC returns the MAC currently on file for id, if any.
func (t *Transport) PeerMAC(id protocol.LogicalID) (protocol.MAC, bool) {
	mac, ok := t.peerMAC[id]
	return mac, ok
}

// Send transmits payload tagged as tag to the logical id dest, which must
// already have a MAC on file via SetPeerMAC (or be protocol.BroadcastID).
// It never blocks: the first attempt is handed to the adapter immediately
// and the result returned synchronously; delivery confirmation, retries
// and final failure are all reported later through the callbacks
// installed in Configure.
func (t *Transport) Send(dest protocol.LogicalID, tag byte, payload []byte) SendResult {
	mac, broadcast := t.resolveDest(dest)
	if !broadcast && mac.IsZero() {
		return ResultFail
	}

	seq := t.nextSeq
	t.nextSeq++

	body := append([]byte{tag}, payload...)
	frame := encodeFrame(wireFrame{
		busID:   t.busID,
		kind:    kindData,
		sender:  t.localID,
		dest:    dest,
		seq:     seq,
		payload: body,
	})

	if err := t.adapter.Send(mac, frame); err != nil {
		return ResultFail
	}

	if broadcast {
		// Broadcasts have no single addressee to ack; nothing to track.
		return ResultQueued
	}

	if len(t.pending) >= maxPending {
		return ResultBusy
	}

	t.pending = append(t.pending, &pendingSend{
		dest:     dest,
		mac:      mac,
		tag:      tag,
		payload:  body,
		seq:      seq,
		attempts: 1,
		deadline: t.clk.NowMillis() + t.ackTimeout.Milliseconds(),
	})
	return ResultQueued
}

func (t *Transport) resolveDest(dest protocol.LogicalID) (protocol.MAC, bool) {
	if dest == protocol.BroadcastID {
		return protocol.BroadcastMAC, true
	}
	mac, ok := t.peerMAC[dest]
	if !ok {
		return protocol.MAC{}, false
	}
	return mac, false
}

// Update drains any frames buffered by the adapter, dispatches completed
// and failed deliveries, and retries sends past their acknowledgement
// deadline. It must be called once per cooperative tick.
func (t *Transport) Update() {
	if d, ok := t.adapter.(radio.Drainer); ok {
		d.Drain()
	}

	inbox := t.inbox
	t.inbox = nil
	for _, item := range inbox {
		t.handleInbound(item)
	}

	now := t.clk.NowMillis()
	kept := t.pending[:0]
	for _, ps := range t.pending {
		if now < ps.deadline {
			kept = append(kept, ps)
			continue
		}
		if ps.attempts >= t.maxRetries {
			if t.onError != nil {
				t.onError(protocol.ErrConnectionLost, ps.dest)
			}
			continue
		}
		frame := encodeFrame(wireFrame{
			busID:   t.busID,
			kind:    kindData,
			sender:  t.localID,
			dest:    ps.dest,
			seq:     ps.seq,
			payload: ps.payload,
		})
		_ = t.adapter.Send(ps.mac, frame)
		ps.attempts++
		ps.deadline = now + t.ackTimeout.Milliseconds()
		kept = append(kept, ps)
	}
	t.pending = kept
}

func (t *Transport) onRadioReceive(data []byte, from protocol.MAC) {
	t.inbox = append(t.inbox, inboundData{data: append([]byte(nil), data...), from: from})
}

func (t *Transport) handleInbound(item inboundData) {
	f, ok := decodeFrame(item.data)
	if !ok || f.busID != t.busID {
		return
	}

	switch f.kind {
	case kindAck:
		t.completeSend(f.sender, f.seq)
	case kindData:
		if len(f.payload) == 0 {
			return
		}
		tag, body := f.payload[0], f.payload[1:]
		// Broadcast control messages (gateway announce, id request) come
		// from senders with no logical id yet and are never acked at this
		// layer; only addressed frames get a transport-level ack.
		if f.dest != protocol.BroadcastID {
			t.ackInbound(f, item.from)
		}
		if t.onReceive != nil {
			t.onReceive(tag, body, f.sender, item.from)
		}
	}
}

// completeSend resolves the pending send addressed to ackerID with
// sequence number seq, on receipt of its acknowledgement.
func (t *Transport) completeSend(ackerID protocol.LogicalID, seq uint8) {
	for i, ps := range t.pending {
		if ps.dest == ackerID && ps.seq == seq {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			if t.onAck != nil {
				t.onAck(ps.dest, ps.tag)
			}
			return
		}
	}
}

func (t *Transport) ackInbound(f wireFrame, from protocol.MAC) {
	ack := encodeFrame(wireFrame{
		busID:  t.busID,
		kind:   kindAck,
		sender: t.localID,
		dest:   f.sender,
		seq:    f.seq,
	})
	_ = t.adapter.Send(from, ack)
}
