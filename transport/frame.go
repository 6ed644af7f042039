package transport

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/rkotov-iot/meshlink/protocol"
)

// Wire layout, adapted from the teacher's protocol.Frame (length-prefixed
// header plus a trailing CRC32), generalised from a single device id to a
// bus id + logical source/dest pair so unrelated networks sharing a radio
// channel never interpret each other's traffic (spec §3):
//
//	BusID(4) | Kind(1) | SenderID(1) | DestID(1) | Seq(1) | Payload(0..) | CRC32(4)
//
// Kind distinguishes a data frame (carrying a control message or an
// application payload) from this layer's own acknowledgement, which never
// reaches the coordinator.
const (
	kindData byte = 0
	kindAck  byte = 1

	headerLen = protocol.BusIDLen + 1 + 1 + 1 + 1 // busID + kind + sender + dest + seq
	crcLen    = 4
)

type wireFrame struct {
	busID   [protocol.BusIDLen]byte
	kind    byte
	sender  protocol.LogicalID
	dest    protocol.LogicalID
	seq     uint8
	payload []byte
}

func encodeFrame(f wireFrame) []byte {
	total := headerLen + len(f.payload) + crcLen
	data := make([]byte, total)

	copy(data[0:protocol.BusIDLen], f.busID[:])
	off := protocol.BusIDLen
	data[off] = f.kind
	data[off+1] = byte(f.sender)
	data[off+2] = byte(f.dest)
	data[off+3] = f.seq
	off += 4

	if len(f.payload) > 0 {
		copy(data[off:], f.payload)
	}

	crc := crc32.ChecksumIEEE(data[:headerLen+len(f.payload)])
	binary.LittleEndian.PutUint32(data[total-crcLen:total], crc)

	return data
}

func decodeFrame(data []byte) (wireFrame, bool) {
	if len(data) < headerLen+crcLen {
		return wireFrame{}, false
	}

	bodyLen := len(data) - crcLen
	recvCRC := binary.LittleEndian.Uint32(data[bodyLen:])
	if crc32.ChecksumIEEE(data[:bodyLen]) != recvCRC {
		return wireFrame{}, false
	}

	var f wireFrame
	copy(f.busID[:], data[0:protocol.BusIDLen])
	off := protocol.BusIDLen
	f.kind = data[off]
	f.sender = protocol.LogicalID(data[off+1])
	f.dest = protocol.LogicalID(data[off+2])
	f.seq = data[off+3]
	off += 4

	payloadLen := bodyLen - headerLen
	if payloadLen > 0 {
		f.payload = append([]byte(nil), data[off:off+payloadLen]...)
	}
	return f, true
}
