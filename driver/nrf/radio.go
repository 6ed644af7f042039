//go:build tinygo || baremetal

// Package nrf drives the nRF52 proprietary-mode radio peripheral directly
// against its memory-mapped registers and adapts it into a radio.Adapter
// (spec §2) for embedded builds.
//
// ConfigureRadio/StartHFCLK and the raw Tx/Rx register sequences are
// carried over from the teacher's driver/nrf/radio.go and nrf_driver.go
// close to verbatim: this is a fixed hardware procedure, not protocol
// logic. The buffer size changes to fit meshlink's wire frame (up to
// roughly 212 bytes) instead of the original's fixed 64-byte packet.
package nrf

import (
	"errors"
	"time"
	"unsafe"

	"device/nrf"
)

// ErrInvalidChannel means the channel argument fell outside the radio's
// 0-125 range (2400-2525MHz in 1MHz steps).
var ErrInvalidChannel = errors.New("nrf: invalid channel (valid range: 0-125)")

// ErrTimeout means a receive poll window elapsed with no frame.
var ErrTimeout = errors.New("nrf: receive timed out")

// ErrFrameTooLarge means a Send's payload would not fit maxFrameSize.
var ErrFrameTooLarge = errors.New("nrf: frame exceeds radio's max packet size")

const (
	maxFrameSize = 220 // covers meshlink's largest wire frame with headroom

	defaultTxPower = nrf.RADIO_TXPOWER_TXPOWER_0dBm
	defaultMode    = nrf.RADIO_MODE_MODE_Nrf_1Mbit
)

// StartHFCLK starts the high-frequency clock the radio needs to run.
func StartHFCLK() {
	nrf.CLOCK.EVENTS_HFCLKSTARTED.Set(0)
	nrf.CLOCK.TASKS_HFCLKSTART.Set(1)
	for nrf.CLOCK.EVENTS_HFCLKSTARTED.Get() == 0 {
	}
}

// ConfigureRadio sets mode, power and addressing for one peer/channel
// pair. Every Send or poll (see Adapter.Drain) retunes the peripheral to
// the peer it's about to talk to, since this radio is single-pipe and
// half-duplex: it can only hold one base address/prefix at a time.
func ConfigureRadio(address uint32, prefix byte, channel uint8) error {
	if channel > 125 {
		return ErrInvalidChannel
	}

	nrf.RADIO.POWER.Set(1)
	nrf.RADIO.MODE.Set(defaultMode)
	nrf.RADIO.TXPOWER.Set(defaultTxPower)
	nrf.RADIO.FREQUENCY.Set(uint32(channel))

	nrf.RADIO.BASE0.Set(address)
	nrf.RADIO.PREFIX0.Set(uint32(prefix))
	nrf.RADIO.TXADDRESS.Set(0)
	nrf.RADIO.RXADDRESSES.Set(1)

	nrf.RADIO.PCNF0.Set(
		(8 << nrf.RADIO_PCNF0_LFLEN_Pos) |
			(0 << nrf.RADIO_PCNF0_S0LEN_Pos) |
			(0 << nrf.RADIO_PCNF0_S1LEN_Pos))

	nrf.RADIO.PCNF1.Set(
		(maxFrameSize << nrf.RADIO_PCNF1_MAXLEN_Pos) |
			(0 << nrf.RADIO_PCNF1_STATLEN_Pos) |
			(3 << nrf.RADIO_PCNF1_BALEN_Pos) |
			(nrf.RADIO_PCNF1_ENDIAN_Little << nrf.RADIO_PCNF1_ENDIAN_Pos))

	nrf.RADIO.CRCCNF.Set(1)
	nrf.RADIO.CRCINIT.Set(0xFF)
	nrf.RADIO.CRCPOLY.Set(0x107)

	return nil
}

var buffer [1 + maxFrameSize]byte

// transmit blocks until the peripheral reports the packet sent.
func transmit(data []byte) error {
	if len(data) > maxFrameSize {
		return ErrFrameTooLarge
	}
	buffer[0] = byte(len(data))
	copy(buffer[1:], data)

	nrf.RADIO.PACKETPTR.Set(uint32(uintptr(unsafe.Pointer(&buffer[0]))))
	nrf.RADIO.EVENTS_READY.Set(0)
	nrf.RADIO.EVENTS_END.Set(0)
	nrf.RADIO.TASKS_TXEN.Set(1)
	for nrf.RADIO.EVENTS_READY.Get() == 0 {
	}
	nrf.RADIO.TASKS_START.Set(1)
	for nrf.RADIO.EVENTS_END.Get() == 0 {
	}
	nrf.RADIO.TASKS_DISABLE.Set(1)
	for nrf.RADIO.STATE.Get() != nrf.RADIO_STATE_STATE_Disabled {
	}
	return nil
}

// receive polls for one packet up to timeout, the short per-peer window
// Adapter.Drain budgets so one cooperative tick never blocks on a peer
// that has nothing to say.
func receive(timeout time.Duration) ([]byte, error) {
	nrf.RADIO.PACKETPTR.Set(uint32(uintptr(unsafe.Pointer(&buffer[0]))))
	nrf.RADIO.EVENTS_READY.Set(0)
	nrf.RADIO.EVENTS_END.Set(0)
	nrf.RADIO.TASKS_RXEN.Set(1)
	for nrf.RADIO.EVENTS_READY.Get() == 0 {
	}

	start := time.Now()
	nrf.RADIO.TASKS_START.Set(1)
	for nrf.RADIO.EVENTS_END.Get() == 0 {
		if time.Since(start) > timeout {
			nrf.RADIO.TASKS_DISABLE.Set(1)
			for nrf.RADIO.STATE.Get() != nrf.RADIO_STATE_STATE_Disabled {
			}
			return nil, ErrTimeout
		}
	}
	nrf.RADIO.TASKS_DISABLE.Set(1)
	for nrf.RADIO.STATE.Get() != nrf.RADIO_STATE_STATE_Disabled {
	}

	n := int(buffer[0])
	if n == 0 || n > maxFrameSize {
		return nil, ErrTimeout
	}
	out := make([]byte, n)
	copy(out, buffer[1:1+n])
	return out, nil
}
