package protocol

import "errors"

// Sentinel errors shared across packages, matching the error kinds catalog
// in the design (§7): configuration errors returned synchronously from
// begin/forceRole*, runtime errors folded into FSM transitions.
var (
	ErrInvalidArgument       = errors.New("meshlink: invalid argument")
	ErrRadioInitFailed       = errors.New("meshlink: radio init failed")
	ErrTransportStartFailed  = errors.New("meshlink: transport failed to start")
	ErrPersistenceFailed     = errors.New("meshlink: persistence operation failed")
	ErrSendRefused           = errors.New("meshlink: send refused by transport")
	ErrConnectionLost        = errors.New("meshlink: connection lost")
	ErrPeerTableFull         = errors.New("meshlink: peer table full")
	ErrAddressSpaceExhausted = errors.New("meshlink: no free logical id")
	ErrUnknownPeer           = errors.New("meshlink: unknown peer MAC")

	// Lower-level transport/radio contract errors, named the way the
	// teacher's protocol/errors.go names them.
	ErrNotPaired      = errors.New("meshlink: not connected")
	ErrTimeout        = errors.New("meshlink: operation timed out")
	ErrInvalidPayload = errors.New("meshlink: invalid payload size")
	ErrInvalidChannel = errors.New("meshlink: invalid channel (valid range: 1-13)")
)
