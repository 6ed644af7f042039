package protocol

import "crypto/sha1"

// BusIDLen is the size of the scoping identifier derived from the network
// name.
const BusIDLen = 4

// pmkPad is the 4-byte cycle used to pad a PMK shorter than PMKLen,
// indexed by i%4. Preserved byte-for-byte from the original firmware so a
// device built against either implementation derives the same PMK for the
// same network name.
var pmkPad = [4]byte{'R', 'o', 'K', 'r'}

// DeriveBusID returns the 4-byte bus id that scopes all packet-transport
// traffic for one mesh: the first BusIDLen bytes of SHA-1(networkName).
func DeriveBusID(networkName string) [BusIDLen]byte {
	sum := sha1.Sum([]byte(networkName))
	var id [BusIDLen]byte
	copy(id[:], sum[:BusIDLen])
	return id
}

// DerivePMK returns the 16-byte pre-shared key for a mesh. If userKey is
// non-empty it is copied in (truncated to PMKLen if longer); any remaining
// bytes are filled with the pmkPad cycle. An empty userKey derives the PMK
// from networkName the same way, which is what begin() does when no
// explicit key was set via setPmk.
func DerivePMK(networkName, userKey string) [PMKLen]byte {
	source := userKey
	if source == "" {
		source = networkName
	}

	var pmk [PMKLen]byte
	n := copy(pmk[:], source)
	for i := n; i < PMKLen; i++ {
		pmk[i] = pmkPad[i%4]
	}
	return pmk
}

// IsUnencrypted reports whether the link should run without encryption: an
// explicit empty-string PMK source (neither a custom key nor a network
// name to fall back to) is the one case the padded buffer can't represent
// on its own, per the PMK invariant in spec §3/§8.
func IsUnencrypted(networkName, userKey string) bool {
	return networkName == "" && userKey == ""
}
