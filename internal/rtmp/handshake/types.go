package handshake

// RTMP simple (version 3) handshake constants. C0/S0 is a single version
// byte (0x03). Each of C1, S1, C2, S2 is 1536 bytes: 8 bytes of zero
// followed by 1528 bytes of pseudo-random data (spec.md §6.3).
const (
	Version           = 0x03
	PacketSize        = 1536
	zeroFieldSize     = 8
	randomFieldOffset = zeroFieldSize
)
