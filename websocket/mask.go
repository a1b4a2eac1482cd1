package websocket

import "crypto/rand"

// applyMask applies the WebSocket masking algorithm to data in place.
//
// RFC 6455 Section 5.3:
//
//	transformed-octet-i = original-octet-i XOR masking-key-octet-j
//	where j = i MOD 4
//
// XOR is its own inverse: applying the same key twice restores the original
// payload, so one function serves both masking and unmasking.
func applyMask(data []byte, mask [4]byte) {
	for i := range data {
		data[i] ^= mask[i%4]
	}
}

// newMaskKey returns a fresh random masking key for a client-role frame.
//
// RFC 6455 Section 5.3: the key must be unpredictable, derived from a strong
// source of entropy, and chosen fresh for every frame.
func newMaskKey() [4]byte {
	var key [4]byte
	// rand.Read never fails on supported platforms.
	_, _ = rand.Read(key[:])
	return key
}
