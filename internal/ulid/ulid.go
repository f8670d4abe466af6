// Package ulid generates sortable, timestamp-prefixed identifiers. No pack
// dependency provides a ULID implementation, so this is one of the few
// components built directly on the standard library — crypto/rand for the
// random payload, time for the sortable prefix, and a Crockford base32
// encoder, none of which any example repo's dependency set covers.
package ulid

import (
	"crypto/rand"
	"encoding/binary"
	"strings"
	"time"
)

const encoding = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// New returns a 26-character, lexically sortable identifier: a 48-bit
// millisecond timestamp followed by 80 bits of randomness, both Crockford
// base32 encoded. Used for scan_id and audit event id generation — both
// need monotonic-enough sortability without a central sequence.
func New() string {
	var buf [16]byte
	ms := uint64(time.Now().UnixMilli())
	binary.BigEndian.PutUint16(buf[0:2], uint16(ms>>32))
	binary.BigEndian.PutUint32(buf[2:6], uint32(ms))

	if _, err := rand.Read(buf[6:]); err != nil {
		// crypto/rand failing is a startup-fatal condition elsewhere in the
		// system; here we fall back to a zeroed random tail rather than
		// panic inside a hot-path id generator.
		for i := 6; i < len(buf); i++ {
			buf[i] = 0
		}
	}
	return encode(buf)
}

func encode(buf [16]byte) string {
	var sb strings.Builder
	sb.Grow(26)

	var value uint64
	var bits uint

	emit := func(b byte) {
		value = value<<8 | uint64(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(encoding[(value>>bits)&0x1F])
		}
	}
	for _, b := range buf {
		emit(b)
	}
	if bits > 0 {
		sb.WriteByte(encoding[(value<<(5-bits))&0x1F])
	}
	return sb.String()
}
