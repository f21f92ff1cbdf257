// Package idgen generates the compact random identifiers embedded in
// outbound mail: the per-message secret code that forms the correlation
// token, and the per-envelope disambiguator appended to message-id
// headers.
package idgen

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// CodeLength is the length of a message secret code. Correlation token
// matching depends on codes having a fixed length and alphabet.
const CodeLength = 8

var (
	sequence uint32

	// base32 without padding, folded to lowercase on output
	base32Encoding = base32.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567").WithPadding(base32.NoPadding)
)

// NewCode returns a message secret code: 8 characters of lowercase
// base32 ([a-z2-7]) from 5 random bytes.
func NewCode() string {
	b := make([]byte, 5)
	if _, err := rand.Read(b); err != nil {
		// Fallback if random generation fails
		copy(b, fmt.Sprintf("%010x", time.Now().UnixNano()))
	}
	return strings.ToLower(base32Encoding.EncodeToString(b))
}

// New generates a compact hybrid identifier:
//   - 4 bytes: timestamp (seconds since epoch, truncated)
//   - 2 bytes: atomically incremented sequence number
//   - 3 bytes: random data
//
// Total 9 bytes, encoded as ~15 characters of lowercase base32. Used as
// the per-envelope disambiguator in message-id headers.
func New() string {
	timestamp := uint32(time.Now().Unix())
	seq := atomic.AddUint32(&sequence, 1) & 0xFFFF

	randomBytes := make([]byte, 3)
	if _, err := rand.Read(randomBytes); err != nil {
		copy(randomBytes, fmt.Sprintf("%06x", time.Now().UnixNano()))
	}

	id := make([]byte, 9)
	id[0] = byte(timestamp >> 24)
	id[1] = byte(timestamp >> 16)
	id[2] = byte(timestamp >> 8)
	id[3] = byte(timestamp)
	id[4] = byte(seq >> 8)
	id[5] = byte(seq)
	copy(id[6:9], randomBytes)

	return strings.ToLower(base32Encoding.EncodeToString(id))
}
