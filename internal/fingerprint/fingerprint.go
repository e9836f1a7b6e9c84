// Package fingerprint computes cheap content fingerprints used to detect
// whether a file changed since it was last scanned.
package fingerprint

import (
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// samples is the number of bytes drawn from the content.
const samples = 256

// Of returns a non-cryptographic fingerprint of data: its length plus a
// digest of evenly spaced sampled bytes. Inputs no longer than the sample
// budget are digested in full.
func Of(data []byte) string {
	n := len(data)
	d := xxhash.New()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(n))
	_, _ = d.Write(lenBuf[:])

	if n <= samples {
		_, _ = d.Write(data)
	} else {
		buf := make([]byte, 0, samples+1)
		step := n / samples
		for i := 0; i < n; i += step {
			buf = append(buf, data[i])
		}
		// The tail is where appends land; always include the last byte.
		buf = append(buf, data[n-1])
		_, _ = d.Write(buf)
	}

	return strconv.Itoa(n) + ":" + strconv.FormatUint(d.Sum64(), 16)
}

// OfString is Of for string content.
func OfString(s string) string {
	return Of([]byte(s))
}
