// File: internal/transform/upper.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Byte-wise ASCII case folding applied to every chunk read from a peer.

package transform

import (
	"golang.org/x/text/transform"
)

const caseDelta = 'a' - 'A'

// UpperInPlace maps every ASCII lowercase letter in b to its uppercase
// counterpart. Other bytes, including non-ASCII ones, are left untouched.
func UpperInPlace(b []byte) {
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - caseDelta
		}
	}
}

// Upper copies src into dst with ASCII lowercase letters uppercased and
// returns the number of bytes written, min(len(dst), len(src)).
func Upper(dst, src []byte) int {
	n := copy(dst, src)
	UpperInPlace(dst[:n])
	return n
}

// Transformer is a stateless transform.Transformer performing the same
// mapping as UpperInPlace. Output length always equals input length, so
// it is safe on arbitrary partial chunks.
type Transformer struct{ transform.NopResetter }

var _ transform.Transformer = Transformer{}

// Transform implements transform.Transformer.
func (Transformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	n := Upper(dst, src)
	if n < len(src) {
		err = transform.ErrShortDst
	}
	return n, n, err
}
