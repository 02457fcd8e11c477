// Package memzero wipes secret bytes once they are no longer needed.
package memzero

import "runtime"

// Zero overwrites b with zeros. It is best-effort: copies made elsewhere
// (for example by string conversion) are not reached.
//
//go:noinline
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
