// Package ljm is the seam where a real cgo binding to LabJack's LJM
// driver library would live. No such binding exists in this repo's
// dependency set; this file documents the exact surface a binding
// needs to expose so that dropping one in is a single-file change that
// does not touch internal/devicesession or internal/sampler.
//
// A real binding would wrap liblabjackm's eWriteName / eStreamStart /
// eStreamRead / eStreamStop / CloseS calls through cgo and implement
// devicesession.Device directly; until then, USB-addressed devices are
// unsupported and only devicesession.TCPDevice (Ethernet) is usable.
package ljm

import "errors"

// ErrNoBinding is returned by every function in this package. It exists
// so callers have a concrete sentinel to check for rather than a
// panic, keeping USB open-attempts a normal (logged, non-fatal)
// fallback failure in devicesession.OpenWithFallback.
var ErrNoBinding = errors.New("ljm: no cgo binding to liblabjackm compiled into this binary")

// OpenS mirrors LJM's OpenS(deviceType, connectionType, identifier).
func OpenS(deviceType, connectionType, identifier string) (handle int, err error) {
	return 0, ErrNoBinding
}
