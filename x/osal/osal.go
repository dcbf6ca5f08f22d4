// Package osal abstracts the one thing the device core needs from the
// surrounding system: an identity for whoever is taking a device slot.
package osal

import "sync/atomic"

// Holder identifies the owner of an exclusive device slot.
type Holder int64

const (
	// Free marks an unowned slot.
	Free Holder = -1
	// Unknown marks a slot taken by a caller whose identity was not set.
	Unknown Holder = -2
	// NotSet is what a provider returns when it cannot name the caller.
	NotSet Holder = 0
)

// Provider reports the identity of the calling context.
type Provider func() Holder

var provider atomic.Pointer[Provider]

func init() {
	p := Provider(defaultHolder)
	provider.Store(&p)
}

// SetProvider installs p as the identity source. A nil p restores the
// platform default.
func SetProvider(p Provider) {
	if p == nil {
		p = defaultHolder
	}
	provider.Store(&p)
}

// Current returns the caller identity, mapping NotSet (and any negative
// value a provider might produce) to Unknown.
func Current() Holder {
	h := (*provider.Load())()
	if h <= NotSet {
		return Unknown
	}
	return h
}
