// Package capability computes the set of second-factor methods available to
// an account from its phone-verification flag and registered device counts.
//
// Resolution is a pure function of its inputs: no I/O, no hidden state, no
// caching. Callers re-resolve on every request because the device population
// can change at any time.
//
// An empty set is a valid outcome, not an error. Whether a second factor is
// required at all is the caller's policy; this package only answers which
// methods would work.
package capability
