// Package stores contains the Redis-backed ephemeral state of the gateway.
//
// The exchange store is the invariant-bearing piece: entries are write-once
// read-once, and no entry survives its first lookup. Resolution rides on a
// single GETDEL so the check and the delete cannot be split, even across
// processes sharing one Redis.
package stores
