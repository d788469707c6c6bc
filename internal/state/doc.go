// Package state holds the per-sender conversation state: the pending
// confirmation of a conflicting event and the fingerprint of the last event
// created, which guards against duplicate creation.
//
// Two stores are provided. MemoryStore keeps everything in process and loses
// it on restart. ValkeyStore keeps it in Valkey with server-side expiry so an
// open confirmation survives a restart.
//
// A store does not serialize callers. Read-modify-write sequences for one
// sender must hold that sender's lock from a KeyedMutex.
package state
