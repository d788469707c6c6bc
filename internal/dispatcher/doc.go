// Package dispatcher executes parsed calendar requests for one sender and
// runs the confirmation handshake for conflicting events.
//
// Each sender is either idle or awaiting confirmation. While idle, requests
// go through Dispatch. A creation that overlaps existing events is not
// performed; it is stored as a pending confirmation and the sender is asked
// to answer "sim" or "não". While a confirmation is pending, every message
// goes to HandlePending instead, bypassing the model.
//
// The dispatcher does not serialize calls. Callers must not run two calls for
// the same sender concurrently.
package dispatcher
