// Package webhook receives Evolution API events over HTTP.
//
// Only messages.upsert events carrying text from an allowed sender are
// queued for the assistant; everything else is acknowledged and dropped
// so the gateway does not retry it.
package webhook
