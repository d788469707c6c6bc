// Package assistant runs one inbound WhatsApp message through the
// conversation pipeline and delivers the reply.
//
// A message is persisted, checked against a pending confirmation, turned
// into a model prompt from the sender's recent history, parsed into a
// calendar action and dispatched. The reply is persisted and sent back.
//
// Queue feeds the pipeline. Messages from one sender are processed in
// receipt order by a dedicated worker goroutine, while different senders
// run in parallel up to a global concurrency limit.
package assistant
