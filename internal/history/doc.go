// Package history persists the conversation log of every sender.
//
// The log is append-only: each incoming message and each assistant reply
// becomes one row in the conversations table of a SQLite database. Reads
// return the most recent turns first, which is the order the context window
// builder consumes them in. Old rows are removed by Prune, usually driven by
// the Pruner on a cron schedule.
package history
