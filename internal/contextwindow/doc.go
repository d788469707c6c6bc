// Package contextwindow assembles the slice of prior turns sent to the model.
//
// The window is bounded by a token budget. Turns are taken from the most
// recent backwards until the next one would exceed the budget, then returned
// oldest first. A turn is never truncated; one that does not fit is dropped
// together with everything older than it.
package contextwindow
