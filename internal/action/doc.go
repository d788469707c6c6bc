// Package action turns a model reply into a typed calendar request.
//
// The model is asked to answer calendar requests with a JSON object of the
// form {"action": "<name>", "parameters": {...}}, optionally wrapped in a
// Markdown code fence. Any reply that does not decode into one of the known
// actions, including one whose parameters have the wrong shape, is ordinary
// conversation and is returned unchanged as plain text.
package action
