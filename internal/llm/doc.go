// Package llm is the model collaborator: it builds the system prompt that
// asks for calendar actions as JSON and sends the conversation to an OpenAI
// chat completion endpoint.
package llm
