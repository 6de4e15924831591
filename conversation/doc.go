// Package conversation maps (process instance, assistant) pairs to
// persistent conversation threads on an upstream conversational service,
// validating cached handles and transparently replacing ones deleted
// out-of-band. Subpackage openai provides the OpenAI Assistants backed
// store; the in-memory store serves tests and demos.
package conversation
