// Package service resolves the service coordinates declared on a task to a
// registered handler and provides the built-in handlers: a generic HTTP
// handler posting task payloads to backend endpoints, and (in subpackage
// anthropic) an LLM handler executing prompt tasks via the Anthropic API.
package service
