// Package services defines the shared error taxonomy and retry policy for the
// external services the pipeline talks to (embedding, vector store, LLM).
package services
