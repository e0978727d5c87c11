// Package snapshot reads raw playlist snapshot documents produced by the
// extraction collaborator and validates their minimal required shape before
// the pipeline touches them. It performs no transformation: the parsed
// Document mirrors the source JSON tree.
package snapshot
