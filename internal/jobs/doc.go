// Package jobs owns the transcription job registry: the persisted record
// model, its SQLite store, and the manager that accepts uploads, launches
// the pipeline, and serializes every record mutation.
package jobs
