// Package ragflow implements the ingest_sync operation: it pulls a
// document's parsed chunks from a Ragflow knowledge base and joins them into
// the document text used by the other generation stages.
package ragflow
