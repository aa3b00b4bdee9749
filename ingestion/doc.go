// Package ingestion loads protein reference data and prepares the document
// corpus for retrieval.
//
// The readers in this package stream the upstream file formats:
//   - FASTA protein sequences with UniProt headers
//   - OBO ontology terms
//   - GPA annotation rows
//   - UniProt flat-file records
//
// Loader writes parsed records to the metadata, annotation and document
// stores in batches. Pipeline embeds flat-file documents with a text
// embedder on a worker pool, stores the vectors and warms the lexical
// cache. Pipeline progress is checkpointed so a rerun only embeds documents
// added since the last completed run.
package ingestion
