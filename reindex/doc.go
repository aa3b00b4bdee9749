// Package reindex rebuilds the sequence similarity index offline.
//
// A Builder streams FASTA records in batches, embeds each batch per protein
// through the embedding generator, and adds the unit vectors to a new
// approximate nearest-neighbor index. When every record is embedded the
// index file is replaced atomically and the slot table is rewritten in the
// same transaction, so slot i of the new index maps to the i-th record.
//
// Transient encoder failures are retried with exponential backoff. Encoder
// out-of-memory conditions never reach this package; the generator recovers
// from them internally.
package reindex
