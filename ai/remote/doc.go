// Package remote talks to a protein language model served over HTTP.
//
// The service accepts a batch of residue strings and returns one vector per
// residue. Each Encoder instance is bound to one device on the server side,
// selected through the device query parameter, so a pool of encoders maps
// onto a pool of accelerators.
//
// Request:
//
//	POST /encode?device=0
//	{"model": "prot_t5_xl_half_uniref50-enc", "sequences": ["MKT...", "..."]}
//
// Response:
//
//	{"embeddings": [[[0.1, ...], ...], ...]}
//
// A 507 status, or an error body mentioning "out of memory", is reported as
// ai.ErrOutOfMemory so callers can shrink their batches and retry.
package remote
