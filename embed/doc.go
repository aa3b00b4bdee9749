// Package embed turns protein sequences into fixed-size embeddings.
//
// A Generator plans the work with a batch.Batcher, runs the batches through
// one ai.SequenceEncoder per device and aggregates chunk outputs back into
// one embedding per sequence id.
//
// # Out-of-memory recovery
//
// Encoders report device exhaustion with ai.ErrOutOfMemory. The generator
// never drops a sequence because of it. The failing batch goes back to a
// shared work queue which applies two operations:
//
//   - shrinkBudget halves the token budget down to a floor (256 by default),
//     then halves the per-batch chunk count. The batch is re-partitioned
//     under the new limits.
//   - splitChunk cuts a lone chunk in half by residue position once the
//     budget sits at the floor.
//
// Each operation strictly lowers the budget, the batch count limit or the
// chunk length, so the loop terminates. A single residue that still does
// not fit is reported as ErrUnsplittable.
//
// # Aggregation
//
// In per-protein mode residue vectors are averaged within each chunk and
// chunk means are averaged again with equal weight per chunk. Pieces
// produced by splitChunk are folded back into the chunk they came from, so
// the output does not depend on how often the device ran out of memory.
// In per-residue mode chunk rows are concatenated in sequence order.
package embed
