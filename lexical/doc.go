// Package lexical ranks flat-file documents by sparse BM25 term weights.
//
// The fitted index (document frequencies and one sparse vector per document)
// is derived from the whole corpus. Fitting is expensive, so a Retriever
// fits once per corpus fingerprint and persists the result through a
// storage.LexicalCache; later processes load the snapshot instead of
// refitting. Initialize is safe to call from many goroutines: the first
// caller fits or loads, the rest wait and reuse the result.
package lexical
