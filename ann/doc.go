// Package ann provides approximate nearest-neighbor search over protein
// embeddings with angular (cosine) similarity.
//
// The local backend is a forest of random-projection trees. Each tree
// recursively splits the indexed vectors by a hyperplane through the origin
// until leaves hold at most LeafSize items. A query walks every tree with a
// shared priority queue ordered by hyperplane margin, collects candidate
// slots and ranks them by exact cosine similarity.
//
// Indexes are built once with a Builder and are immutable afterwards. Save
// writes to a temporary file and renames it over the destination, so readers
// never observe a partially written index. A Handle lets a server swap in a
// rebuilt index while queries are in flight.
//
// Similarities are in [-1, 1] and strictly non-increasing in result order.
// Exact ties are broken by ascending slot, which is stable for a fixed index.
package ann
