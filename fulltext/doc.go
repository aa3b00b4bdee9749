// Package fulltext retrieves flat-file documents through the store's
// full-text index.
//
// A natural-language query is cut into sub-queries at punctuation and at the
// word "and". Filler words are dropped from each part and the remaining
// keywords form one match phrase, which is also expanded with domain
// synonyms. Every phrase runs as its own index query; a document collects
// the weight of each sub-query that matched it, and longer, more specific
// sub-queries weigh less than short ones: 1 + 1/len(keywords).
package fulltext
