// Package enrich computes GO term over-representation in a set of proteins.
//
// For a set of n proteins drawn from N annotated proteins, a term annotated
// on k members of the set and M proteins overall has enrichment ratio
// (k/n)/(M/N) and one-sided hypergeometric p-value P(X >= k).
package enrich
