package search

import "github.com/poiesic/protrieve/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Retrieval hooks may be called concurrently from different goroutines.
type SearchMonitor interface {
	Start(query string)
	AfterRetrieval(source core.Source, docs []core.RetrievalDocument)
	RetrievalFailed(source core.Source, err error)
	AfterFusion(records []core.FusionRecord)
	Finish(records []core.FusionRecord)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                          {}
func (n *noopMonitor) AfterRetrieval(_ core.Source, _ []core.RetrievalDocument) {}
func (n *noopMonitor) RetrievalFailed(_ core.Source, _ error)                  {}
func (n *noopMonitor) AfterFusion(_ []core.FusionRecord)                       {}
func (n *noopMonitor) Finish(_ []core.FusionRecord)                            {}
