package badger

// Stores bundles the badger-backed repositories sharing one backend.
type Stores struct {
	Backend     *Backend
	Documents   *DocumentVectorStore
	Embeddings  *EmbeddingStore
	Lexical     *LexicalStore
	Checkpoints *CheckpointRepository
}

// NewStores creates every store on the given backend.
func NewStores(backend *Backend) *Stores {
	return &Stores{
		Backend:     backend,
		Documents:   NewDocumentVectorStore(backend),
		Embeddings:  NewEmbeddingStore(backend),
		Lexical:     NewLexicalStore(backend),
		Checkpoints: NewCheckpointRepository(backend),
	}
}

// OpenStores opens a database directory and creates every store on it.
func OpenStores(path string) (*Stores, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return NewStores(backend), nil
}

// Close closes the shared backend.
func (s *Stores) Close() error {
	return s.Backend.Close()
}
