package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrVectorRepositoryRequired is returned when a document vector repository is not provided.
	ErrVectorRepositoryRequired = errors.New("document vector repository required")

	// ErrMetadataRepositoryRequired is returned when a metadata repository is not provided.
	ErrMetadataRepositoryRequired = errors.New("metadata repository required")

	// ErrAnnotationRepositoryRequired is returned when an annotation repository is not provided.
	ErrAnnotationRepositoryRequired = errors.New("annotation repository required")

	// ErrCheckpointRepositoryRequired is returned when a checkpoint repository is not provided.
	ErrCheckpointRepositoryRequired = errors.New("checkpoint repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrMalformedFASTA indicates residue lines before the first header.
	ErrMalformedFASTA = errors.New("malformed FASTA")

	// ErrMalformedHeader indicates a header that is not in UniProt form.
	ErrMalformedHeader = errors.New("malformed UniProt header")
)
