package core

import (
	"encoding/binary"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for stored entities such as flat-file documents.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ContentHash returns a hex encoded 128-bit BLAKE2b digest of the given parts.
// Parts are length-prefixed so ("ab", "c") and ("a", "bc") hash differently.
func ContentHash(parts ...string) string {
	h, _ := blake2b.New(16, nil)
	var size [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Sequence is a raw protein sequence submitted for embedding.
type Sequence struct {
	ID       string
	Residues string
}

// Chunk is a contiguous piece of one cleaned Sequence.
// Its token cost equals its length.
type Chunk struct {
	SequenceID string
	Start      int // residue offset inside the parent sequence
	Residues   string
}

// Len returns the chunk length, which is also its token-budget cost.
func (c Chunk) Len() int {
	return len(c.Residues)
}

// Batch is one encoder invocation worth of chunks.
type Batch []Chunk

// Tokens returns the cumulative token cost of the batch.
func (b Batch) Tokens() int {
	total := 0
	for _, c := range b {
		total += c.Len()
	}
	return total
}

// Embedding is a numeric representation of one sequence.
// Values are stored row-major; Shape is [dim] for per-protein embeddings and
// [length, dim] for per-residue embeddings.
type Embedding struct {
	Values []float32
	Shape  []int
}

// SizeRecord describes the input length and output shape of one embedding.
type SizeRecord struct {
	Length int
	Shape  []int
}

// Neighbor is one approximate nearest-neighbor hit.
type Neighbor struct {
	Slot       int
	Similarity float32
}

// Source identifies a retrieval method taking part in fusion.
type Source int

const (
	// SourceVector is dense-vector similarity over document embeddings.
	SourceVector Source = iota
	// SourceLexical is sparse weighted-term similarity.
	SourceLexical
	// SourceFullText is keyword matching through a full-text index.
	SourceFullText

	// NumSources is the number of fused retrieval sources.
	NumSources = 3
)

func (s Source) String() string {
	switch s {
	case SourceVector:
		return "vector"
	case SourceLexical:
		return "lexical"
	case SourceFullText:
		return "fulltext"
	default:
		return "unknown"
	}
}

// RetrievalDocument is one ranked hit produced by a single retriever.
type RetrievalDocument struct {
	ID      string // protein accession
	Content string
	Score   float64 // retriever specific raw score
	Source  Source
}

// FusionRecord is the merged view of one identifier across all sources.
type FusionRecord struct {
	ID      string
	Content string

	// Scores holds the rank-normalized score per Source, 0 when absent.
	Scores   [NumSources]float64
	Combined float64
	Overlap  int
}

// Contributed reports whether the given source ranked this identifier.
func (r *FusionRecord) Contributed(s Source) bool {
	return r.Scores[s] > 0
}

// ProteinRecord holds descriptive metadata for one protein.
// Unknown fields are empty strings.
type ProteinRecord struct {
	ProteinID string
	ShortName string
	Name      string
	Organism  string
	TaxonID   string
	GeneName  string
	Evidence  string
	Version   string
}

// ProteinHit is a protein returned by sequence similarity search.
type ProteinHit struct {
	ProteinRecord
	Similarity float64
}

// FlatFile is a UniProt flat-file record with its mapped accession.
type FlatFile struct {
	FileID    int64
	ProteinID string
	Content   string
}

// Annotation maps a protein to a GO term.
type Annotation struct {
	ProteinID    string
	GOID         string
	EvidenceCode string
}

// GOTerm holds Gene Ontology term metadata.
type GOTerm struct {
	ID         string
	Name       string
	Namespace  string
	Definition string
	IsA        string // comma separated parent term ids
}

// EnrichmentRecord is one over-represented category.
type EnrichmentRecord struct {
	Term            GOTerm
	CountInSet      int
	BackgroundCount int
	Ratio           float64
	PValue          float64
	ProteinIDs      []string
}

// JoinedProteinIDs returns the contributing protein ids as one string.
func (r *EnrichmentRecord) JoinedProteinIDs() string {
	return strings.Join(r.ProteinIDs, ", ")
}

// SparseVector is a lexical term-weight vector with indices sorted ascending.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// LexicalSnapshot is the persisted state of a fitted lexical index.
type LexicalSnapshot struct {
	DocCount  int
	AvgDocLen float64
	DocFreq   map[uint32]int
	FileIDs   []int64
	Vectors   []SparseVector
}

// Checkpoint records how far a resumable processor has progressed.
type Checkpoint struct {
	ProcessorType string
	LastID        int64
	UpdatedAt     int64 // unix micro
}

var accessionPattern = regexp.MustCompile(`(?m)^AC\s+(\w+);`)

// AccessionFromFlatFile extracts the primary accession from a UniProt flat-file record.
func AccessionFromFlatFile(content string) (string, bool) {
	m := accessionPattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}
