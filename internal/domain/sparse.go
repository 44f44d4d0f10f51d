package domain

// SparseVector is a lexical term-index/weight vector (BM25-style).
// Indices and Values always have equal length.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// EmptySparseVector returns a sparse vector with no terms. It is the
// degraded output for blank input and for vectorizer failures.
func EmptySparseVector() SparseVector {
	return SparseVector{Indices: []uint32{}, Values: []float32{}}
}

// IsEmpty reports whether the vector carries no terms.
func (v SparseVector) IsEmpty() bool {
	return len(v.Indices) == 0
}
