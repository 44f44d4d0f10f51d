// Package sparse produces BM25-style lexical term vectors for query-time
// keyword matching. The vectorizer is a degraded-but-never-fatal signal:
// any internal failure yields the empty vector so a search can still
// proceed on the dense signal alone.
package sparse

import (
	"hash/fnv"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/corali-systems/docsearchai/internal/domain"
)

const (
	// BM25 term-frequency saturation parameters.
	bm25K1 = 1.2
	bm25B  = 0.75

	// avgFieldLength approximates the corpus average token count used by
	// the length-normalization term. Queries are short, so the exact
	// value has little effect on relative weights.
	avgFieldLength = 256.0
)

// Vectorizer turns text into sparse term-index/weight pairs. The
// underlying lexical model is constructed exactly once per process, on
// first use, and is read-only afterwards.
type Vectorizer struct {
	log *zap.Logger

	initOnce sync.Once
	model    *lexicalModel
}

// NewVectorizer creates a vectorizer whose model is built lazily.
func NewVectorizer(log *zap.Logger) *Vectorizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Vectorizer{log: log}
}

// Vectorize returns the sparse vector for text. Blank input returns the
// empty vector without touching the model; model failures degrade to the
// empty vector and are logged, never surfaced as errors.
func (v *Vectorizer) Vectorize(text string) domain.SparseVector {
	if strings.TrimSpace(text) == "" {
		return domain.EmptySparseVector()
	}

	v.initOnce.Do(func() {
		model, err := newLexicalModel()
		if err != nil {
			v.log.Warn("failed to build lexical model", zap.Error(err))
			return
		}
		v.model = model
		v.log.Info("lexical model initialized")
	})
	if v.model == nil {
		return domain.EmptySparseVector()
	}

	return v.model.vectorize(text)
}

type lexicalModel struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func newLexicalModel() (*lexicalModel, error) {
	pattern, err := regexp.Compile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	if err != nil {
		return nil, err
	}
	return &lexicalModel{
		tokenPattern: pattern,
		stopwords:    defaultStopwords(),
	}, nil
}

func (m *lexicalModel) vectorize(text string) domain.SparseVector {
	tokens := m.tokenize(text)
	if len(tokens) == 0 {
		return domain.EmptySparseVector()
	}

	tf := make(map[uint32]float64, len(tokens))
	for _, token := range tokens {
		tf[termIndex(token)]++
	}

	fieldLen := float64(len(tokens))
	norm := bm25K1 * (1 - bm25B + bm25B*fieldLen/avgFieldLength)

	indices := make([]uint32, 0, len(tf))
	for index := range tf {
		indices = append(indices, index)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, 0, len(indices))
	for _, index := range indices {
		freq := tf[index]
		values = append(values, float32(freq*(bm25K1+1)/(freq+norm)))
	}

	return domain.SparseVector{Indices: indices, Values: values}
}

func (m *lexicalModel) tokenize(text string) []string {
	raw := m.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	tokens := raw[:0]
	for _, token := range raw {
		if _, isStop := m.stopwords[token]; isStop {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

// termIndex maps a token to a stable sparse dimension.
func termIndex(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return h.Sum32()
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "so", "such", "into", "about",
		"yang", "dan", "di", "ke", "dari", "untuk", "pada", "dengan",
		"adalah", "ini", "itu", "atau", "juga", "dalam", "akan", "oleh",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
