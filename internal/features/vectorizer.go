package features

import (
	"fmt"
	"math"
	"sort"
)

// SparseVector is a feature row stored as parallel index/value slices,
// indices ascending. Most TF-IDF entries are zero, so dense rows would
// waste both memory and dot-product work during training.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Dot returns the inner product with a dense weight vector.
func (v SparseVector) Dot(w []float64) float64 {
	var sum float64
	for i, idx := range v.Indices {
		sum += v.Values[i] * w[idx]
	}
	return sum
}

// Dense materializes the vector at the given width.
func (v SparseVector) Dense(width int) []float64 {
	out := make([]float64, width)
	for i, idx := range v.Indices {
		out[idx] = v.Values[i]
	}
	return out
}

// Vectorizer is a character n-gram TF-IDF vectorizer over already
// normalized text. N-grams use word-boundary semantics: each
// whitespace-separated token is padded with single spaces before
// windows are taken, and a token shorter than n is counted once as a
// whole. IDF is smoothed (ln((1+n)/(1+df))+1) and rows are
// L2-normalized. The fitted term list and IDF weights are exported so
// the serving runtime can reproduce the exact same vectors.
type Vectorizer struct {
	MinN        int
	MaxN        int
	MaxFeatures int

	// Terms is the fitted vocabulary in sorted order; IDF is aligned.
	Terms []string
	IDF   []float64

	index map[string]int
}

// NewVectorizer creates an unfitted vectorizer.
func NewVectorizer(minN, maxN, maxFeatures int) *Vectorizer {
	return &Vectorizer{MinN: minN, MaxN: maxN, MaxFeatures: maxFeatures}
}

// Size returns the fitted vocabulary size.
func (v *Vectorizer) Size() int { return len(v.Terms) }

// Fit builds the vocabulary from the corpus. When more than MaxFeatures
// distinct n-grams occur, the most frequent by total corpus count are
// kept, ties broken lexicographically. Term indices follow sorted order.
func (v *Vectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return fmt.Errorf("fitting vectorizer: empty corpus")
	}

	corpusCount := make(map[string]int)
	docFreq := make(map[string]int)
	seen := make(map[string]bool)

	for _, doc := range docs {
		clear(seen)
		for _, gram := range charWBNgrams(doc, v.MinN, v.MaxN) {
			corpusCount[gram]++
			if !seen[gram] {
				seen[gram] = true
				docFreq[gram]++
			}
		}
	}

	terms := make([]string, 0, len(corpusCount))
	for t := range corpusCount {
		terms = append(terms, t)
	}

	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			ci, cj := corpusCount[terms[i]], corpusCount[terms[j]]
			if ci != cj {
				return ci > cj
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.Terms = terms
	v.IDF = make([]float64, len(terms))
	v.index = make(map[string]int, len(terms))
	for i, t := range terms {
		v.index[t] = i
		v.IDF[i] = math.Log((1+n)/(1+float64(docFreq[t]))) + 1
	}
	return nil
}

// Transform vectorizes one document against the fitted vocabulary:
// raw n-gram counts weighted by IDF, then L2-normalized.
func (v *Vectorizer) Transform(doc string) SparseVector {
	counts := make(map[int]float64)
	for _, gram := range charWBNgrams(doc, v.MinN, v.MaxN) {
		if idx, ok := v.index[gram]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return SparseVector{}
	}

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	values := make([]float64, len(indices))
	var normSq float64
	for i, idx := range indices {
		w := counts[idx] * v.IDF[idx]
		values[i] = w
		normSq += w * w
	}
	if norm := math.Sqrt(normSq); norm > 0 {
		for i := range values {
			values[i] /= norm
		}
	}
	return SparseVector{Indices: indices, Values: values}
}

// charWBNgrams extracts character n-grams within word boundaries: each
// token is padded to " token " and all windows of length minN..maxN are
// emitted; a padded token shorter than n is emitted once, whole.
func charWBNgrams(doc string, minN, maxN int) []string {
	var grams []string
	for _, word := range splitFields(doc) {
		padded := []rune(" " + word + " ")
		wlen := len(padded)
		for n := minN; n <= maxN; n++ {
			offset := 0
			end := offset + n
			if end > wlen {
				end = wlen
			}
			grams = append(grams, string(padded[offset:end]))
			for offset+n < wlen {
				offset++
				grams = append(grams, string(padded[offset:offset+n]))
			}
			// A word shorter than n was already emitted whole once;
			// longer n values would only repeat it.
			if offset == 0 {
				break
			}
		}
	}
	return grams
}

// splitFields splits on runs of whitespace, dropping empty tokens.
func splitFields(doc string) []string {
	var fields []string
	start := -1
	runes := []rune(doc)
	for i, r := range runes {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if start >= 0 {
				fields = append(fields, string(runes[start:i]))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, string(runes[start:]))
	}
	return fields
}
