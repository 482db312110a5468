package features

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// transformConcurrency bounds the number of rows vectorized in parallel.
const transformConcurrency = 4

// Matrix is the combined feature matrix shared by all three models.
// Column layout is fixed: [TF-IDF block | bank one-hot block | log1p
// amount], in that order. Downstream consumers (the exporter's
// vocabulary artifact, the serving runtime) rely on this layout to
// rebuild identical vectors from raw fields.
type Matrix struct {
	Rows []SparseVector
	Cols int

	TextSize    int
	BankSize    int
	NumericSize int
}

// BuildMatrix vectorizes every record into one combined sparse row.
// docs, banks, and logAmounts are parallel slices. Rows are written to
// fixed indices, so the result is identical to a sequential build.
func BuildMatrix(ctx context.Context, v *Vectorizer, docs, banks []string, logAmounts []float64) (*Matrix, error) {
	if len(docs) != len(banks) || len(docs) != len(logAmounts) {
		return nil, fmt.Errorf("building matrix: mismatched lengths (%d docs, %d banks, %d amounts)",
			len(docs), len(banks), len(logAmounts))
	}

	m := &Matrix{
		Rows:        make([]SparseVector, len(docs)),
		TextSize:    v.Size(),
		BankSize:    len(KnownBanks),
		NumericSize: 1,
	}
	m.Cols = m.TextSize + m.BankSize + m.NumericSize

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(transformConcurrency)

	for i := range docs {
		i := i
		g.Go(func() error {
			m.Rows[i] = combineRow(v.Transform(docs[i]), EncodeBank(banks[i]), logAmounts[i], m.TextSize)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// combineRow appends the dense bank and amount blocks after the sparse
// text block, offsetting their column indices past the vocabulary.
func combineRow(text SparseVector, bank []float64, logAmount float64, textSize int) SparseVector {
	indices := make([]int, 0, len(text.Indices)+2)
	values := make([]float64, 0, len(text.Values)+2)
	indices = append(indices, text.Indices...)
	values = append(values, text.Values...)

	for i, b := range bank {
		if b != 0 {
			indices = append(indices, textSize+i)
			values = append(values, b)
		}
	}
	if logAmount != 0 {
		indices = append(indices, textSize+len(bank))
		values = append(values, logAmount)
	}
	return SparseVector{Indices: indices, Values: values}
}
