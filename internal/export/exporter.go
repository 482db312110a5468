package export

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/orne-app/categorizer/internal/graph"
	"github.com/orne-app/categorizer/internal/model"
)

// sanitySeed feeds the post-export forward pass. Any fixed value
// works; the check is structural, not numeric.
const sanitySeed = 42

// WriteGraph converts a fitted classifier into an inference graph,
// writes it to dir as <name>.graph.json, reloads the written file, and
// runs one random forward pass to confirm the output shapes. It
// returns the written file name.
func WriteGraph(dir, name string, clf *model.Classifier, nFeatures int) (string, error) {
	g, err := buildGraph(clf, nFeatures)
	if err != nil {
		return "", fmt.Errorf("exporting %s: %w", name, err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	filename := name + ".graph.json"
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if err := g.Encode(f); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", path, err)
	}

	if err := verifyGraph(path, len(clf.Classes), nFeatures); err != nil {
		return "", fmt.Errorf("verifying %s: %w", path, err)
	}
	return filename, nil
}

// buildGraph maps classifier parameters onto the graph format. A
// binary model has a single hyperplane; it is stacked as [0; w] with
// bias [0; b] so softmax over the two logits reproduces the sigmoid
// probability of the positive class.
func buildGraph(clf *model.Classifier, nFeatures int) (*graph.Model, error) {
	if len(clf.Weights) == 1 {
		zero := make([]float64, nFeatures)
		weights := [][]float64{zero, clf.Weights[0]}
		bias := []float64{0, clf.Bias[0]}
		return graph.Linear(weights, bias, clf.Classes)
	}
	return graph.Linear(clf.Weights, clf.Bias, clf.Classes)
}

// verifyGraph reloads a written graph and checks that a random batch
// produces outputs of the expected shape.
func verifyGraph(path string, nClasses, nFeatures int) error {
	g, err := graph.Load(path)
	if err != nil {
		return err
	}
	if got := g.NumFeatures(); got != nFeatures {
		return fmt.Errorf("input width %d, want %d", got, nFeatures)
	}

	rng := rand.New(rand.NewSource(sanitySeed))
	batch := make([][]float64, 2)
	for i := range batch {
		batch[i] = make([]float64, nFeatures)
		for j := range batch[i] {
			batch[i][j] = rng.Float64()
		}
	}

	res, err := g.Run(batch)
	if err != nil {
		return err
	}
	if len(res.Probabilities) != len(batch) || len(res.Labels) != len(batch) {
		return fmt.Errorf("batch of %d produced %d probability rows, %d labels",
			len(batch), len(res.Probabilities), len(res.Labels))
	}
	for i, row := range res.Probabilities {
		if len(row) != nClasses {
			return fmt.Errorf("row %d has %d probabilities, want %d", i, len(row), nClasses)
		}
	}
	return nil
}
