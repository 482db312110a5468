// Package model implements the linear classifier trained by the
// pipeline: L2-regularized logistic regression fit by stochastic
// gradient descent, binary or one-vs-rest multi-class.
package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/orne-app/categorizer/internal/features"
)

// noImprovementEpochs is how many consecutive epochs may fail to beat
// the best loss by Tol before training stops early.
const noImprovementEpochs = 5

// Options are the fixed hyperparameters of a training run.
type Options struct {
	Alpha   float64 // L2 regularization strength
	MaxIter int     // epoch cap
	Tol     float64 // minimum loss improvement
	Seed    int64
}

// Classifier is a fitted linear model. Binary problems carry a single
// hyperplane; multi-class problems carry one per class (one-vs-rest).
type Classifier struct {
	Classes []string    // sorted label set
	Weights [][]float64 // len 1 (binary) or len(Classes)
	Bias    []float64
	Epochs  []int // epochs actually run per hyperplane
}

// Train fits a classifier on sparse rows of the given width. labels and
// sampleWeights are parallel to rows; sample weights are multiplied
// with balanced class weights (n / (k * count)) so frequent labels do
// not dominate the loss. Training is deterministic for a fixed seed.
func Train(rows []features.SparseVector, cols int, labels []string, sampleWeights []float64, opts Options) (*Classifier, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("training classifier: no rows")
	}
	if len(rows) != len(labels) || len(rows) != len(sampleWeights) {
		return nil, fmt.Errorf("training classifier: mismatched lengths (%d rows, %d labels, %d weights)",
			len(rows), len(labels), len(sampleWeights))
	}

	classes := distinctSorted(labels)
	if len(classes) < 2 {
		return nil, fmt.Errorf("training classifier: need at least 2 classes, got %d", len(classes))
	}

	// Balanced class weighting: n_samples / (n_classes * count[class]).
	counts := make(map[string]int)
	for _, l := range labels {
		counts[l]++
	}
	balanced := make(map[string]float64, len(classes))
	for _, c := range classes {
		balanced[c] = float64(len(labels)) / (float64(len(classes)) * float64(counts[c]))
	}

	weights := make([]float64, len(rows))
	for i, l := range labels {
		weights[i] = sampleWeights[i] * balanced[l]
	}

	clf := &Classifier{Classes: classes}

	if len(classes) == 2 {
		y := make([]float64, len(labels))
		for i, l := range labels {
			if l == classes[1] {
				y[i] = 1
			} else {
				y[i] = -1
			}
		}
		w, b, epochs := fitPlane(rows, cols, y, weights, opts)
		clf.Weights = [][]float64{w}
		clf.Bias = []float64{b}
		clf.Epochs = []int{epochs}
		return clf, nil
	}

	// One-vs-rest: one hyperplane per class, each started from the
	// same seed as a fresh binary problem.
	clf.Weights = make([][]float64, len(classes))
	clf.Bias = make([]float64, len(classes))
	clf.Epochs = make([]int, len(classes))
	y := make([]float64, len(labels))
	for k, c := range classes {
		for i, l := range labels {
			if l == c {
				y[i] = 1
			} else {
				y[i] = -1
			}
		}
		clf.Weights[k], clf.Bias[k], clf.Epochs[k] = fitPlane(rows, cols, y, weights, opts)
	}
	return clf, nil
}

// fitPlane runs SGD for one binary subproblem with log loss, L2 decay
// via a weight-scale factor (O(nnz) per step), and the inverse-scaling
// learning rate eta_t = 1 / (alpha * (t0 + t)).
func fitPlane(rows []features.SparseVector, cols int, y, sampleWeights []float64, opts Options) (weights []float64, bias float64, epochs int) {
	v := make([]float64, cols)
	wscale := 1.0
	var b float64

	// Initial step size sized to the typical weight magnitude, then
	// annealed; mirrors the classic "optimal" SGD schedule.
	typw := math.Sqrt(1.0 / math.Sqrt(opts.Alpha))
	t0 := 1.0 / (typw * opts.Alpha)
	t := 0.0

	var sumW float64
	for _, sw := range sampleWeights {
		sumW += sw
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}

	bestLoss := math.Inf(1)
	noImprove := 0

	for epoch := 0; epoch < opts.MaxIter; epoch++ {
		epochs = epoch + 1
		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		var sumLoss float64
		for _, i := range order {
			t++
			eta := 1.0 / (opts.Alpha * (t0 + t))

			p := wscale*rows[i].Dot(v) + b
			z := y[i] * p
			sumLoss += sampleWeights[i] * logLoss(z)

			// L2 decay on the weights only, not the intercept.
			wscale *= 1 - eta*opts.Alpha
			if wscale < 1e-9 {
				for j := range v {
					v[j] *= wscale
				}
				wscale = 1
			}

			// dL/dp = -y * sigmoid(-z); skip the sparse update when
			// the gradient underflows to zero.
			g := -y[i] * sigmoid(-z) * sampleWeights[i]
			if g != 0 {
				step := eta * g
				for j, idx := range rows[i].Indices {
					v[idx] -= step * rows[i].Values[j] / wscale
				}
				b -= step
			}
		}

		avgLoss := sumLoss / sumW
		if avgLoss > bestLoss-opts.Tol {
			noImprove++
		} else {
			noImprove = 0
		}
		if avgLoss < bestLoss {
			bestLoss = avgLoss
		}
		if noImprove >= noImprovementEpochs {
			break
		}
	}

	weights = make([]float64, cols)
	for j := range v {
		weights[j] = wscale * v[j]
	}
	return weights, b, epochs
}

// Decision returns the raw decision score(s) for one row: a single
// signed margin for binary models, one score per class otherwise.
func (c *Classifier) Decision(row features.SparseVector) []float64 {
	scores := make([]float64, len(c.Weights))
	for k := range c.Weights {
		scores[k] = row.Dot(c.Weights[k]) + c.Bias[k]
	}
	return scores
}

// Predict returns the predicted class label for one row.
func (c *Classifier) Predict(row features.SparseVector) string {
	scores := c.Decision(row)
	if len(c.Classes) == 2 {
		if scores[0] > 0 {
			return c.Classes[1]
		}
		return c.Classes[0]
	}
	best := 0
	for k := 1; k < len(scores); k++ {
		if scores[k] > scores[best] {
			best = k
		}
	}
	return c.Classes[best]
}

// PredictAll predicts labels for a batch of rows.
func (c *Classifier) PredictAll(rows []features.SparseVector) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = c.Predict(r)
	}
	return out
}

// logLoss is ln(1 + e^-z), computed without overflow for large |z|.
func logLoss(z float64) float64 {
	if z < -35 {
		return -z
	}
	return math.Log1p(math.Exp(-z))
}

// sigmoid is 1 / (1 + e^-u), computed without overflow for large |u|.
func sigmoid(u float64) float64 {
	if u >= 0 {
		return 1 / (1 + math.Exp(-u))
	}
	e := math.Exp(u)
	return e / (1 + e)
}

func distinctSorted(labels []string) []string {
	set := make(map[string]bool)
	for _, l := range labels {
		set[l] = true
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
