// Package graph defines the portable inference format the trainer
// exports: a small serialized compute graph that any runtime can
// evaluate with four ops (MatMul, Add, Softmax, ArgMax), independent
// of how the model was trained.
package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Op names understood by the evaluator. The set is closed; a graph
// using anything else fails at run time, not load time, so consumers
// can still inspect files from newer producers.
const (
	OpMatMul  = "MatMul"
	OpAdd     = "Add"
	OpSoftmax = "Softmax"
	OpArgMax  = "ArgMax"
)

// Reserved value names of the serving contract.
const (
	InputName = "float_input"
	ProbsName = "probabilities"
	LabelName = "label"
)

// FormatVersion identifies the serialization layout.
const FormatVersion = 1

// Tensor is a constant baked into the graph, row-major.
type Tensor struct {
	Name string    `json:"name"`
	Dims []int     `json:"dims"`
	Data []float64 `json:"data"`
}

// ValueInfo describes a graph input or output. A dim of -1 means the
// batch dimension.
type ValueInfo struct {
	Name string `json:"name"`
	Dims []int  `json:"dims"`
}

// Node is one operation. Inputs name either graph inputs, initializer
// tensors, or outputs of earlier nodes.
type Node struct {
	Op     string   `json:"op"`
	Input  []string `json:"input"`
	Output []string `json:"output"`
}

// Model is a complete inference graph plus the class labels the
// integer output indexes into.
type Model struct {
	FormatVersion int         `json:"format_version"`
	Inputs        []ValueInfo `json:"inputs"`
	Outputs       []ValueInfo `json:"outputs"`
	Initializers  []Tensor    `json:"initializers"`
	Nodes         []Node      `json:"nodes"`
	Classes       []string    `json:"classes"`
}

// Linear builds the standard classifier graph: coefficient matmul,
// bias add, softmax probabilities, argmax label. weights holds one row
// per class of length nFeatures; the coefficient tensor is stored
// transposed ([nFeatures, nClasses]) so the input batch multiplies it
// directly.
func Linear(weights [][]float64, bias []float64, classes []string) (*Model, error) {
	k := len(weights)
	if k < 2 {
		return nil, fmt.Errorf("building graph: need at least 2 weight rows, got %d", k)
	}
	if len(bias) != k || len(classes) != k {
		return nil, fmt.Errorf("building graph: %d weight rows, %d biases, %d classes", k, len(bias), len(classes))
	}
	n := len(weights[0])
	for i, w := range weights {
		if len(w) != n {
			return nil, fmt.Errorf("building graph: weight row %d has %d features, row 0 has %d", i, len(w), n)
		}
	}

	coef := make([]float64, n*k)
	for j := 0; j < n; j++ {
		for c := 0; c < k; c++ {
			coef[j*k+c] = weights[c][j]
		}
	}

	return &Model{
		FormatVersion: FormatVersion,
		Inputs: []ValueInfo{
			{Name: InputName, Dims: []int{-1, n}},
		},
		Outputs: []ValueInfo{
			{Name: ProbsName, Dims: []int{-1, k}},
			{Name: LabelName, Dims: []int{-1}},
		},
		Initializers: []Tensor{
			{Name: "coefficient", Dims: []int{n, k}, Data: coef},
			{Name: "intercept", Dims: []int{k}, Data: append([]float64(nil), bias...)},
		},
		Nodes: []Node{
			{Op: OpMatMul, Input: []string{InputName, "coefficient"}, Output: []string{"scores"}},
			{Op: OpAdd, Input: []string{"scores", "intercept"}, Output: []string{"logits"}},
			{Op: OpSoftmax, Input: []string{"logits"}, Output: []string{ProbsName}},
			{Op: OpArgMax, Input: []string{ProbsName}, Output: []string{LabelName}},
		},
		Classes: append([]string(nil), classes...),
	}, nil
}

// NumFeatures returns the width of the float input, or 0 if the graph
// has no input declared.
func (m *Model) NumFeatures() int {
	for _, in := range m.Inputs {
		if in.Name == InputName && len(in.Dims) == 2 {
			return in.Dims[1]
		}
	}
	return 0
}

// Encode writes the model as JSON.
func (m *Model) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	return nil
}

// Decode reads a model from JSON.
func Decode(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("decoding graph: unsupported format version %d", m.FormatVersion)
	}
	return &m, nil
}

// Load reads a model from a file.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening graph %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}
