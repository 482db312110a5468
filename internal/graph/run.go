package graph

import (
	"fmt"
	"math"
)

// value is an intermediate tensor during evaluation. rows and cols
// describe a [rows, cols] matrix; cols == 0 marks a vector of length
// rows (the argmax output).
type value struct {
	rows, cols int
	data       []float64
}

// Result holds the outputs of one forward pass.
type Result struct {
	Probabilities [][]float64
	Labels        []int    // class indices, one per batch row
	Classes       []string // copied from the model for convenience
}

// Run evaluates the graph on a batch of dense feature rows. Every row
// must match the declared input width.
func (m *Model) Run(batch [][]float64) (*Result, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("running graph: empty batch")
	}
	n := m.NumFeatures()
	if n == 0 {
		return nil, fmt.Errorf("running graph: no %s input declared", InputName)
	}

	input := value{rows: len(batch), cols: n, data: make([]float64, len(batch)*n)}
	for i, row := range batch {
		if len(row) != n {
			return nil, fmt.Errorf("running graph: row %d has %d features, input expects %d", i, len(row), n)
		}
		copy(input.data[i*n:], row)
	}

	env := map[string]value{InputName: input}
	for _, t := range m.Initializers {
		v, err := tensorValue(t)
		if err != nil {
			return nil, err
		}
		env[t.Name] = v
	}

	for _, node := range m.Nodes {
		if err := evalNode(node, env); err != nil {
			return nil, err
		}
	}

	probs, ok := env[ProbsName]
	if !ok {
		return nil, fmt.Errorf("running graph: no node produced %s", ProbsName)
	}
	labels, ok := env[LabelName]
	if !ok {
		return nil, fmt.Errorf("running graph: no node produced %s", LabelName)
	}

	res := &Result{
		Probabilities: make([][]float64, probs.rows),
		Labels:        make([]int, labels.rows),
		Classes:       append([]string(nil), m.Classes...),
	}
	for i := 0; i < probs.rows; i++ {
		res.Probabilities[i] = append([]float64(nil), probs.data[i*probs.cols:(i+1)*probs.cols]...)
	}
	for i := range res.Labels {
		res.Labels[i] = int(labels.data[i])
	}
	return res, nil
}

func tensorValue(t Tensor) (value, error) {
	switch len(t.Dims) {
	case 1:
		if len(t.Data) != t.Dims[0] {
			return value{}, fmt.Errorf("tensor %s: %d values for dims %v", t.Name, len(t.Data), t.Dims)
		}
		return value{rows: 1, cols: t.Dims[0], data: t.Data}, nil
	case 2:
		if len(t.Data) != t.Dims[0]*t.Dims[1] {
			return value{}, fmt.Errorf("tensor %s: %d values for dims %v", t.Name, len(t.Data), t.Dims)
		}
		return value{rows: t.Dims[0], cols: t.Dims[1], data: t.Data}, nil
	default:
		return value{}, fmt.Errorf("tensor %s: unsupported rank %d", t.Name, len(t.Dims))
	}
}

func evalNode(node Node, env map[string]value) error {
	in := make([]value, len(node.Input))
	for i, name := range node.Input {
		v, ok := env[name]
		if !ok {
			return fmt.Errorf("node %s: unknown input %q", node.Op, name)
		}
		in[i] = v
	}

	var out value
	var err error
	switch node.Op {
	case OpMatMul:
		out, err = matMul(in)
	case OpAdd:
		out, err = addBias(in)
	case OpSoftmax:
		out, err = softmax(in)
	case OpArgMax:
		out, err = argMax(in)
	default:
		return fmt.Errorf("unsupported op %q", node.Op)
	}
	if err != nil {
		return fmt.Errorf("node %s: %w", node.Op, err)
	}
	if len(node.Output) != 1 {
		return fmt.Errorf("node %s: expected 1 output, got %d", node.Op, len(node.Output))
	}
	env[node.Output[0]] = out
	return nil
}

func matMul(in []value) (value, error) {
	if len(in) != 2 {
		return value{}, fmt.Errorf("expected 2 inputs, got %d", len(in))
	}
	a, b := in[0], in[1]
	if a.cols != b.rows {
		return value{}, fmt.Errorf("shape mismatch: [%d,%d] x [%d,%d]", a.rows, a.cols, b.rows, b.cols)
	}
	out := value{rows: a.rows, cols: b.cols, data: make([]float64, a.rows*b.cols)}
	for i := 0; i < a.rows; i++ {
		for l := 0; l < a.cols; l++ {
			av := a.data[i*a.cols+l]
			if av == 0 {
				continue
			}
			for j := 0; j < b.cols; j++ {
				out.data[i*b.cols+j] += av * b.data[l*b.cols+j]
			}
		}
	}
	return out, nil
}

// addBias broadcasts a length-cols vector over every row.
func addBias(in []value) (value, error) {
	if len(in) != 2 {
		return value{}, fmt.Errorf("expected 2 inputs, got %d", len(in))
	}
	a, b := in[0], in[1]
	if b.rows != 1 || b.cols != a.cols {
		return value{}, fmt.Errorf("bias shape [%d,%d] does not broadcast over [%d,%d]", b.rows, b.cols, a.rows, a.cols)
	}
	out := value{rows: a.rows, cols: a.cols, data: make([]float64, len(a.data))}
	for i := 0; i < a.rows; i++ {
		for j := 0; j < a.cols; j++ {
			out.data[i*a.cols+j] = a.data[i*a.cols+j] + b.data[j]
		}
	}
	return out, nil
}

func softmax(in []value) (value, error) {
	if len(in) != 1 {
		return value{}, fmt.Errorf("expected 1 input, got %d", len(in))
	}
	a := in[0]
	out := value{rows: a.rows, cols: a.cols, data: make([]float64, len(a.data))}
	for i := 0; i < a.rows; i++ {
		row := a.data[i*a.cols : (i+1)*a.cols]
		max := math.Inf(-1)
		for _, x := range row {
			if x > max {
				max = x
			}
		}
		var sum float64
		o := out.data[i*a.cols : (i+1)*a.cols]
		for j, x := range row {
			o[j] = math.Exp(x - max)
			sum += o[j]
		}
		for j := range o {
			o[j] /= sum
		}
	}
	return out, nil
}

// argMax reduces each row to the index of its largest value; ties go
// to the lowest index.
func argMax(in []value) (value, error) {
	if len(in) != 1 {
		return value{}, fmt.Errorf("expected 1 input, got %d", len(in))
	}
	a := in[0]
	out := value{rows: a.rows, cols: 0, data: make([]float64, a.rows)}
	for i := 0; i < a.rows; i++ {
		best := 0
		for j := 1; j < a.cols; j++ {
			if a.data[i*a.cols+j] > a.data[i*a.cols+best] {
				best = j
			}
		}
		out.data[i] = float64(best)
	}
	return out, nil
}
