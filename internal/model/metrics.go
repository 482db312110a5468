package model

import "sort"

// ClassMetrics holds precision, recall, and F1 for one class, with the
// number of true rows of that class in the evaluation set.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is the evaluation summary of a fitted classifier on a held-out
// set. PerClass covers the union of true and predicted labels.
type Report struct {
	Accuracy       float64
	MacroPrecision float64
	MacroRecall    float64
	MacroF1        float64
	PerClass       map[string]ClassMetrics
	Labels         []string // sorted keys of PerClass
}

// Evaluate compares true and predicted labels. Any ratio with a zero
// denominator (a class never predicted, or absent from the truth) is
// reported as 0 rather than NaN. Macro averages weight every class
// equally regardless of support.
func Evaluate(yTrue, yPred []string) Report {
	set := make(map[string]bool)
	for _, l := range yTrue {
		set[l] = true
	}
	for _, l := range yPred {
		set[l] = true
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	tp := make(map[string]int)
	fp := make(map[string]int)
	fn := make(map[string]int)
	support := make(map[string]int)
	correct := 0
	for i := range yTrue {
		support[yTrue[i]]++
		if yTrue[i] == yPred[i] {
			tp[yTrue[i]]++
			correct++
		} else {
			fp[yPred[i]]++
			fn[yTrue[i]]++
		}
	}

	rep := Report{
		PerClass: make(map[string]ClassMetrics, len(labels)),
		Labels:   labels,
	}
	if len(yTrue) > 0 {
		rep.Accuracy = float64(correct) / float64(len(yTrue))
	}

	for _, l := range labels {
		m := ClassMetrics{Support: support[l]}
		if denom := tp[l] + fp[l]; denom > 0 {
			m.Precision = float64(tp[l]) / float64(denom)
		}
		if denom := tp[l] + fn[l]; denom > 0 {
			m.Recall = float64(tp[l]) / float64(denom)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		rep.PerClass[l] = m

		rep.MacroPrecision += m.Precision
		rep.MacroRecall += m.Recall
		rep.MacroF1 += m.F1
	}
	if len(labels) > 0 {
		n := float64(len(labels))
		rep.MacroPrecision /= n
		rep.MacroRecall /= n
		rep.MacroF1 /= n
	}
	return rep
}
