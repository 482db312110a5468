// Package dataset prepares, filters, and partitions labeled
// transaction records for training.
package dataset

import (
	"math"
	"sort"

	"github.com/orne-app/categorizer/internal/features"
	"github.com/orne-app/categorizer/internal/trainingdata"
)

// Transaction type labels. Records with any other value are defaulted
// to PJ; upstream guarantees (not visible here) make that the safer
// assumption for unlabeled business data.
const (
	TypePJ = "PJ"
	TypePF = "PF"
)

// MethodManual marks records whose label was corrected by a person.
const MethodManual = "manual"

// Sample is one training row derived from a raw record.
type Sample struct {
	Description string // normalized text
	Category    string
	Type        string // TypePJ or TypePF
	Bank        string
	LogAmount   float64 // ln(1 + |amount|)
	Weight      float64 // loss multiplier, manual > automatic
}

// Prepare derives training samples from raw records: normalizes
// descriptions, drops rows with empty normalized text or no category,
// defaults unrecognized types to PJ, and attaches sample weights and
// the log-scaled amount.
func Prepare(records []trainingdata.Record, manualWeight, autoWeight float64) []Sample {
	samples := make([]Sample, 0, len(records))
	for _, rec := range records {
		desc := features.NormalizeDescription(rec.Description)
		if desc == "" || rec.Category == "" {
			continue
		}

		typ := rec.Type
		if typ != TypePJ && typ != TypePF {
			typ = TypePJ
		}

		weight := autoWeight
		if rec.Method == MethodManual {
			weight = manualWeight
		}

		samples = append(samples, Sample{
			Description: desc,
			Category:    rec.Category,
			Type:        typ,
			Bank:        rec.Bank,
			LogAmount:   math.Log1p(rec.Amount.Abs().InexactFloat64()),
			Weight:      weight,
		})
	}
	return samples
}

// LabelCount pairs a category label with its occurrence count.
type LabelCount struct {
	Label string
	Count int
}

// FilterRare drops samples whose category has fewer than minPerClass
// occurrences. Kept samples preserve their input order; dropped labels
// are returned sorted for stable reporting.
func FilterRare(samples []Sample, minPerClass int) (kept []Sample, dropped []LabelCount) {
	counts := make(map[string]int)
	for _, s := range samples {
		counts[s.Category]++
	}

	for label, n := range counts {
		if n < minPerClass {
			dropped = append(dropped, LabelCount{Label: label, Count: n})
		}
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Label < dropped[j].Label })

	kept = make([]Sample, 0, len(samples))
	for _, s := range samples {
		if counts[s.Category] >= minPerClass {
			kept = append(kept, s)
		}
	}
	return kept, dropped
}

// Labels returns the sorted distinct category labels of the samples.
func Labels(samples []Sample) []string {
	set := make(map[string]bool)
	for _, s := range samples {
		set[s.Category] = true
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
