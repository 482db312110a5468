// Package export writes the training artifacts consumed by the
// serving runtime: inference graphs, the fitted vocabulary, label
// maps, and the training report. JSON key names are the runtime
// loader's contract and keep their original (Portuguese) spellings.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orne-app/categorizer/internal/features"
)

// Vocabulary is the serialized feature space: everything the runtime
// needs to rebuild the exact training-time vectors from raw fields.
type Vocabulary struct {
	Terms       []string  `json:"terms"`
	IDF         []float64 `json:"idf"`
	Bancos      []string  `json:"bancos"`
	NFeatures   int       `json:"n_features"`
	TFIDFSize   int       `json:"tfidf_size"`
	BancoSize   int       `json:"banco_size"`
	NumericSize int       `json:"numeric_size"`
}

// LabelMaps lists the class labels of each model. Tipo is always
// ["PF", "PJ"]; pj and pf are sorted, or empty when the sub-model was
// skipped.
type LabelMaps struct {
	Tipo []string `json:"tipo"`
	PJ   []string `json:"pj"`
	PF   []string `json:"pf"`
}

// ModelReport summarizes one model's evaluation.
type ModelReport struct {
	Accuracy float64  `json:"accuracy"`
	MacroF1  float64  `json:"macro_f1"`
	Classes  []string `json:"classes"`
	NTrain   int      `json:"n_train"`
	NTest    int      `json:"n_test"`
}

// FeatureConfig records the feature settings the artifacts were built
// with.
type FeatureConfig struct {
	TFIDFMaxFeatures int      `json:"tfidf_max_features"`
	NgramRange       []int    `json:"ngram_range"`
	NFeaturesTotal   int      `json:"n_features_total"`
	Bancos           []string `json:"bancos"`
}

// Report is the training run summary written next to the models.
type Report struct {
	Timestamp         string                 `json:"timestamp"`
	TotalSamples      int                    `json:"total_samples"`
	ManualCorrections int                    `json:"manual_corrections"`
	Models            map[string]ModelReport `json:"models"`
	FeatureConfig     FeatureConfig          `json:"feature_config"`
	ExportedFiles     []string               `json:"exported_files"`
}

// WriteVocabulary serializes the fitted vectorizer and bank list to
// vocabulary.json in dir.
func WriteVocabulary(dir string, v *features.Vectorizer, totalFeatures int) error {
	vocab := Vocabulary{
		Terms:       v.Terms,
		IDF:         v.IDF,
		Bancos:      features.KnownBanks,
		NFeatures:   totalFeatures,
		TFIDFSize:   v.Size(),
		BancoSize:   len(features.KnownBanks),
		NumericSize: 1,
	}
	return writeJSON(filepath.Join(dir, "vocabulary.json"), vocab, false)
}

// WriteLabelMaps serializes label_maps.json. Nil slices are written as
// empty arrays, never null.
func WriteLabelMaps(dir string, pjLabels, pfLabels []string) error {
	maps := LabelMaps{
		Tipo: []string{"PF", "PJ"},
		PJ:   notNil(pjLabels),
		PF:   notNil(pfLabels),
	}
	return writeJSON(filepath.Join(dir, "label_maps.json"), maps, true)
}

// WriteReport serializes training_report.json.
func WriteReport(dir string, report *Report) error {
	return writeJSON(filepath.Join(dir, "training_report.json"), report, true)
}

func notNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// writeJSON replaces path with the JSON encoding of v, without HTML
// escaping so accented labels stay readable.
func writeJSON(path string, v any, indent bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
