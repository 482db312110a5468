package export

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/orne-app/categorizer/internal/features"
	"github.com/orne-app/categorizer/internal/graph"
	"github.com/orne-app/categorizer/internal/model"
)

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
}

func TestWriteVocabulary(t *testing.T) {
	dir := t.TempDir()

	v := features.NewVectorizer(2, 4, 5000)
	if err := v.Fit([]string{"MERCADO LIVRE", "UBER TRIP"}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	total := v.Size() + len(features.KnownBanks) + 1

	if err := WriteVocabulary(dir, v, total); err != nil {
		t.Fatalf("WriteVocabulary: %v", err)
	}

	var got Vocabulary
	readJSON(t, filepath.Join(dir, "vocabulary.json"), &got)

	if got.TFIDFSize != v.Size() || got.NFeatures != total || got.NumericSize != 1 {
		t.Errorf("sizes = (%d, %d, %d), want (%d, %d, 1)",
			got.TFIDFSize, got.NFeatures, got.NumericSize, v.Size(), total)
	}
	if !reflect.DeepEqual(got.Terms, v.Terms) {
		t.Error("terms did not round-trip")
	}
	if !reflect.DeepEqual(got.Bancos, features.KnownBanks) {
		t.Errorf("bancos = %v", got.Bancos)
	}
	if got.BancoSize != len(features.KnownBanks) {
		t.Errorf("banco_size = %d, want %d", got.BancoSize, len(features.KnownBanks))
	}
}

func TestWriteLabelMaps(t *testing.T) {
	dir := t.TempDir()

	if err := WriteLabelMaps(dir, []string{"Alimentação", "Transporte"}, nil); err != nil {
		t.Fatalf("WriteLabelMaps: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "label_maps.json"))
	if err != nil {
		t.Fatalf("reading label maps: %v", err)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	// A skipped sub-model must serialize as [], never null.
	if string(got["pf"]) != "[]" {
		t.Errorf("pf = %s, want []", got["pf"])
	}

	var maps LabelMaps
	if err := json.Unmarshal(raw, &maps); err != nil {
		t.Fatalf("decoding typed: %v", err)
	}
	if !reflect.DeepEqual(maps.Tipo, []string{"PF", "PJ"}) {
		t.Errorf("tipo = %v, want [PF PJ]", maps.Tipo)
	}
	if !reflect.DeepEqual(maps.PJ, []string{"Alimentação", "Transporte"}) {
		t.Errorf("pj = %v", maps.PJ)
	}
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()

	rep := &Report{
		Timestamp:         "2026-08-27T10:00:00",
		TotalSamples:      60,
		ManualCorrections: 12,
		Models: map[string]ModelReport{
			"tipo": {Accuracy: 0.95, MacroF1: 0.94, Classes: []string{"PF", "PJ"}, NTrain: 48, NTest: 12},
			"pj":   {Classes: []string{}},
			"pf":   {Classes: []string{}},
		},
		FeatureConfig: FeatureConfig{
			TFIDFMaxFeatures: 5000,
			NgramRange:       []int{2, 4},
			NFeaturesTotal:   512,
			Bancos:           features.KnownBanks,
		},
		ExportedFiles: []string{"categorizer_tipo.graph.json"},
	}
	if err := WriteReport(dir, rep); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	var got Report
	readJSON(t, filepath.Join(dir, "training_report.json"), &got)
	if got.TotalSamples != 60 || got.Models["tipo"].Accuracy != 0.95 {
		t.Errorf("report did not round-trip: %+v", got)
	}
	if !reflect.DeepEqual(got.FeatureConfig.NgramRange, []int{2, 4}) {
		t.Errorf("ngram_range = %v", got.FeatureConfig.NgramRange)
	}
}

func trainedBinary(t *testing.T) (*model.Classifier, int) {
	t.Helper()
	rows := []features.SparseVector{
		{Indices: []int{0}, Values: []float64{1}},
		{Indices: []int{1}, Values: []float64{1}},
		{Indices: []int{0}, Values: []float64{0.9}},
		{Indices: []int{1}, Values: []float64{0.9}},
	}
	clf, err := model.Train(rows, 3, []string{"PJ", "PF", "PJ", "PF"}, []float64{1, 1, 1, 1},
		model.Options{Alpha: 1e-4, MaxIter: 200, Tol: 1e-3, Seed: 42})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	return clf, 3
}

func TestWriteGraph_Binary(t *testing.T) {
	dir := t.TempDir()
	clf, nFeatures := trainedBinary(t)

	filename, err := WriteGraph(dir, "categorizer_tipo", clf, nFeatures)
	if err != nil {
		t.Fatalf("WriteGraph: %v", err)
	}
	if filename != "categorizer_tipo.graph.json" {
		t.Errorf("filename = %q", filename)
	}

	g, err := graph.Load(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(g.Classes, clf.Classes) {
		t.Errorf("classes = %v, want %v", g.Classes, clf.Classes)
	}

	// The stacked export must agree with the classifier on both the
	// label and the sigmoid probability of the positive class.
	x := []float64{0.5, 0.2, 0}
	res, err := g.Run([][]float64{x})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	row := features.SparseVector{Indices: []int{0, 1}, Values: []float64{0.5, 0.2}}
	z := clf.Decision(row)[0]
	wantProb := 1 / (1 + math.Exp(-z))
	if got := res.Probabilities[0][1]; math.Abs(got-wantProb) > 1e-9 {
		t.Errorf("P(%s) = %v, want %v", clf.Classes[1], got, wantProb)
	}
	if got := g.Classes[res.Labels[0]]; got != clf.Predict(row) {
		t.Errorf("graph label %q, classifier predicts %q", got, clf.Predict(row))
	}
}

func TestWriteGraph_Multiclass(t *testing.T) {
	dir := t.TempDir()

	rows := []features.SparseVector{
		{Indices: []int{0}, Values: []float64{1}},
		{Indices: []int{1}, Values: []float64{1}},
		{Indices: []int{2}, Values: []float64{1}},
		{Indices: []int{0}, Values: []float64{0.8}},
		{Indices: []int{1}, Values: []float64{0.8}},
		{Indices: []int{2}, Values: []float64{0.8}},
	}
	labels := []string{"A", "B", "C", "A", "B", "C"}
	clf, err := model.Train(rows, 3, labels, []float64{1, 1, 1, 1, 1, 1},
		model.Options{Alpha: 1e-4, MaxIter: 200, Tol: 1e-3, Seed: 42})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	filename, err := WriteGraph(dir, "categorizer_pj", clf, 3)
	if err != nil {
		t.Fatalf("WriteGraph: %v", err)
	}

	g, err := graph.Load(filepath.Join(dir, filename))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	res, err := g.Run([][]float64{{1, 0, 0}, {0, 0, 1}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Probabilities[0]) != 3 {
		t.Errorf("probability row width = %d, want 3", len(res.Probabilities[0]))
	}
	if g.Classes[res.Labels[0]] != "A" || g.Classes[res.Labels[1]] != "C" {
		t.Errorf("labels = %v", res.Labels)
	}
}

func TestWriteGraph_Replaces(t *testing.T) {
	dir := t.TempDir()
	clf, nFeatures := trainedBinary(t)

	if _, err := WriteGraph(dir, "categorizer_tipo", clf, nFeatures); err != nil {
		t.Fatalf("first WriteGraph: %v", err)
	}
	if _, err := WriteGraph(dir, "categorizer_tipo", clf, nFeatures); err != nil {
		t.Fatalf("second WriteGraph over existing file: %v", err)
	}
}
