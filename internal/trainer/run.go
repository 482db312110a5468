// Package trainer wires the full training pipeline: fetch, gate,
// prepare, vectorize, train the three models, export artifacts.
package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orne-app/categorizer/internal/config"
	"github.com/orne-app/categorizer/internal/dataset"
	"github.com/orne-app/categorizer/internal/export"
	"github.com/orne-app/categorizer/internal/features"
	"github.com/orne-app/categorizer/internal/model"
	"github.com/orne-app/categorizer/internal/snapshot"
	"github.com/orne-app/categorizer/internal/trainingdata"
)

// Model names shared by artifact files and the report.
const (
	ModelTipo = "categorizer_tipo"
	ModelPJ   = "categorizer_pj"
	ModelPF   = "categorizer_pf"
)

// fitted holds one trained model with its evaluation, or a skip.
type fitted struct {
	clf    *model.Classifier
	report model.Report
	labels []string
	nTrain int
	nTest  int
}

// Run executes the whole pipeline and returns the written report.
// Nothing is written below the minimum-sample gate; a skipped
// sub-model is a normal outcome, not an error.
func Run(ctx context.Context, cfg config.Config) (*export.Report, error) {
	data, err := obtainData(ctx, cfg.Data)
	if err != nil {
		return nil, err
	}
	slog.Info("dataset loaded", "records", len(data.Records), "manual", data.Manual)

	if len(data.Records) < cfg.Training.MinTotalSamples {
		return nil, fmt.Errorf("insufficient training data: %d records, need at least %d",
			len(data.Records), cfg.Training.MinTotalSamples)
	}

	samples := dataset.Prepare(data.Records, cfg.Training.ManualWeight, cfg.Training.AutomaticWeight)
	if len(samples) == 0 {
		return nil, fmt.Errorf("no usable samples after preparation")
	}
	slog.Info("samples prepared", "kept", len(samples), "dropped", len(data.Records)-len(samples))

	docs := make([]string, len(samples))
	banks := make([]string, len(samples))
	amounts := make([]float64, len(samples))
	manualCount := 0
	for i, s := range samples {
		docs[i] = s.Description
		banks[i] = s.Bank
		amounts[i] = s.LogAmount
		if s.Weight == cfg.Training.ManualWeight {
			manualCount++
		}
	}

	vec := features.NewVectorizer(cfg.Features.NgramMin, cfg.Features.NgramMax, cfg.Features.MaxFeatures)
	if err := vec.Fit(docs); err != nil {
		return nil, fmt.Errorf("fitting vectorizer: %w", err)
	}
	matrix, err := features.BuildMatrix(ctx, vec, docs, banks, amounts)
	if err != nil {
		return nil, err
	}
	slog.Info("features built", "vocabulary", vec.Size(), "columns", matrix.Cols)

	if err := export.WriteVocabulary(cfg.Output.Dir, vec, matrix.Cols); err != nil {
		return nil, err
	}

	opts := model.Options{
		Alpha:   cfg.Training.Alpha,
		MaxIter: cfg.Training.MaxIter,
		Tol:     cfg.Training.Tol,
		Seed:    cfg.Training.Seed,
	}

	// Stage 1: transaction type, trained on every sample.
	tipoLabels := make([]string, len(samples))
	tipoWeights := make([]float64, len(samples))
	for i, s := range samples {
		tipoLabels[i] = s.Type
		tipoWeights[i] = s.Weight
	}
	allRows := indexRange(len(samples))
	tipo, err := fitSubset(matrix, allRows, tipoLabels, tipoWeights, cfg.Training, opts)
	if err != nil {
		return nil, fmt.Errorf("training %s: %w", ModelTipo, err)
	}
	logModel(ModelTipo, tipo)

	// Stage 2: per-type category models, each on its own subset of the
	// shared feature matrix.
	pj, pjLabels := fitCategoryModel(matrix, samples, dataset.TypePJ, cfg.Training, opts)
	logCategory(ModelPJ, pj, pjLabels)
	pf, pfLabels := fitCategoryModel(matrix, samples, dataset.TypePF, cfg.Training, opts)
	logCategory(ModelPF, pf, pfLabels)

	var exported []string
	for _, m := range []struct {
		name string
		fit  *fitted
	}{{ModelTipo, tipo}, {ModelPJ, pj}, {ModelPF, pf}} {
		if m.fit == nil {
			continue
		}
		filename, err := export.WriteGraph(cfg.Output.Dir, m.name, m.fit.clf, matrix.Cols)
		if err != nil {
			return nil, err
		}
		exported = append(exported, filename)
	}

	if err := export.WriteLabelMaps(cfg.Output.Dir, pjLabels, pfLabels); err != nil {
		return nil, err
	}

	report := buildReport(cfg, len(samples), manualCount, matrix.Cols, tipo, pj, pf, pjLabels, pfLabels, exported)
	if err := export.WriteReport(cfg.Output.Dir, report); err != nil {
		return nil, err
	}
	slog.Info("training complete", "exported", exported, "output", cfg.Output.Dir)
	return report, nil
}

// obtainData fetches from the endpoint, or replays the latest snapshot
// when offline. Online fetches are snapshotted best-effort.
func obtainData(ctx context.Context, cfg config.DataConfig) (*trainingdata.Response, error) {
	if cfg.Offline {
		if cfg.SnapshotPath == "" {
			return nil, fmt.Errorf("offline mode requires a snapshot path")
		}
		store, err := snapshot.Open(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()

		data, meta, err := store.LoadLatest()
		if err != nil {
			return nil, fmt.Errorf("loading snapshot: %w", err)
		}
		slog.Info("training from snapshot", "id", meta.ID, "fetched_at", meta.FetchedAt, "source", meta.SourceURL)
		return data, nil
	}

	slog.Info("fetching training data", "url", cfg.URL, "timeout", cfg.Timeout)
	client := trainingdata.New(cfg.URL, cfg.Timeout)
	data, err := client.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.SnapshotPath != "" {
		if err := saveSnapshot(cfg.SnapshotPath, data, cfg.URL); err != nil {
			slog.Warn("snapshot save failed, continuing", "error", err)
		}
	}
	return data, nil
}

func saveSnapshot(path string, data *trainingdata.Response, url string) error {
	store, err := snapshot.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Save(data, url)
	if err != nil {
		return err
	}
	slog.Info("dataset snapshot saved", "id", id)
	return nil
}

// fitSubset splits, trains, and evaluates one model over the matrix
// rows named by idx.
func fitSubset(matrix *features.Matrix, idx []int, labels []string, weights []float64, tc config.TrainingConfig, opts model.Options) (*fitted, error) {
	trainIdx, testIdx, err := dataset.StratifiedSplit(labels, tc.TestFraction, tc.Seed)
	if err != nil {
		return nil, err
	}

	trainRows := make([]features.SparseVector, len(trainIdx))
	trainLabels := make([]string, len(trainIdx))
	trainWeights := make([]float64, len(trainIdx))
	for i, j := range trainIdx {
		trainRows[i] = matrix.Rows[idx[j]]
		trainLabels[i] = labels[j]
		trainWeights[i] = weights[j]
	}

	clf, err := model.Train(trainRows, matrix.Cols, trainLabels, trainWeights, opts)
	if err != nil {
		return nil, err
	}

	testRows := make([]features.SparseVector, len(testIdx))
	testLabels := make([]string, len(testIdx))
	for i, j := range testIdx {
		testRows[i] = matrix.Rows[idx[j]]
		testLabels[i] = labels[j]
	}

	return &fitted{
		clf:    clf,
		report: model.Evaluate(testLabels, clf.PredictAll(testRows)),
		labels: clf.Classes,
		nTrain: len(trainIdx),
		nTest:  len(testIdx),
	}, nil
}

// fitCategoryModel trains the category classifier for one transaction
// type. A nil result means the sub-model was skipped; the returned
// labels are the surviving category set either way.
func fitCategoryModel(matrix *features.Matrix, samples []dataset.Sample, typ string, tc config.TrainingConfig, opts model.Options) (*fitted, []string) {
	var idx []int
	var subset []dataset.Sample
	for i, s := range samples {
		if s.Type == typ {
			idx = append(idx, i)
			subset = append(subset, s)
		}
	}

	kept, droppedLabels := dataset.FilterRare(subset, tc.MinSamplesPerClass)
	for _, d := range droppedLabels {
		slog.Info("rare category dropped", "type", typ, "category", d.Label, "count", d.Count)
	}

	// Re-derive matrix indices for the surviving samples.
	keptIdx := make([]int, 0, len(kept))
	pos := 0
	for i, s := range subset {
		if pos < len(kept) && s == kept[pos] {
			keptIdx = append(keptIdx, idx[i])
			pos++
		}
	}

	if len(kept) < tc.MinModelRows {
		slog.Info("sub-model skipped", "type", typ, "rows", len(kept), "need", tc.MinModelRows)
		return nil, nil
	}
	labels := dataset.Labels(kept)
	if len(labels) < 2 {
		slog.Info("sub-model skipped", "type", typ, "reason", "single category", "category_count", len(labels))
		return nil, labels
	}

	catLabels := make([]string, len(kept))
	catWeights := make([]float64, len(kept))
	for i, s := range kept {
		catLabels[i] = s.Category
		catWeights[i] = s.Weight
	}

	fit, err := fitSubset(matrix, keptIdx, catLabels, catWeights, tc, opts)
	if err != nil {
		slog.Warn("sub-model training failed, skipping", "type", typ, "error", err)
		return nil, labels
	}
	return fit, labels
}

func buildReport(cfg config.Config, totalSamples, manualCount, nFeatures int, tipo, pj, pf *fitted, pjLabels, pfLabels []string, exported []string) *export.Report {
	models := map[string]export.ModelReport{
		"tipo": modelReport(tipo, tipo.labels),
		"pj":   modelReport(pj, pjLabels),
		"pf":   modelReport(pf, pfLabels),
	}
	if exported == nil {
		exported = []string{}
	}
	return &export.Report{
		Timestamp:         time.Now().Format("2006-01-02T15:04:05"),
		TotalSamples:      totalSamples,
		ManualCorrections: manualCount,
		Models:            models,
		FeatureConfig: export.FeatureConfig{
			TFIDFMaxFeatures: cfg.Features.MaxFeatures,
			NgramRange:       []int{cfg.Features.NgramMin, cfg.Features.NgramMax},
			NFeaturesTotal:   nFeatures,
			Bancos:           features.KnownBanks,
		},
		ExportedFiles: exported,
	}
}

func modelReport(f *fitted, labels []string) export.ModelReport {
	if labels == nil {
		labels = []string{}
	}
	if f == nil {
		return export.ModelReport{Classes: labels}
	}
	return export.ModelReport{
		Accuracy: f.report.Accuracy,
		MacroF1:  f.report.MacroF1,
		Classes:  labels,
		NTrain:   f.nTrain,
		NTest:    f.nTest,
	}
}

func logModel(name string, f *fitted) {
	slog.Info("model trained", "model", name,
		"accuracy", f.report.Accuracy, "macro_f1", f.report.MacroF1,
		"train_rows", f.nTrain, "test_rows", f.nTest)
}

func logCategory(name string, f *fitted, labels []string) {
	if f == nil {
		slog.Info("model skipped", "model", name, "categories", len(labels))
		return
	}
	logModel(name, f)
}

func indexRange(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
