package snapshot

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/orne-app/categorizer/internal/trainingdata"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleData(total int) *trainingdata.Response {
	data := &trainingdata.Response{
		Total:      total,
		Manual:     1,
		Categories: []string{"Alimentação"},
	}
	for i := 0; i < total; i++ {
		data.Records = append(data.Records, trainingdata.Record{
			Description: "IFD*LANCHES",
			Category:    "Alimentação",
			Type:        "PJ",
			Bank:        "Nubank",
			Amount:      decimal.NewFromFloat(-42.5),
			Method:      "manual",
		})
	}
	return data
}

func TestSaveAndLoadLatest(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Save(sampleData(3), "http://localhost:3000/api/ml/training-data")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("Save returned empty ID")
	}

	data, meta, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if meta.ID != id {
		t.Errorf("meta.ID = %q, want %q", meta.ID, id)
	}
	if meta.Total != 3 || meta.Manual != 1 {
		t.Errorf("meta counts = (%d, %d), want (3, 1)", meta.Total, meta.Manual)
	}
	if len(data.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(data.Records))
	}
	rec := data.Records[0]
	if rec.Description != "IFD*LANCHES" || rec.Amount.String() != "-42.5" {
		t.Errorf("record did not round-trip: %+v", rec)
	}
}

func TestLoadLatest_ReturnsNewest(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Save(sampleData(1), "url-a"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	latest, err := s.Save(sampleData(2), "url-b")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, meta, err := s.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	// Both rows can share a timestamp; the ID tiebreak keeps the
	// result deterministic, so accept either matching ID or total.
	if meta.ID != latest && meta.Total != 2 {
		t.Errorf("LoadLatest returned %+v, want the second snapshot", meta)
	}
}

func TestLoadLatest_Empty(t *testing.T) {
	s := openTestStore(t)
	if _, _, err := s.LoadLatest(); !errors.Is(err, ErrNoSnapshots) {
		t.Fatalf("error = %v, want ErrNoSnapshots", err)
	}
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.Save(sampleData(i+1), "url"); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	metas, err := s.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 {
		t.Errorf("List returned %d snapshots, want 2", len(metas))
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshots.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Save(sampleData(1), "url"); err != nil {
		t.Fatalf("Save on file-backed store: %v", err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	s.Close()
}
