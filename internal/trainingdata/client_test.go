package trainingdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleBody = `{
	"total": 2,
	"manuais": 1,
	"categorias": ["Alimentação", "Transporte"],
	"dados": [
		{"descricao": "IFD*LANCHES", "categoria": "Alimentação", "tipo": "PJ", "banco": "Nubank", "valor": -42.5, "metodo": "manual"},
		{"descricao": "UBER TRIP", "categoria": "Transporte", "tipo": "PF", "banco": "Itaú", "valor": -18.9, "metodo": "automatico"}
	]
}`

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleBody))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	data, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if data.Total != 2 || data.Manual != 1 {
		t.Errorf("totals = (%d, %d), want (2, 1)", data.Total, data.Manual)
	}
	if len(data.Categories) != 2 {
		t.Errorf("categories = %d, want 2", len(data.Categories))
	}
	if len(data.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(data.Records))
	}

	first := data.Records[0]
	if first.Description != "IFD*LANCHES" || first.Type != "PJ" || first.Method != "manual" {
		t.Errorf("unexpected first record: %+v", first)
	}
	if got := first.Amount.String(); got != "-42.5" {
		t.Errorf("amount = %s, want -42.5", got)
	}
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.Fetch(context.Background())

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want %d", statusErr.Code, http.StatusInternalServerError)
	}
}

func TestFetch_Unreachable(t *testing.T) {
	// A closed server guarantees a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, 2*time.Second)
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
}

func TestFetch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Error("expected decode error for malformed body")
	}
}
