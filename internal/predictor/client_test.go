package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"relevancy/internal/models"
)

func TestPredictSuccess(t *testing.T) {
	var got models.PredictionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"Path": "out/full.xlsx", "FilteredPath": "out/filtered.xlsx"}`))
	}))
	defer srv.Close()

	c := newClientWithHTTP(srv.URL, srv.Client())
	res, err := c.Predict(context.Background(), "battery recycling", "uploads/patents.xlsx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Query != "battery recycling" || got.FilePath != "uploads/patents.xlsx" {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if res.Path != "out/full.xlsx" || res.FilteredPath != "out/filtered.xlsx" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPredictRequestBodyHasExactlyTwoFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(raw) != 2 || raw["query"] != "q" || raw["file_path"] != "p" {
			t.Errorf("unexpected body: %v", raw)
		}
		w.Write([]byte(`{"Path": "a", "FilteredPath": "b"}`))
	}))
	defer srv.Close()

	if _, err := newClientWithHTTP(srv.URL, srv.Client()).Predict(context.Background(), "q", "p"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPredictNonSuccessStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	_, err := newClientWithHTTP(srv.URL, srv.Client()).Predict(context.Background(), "q", "p")
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if perr.Kind != KindNonSuccessStatus || perr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected exactly one request, got %d", n)
	}
}

func TestPredictMalformedResponse(t *testing.T) {
	cases := map[string]string{
		"invalid json":  `{"Path": `,
		"missing paths": `{"Path": "out/full.xlsx"}`,
		"wrong types":   `{"Path": 1, "FilteredPath": 2}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := newClientWithHTTP(srv.URL, srv.Client()).Predict(context.Background(), "q", "p")
			if kind, ok := KindOf(err); !ok || kind != KindMalformedResponse {
				t.Fatalf("expected malformed response, got %v", err)
			}
		})
	}
}

func TestPredictConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Predict(context.Background(), "q", "p")
	if kind, ok := KindOf(err); !ok || kind != KindConnectionRefused {
		t.Fatalf("expected connection refused, got %v", err)
	}
}

func TestPredictTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 50*time.Millisecond).Predict(context.Background(), "q", "p")
	if kind, ok := KindOf(err); !ok || kind != KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestPredictCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Path": "a", "FilteredPath": "b"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newClientWithHTTP(srv.URL, srv.Client()).Predict(ctx, "q", "p")
	if kind, ok := KindOf(err); !ok || kind != KindCanceled {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindNonSuccessStatus.String() != "non_success_status" {
		t.Fatalf("unexpected kind string %q", KindNonSuccessStatus.String())
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("plain errors have no kind")
	}
}
