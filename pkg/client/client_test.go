package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/custodia-io/custodia/pkg/client"
)

var ctx = context.Background()

func newServer(t *testing.T, handler http.Handler) (*httptest.Server, *client.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL, client.WithBearerToken("test-token"))
	if err != nil {
		t.Fatal(err)
	}
	return srv, c
}

func TestRegisterEvidence_sendsAuthAndDecodes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/evidence", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("auth header: %q", got)
		}
		var req client.RegisterEvidenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Name != "disk image" {
			t.Errorf("payload: %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(client.Evidence{ //nolint:errcheck
			ID:          "11111111-1111-1111-1111-111111111111",
			Name:        req.Name,
			CurrentHash: req.ContentHash,
			Status:      "active",
		})
	})
	_, c := newServer(t, mux)

	ev, err := c.RegisterEvidence(ctx, client.RegisterEvidenceRequest{
		CaseID:         "22222222-2222-2222-2222-222222222222",
		Name:           "disk image",
		ContentHash:    "abc",
		StorageLocator: "blobs/abc",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" || ev.Status != "active" {
		t.Errorf("decoded evidence: %+v", ev)
	}
}

func TestGetEvidence_404(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "evidence not found"}) //nolint:errcheck
	})
	_, c := newServer(t, mux)

	_, err := c.GetEvidence(ctx, "missing")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordAction_forbiddenCarriesReason(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"error":  "not authorised",
			"reason": "no_approved_request",
		})
	})
	_, c := newServer(t, mux)

	_, err := c.RecordAction(ctx, "id", "VIEW", nil)
	if !errors.Is(err, client.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestVerifyLedger_decodesFault(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(client.ChainStatus{ //nolint:errcheck
			Valid: false,
			Index: 2,
			Fault: "entry_hash_invalid",
		})
	})
	_, c := newServer(t, mux)

	st, err := c.VerifyLedger(ctx, "id")
	if err != nil {
		t.Fatal(err)
	}
	if st.Valid || st.Index != 2 || st.Fault != "entry_hash_invalid" {
		t.Errorf("chain status: %+v", st)
	}
}

func TestCreateAccessRequest_ttlSeconds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access-requests", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["ttl_seconds"] != float64(3600) {
			t.Errorf("ttl_seconds: %v", body["ttl_seconds"])
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(client.AccessRequest{ID: "r1", Status: "PENDING"}) //nolint:errcheck
	})
	_, c := newServer(t, mux)

	req, err := c.CreateAccessRequest(ctx, "ev", "review", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != "PENDING" {
		t.Errorf("request: %+v", req)
	}
}

func TestNew_rejectsEmptyBase(t *testing.T) {
	if _, err := client.New(""); err == nil {
		t.Error("empty base URL accepted")
	}
}
