package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/webcompat/ochazuke/internal/webservice/handlers"
)

type testFetcher struct {
	body []byte
	err  error

	gotURL string
}

func (f *testFetcher) TriageIssues(context.Context) ([]byte, error) {
	return f.body, f.err
}

func (f *testFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.gotURL = url
	return f.body, f.err
}

func TestTriageBugsHandler(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fetchErr error

		wantStatus int
	}{
		"valid request":  {wantStatus: http.StatusOK},
		"upstream error": {fetchErr: errors.New("requested error"), wantStatus: http.StatusBadGateway},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := &testFetcher{body: []byte(`{"items": []}`), err: tc.fetchErr}
			h := handlers.NewTriageBugs(f)

			r := httptest.NewRequest(http.MethodGet, "/data/triage-bugs", nil)
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)

			require.Equal(t, tc.wantStatus, w.Code, "unexpected status code")
			if tc.wantStatus != http.StatusOK {
				return
			}
			require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), "proxied responses should allow cross origin reads")
			require.JSONEq(t, `{"items": []}`, w.Body.String(), "upstream body should be passed through untouched")
		})
	}
}

func TestTSCIDocHandler(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fetchErr error

		wantStatus int
	}{
		"valid request":  {wantStatus: http.StatusOK},
		"upstream error": {fetchErr: errors.New("requested error"), wantStatus: http.StatusBadGateway},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := &testFetcher{body: []byte(`{"doc": "spreadsheet"}`), err: tc.fetchErr}
			h := handlers.NewTSCIDoc(f)

			r := httptest.NewRequest(http.MethodGet, "/data/tsci-doc", nil)
			w := httptest.NewRecorder()

			h.ServeHTTP(w, r)

			require.Equal(t, tc.wantStatus, w.Code, "unexpected status code")
			if tc.wantStatus != http.StatusOK {
				return
			}
			require.NotEmpty(t, f.gotURL, "handler should request the TSCI document URL")
			require.JSONEq(t, `{"doc": "spreadsheet"}`, w.Body.String(), "upstream body should be passed through untouched")
		})
	}
}

func TestVersionHandler(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/version", nil)
	w := httptest.NewRecorder()

	handlers.VersionHandler(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"version": "Dev"}`, w.Body.String())
}

func TestHomeHandler(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		path string

		wantStatus int
	}{
		"root greets":         {path: "/", wantStatus: http.StatusOK},
		"other paths are 404": {path: "/nope", wantStatus: http.StatusNotFound},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, tc.path, nil)
			w := httptest.NewRecorder()

			handlers.HomeHandler(w, r)

			require.Equal(t, tc.wantStatus, w.Code, "unexpected status code")
			if tc.wantStatus == http.StatusOK {
				require.Equal(t, "Welcome to ochazuke", w.Body.String())
			}
		})
	}
}
