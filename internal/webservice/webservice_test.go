package webservice_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webcompat/ochazuke/internal/models"
	"github.com/webcompat/ochazuke/internal/webhooks"
	"github.com/webcompat/ochazuke/internal/webservice"
)

const testSecret = "test-secret"

var defaultDaemonConfig = &webservice.StaticConfig{
	ReadTimeout:     5 * time.Second,
	WriteTimeout:    10 * time.Second,
	RequestTimeout:  3 * time.Second,
	MaxHeaderBytes:  1 << 13, // 8 KB
	MaxWebhookBytes: 1 << 17, // 128 KB

	ListenHost:    "localhost",
	MetricsHost:   "localhost",
	WebhookSecret: testSecret,
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cmLoadErr error

		wantErr bool
	}{
		"Empty valid": {},
		"ConfigManager load error errors": {
			cmLoadErr: assert.AnError,
			wantErr:   true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cm := &testConfigManager{
				categories: []string{"needsdiagnosis"},
				loadErr:    tc.cmLoadErr,
			}

			s, err := webservice.New(t.Context(), cm, testDeps(), *defaultDaemonConfig)
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, s)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestServeMulti(t *testing.T) {
	t.Parallel()

	dConf := *defaultDaemonConfig
	cm := &testConfigManager{categories: []string{"needsdiagnosis", "sitewait"}}

	s := createServerAndWaitReady(t, cm, &dConf, false)
	addr := s.PrimaryAddr().String()

	issueBody := []byte(`{
		"action": "opened",
		"issue": {
			"number": 2468,
			"title": "example.com - site is not usable",
			"created_at": "2019-06-03T10:00:00Z",
			"updated_at": "2019-06-03T10:00:00Z",
			"state": "open",
			"milestone": {"number": 1, "title": "needstriage"}
		}
	}`)

	tests := map[string]struct {
		method  string
		path    string
		body    []byte
		headers map[string]string

		wantStatus int
		wantBody   string
		wantCORS   bool
	}{
		"Home": {
			method:     http.MethodGet,
			path:       "/",
			wantStatus: http.StatusOK,
			wantBody:   "Welcome to ochazuke",
		},
		"Version": {
			method:     http.MethodGet,
			path:       "/version",
			wantStatus: http.StatusOK,
		},
		"Path NotFound": {
			method:     http.MethodGet,
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
		"Timeline": {
			method:     http.MethodGet,
			path:       "/data/needsdiagnosis-timeline?from=2019-05-16&to=2019-05-18",
			wantStatus: http.StatusOK,
			wantCORS:   true,
		},
		"Timeline unknown category NotFound": {
			method:     http.MethodGet,
			path:       "/data/unknown-timeline?from=2019-05-16&to=2019-05-18",
			wantStatus: http.StatusNotFound,
		},
		"Timeline missing params NotFound": {
			method:     http.MethodGet,
			path:       "/data/needsdiagnosis-timeline",
			wantStatus: http.StatusNotFound,
		},
		"Timeline extra param NotFound": {
			method:     http.MethodGet,
			path:       "/data/needsdiagnosis-timeline?from=2019-05-16&to=2019-05-18&nonsense=1",
			wantStatus: http.StatusNotFound,
		},
		"Weekly counts": {
			method:     http.MethodGet,
			path:       "/data/weekly-counts?from=2019-05-16&to=2019-06-04",
			wantStatus: http.StatusOK,
			wantCORS:   true,
		},
		"Triage bugs proxy": {
			method:     http.MethodGet,
			path:       "/data/triage-bugs",
			wantStatus: http.StatusOK,
			wantCORS:   true,
		},
		"Webhook ping": {
			method: http.MethodPost,
			path:   "/webhooks/issues",
			body:   []byte(`{"zen": "Keep it logically awesome."}`),
			headers: map[string]string{
				"X-GitHub-Event": "ping",
			},
			wantStatus: http.StatusOK,
			wantBody:   "pong",
		},
		"Webhook issue accepted": {
			method: http.MethodPost,
			path:   "/webhooks/issues",
			body:   issueBody,
			headers: map[string]string{
				"X-GitHub-Event": "issues",
			},
			wantStatus: http.StatusAccepted,
		},
		"Webhook missing event Unauthorized": {
			method:     http.MethodPost,
			path:       "/webhooks/issues",
			body:       issueBody,
			headers:    map[string]string{"X-Hub-Signature": "sha1=deadbeef"},
			wantStatus: http.StatusUnauthorized,
		},
		"Webhook bad signature Unauthorized": {
			method: http.MethodPost,
			path:   "/webhooks/issues",
			body:   issueBody,
			headers: map[string]string{
				"X-GitHub-Event":  "issues",
				"X-Hub-Signature": "sha1=deadbeef",
			},
			wantStatus: http.StatusUnauthorized,
		},
		"Webhook wrong event Forbidden": {
			method: http.MethodPost,
			path:   "/webhooks/label",
			body:   issueBody,
			headers: map[string]string{
				"X-GitHub-Event": "issues",
			},
			wantStatus: http.StatusForbidden,
		},
		"Webhook bad method NotFound": {
			// GETs fall through to the home handler, which rejects non-root paths.
			method:     http.MethodGet,
			path:       "/webhooks/issues",
			wantStatus: http.StatusNotFound,
		},
	}

	client := &http.Client{}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			req, err := http.NewRequest(tc.method, "http://"+addr+tc.path, bytes.NewReader(tc.body))
			require.NoError(t, err, "Setup: failed to create request")
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if tc.body != nil && req.Header.Get("X-Hub-Signature") == "" {
				req.Header.Set("X-Hub-Signature", signBody(tc.body))
			}
			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.wantStatus, resp.StatusCode, "Unexpected status response")

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			if tc.wantBody != "" {
				assert.Equal(t, tc.wantBody, string(body), "Unexpected response body")
			}
			if tc.wantCORS {
				assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), "Expected CORS header on data endpoint")
			}
		})
	}
}

func TestServeTimelinePayload(t *testing.T) {
	t.Parallel()

	dConf := *defaultDaemonConfig
	cm := &testConfigManager{categories: []string{"needsdiagnosis"}}

	s := createServerAndWaitReady(t, cm, &dConf, false)

	resp, err := http.Get("http://" + s.PrimaryAddr().String() + "/data/needsdiagnosis-timeline?from=2019-05-16&to=2019-05-18")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		About      string                 `json:"about"`
		DateFormat string                 `json:"date_format"`
		Timeline   []models.TimelineEntry `json:"timeline"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

	assert.Equal(t, "Hourly needsdiagnosis issues count", got.About)
	assert.Equal(t, "w3c", got.DateFormat)
	assert.Len(t, got.Timeline, 1)
	assert.Equal(t, 1234, got.Timeline[0].Count)
}

func TestRunSingle(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		dConf webservice.StaticConfig
		cm    testConfigManager

		wantErr bool
	}{
		"Default": {},

		// Bad Server Configurations
		"Bad Port": {
			dConf: func() webservice.StaticConfig {
				d := *defaultDaemonConfig
				d.ListenPort = -1
				return d
			}(),
			wantErr: true,
		},
		"New Watcher Error": {
			cm: testConfigManager{
				categories:    []string{"needsdiagnosis"},
				newWatcherErr: fmt.Errorf("requested watch error"),
			},
			wantErr: true,
		},
		"Watch Error": {
			cm: testConfigManager{
				categories: []string{"needsdiagnosis"},
				watchErr:   fmt.Errorf("requested watch error"),
			},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if tc.dConf == (webservice.StaticConfig{}) {
				tc.dConf = *defaultDaemonConfig
			}
			if tc.cm.categories == nil {
				tc.cm.categories = []string{"needsdiagnosis"}
			}

			s := createServerAndWaitReady(t, &tc.cm, &tc.dConf, tc.wantErr)
			if tc.wantErr {
				return // If we expect an error and createServerAndWaitReady returns, we can stop here
			}

			resp, err := http.Get("http://" + s.PrimaryAddr().String() + "/version")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode, "status")
		})
	}
}

func TestRunAfterQuitErrors(t *testing.T) {
	t.Parallel()

	dConf := *defaultDaemonConfig
	cm := &testConfigManager{categories: []string{}}

	s := createServerAndWaitReady(t, cm, &dConf, false)

	s.Quit(false)

	serverErr2 := make(chan error, 1)
	go func() {
		defer close(serverErr2)
		serverErr2 <- s.Run()
	}()

	select {
	case err := <-serverErr2:
		require.Error(t, err, "Server should have errored after second run")
	case <-time.After(1 * time.Second):
		require.Fail(t, "Server should have errored after second run")
	}
}

func TestMetricsServed(t *testing.T) {
	t.Parallel()

	dConf := *defaultDaemonConfig
	cm := &testConfigManager{categories: []string{"needsdiagnosis"}}

	s := createServerAndWaitReady(t, cm, &dConf, false)

	require.Eventually(t, func() bool {
		return s.MetricsAddr() != ""
	}, 3*time.Second, 10*time.Millisecond, "Metrics server never started listening")

	resp, err := http.Get("http://" + s.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "Expected metrics endpoint to return 200 OK")
}

type testConfigManager struct {
	categories    []string
	loadErr       error
	newWatcherErr error
	watchErr      error
}

func (t testConfigManager) Load() error {
	return t.loadErr
}

func (t testConfigManager) Watch(ctx context.Context) (<-chan struct{}, <-chan error, error) {
	// Simulate watching for changes
	if t.newWatcherErr != nil {
		return nil, nil, t.newWatcherErr
	}

	eventsChan := make(chan struct{})
	errorsChan := make(chan error)
	go func() {
		defer close(eventsChan)
		defer close(errorsChan)

		if t.watchErr != nil {
			errorsChan <- t.watchErr
			return
		}

		// Block until the context is done
		<-ctx.Done()
	}()

	return eventsChan, errorsChan, nil
}

func (t testConfigManager) IsValidCategory(name string) bool {
	for _, c := range t.categories {
		if c == name {
			return true
		}
	}
	return false
}

type testStore struct{}

func (testStore) Timeline(ctx context.Context, category string, from, to time.Time) ([]models.TimelineEntry, error) {
	return []models.TimelineEntry{
		{Count: 1234, Timestamp: time.Date(2019, 5, 16, 12, 0, 0, 0, time.UTC)},
	}, nil
}

func (testStore) WeeklyCounts(ctx context.Context, from, to time.Time) ([]models.TimelineEntry, error) {
	return []models.TimelineEntry{
		{Count: 56, Timestamp: time.Date(2019, 5, 20, 0, 0, 0, 0, time.UTC)},
	}, nil
}

type testFetcher struct{}

func (testFetcher) TriageIssues(ctx context.Context) ([]byte, error) {
	return []byte(`[]`), nil
}

func (testFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return []byte(`{}`), nil
}

type testProcessor struct{}

func (testProcessor) ProcessIssueEvent(ctx context.Context, event webhooks.IssueEvent) error {
	return nil
}

func (testProcessor) ProcessLabelEvent(ctx context.Context, payload webhooks.LabelPayload) error {
	return nil
}

func (testProcessor) ProcessMilestoneEvent(ctx context.Context, payload webhooks.MilestonePayload) error {
	return nil
}

func testDeps() webservice.Deps {
	return webservice.Deps{
		Timelines: testStore{},
		Fetcher:   testFetcher{},
		Processor: testProcessor{},
	}
}

func signBody(body []byte) string {
	mac := hmac.New(sha1.New, []byte(testSecret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func createServerAndWaitReady(t *testing.T, cm webservice.DConfigManager, dConf *webservice.StaticConfig, wantErr bool) *webservice.Server {
	t.Helper()

	s, err := webservice.New(t.Context(), cm, testDeps(), *dConf)
	require.NoError(t, err, "Setup: failed to create server")

	serverErr := make(chan error, 1)
	go func() {
		defer close(serverErr)
		serverErr <- s.Run()
	}()
	t.Cleanup(func() { s.Quit(true) })

	readyDeadline := time.After(5 * time.Second)
	for s.PrimaryAddr() == nil {
		select {
		case err := <-serverErr:
			if wantErr {
				require.Error(t, err, "Expected Run to fail")
				return nil
			}
			require.Failf(t, "Run returned unexpectedly", "Got possible error: %v", err)
		case <-readyDeadline:
			require.Fail(t, "Setup: server never became ready")
		case <-time.After(10 * time.Millisecond):
		}
	}

	require.False(t, wantErr, "Expected Run to fail but the server became ready")
	return s
}
