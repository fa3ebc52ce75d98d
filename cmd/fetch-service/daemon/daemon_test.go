package daemon_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webcompat/ochazuke/cmd/fetch-service/daemon"
	"github.com/webcompat/ochazuke/internal/constants"
	"github.com/webcompat/ochazuke/internal/testutils"
)

func TestConfigArg(t *testing.T) {
	filename := "conf.yaml"
	configPath := filepath.Join(t.TempDir(), filename)
	require.NoError(t, os.WriteFile(configPath, []byte("Verbosity: 1"), 0600), "Setup: couldn't write config file")

	a, err := daemon.New()
	require.NoError(t, err, "Setup: New should not return an error")
	a.SetArgs("version", "--config", configPath)

	err = a.Run()
	require.NoError(t, err, "Run should not return an error")
	require.Equal(t, 1, a.Config().Verbosity)
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("OCHAZUKE_FETCH_SERVICE_METRICSCONFIG_READTIMEOUT", "1s")

	a, err := daemon.New()
	require.NoError(t, err, "Setup: New should not return an error")
	a.SetArgs("version")

	err = a.Run()
	require.NoError(t, err, "Run should not return an error")
	require.Equal(t, time.Second, a.Config().MetricsConfig.ReadTimeout)
}

func TestConfigBadArg(t *testing.T) {
	filename := "conf.yaml"
	configPath := filepath.Join(t.TempDir(), filename)

	a, err := daemon.New()
	require.NoError(t, err, "Setup: New should not return an error")
	a.SetArgs("version", "--config", configPath)

	err = a.Run()
	require.Error(t, err, "Run should return an error")
}

func TestRunNoDatabaseErrors(t *testing.T) {
	t.Parallel()

	a := daemon.NewForTests(t, nil, nil,
		"--db-host", "localhost",
		"--db-port", "1",
		"--db-name", "nope",
		"--db-user", "nope")

	chErr := make(chan error, 1)
	go func() {
		chErr <- a.Run()
	}()
	a.WaitReady()

	err := <-chErr
	require.Error(t, err, "Run should return with an error")
}

func TestRunBadCategoriesConfigErrors(t *testing.T) {
	t.Parallel()

	conf := &daemon.AppConfig{ConfigPath: "/does/not/exist.json"}
	a := daemon.NewForTests(t, conf, nil)

	chErr := make(chan error, 1)
	go func() {
		chErr <- a.Run()
	}()
	a.WaitReady()

	err := <-chErr
	require.Error(t, err, "Run should return with an error")
}

func TestNoUsageError(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err, "Setup: New should not return an error")
	a.SetArgs("completion", "bash")

	err = a.Run()
	require.NoError(t, err, "Run should not return an error")

	isUsageError := a.UsageError()
	require.False(t, isUsageError, "No usage error is reported as such")
}

func TestUsageError(t *testing.T) {
	t.Parallel()

	a, err := daemon.New()
	require.NoError(t, err, "Setup: New should not return an error")
	a.SetArgs("doesnotexist")

	err = a.Run()
	require.Error(t, err, "Run should return an error")
	isUsageError := a.UsageError()
	require.True(t, isUsageError, "Usage error is reported as such")

	// Test when SilenceUsage is true
	a.SetSilenceUsage(true)
	assert.False(t, a.UsageError())

	// Test when SilenceUsage is false
	a.SetSilenceUsage(false)
	assert.True(t, a.UsageError())
}

func TestAppCanSigHup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping Hup test on Windows")
	}
	r, w, err := os.Pipe()
	require.NoError(t, err, "Setup: pipe shouldn't fail")

	a, err := daemon.New()
	require.NoError(t, err, "Setup: New should not return an error")

	orig := os.Stdout
	os.Stdout = w

	a.Hup()

	os.Stdout = orig
	w.Close()

	var out bytes.Buffer
	_, err = io.Copy(&out, r)
	require.NoError(t, err, "Couldn't copy stdout to buffer")
	require.NotEmpty(t, out.String(), "Stacktrace is printed")
}

func TestBadConfigReturnsError(t *testing.T) {
	a, err := daemon.New()
	require.NoError(t, err, "Setup: New should not return an error")
	// Use version to still run preExec to load no config but without running server
	a.SetArgs("version", "--config", "/does/not/exist.yaml")

	err = a.Run()
	require.Error(t, err, "Run should return an error on config file")
}

func TestRootCmd(t *testing.T) {
	app, err := daemon.New()
	require.NoError(t, err)

	cmd := app.RootCmd()

	assert.NotNil(t, cmd, "Returned root cmd should not be nil")
	assert.Equal(t, constants.FetchServiceCmdName, cmd.Name())
}

func TestImportWeekly(t *testing.T) {
	t.Parallel()

	trueMigrationsDir := filepath.Join(testutils.ModuleRoot(), "migrations")

	validDoc := `{"timeline": [
		{"count": 200, "timestamp": "2019-01-07"},
		{"count": 210, "timestamp": "2019-01-14T00:00:00Z"}
	]}`

	tests := map[string]struct {
		doc        string
		noSource   bool
		noDatabase bool

		wantRows     int
		wantErr      bool
		wantUsageErr bool
	}{
		"imports historical totals": {
			doc:      validDoc,
			wantRows: 2,
		},
		"skips bad timestamps": {
			doc:      `{"timeline": [{"count": 1, "timestamp": "not-a-date"}, {"count": 2, "timestamp": "2019-01-21"}]}`,
			wantRows: 1,
		},

		// Usage Error Cases
		"no source": {
			noSource:     true,
			wantErr:      true,
			wantUsageErr: true,
		},

		// Error Cases
		"empty timeline": {
			doc:     `{"timeline": []}`,
			wantErr: true,
		},
		"invalid JSON": {
			doc:     `{"timeline": `,
			wantErr: true,
		},
		"no database": {
			doc:        validDoc,
			noDatabase: true,
			wantErr:    true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var args []string
			if !tc.noSource {
				src := filepath.Join(t.TempDir(), "weekly_issues.json")
				require.NoError(t, os.WriteFile(src, []byte(tc.doc), 0600), "Setup: couldn't write weekly totals document")
				args = append(args, src)
			}

			db := &testutils.PostgresContainer{}
			if !tc.noDatabase {
				db = testutils.StartPostgresContainer(t)
				require.NoError(t, db.IsReady(t, 5*time.Second, 10), "Setup: dbContainer was not ready in time")
				testutils.ApplyMigrations(t, db.DSN, trueMigrationsDir)

				args = append(args,
					"--db-host", db.Host,
					"--db-port", db.Port,
					"--db-user", db.User,
					"--db-password", db.Password,
					"--db-name", db.Name,
					"-vv")
			}

			a, err := daemon.New()
			require.NoError(t, err, "Setup: New should not return an error")
			a.SetArgs(append([]string{"import-weekly"}, args...)...)

			err = a.Run()
			require.Equal(t, tc.wantUsageErr, a.UsageError(), "Run should return a usage error if expected")
			if tc.wantErr {
				require.Error(t, err, "Run should return an error")
				return
			}
			require.NoError(t, err, "Run should not return an error")

			conn, err := pgx.Connect(t.Context(), db.DSN)
			require.NoError(t, err, "failed to connect to the database")
			defer func() { require.NoError(t, conn.Close(t.Context())) }()

			var rows int
			require.NoError(t, conn.QueryRow(t.Context(), "SELECT COUNT(*) FROM weekly_total").Scan(&rows))
			require.Equal(t, tc.wantRows, rows, "import-weekly should store the expected weekly totals")
		})
	}
}
