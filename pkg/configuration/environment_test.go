package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "MASTERDATA_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "registry")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("MASTERDATA_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("MASTERDATA_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestLoadEnv_NoFiles(t *testing.T) {
	tmp := t.TempDir()
	origWd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	require.NoError(t, os.Chdir(tmp))

	n, err := LoadEnv([]string{".env.does-not-exist"})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestLookupOptions_Validate(t *testing.T) {
	valid := LookupOptions{
		DawaBaseURL: "https://dawa.aws.dk",
		OisBaseURL:  "https://ois.dk",
		Timeout:     10 * time.Second,
		Delay:       time.Second,
		Cache:       "memory",
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(o *LookupOptions){
		"empty dawa url": func(o *LookupOptions) { o.DawaBaseURL = " " },
		"zero timeout":   func(o *LookupOptions) { o.Timeout = 0 },
		"negative delay": func(o *LookupOptions) { o.Delay = -time.Second },
		"unknown cache":  func(o *LookupOptions) { o.Cache = "memcached" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := valid
			mutate(&o)
			require.Error(t, o.Validate())
		})
	}
}

func TestImportOptions_Validate(t *testing.T) {
	require.NoError(t, (&ImportOptions{BatchSize: 1000, HeaderScanRows: 20, EnrichWorkers: 1}).Validate())
	require.Error(t, (&ImportOptions{BatchSize: 0, HeaderScanRows: 20, EnrichWorkers: 1}).Validate())
	require.Error(t, (&ImportOptions{BatchSize: 1000, HeaderScanRows: 0, EnrichWorkers: 1}).Validate())
	require.Error(t, (&ImportOptions{BatchSize: 1000, HeaderScanRows: 20, EnrichWorkers: 0}).Validate())
}

func TestRateLimitOptions_Validate(t *testing.T) {
	require.NoError(t, (&RateLimitOptions{GlobalRPS: 10, Storage: "memory"}).Validate())
	require.Error(t, (&RateLimitOptions{GlobalRPS: -1, Storage: "memory"}).Validate())
	require.Error(t, (&RateLimitOptions{GlobalRPS: 10, Storage: "redis"}).Validate())
	require.Error(t, (&RateLimitOptions{GlobalRPS: 10, Storage: "disk"}).Validate())
}

func TestLogrusLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"silent":  logrus.PanicLevel,
		"warn":    logrus.WarnLevel,
		"info":    logrus.InfoLevel,
		"debug":   logrus.DebugLevel,
		"unknown": logrus.ErrorLevel,
	}
	for in, want := range cases {
		c := &Configuration{Log: LogOptions{Level: in}}
		require.Equal(t, want, c.LogrusLogLevel(), in)
	}
}

func TestOrigins(t *testing.T) {
	c := &Configuration{AllowedOrigins: "http://localhost:3000, https://example.dk,,"}
	require.Equal(t, []string{"http://localhost:3000", "https://example.dk"}, c.Origins())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
