package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletops/internal/core"
)

// syncBuffer is shared by the logger, tracer and test reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// sqliteWorkspace points storage at a fresh database in an empty working directory.
func sqliteWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OUTLETOPS_STORAGE_DRIVER", "sqlite")
	t.Setenv("OUTLETOPS_STORAGE_SQLITE_PATH", filepath.Join(dir, "outlets.db"))
	return dir
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := cli(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func listJSON(t *testing.T, args ...string) []core.Outlet {
	t.Helper()
	code, out, errOut := run(t, append([]string{"list", "--json"}, args...)...)
	require.Equal(t, 0, code, errOut)
	var outlets []core.Outlet
	require.NoError(t, json.Unmarshal([]byte(out), &outlets), out)
	return outlets
}

func TestOutletCommands(t *testing.T) {
	sqliteWorkspace(t)

	code, out, errOut := run(t, "add", "--name", "Dil Daily - HSR", "--brand", "dil daily", "--city", "pune", "--note", "requested")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Dil Daily - HSR: Onboarding Request")

	outlets := listJSON(t)
	require.Len(t, outlets, 1)
	id := outlets[0].ID
	assert.Equal(t, "Dil Daily", outlets[0].Brand)

	code, out, _ = run(t, "move", id, "forward")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Overlap Check")
	code, out, _ = run(t, "stage", id, "FASSI APPLY")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "FASSI Apply")
	code, out, _ = run(t, "stage", id, "fassi_apply")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "unchanged")

	code, _, _ = run(t, "note", id, "licence filed")
	require.Equal(t, 0, code)
	code, _, _ = run(t, "note", "--stage", "Chef Approval", id, "approved")
	require.Equal(t, 0, code)
	assert.Len(t, listJSON(t, "--search", "licence"), 1)

	code, out, _ = run(t, "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Dil Daily - HSR")

	code, out, _ = run(t, "report")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "total 1")
	assert.Contains(t, out, "BOTTLENECK")

	code, _, _ = run(t, "archive", id)
	require.Equal(t, 0, code)
	assert.Empty(t, listJSON(t))
	assert.Len(t, listJSON(t, "--view", "archived"), 1)
	code, _, _ = run(t, "restore", id)
	require.Equal(t, 0, code)

	code, _, errOut = run(t, "delete", id)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--yes")
	code, out, _ = run(t, "delete", "--yes", id)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "deleted")
	assert.Empty(t, listJSON(t, "--view", "all"))
}

func TestCommandErrors(t *testing.T) {
	sqliteWorkspace(t)
	cases := [][]string{
		{"move", "missing", "forward"},
		{"move", "missing", "sideways"},
		{"stage", "missing", "LAUNCH"},
		{"add", "--brand", "Burger Barn"},
		{"list", "--view", "deleted"},
		{"export", "out.pdf"},
		{"import", "absent.csv"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, _, errOut := run(t, args...)
			assert.Equal(t, 1, code)
			assert.True(t, strings.HasPrefix(errOut, "outletops: "), errOut)
		})
	}
}

func TestInvalidConfigFails(t *testing.T) {
	sqliteWorkspace(t)
	t.Setenv("OUTLETOPS_LOG_LEVEL", "loud")
	code, _, errOut := run(t, "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid config")
}

const batch = "Outlet Name,Brand,Cities,Pipeline Stage,Live Date\n" +
	"Alpha,Aahar,Pune,HANDOVER,2024-01-05\n" +
	"Beta,Burger Barn,Pune,,\n"

func TestImportExportCommands(t *testing.T) {
	dir := sqliteWorkspace(t)
	src := filepath.Join(dir, "batch.csv")
	require.NoError(t, os.WriteFile(src, []byte(batch), 0o600))

	code, out, errOut := run(t, "import", src)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "1 new, 0 update, 1 failed")
	assert.Contains(t, out, "Unrecognized Brand")
	assert.Contains(t, out, "dry run")
	assert.Empty(t, listJSON(t))

	code, out, errOut = run(t, "import", "--apply", src)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "committed: 1 created, 0 updated")
	outlets := listJSON(t)
	require.Len(t, outlets, 1)
	assert.Equal(t, "Alpha", outlets[0].Name)

	code, out, _ = run(t, "import", "--apply", src)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "0 created, 1 updated")

	exported := filepath.Join(dir, "outlets.csv")
	code, _, errOut = run(t, "export", exported)
	require.Equal(t, 0, code, errOut)
	raw, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Alpha")

	code, out, _ = run(t, "export", "--format", "csv", "-")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Outlet Name")

	tmpl := filepath.Join(dir, "template.xlsx")
	code, _, _ = run(t, "template", tmpl)
	require.Equal(t, 0, code)
	info, err := os.Stat(tmpl)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestServeLifecycle(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OUTLETOPS_STORAGE_DRIVER", "memory")
	t.Setenv("OUTLETOPS_METRICS_DRIVER", "prometheus")
	t.Setenv("OUTLETOPS_TRACING_DRIVER", "json")
	t.Setenv("OUTLETOPS_HTTP_ADDR", "127.0.0.1:0")

	var stdout, stderr syncBuffer
	a := &app{stdout: &stdout, stderr: &stderr}
	require.NoError(t, a.load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	base := "http://" + addr

	resp, err := http.Post(base+"/api/v1/outlets", "application/json", strings.NewReader(`{"name":"Served"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "outletops_service_operations_total")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	logs := stderr.String()
	assert.Contains(t, logs, "server listening")
	assert.Contains(t, logs, `"operation":"add_outlet"`)
}

func TestMainExitCode(t *testing.T) {
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"outletops", "--version"}
	main()
	os.Args = []string{"outletops", "no-such-command"}
	main()
	assert.Equal(t, []int{0, 1}, codes)
}
