package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Dagon/internal/api"
	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/engine"
	"github.com/shaiso/Dagon/internal/manifest"
	"github.com/shaiso/Dagon/internal/orchestrator"
)

const pipeline = `
name: Italian-Writers
tasks:
  - name: Svevo
    command: echo svevo > out.txt
  - name: Calvino
    type: checkpoint
    command: cat workflow:///Svevo/out.txt > calvino.txt
  - name: Eco
    command: echo eco
    depends_on: [Svevo]
`

type result struct {
	stdout string
	stderr string
	err    error
}

// execute запускает корневую команду в пустой рабочей директории,
// чтобы не подхватить чужой dagon.yaml.
func execute(t *testing.T, args ...string) result {
	t.Helper()
	t.Chdir(t.TempDir())

	cmd := NewRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestValidate(t *testing.T) {
	res := execute(t, "validate", writeManifest(t, pipeline))
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Italian-Writers: OK (1 workflows, 3 tasks)")
}

func TestValidate_Cycle(t *testing.T) {
	res := execute(t, "validate", writeManifest(t, `
name: wf
tasks:
  - name: A
    command: cat workflow:///B/out
  - name: B
    command: cat workflow:///A/out
`))
	var cycle *engine.CycleError
	assert.ErrorAs(t, res.err, &cycle)
}

func TestValidate_InvalidManifest(t *testing.T) {
	res := execute(t, "validate", writeManifest(t, "name: wf\ntasks: [{name: A, command: x, depends_on: [B]}]\n"))
	assert.ErrorIs(t, res.err, manifest.ErrInvalid)
}

func TestGraph_JSON(t *testing.T) {
	res := execute(t, "--json", "graph", writeManifest(t, pipeline))
	require.NoError(t, res.err)

	var got struct {
		Name   string           `json:"name"`
		Levels []manifest.Level `json:"levels"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &got))
	assert.Equal(t, "Italian-Writers", got.Name)
	assert.Equal(t, []manifest.Level{
		{Workflow: "Italian-Writers", Level: 0, Tasks: []string{"Svevo"}},
		{Workflow: "Italian-Writers", Level: 1, Tasks: []string{"Calvino", "Eco"}},
	}, got.Levels)
}

func TestGraph_Table(t *testing.T) {
	res := execute(t, "graph", writeManifest(t, pipeline))
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "WORKFLOW")
	assert.Contains(t, res.stdout, "Calvino, Eco")
}

func TestRun_CheckpointAndResume(t *testing.T) {
	requireBash(t)
	path := writeManifest(t, pipeline)
	scratch := t.TempDir()
	checkpoints := t.TempDir()

	res := execute(t, "--json", "run", "--scratch-dir", scratch, "--checkpoint-dir", checkpoints, path)
	require.NoError(t, res.err, res.stderr)

	var summary runSummary
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summary))
	assert.Equal(t, domain.RunStatusSucceeded, summary.Status)
	require.Len(t, summary.Workflows, 1)
	assert.Equal(t, domain.TaskStatusFinished, summary.Workflows[0].Tasks["Calvino"])

	cpFile := filepath.Join(checkpoints, "Calvino.json")
	require.FileExists(t, cpFile)

	res = execute(t, "--json", "run", "--scratch-dir", t.TempDir(), "--checkpoint-dir", checkpoints, "--resume", cpFile, path)
	require.NoError(t, res.err, res.stderr)
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &summary))
	assert.Equal(t, domain.RunStatusSucceeded, summary.Status)
}

func TestRun_FailedTask(t *testing.T) {
	requireBash(t)
	path := writeManifest(t, `
name: wf
tasks:
  - name: A
    command: exit 3
  - name: B
    command: "true"
    depends_on: [A]
`)

	res := execute(t, "run", "--scratch-dir", t.TempDir(), path)
	require.ErrorIs(t, res.err, orchestrator.ErrRunFailed)
	assert.Contains(t, res.stdout, "FAILED")
	assert.Contains(t, res.stderr, "wf/A failed")
}

func TestRun_Dry(t *testing.T) {
	scratch := t.TempDir()
	res := execute(t, "run", "--dry", "--scratch-dir", scratch, writeManifest(t, pipeline))
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Italian-Writers: SUCCEEDED")

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry run touches nothing")
}

func TestRun_ResumeDBWithoutMirror(t *testing.T) {
	res := execute(t, "run", "--dry", "--resume-db", writeManifest(t, pipeline))
	assert.ErrorIs(t, res.err, ErrNoMirror)
}

func TestRun_ReportsToMonitor(t *testing.T) {
	requireBash(t)
	handler := api.NewHandler(api.Config{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := execute(t, "run",
		"--reporter-url", srv.URL,
		"--scratch-dir", t.TempDir(),
		"--checkpoint-dir", t.TempDir(),
		writeManifest(t, pipeline))
	require.NoError(t, res.err, res.stderr)

	states := handler.Store().List()
	require.Len(t, states, 1)
	assert.Equal(t, "Italian-Writers", states[0].Name)
	require.Len(t, states[0].Tasks, 3)
	assert.Equal(t, domain.RunStatusSucceeded, api.SummaryFromState(states[0]).Status)
	assert.Equal(t, []string{"Svevo"}, states[0].Tasks["Calvino"].Dependencies)
}

func TestSchedule_Next(t *testing.T) {
	res := execute(t, "--json", "schedule", "--cron", "@hourly", "--next", "3", writeManifest(t, pipeline))
	require.NoError(t, res.err)

	var runs []time.Time
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &runs))
	require.Len(t, runs, 3)
	assert.Equal(t, time.Hour, runs[1].Sub(runs[0]))
}

func TestSchedule_RequiresCron(t *testing.T) {
	res := execute(t, "schedule", writeManifest(t, pipeline))
	assert.Error(t, res.err)
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "keys", "id_ed25519")
	authorized := filepath.Join(dir, "authorized_keys")

	res := execute(t, "keygen", "--out", keyPath, "--comment", "dagon@test", "--authorize", "--authorized-keys", authorized)
	require.NoError(t, res.err)
	assert.True(t, strings.HasPrefix(res.stdout, "ssh-ed25519 "))

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	pub, err := os.ReadFile(keyPath + ".pub")
	require.NoError(t, err)
	assert.Contains(t, string(pub), "dagon@test")

	keys, err := os.ReadFile(authorized)
	require.NoError(t, err)
	assert.Equal(t, string(pub), string(keys))

	res = execute(t, "keygen", "--out", keyPath)
	assert.ErrorContains(t, res.err, "already exists")
}

func TestStatus(t *testing.T) {
	store := api.NewStore()
	id, err := store.CreateWorkflow(domain.WorkflowInfo{
		Name: "Italian-Writers",
		Tasks: map[string]domain.TaskInfo{
			"Svevo":   {Command: "echo svevo", Type: domain.TaskTypeBatch, Status: domain.TaskStatusFinished},
			"Calvino": {Command: "cat", Type: domain.TaskTypeCheckpoint, Dependencies: []string{"Svevo"}},
		},
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	api.NewHandler(api.Config{Store: store}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	t.Run("list", func(t *testing.T) {
		res := execute(t, "status", "list", "--monitor-url", srv.URL)
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, id)
		assert.Contains(t, res.stdout, "2 (FINISHED 1, PENDING 1)")
		assert.Contains(t, res.stderr, "Total: 1")
	})

	t.Run("show", func(t *testing.T) {
		res := execute(t, "--json", "status", "show", "--monitor-url", srv.URL, id)
		require.NoError(t, res.err)

		var wf WorkflowState
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &wf))
		assert.Equal(t, []string{"Svevo"}, wf.Tasks["Calvino"].Dependencies)
	})

	t.Run("delete", func(t *testing.T) {
		res := execute(t, "status", "delete", "--monitor-url", srv.URL, id)
		require.NoError(t, res.err)
		assert.Zero(t, store.Len())

		res = execute(t, "status", "show", "--monitor-url", srv.URL, id)
		assert.ErrorContains(t, res.err, "NOT_FOUND")
	})

	t.Run("no url", func(t *testing.T) {
		res := execute(t, "status", "list")
		assert.ErrorContains(t, res.err, "status service URL is not set")
	})
}
