package launcher

import (
	"os"
	"os/exec"
	"testing"

	"github.com/yuvalino/rmsh/internal/parse"
	"github.com/yuvalino/rmsh/internal/shellctx"
)

// TestMain honours NotFoundReexecArg the way main.main does: spawnNotFound
// re-execs os.Executable(), which under `go test` is this test binary.
func TestMain(m *testing.M) {
	if len(os.Args) == 2 && os.Args[1] == NotFoundReexecArg {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func nonInteractiveCtx() *shellctx.Context {
	return &shellctx.Context{ProgName: "rmsh", Interactive: false}
}

func requireBin(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found on PATH: %v", name, err)
	}
	return path
}

func TestLaunchSingleProcessExitStatus(t *testing.T) {
	requireBin(t, "true")
	pl := parse.Pipeline{Processes: []parse.Process{{Argv: []string{"true"}}}}
	sc := nonInteractiveCtx()

	job, err := Launch(pl, sc)
	if err != nil {
		t.Fatalf("Launch error: %v", err)
	}
	if err := Wait(job, sc); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if len(job.Processes) != 1 {
		t.Fatalf("got %d processes, want 1", len(job.Processes))
	}
	st := job.Processes[0].Status
	if !st.Exited || st.Code != 0 {
		t.Fatalf("status = %+v, want Exited with code 0", st)
	}
}

func TestLaunchNonZeroExit(t *testing.T) {
	requireBin(t, "false")
	pl := parse.Pipeline{Processes: []parse.Process{{Argv: []string{"false"}}}}
	sc := nonInteractiveCtx()

	job, err := Launch(pl, sc)
	if err != nil {
		t.Fatalf("Launch error: %v", err)
	}
	if err := Wait(job, sc); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	st := job.Processes[0].Status
	if !st.Exited || st.Code != 1 {
		t.Fatalf("status = %+v, want Exited with code 1", st)
	}
}

func TestLaunchPipeline(t *testing.T) {
	requireBin(t, "sh")

	dir := t.TempDir()
	outPath := dir + "/out.txt"

	pl := parse.Pipeline{Processes: []parse.Process{
		{Argv: []string{"sh", "-c", "echo hello"}},
		{Argv: []string{"sh", "-c", "cat > " + outPath}},
	}}
	sc := nonInteractiveCtx()

	job, err := Launch(pl, sc)
	if err != nil {
		t.Fatalf("Launch error: %v", err)
	}
	if err := Wait(job, sc); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	for _, p := range job.Processes {
		if !p.Status.Exited || p.Status.Code != 0 {
			t.Fatalf("process %d status = %+v, want clean exit", p.Pid, p.Status)
		}
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello\n" {
		t.Fatalf("output = %q, want %q", got, "hello\n")
	}
}

func TestLaunchRedirectTruncate(t *testing.T) {
	requireBin(t, "sh")
	dir := t.TempDir()
	outPath := dir + "/out.txt"

	pl := parse.Pipeline{Processes: []parse.Process{{
		Argv: []string{"sh", "-c", "echo hi"},
		Redirs: []parse.Redirection{
			{FD: 1, Type: parse.PathOTrunc, Path: outPath},
		},
	}}}
	sc := nonInteractiveCtx()

	job, err := Launch(pl, sc)
	if err != nil {
		t.Fatalf("Launch error: %v", err)
	}
	if err := Wait(job, sc); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hi\n" {
		t.Fatalf("output = %q, want %q", got, "hi\n")
	}
}

func TestLaunchCommandNotFound(t *testing.T) {
	pl := parse.Pipeline{Processes: []parse.Process{{Argv: []string{"this-command-does-not-exist-xyz"}}}}
	sc := nonInteractiveCtx()

	job, err := Launch(pl, sc)
	if err != nil {
		t.Fatalf("Launch error: %v", err)
	}
	if err := Wait(job, sc); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	st := job.Processes[0].Status
	if !st.Exited || st.Code != 1 {
		t.Fatalf("status = %+v, want Exited with code 1", st)
	}
}
