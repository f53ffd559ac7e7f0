package cmds

import (
	"bytes"
	"strings"
	"testing"
)

func newTestRoot(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := New()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	return buf, root.Execute()
}

func TestVersion(t *testing.T) {
	buf, err := newTestRoot(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "tdb Debugger\nVersion: ") {
		t.Fatalf("unexpected version output %q", buf.String())
	}
}

func TestExecRequiresBinary(t *testing.T) {
	_, err := newTestRoot(t, "exec")
	if err == nil || err.Error() != "you must provide a path to a binary" {
		t.Fatalf("expected missing binary error, got %v", err)
	}
}

func TestAttachRequiresPid(t *testing.T) {
	_, err := newTestRoot(t, "attach")
	if err == nil || err.Error() != "you must provide a PID" {
		t.Fatalf("expected missing pid error, got %v", err)
	}
}

func TestLogHelpTopic(t *testing.T) {
	buf, err := newTestRoot(t, "help", "log")
	if err != nil {
		t.Fatal(err)
	}
	for _, layer := range []string{"debugger", "ptrace", "breakpoints"} {
		if !strings.Contains(buf.String(), layer) {
			t.Fatalf("log help does not mention %q:\n%s", layer, buf.String())
		}
	}
}
