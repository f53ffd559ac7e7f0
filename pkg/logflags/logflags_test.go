package logflags

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func resetFlags() {
	debugger, ptrace, breakpoints = false, false, false
	logOut = nil
}

func TestMakeLogger_withFlagFalse(t *testing.T) {
	defer resetFlags()
	actual := makeLogger(false, logrus.Fields{"foo": "bar"})
	if actual.Logger.Level != logrus.ErrorLevel {
		t.Fatalf("expected level to be <%v>; but was <%v>", logrus.ErrorLevel, actual.Logger.Level)
	}
	if len(actual.Data) != 1 || actual.Data["foo"] != "bar" {
		t.Fatalf("expected data to be {'foo':'bar'}; but was <%v>", actual.Data)
	}
}

func TestMakeLogger_withFlagTrue(t *testing.T) {
	defer resetFlags()
	buf := &bufferWriter{}
	logOut = buf
	actual := makeLogger(true, logrus.Fields{"layer": "debugger"})
	if actual.Logger.Level != logrus.DebugLevel {
		t.Fatalf("expected level to be <%v>; but was <%v>", logrus.DebugLevel, actual.Logger.Level)
	}
	actual.Debugf("hello %d", 42)
	out := buf.String()
	if !strings.Contains(out, "hello 42") || !strings.Contains(out, "layer=debugger") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestSetup_logstrWithoutLog(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "debugger", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected <%v>; but was <%v>", errLogstrWithoutLog, err)
	}
	if Debugger() {
		t.Fatal("debugger logging enabled without --log")
	}
}

func TestSetup_selectsLayers(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "ptrace,breakpoints", ""); err != nil {
		t.Fatal(err)
	}
	if Debugger() || !Ptrace() || !Breakpoints() {
		t.Fatalf("wrong layers enabled: debugger=%v ptrace=%v breakpoints=%v", Debugger(), Ptrace(), Breakpoints())
	}
}

func TestSetup_defaultLayer(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !Debugger() || Ptrace() || Breakpoints() {
		t.Fatalf("wrong layers enabled: debugger=%v ptrace=%v breakpoints=%v", Debugger(), Ptrace(), Breakpoints())
	}
}

type bufferWriter struct {
	bytes.Buffer
}

func (bw *bufferWriter) Close() error {
	return nil
}
