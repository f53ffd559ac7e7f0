package proc_test

import (
	"errors"
	"syscall"
	"testing"

	"github.com/tdb-debugger/tdb/pkg/proc"
	protest "github.com/tdb-debugger/tdb/pkg/proc/test"
)

const textAddr = 0x401000

func nops(n int) []byte {
	code := make([]byte, n)
	for i := range code {
		code[i] = protest.OpNop
	}
	return code
}

func assertNoError(err error, t testing.TB, s string) {
	t.Helper()
	if err != nil {
		t.Fatalf("failed assertion %s: %v", s, err)
	}
}

func TestBreakpointAddIsIdempotent(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())

	bp1, created, err := bpmap.Add(ft, textAddr+8)
	assertNoError(err, t, "Add")
	if !created || bp1.ID != 1 || bp1.Installed() {
		t.Fatalf("unexpected first breakpoint %v (created=%v installed=%v)", bp1, created, bp1.Installed())
	}
	reads := len(ft.Reads)

	bp2, created, err := bpmap.Add(ft, textAddr+8)
	assertNoError(err, t, "Add")
	if created || bp2 != bp1 {
		t.Fatalf("second Add returned %v (created=%v), expected %v", bp2, created, bp1)
	}
	if len(ft.Reads) != reads || len(ft.Writes) != 0 {
		t.Fatalf("duplicate Add accessed target memory: reads %v writes %v", ft.Reads, ft.Writes)
	}
	if bpmap.Len() != 1 {
		t.Fatalf("expected one breakpoint, got %d", bpmap.Len())
	}
}

func TestBreakpointAddUnmapped(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())

	_, _, err := bpmap.Add(ft, 0x10)
	var terr *proc.TraceError
	if !errors.As(err, &terr) || !errors.Is(err, syscall.EIO) {
		t.Fatalf("expected TraceError wrapping EIO, got %v", err)
	}
	if bpmap.Len() != 0 {
		t.Fatalf("failed Add left a breakpoint behind")
	}
}

func TestApplyPreservesHighBytes(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	ft.Map(textAddr+16, []byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11})
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())

	bp, _, err := bpmap.Add(ft, textAddr+16)
	assertNoError(err, t, "Add")
	if bp.OriginalByte != 0x88 {
		t.Fatalf("original byte %#x", bp.OriginalByte)
	}

	assertNoError(bpmap.Apply(ft), t, "Apply")
	word, _ := ft.ReadWord(textAddr + 16)
	if word != 0x11223344556677cc {
		t.Fatalf("installed word %#x", word)
	}
	if !bp.Installed() {
		t.Fatal("breakpoint not marked installed")
	}

	assertNoError(bpmap.Remove(ft), t, "Remove")
	word, _ = ft.ReadWord(textAddr + 16)
	if word != 0x1122334455667788 {
		t.Fatalf("restored word %#x", word)
	}
}

func TestApplyRemoveRoundTrip(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	before := make(map[uint64]byte, len(ft.Mem))
	for k, v := range ft.Mem {
		before[k] = v
	}
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())
	for _, off := range []uint64{4, 5, 20} {
		_, _, err := bpmap.Add(ft, textAddr+off)
		assertNoError(err, t, "Add")
	}

	assertNoError(bpmap.Apply(ft), t, "Apply")
	assertNoError(bpmap.Apply(ft), t, "second Apply")
	for _, off := range []uint64{4, 5, 20} {
		if b := ft.Byte(textAddr + off); b != protest.OpTrap {
			t.Fatalf("byte at +%d is %#x after Apply", off, b)
		}
	}

	assertNoError(bpmap.Remove(ft), t, "Remove")
	writes := len(ft.Writes)
	assertNoError(bpmap.Remove(ft), t, "second Remove")
	if len(ft.Writes) != writes {
		t.Fatalf("second Remove wrote to memory")
	}
	for k, v := range before {
		if ft.Mem[k] != v {
			t.Fatalf("memory at %#x changed from %#x to %#x", k, v, ft.Mem[k])
		}
	}
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())
	bp1, _, _ := bpmap.Add(ft, textAddr+8)
	bp2, _, _ := bpmap.Add(ft, textAddr+16)
	bp3, _, _ := bpmap.Add(ft, textAddr+24)
	ft.FailWrite[textAddr+16] = syscall.EFAULT

	err := bpmap.Apply(ft)
	if !errors.Is(err, syscall.EFAULT) {
		t.Fatalf("expected EFAULT, got %v", err)
	}
	if !bp1.Installed() || bp2.Installed() || bp3.Installed() {
		t.Fatalf("unexpected install state %v %v %v", bp1.Installed(), bp2.Installed(), bp3.Installed())
	}
}

func TestRemoveAttemptsEveryBreakpoint(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())
	bp1, _, _ := bpmap.Add(ft, textAddr+8)
	bp2, _, _ := bpmap.Add(ft, textAddr+16)
	assertNoError(bpmap.Apply(ft), t, "Apply")
	ft.FailWrite[textAddr+8] = syscall.EFAULT

	if err := bpmap.Remove(ft); !errors.Is(err, syscall.EFAULT) {
		t.Fatalf("expected EFAULT, got %v", err)
	}
	if !bp1.Installed() {
		t.Fatal("failed removal marked breakpoint as pending")
	}
	if bp2.Installed() || ft.Byte(textAddr+16) != protest.OpNop {
		t.Fatal("second breakpoint not removed")
	}

	delete(ft.FailWrite, textAddr+8)
	assertNoError(bpmap.Remove(ft), t, "retry Remove")
	if ft.Byte(textAddr+8) != protest.OpNop {
		t.Fatal("retry did not restore the original byte")
	}
}

func TestListSortedByID(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())
	for _, off := range []uint64{30, 10, 20} {
		_, _, err := bpmap.Add(ft, textAddr+off)
		assertNoError(err, t, "Add")
	}
	list := bpmap.List()
	for i, bp := range list {
		if bp.ID != i+1 {
			t.Fatalf("list out of order: %v", list)
		}
	}
	if list[0].Addr != textAddr+30 {
		t.Fatalf("first breakpoint at %#x", list[0].Addr)
	}
}

func TestRecoverBreakpointHit(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())
	bp, _, _ := bpmap.Add(ft, textAddr+12)
	assertNoError(bpmap.Apply(ft), t, "Apply")
	ft.Regs.Rip = textAddr + 13

	got, err := proc.RecoverBreakpoint(ft, bpmap)
	assertNoError(err, t, "RecoverBreakpoint")
	if got != bp {
		t.Fatalf("expected %v, got %v", bp, got)
	}
	if ft.Regs.Rip != textAddr+12 {
		t.Fatalf("pc not rewound: %#x", ft.Regs.Rip)
	}
	if ft.Byte(textAddr+12) != protest.OpNop || bp.Installed() {
		t.Fatal("original byte not restored")
	}
}

func TestRecoverBreakpointAlreadyRemoved(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())
	bp, _, _ := bpmap.Add(ft, textAddr+12)
	assertNoError(bpmap.Apply(ft), t, "Apply")
	assertNoError(bpmap.Remove(ft), t, "Remove")
	writes := len(ft.Writes)
	ft.Regs.Rip = textAddr + 13

	got, err := proc.RecoverBreakpoint(ft, bpmap)
	assertNoError(err, t, "RecoverBreakpoint")
	if got != bp || ft.Regs.Rip != textAddr+12 {
		t.Fatalf("unexpected recovery %v pc=%#x", got, ft.Regs.Rip)
	}
	if len(ft.Writes) != writes {
		t.Fatal("recovery wrote the original byte a second time")
	}
}

func TestRecoverBreakpointMiss(t *testing.T) {
	ft := protest.NewFakeTracee(1, textAddr, nops(64))
	bpmap := proc.NewBreakpointMap(proc.AMD64Arch())
	_, _, _ = bpmap.Add(ft, textAddr+12)
	assertNoError(bpmap.Apply(ft), t, "Apply")
	writes := len(ft.Writes)

	for _, pc := range []uint64{textAddr + 30, textAddr + 12, 0} {
		ft.Regs.Rip = pc
		got, err := proc.RecoverBreakpoint(ft, bpmap)
		assertNoError(err, t, "RecoverBreakpoint")
		if got != nil {
			t.Fatalf("pc %#x: unexpected hit %v", pc, got)
		}
		if ft.Regs.Rip != pc || ft.RegWrites != 0 || len(ft.Writes) != writes {
			t.Fatalf("pc %#x: miss modified the target", pc)
		}
	}
}
