package linutil

import "testing"

func TestAMD64RegistersSetPC(t *testing.T) {
	ptrace := &AMD64PtraceRegs{Rip: 0x401000, Rsp: 0x7ffc0000}
	regs := NewAMD64Registers(ptrace)
	regs.SetPC(0x401005)
	if regs.PC() != 0x401005 || ptrace.Rip != 0x401005 {
		t.Fatalf("SetPC did not update RIP: %#x", ptrace.Rip)
	}
	if ptrace.Rsp != 0x7ffc0000 {
		t.Fatalf("SetPC changed RSP: %#x", ptrace.Rsp)
	}
}

func TestAMD64RegistersSliceOrder(t *testing.T) {
	regs := NewAMD64Registers(&AMD64PtraceRegs{Rip: 1, Rsp: 2, Rax: 3, Eflags: 0x246})
	s := regs.Slice()
	if len(s) != 27 {
		t.Fatalf("expected 27 registers, got %d", len(s))
	}
	want := []string{"Rip", "Rsp", "Rax"}
	for i, name := range want {
		if s[i].Name != name || s[i].Value != uint64(i+1) {
			t.Fatalf("register %d: expected %s=%d, got %s=%d", i, name, i+1, s[i].Name, s[i].Value)
		}
	}
	for _, reg := range s {
		if reg.Name == "Rflags" && reg.Value != 0x246 {
			t.Fatalf("Rflags: %#x", reg.Value)
		}
	}
}
