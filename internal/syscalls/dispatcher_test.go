package syscalls

import (
	"testing"

	"ukern/internal/console"
	"ukern/internal/cpu"
	"ukern/internal/machine"
	"ukern/internal/mem"
)

func newSpace(t *testing.T, data []byte) *mem.VmSpace {
	t.Helper()
	a := mem.NewFrameAllocator(4)
	f, err := a.Alloc(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.WriteBytes(0, data); err != nil {
		t.Fatal(err)
	}
	vs := mem.NewVmSpace()
	if err := vs.Map(f, mem.MapOptions{Addr: 0x400000, Perm: mem.PermRWXU}); err != nil {
		t.Fatal(err)
	}
	k, err := a.Alloc(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := vs.Map(k, mem.MapOptions{Addr: 0x800000, Perm: mem.PermR | mem.PermW}); err != nil {
		t.Fatal(err)
	}
	return vs
}

func request(nr uint64, args ...uint64) *cpu.UserContext {
	var uc cpu.UserContext
	uc.SetReg(cpu.A0, nr)
	for i, v := range args {
		uc.SetReg(argRegs[i], v)
	}
	return &uc
}

func TestDecode(t *testing.T) {
	specs := []struct {
		uc  *cpu.UserContext
		exp Request
	}{
		{request(SysWrite, 1, 0x400000, 13), Write{FD: 1, Buf: 0x400000, Len: 13}},
		{request(SysShutdown, 9, 9), Shutdown{}},
		{request(SysExit), Exit{}},
		{request(99, 1, 2, 3, 4), Unknown{Nr: 99, Args: [4]uint64{1, 2, 3, 4}}},
	}

	for specIndex, spec := range specs {
		if got := Decode(spec.uc.GeneralRegs()); got != spec.exp {
			t.Errorf("[spec %d] expected %s; got %s", specIndex, spec.exp, got)
		}
	}
}

func TestDispatchWrite(t *testing.T) {
	vs := newSpace(t, []byte("Hello, world!"))
	rec := &console.Recorder{}
	d := NewDispatcher(rec, machine.New(), Config{MaxWriteBytes: 64})

	specs := []struct {
		name    string
		uc      *cpu.UserContext
		expRet  uint64
		expLine string
	}{
		{"in range", request(SysWrite, 1, 0x400000, 13), 13, "Hello, world!"},
		{"empty", request(SysWrite, 1, 0x400000, 0), 0, ""},
		{"unmapped", request(SysWrite, 1, 0x10, 4), EFAULT.Ret(), ""},
		{"runs past mapping", request(SysWrite, 1, 0x400ffc, 8), EFAULT.Ret(), ""},
		{"kernel only page", request(SysWrite, 1, 0x800000, 8), EFAULT.Ret(), ""},
		{"too long", request(SysWrite, 1, 0x400000, 65), EINVAL.Ret(), ""},
	}

	for _, spec := range specs {
		before := len(rec.Lines())
		_, action := d.Dispatch(spec.uc, vs)
		if action != ActionResume {
			t.Errorf("[%s] expected %s; got %s", spec.name, ActionResume, action)
		}
		if got := spec.uc.Reg(cpu.A0); got != spec.expRet {
			t.Errorf("[%s] expected result %#x; got %#x", spec.name, spec.expRet, got)
		}
		lines := rec.Lines()
		if spec.expLine == "" {
			if len(lines) != before {
				t.Errorf("[%s] expected no console output; got %q", spec.name, lines[before:])
			}
			continue
		}
		if len(lines) != before+1 || string(lines[before]) != spec.expLine {
			t.Errorf("[%s] expected console line %q; got %q", spec.name, spec.expLine, lines[before:])
		}
	}
}

func TestDispatchShutdownAndExit(t *testing.T) {
	vs := newSpace(t, nil)
	rec := &console.Recorder{}
	m := machine.New()
	d := NewDispatcher(rec, m, Config{MaxWriteBytes: 64})

	if _, action := d.Dispatch(request(SysExit), vs); action != ActionExit {
		t.Fatalf("expected %s; got %s", ActionExit, action)
	}
	if m.Halted() {
		t.Fatal("expected exit to leave the machine running")
	}

	if _, action := d.Dispatch(request(SysShutdown), vs); action != ActionHalt {
		t.Fatalf("expected %s; got %s", ActionHalt, action)
	}
	if code, halted := m.Status(); !halted || code != machine.ExitSuccess {
		t.Fatalf("expected machine halted with success; got %s (halted=%t)", code, halted)
	}
	if !rec.Contains("[Kernel] Shutting down") {
		t.Fatal("expected shutdown message on the console")
	}
}

func TestDispatchUnknownPolicy(t *testing.T) {
	vs := newSpace(t, nil)

	rec := &console.Recorder{}
	m := machine.New()
	d := NewDispatcher(rec, m, Config{MaxWriteBytes: 64, Unknown: PolicyHalt})
	if _, action := d.Dispatch(request(7), vs); action != ActionHalt {
		t.Fatalf("expected %s; got %s", ActionHalt, action)
	}
	if code, _ := m.Status(); code != machine.ExitFailure {
		t.Fatalf("expected failure status; got %s", code)
	}
	if !rec.Contains("[Kernel] Unimplemented syscall 7 received") {
		t.Fatal("expected unimplemented syscall message")
	}

	m = machine.New()
	d = NewDispatcher(rec, m, Config{MaxWriteBytes: 64, Unknown: PolicyENOSYS})
	uc := request(7)
	if _, action := d.Dispatch(uc, vs); action != ActionResume {
		t.Fatalf("expected %s; got %s", ActionResume, action)
	}
	if exp, got := ENOSYS.Ret(), uc.Reg(cpu.A0); exp != got {
		t.Fatalf("expected result %#x; got %#x", exp, got)
	}
	if m.Halted() {
		t.Fatal("expected enosys policy to keep the machine running")
	}
}

func TestParsePolicy(t *testing.T) {
	for in, exp := range map[string]Policy{"": PolicyHalt, "halt": PolicyHalt, " ENOSYS ": PolicyENOSYS} {
		got, err := ParsePolicy(in)
		if err != nil || got != exp {
			t.Errorf("expected %q to parse as %s; got %s (%v)", in, exp, got, err)
		}
	}
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestDispatchWriteLengthCannotSizeKernelBuffer(t *testing.T) {
	vs := newSpace(t, []byte("Hello, world!"))
	rec := &console.Recorder{}
	d := NewDispatcher(rec, machine.New(), Config{MaxWriteBytes: 1 << 62})

	specs := []struct {
		name   string
		uc     *cpu.UserContext
		expRet uint64
	}{
		{"huge length, unmapped buffer", request(SysWrite, 1, 0xdead0000, 1<<61), EINVAL.Ret()},
		{"length wraps int", request(SysWrite, 1, 0x400000, ^uint64(0)), EINVAL.Ret()},
		{"largest length, unmapped buffer", request(SysWrite, 1, 0xdead0000, MaxWriteLimit), EFAULT.Ret()},
		{"largest length past mapping", request(SysWrite, 1, 0x400000, MaxWriteLimit), EFAULT.Ret()},
	}

	for _, spec := range specs {
		_, action := d.Dispatch(spec.uc, vs)
		if action != ActionResume {
			t.Errorf("[%s] expected %s; got %s", spec.name, ActionResume, action)
		}
		if got := spec.uc.Reg(cpu.A0); got != spec.expRet {
			t.Errorf("[%s] expected result %#x; got %#x", spec.name, spec.expRet, got)
		}
	}
	if len(rec.Lines()) != 0 {
		t.Fatalf("expected no console output; got %q", rec.Lines())
	}
}
