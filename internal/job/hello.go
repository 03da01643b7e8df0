package job

import (
	"ukern/internal/cpu"
	"ukern/internal/mem"
	"ukern/internal/syscalls"
)

// Greeting is the text the hello-world program writes.
const Greeting = "Hello, world!"

// HelloWorld assembles a program image meant to be mapped at mapAddr with
// execution starting at entry. The code writes the greeting, which follows
// it in the image, to the console and then shuts the machine down.
func HelloWorld(mapAddr, entry uint64) []byte {
	const codeLen = 7 * cpu.InstrSize
	if entry < mapAddr {
		entry = mapAddr
	}
	msg := entry + codeLen

	a := cpu.NewAssembler(mapAddr)
	a.Pad(int(entry - mapAddr))
	a.Li(cpu.A0, uint32(syscalls.SysWrite)).
		Li(cpu.A1, 1).
		Li(cpu.A2, uint32(msg)).
		Li(cpu.A3, uint32(len(Greeting))).
		Syscall().
		Li(cpu.A0, uint32(syscalls.SysShutdown)).
		Syscall()
	a.Data([]byte(Greeting))
	return a.Bytes()
}

// ExitWith assembles a program that writes msg and then exits only its own
// task.
func ExitWith(mapAddr uint64, msg string) []byte {
	a := cpu.NewAssembler(mapAddr)
	a.Jmp(mapAddr + mem.PageSize)
	addr := a.Data([]byte(msg))
	a.Pad(mem.PageSize)
	a.Li(cpu.A0, uint32(syscalls.SysWrite)).
		Li(cpu.A1, 1).
		Li(cpu.A2, uint32(addr)).
		Li(cpu.A3, uint32(len(msg))).
		Syscall().
		Li(cpu.A0, uint32(syscalls.SysExit)).
		Syscall()
	return a.Bytes()
}
