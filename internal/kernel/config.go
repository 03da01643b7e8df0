package kernel

import (
	"math"
	"os"

	yaml "github.com/goccy/go-yaml"

	"ukern/internal/cpu"
	"ukern/internal/mem"
	"ukern/internal/syscalls"
)

// Config mirrors config.yml
type Config struct {
	IdleTickMS     int    `yaml:"idle_tick_ms"`    // 5 (by default)
	ExitWhenIdle   bool   `yaml:"exit_when_idle"`  // true (by default)
	MaxSteps       uint64 `yaml:"max_steps"`       // 0 = no watchdog
	MaxWriteBytes  uint64 `yaml:"max_write_bytes"` // 65536 (by default)
	UnknownSyscall string `yaml:"unknown_syscall"` // "halt" or "enosys"
	ConsoleDevice  string `yaml:"console_device"`  // empty = stdout
	Trace          bool   `yaml:"trace"`           // print scheduler events
	TraceCSV       string `yaml:"trace_csv"`       // empty = no CSV
	MapAddr        uint64 `yaml:"map_addr"`        // 0x400000 (by default)
	EntryPoint     uint64 `yaml:"entry_point"`     // 0x401000 (by default)
	TotalFrames    int    `yaml:"total_frames"`    // 1024 (by default)
}

// If the config file is not found, we use default values
func DefaultConfig() Config {
	return Config{
		IdleTickMS:     5,
		ExitWhenIdle:   true,
		MaxWriteBytes:  64 * 1024,
		UnknownSyscall: "halt",
		MapAddr:        0x0040_0000,
		EntryPoint:     0x0040_1000,
		TotalFrames:    1024,
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only
func Load(path string) Config {
	cfg := DefaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)
	return cfg.sanitize()
}

// maxImageAddr leaves one page of 32-bit address space above the entry point.
const maxImageAddr = math.MaxUint32 - mem.PageSize + 1

// sanity clamps
func (cfg Config) sanitize() Config {
	def := DefaultConfig()
	if cfg.IdleTickMS <= 0 {
		cfg.IdleTickMS = def.IdleTickMS
	}
	if cfg.MaxWriteBytes == 0 || cfg.MaxWriteBytes > syscalls.MaxWriteLimit {
		cfg.MaxWriteBytes = def.MaxWriteBytes
	}
	if _, err := syscalls.ParsePolicy(cfg.UnknownSyscall); err != nil {
		cfg.UnknownSyscall = def.UnknownSyscall
	}
	// images are addressed with 32-bit immediates
	if cfg.MapAddr%mem.PageSize != 0 || cfg.MapAddr > maxImageAddr-(def.EntryPoint-def.MapAddr) {
		cfg.MapAddr = def.MapAddr
	}
	if cfg.EntryPoint%cpu.InstrSize != 0 || cfg.EntryPoint < cfg.MapAddr || cfg.EntryPoint > maxImageAddr {
		cfg.EntryPoint = cfg.MapAddr + (def.EntryPoint - def.MapAddr)
	}
	if cfg.TotalFrames <= 0 {
		cfg.TotalFrames = def.TotalFrames
	}
	return cfg
}

func (cfg Config) policy() syscalls.Policy {
	p, _ := syscalls.ParsePolicy(cfg.UnknownSyscall)
	return p
}
