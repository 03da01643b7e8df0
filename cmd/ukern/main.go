package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"ukern/internal/console"
	"ukern/internal/job"
	"ukern/internal/kernel"
	"ukern/internal/machine"
	"ukern/internal/mem"
	"ukern/internal/sched"
	"ukern/internal/user"
)

func main() {
	os.Exit(int(boot()))
}

// boot brings the kernel up, runs it, and returns the status the machine
// halted with.
func boot() machine.ExitCode {
	configPath := flag.String("config", "config.yml", "kernel configuration file")
	imagePath := flag.String("image", "", "raw user program image (default: built-in hello world)")
	flag.Parse()

	// Read the configuration
	cfg := kernel.Load(*configPath)

	var con console.Console = console.NewWriter(os.Stdout)
	if cfg.ConsoleDevice != "" {
		dev, err := console.OpenTTY(cfg.ConsoleDevice)
		if err != nil {
			return fail(err)
		}
		defer dev.Close()
		con = dev
	}
	console.Printf(con, "[Kernel] Boot success")

	mach := machine.New()
	k := kernel.New(cfg, sched.NewFIFO(), con, mach)
	if cfg.Trace {
		k.SetTraceWriter(os.Stderr)
	}
	if cfg.TraceCSV != "" {
		if err := k.EnableCSVLogging(cfg.TraceCSV); err != nil {
			return fail(err)
		}
	}

	image := job.HelloWorld(cfg.MapAddr, cfg.EntryPoint)
	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath)
		if err != nil {
			return fail(err)
		}
		image = data
	}

	alloc := mem.NewFrameAllocator(cfg.TotalFrames)
	us, err := user.Load(alloc, image, cfg.MapAddr, cfg.EntryPoint, mem.PermRWXU)
	if err != nil {
		return fail(err)
	}
	task, err := k.NewUserTask(us)
	if err != nil {
		return fail(err)
	}
	if err := k.Spawn(task); err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := k.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kernel stopped: %v\n", err)
	}

	code, _ := mach.Status()
	return code
}

func fail(err error) machine.ExitCode {
	fmt.Fprintf(os.Stderr, "[Kernel] %v\n", err)
	return machine.ExitFailure
}
