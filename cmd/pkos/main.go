/*
 * pkos - Main process.
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	getopt "github.com/pborman/getopt/v2"
	"golang.org/x/sys/unix"

	config "github.com/archkernel/pkos/config/configparser"
	"github.com/archkernel/pkos/kernel/fd"
	"github.com/archkernel/pkos/kernel/fs"
	"github.com/archkernel/pkos/kernel/keyboard"
	"github.com/archkernel/pkos/kernel/master"
	"github.com/archkernel/pkos/kernel/pic"
	"github.com/archkernel/pkos/kernel/pit"
	"github.com/archkernel/pkos/kernel/proc"
	"github.com/archkernel/pkos/kernel/rtc"
	"github.com/archkernel/pkos/kernel/sched"
	sys "github.com/archkernel/pkos/kernel/syscall"
	"github.com/archkernel/pkos/kernel/terminal"
	"github.com/archkernel/pkos/kernel/trap"
	logger "github.com/archkernel/pkos/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "pkos.cfg", "Configuration file")
	optFS := getopt.StringLong("fs", 'f', "", "Filesystem image (overrides config file's fs line)")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Enable debug logging")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if optLogFile != nil && *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	if *optDebug {
		programLevel.Set(slog.LevelDebug)
	} else {
		programLevel.Set(slog.LevelInfo)
	}
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	bootID := uuid.New()
	Logger.Info("pkos started", "boot_id", bootID.String())

	if optConfig == nil || *optConfig == "" {
		Logger.Error("please specify a configuration file")
		os.Exit(1)
	}
	if _, err := os.Stat(*optConfig); os.IsNotExist(err) {
		Logger.Error("configuration file not found", "path", *optConfig)
		os.Exit(1)
	}
	if err := config.LoadConfigFile(*optConfig); err != nil {
		Logger.Error(err.Error())
		os.Exit(1)
	}

	boot := config.Boot()
	fsPath := boot.FSImage
	if optFS != nil && *optFS != "" {
		fsPath = *optFS
	}
	if fsPath == "" {
		Logger.Error("no filesystem image specified (config 'fs' line or --fs)")
		os.Exit(1)
	}
	raw, err := os.ReadFile(fsPath)
	if err != nil {
		Logger.Error("reading filesystem image", "path", fsPath, "err", err.Error())
		os.Exit(1)
	}
	image, err := fs.Load(raw)
	if err != nil {
		Logger.Error("loading filesystem image", "err", err.Error())
		os.Exit(1)
	}

	if unix.Geteuid() == 0 {
		Logger.Warn("running as root is not required by pkos and is not recommended")
	}

	pic.Init()
	terminal.Init()
	syscalls := sys.NewManager(image)

	pids := [sched.Ring]int{}
	for i := 0; i < sched.Ring; i++ {
		res, err := syscalls.BootRoot(i)
		if err != nil {
			Logger.Error("booting root shell", "terminal", i, "err", err.Error())
			os.Exit(1)
		}
		pids[i] = res.NewPID
	}
	scheduler := sched.New(pids)

	bus := master.NewBus()
	registerTraps(bus, scheduler, syscalls)
	timer := pit.NewTimer(bus)
	timer.Start()
	clock := rtc.NewTimer(bus)
	clock.Start()

	Logger.Info("pkos running", "terminals", sched.Ring, "fs_image", fsPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-sigChan:
			Logger.Info("got quit signal")
			break loop
		case pkt := <-bus:
			switch pkt.Msg {
			case master.PITTick:
				trap.Dispatch(&trap.HardwareContext{Vector: trap.VecPIT})
			case master.RTCTick:
				trap.Dispatch(&trap.HardwareContext{Vector: trap.VecRTC})
			case master.KeyPress:
				trap.Dispatch(&trap.HardwareContext{Vector: trap.VecKeyboard, Regs: trap.Registers{EAX: uint32(pkt.ScanRaw)}})
			case master.Shutdown:
				break loop
			}
		}
	}

	Logger.Info("shutting down timer")
	timer.Shutdown()
	clock.Shutdown()
	Logger.Info("pkos halted")
}

// registerTraps installs the vector table this kernel actually services:
// the PIT tick drives the scheduler (which EOIs the line itself as part
// of its save/restore dance), the RTC tick advances the physical counter
// and strikes every open RTC fd whose virtual frequency divides it, the
// keyboard decodes into whichever terminal is displayed, the software
// interrupt gate dispatches the syscall ABI, and the fault vectors tear
// down (or, for a root shell, respawn) whichever task struck them. All
// run with the kernel directory installed, per trap.Dispatch's contract.
func registerTraps(bus master.Bus, scheduler *sched.Scheduler, syscalls *sys.Manager) {
	mods := &keyboard.Modifiers{}

	trap.Register(trap.VecPIT, func(ctx *trap.HardwareContext) {
		ctx.ArenaPtr = proc.CurrentArenaPointer(scheduler.RunningPID())
		scheduler.Tick(ctx)
	})

	trap.Register(trap.VecRTC, func(ctx *trap.HardwareContext) {
		tick := rtc.HandleTick()
		proc.ForEach(func(pid int, fds *fd.Table) {
			fds.ForEachOpen(func(ops fd.Ops) {
				r, ok := ops.(*fd.RTCOps)
				if !ok {
					return
				}
				if tick%rtc.StrideFor(r.Freq) == 0 {
					r.Strike()
				}
			})
		})
	})

	trap.Register(trap.VecKeyboard, func(ctx *trap.HardwareContext) {
		scan := byte(ctx.Regs.EAX)
		keyboard.HandleIRQ()
		handleKeyPress(scan, mods)
	})

	trap.Register(trap.VecSyscall, syscalls.HandleSyscall)
	trap.Register(trap.VecDivideError, syscalls.HandleException)
	trap.Register(trap.VecGPFault, syscalls.HandleException)
	trap.Register(trap.VecPageFault, syscalls.HandleException)
}

// handleKeyPress decodes one scan code and applies its effect to the
// currently displayed terminal, per the rule that typed input always
// echoes to what the user is looking at regardless of which task is
// scheduled.
func handleKeyPress(scan byte, mods *keyboard.Modifiers) {
	res := keyboard.Decode(scan, mods)
	displayed := terminal.Get(terminal.DisplayedTid())
	if displayed == nil {
		return
	}

	switch res.Action {
	case keyboard.ActionChar:
		displayed.AppendKey(res.Char)
		displayed.Write([]byte{res.Char})
	case keyboard.ActionEnter:
		displayed.Write([]byte{'\n'})
		displayed.EndRead()
	case keyboard.ActionBackspace:
		displayed.Backspace()
		displayed.Write([]byte{'\b'})
	case keyboard.ActionClear:
		displayed.Clear()
	case keyboard.ActionSwitchTerm:
		terminal.SetDisplayedTerminal(res.Term)
	}
}
