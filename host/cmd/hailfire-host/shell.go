package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"hailfire/host/mcu"
	"hailfire/protocol"
)

var errUsage = errors.New("usage")

// shell runs the interactive commands against one controller
type shell struct {
	mcu *mcu.MCU
	out io.Writer

	// Optional hooks; nil ones report the command as unavailable
	listPorts func() ([]string, error)
	monitor   func(interval time.Duration) error
	stats     func() string
}

type command struct {
	usage string
	help  string
	run   func(s *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {"help", "Show this help message", (*shell).help},
		"dict":    {"dict", "List the registers", (*shell).dict},
		"ping":    {"ping", "Check the identification register", (*shell).ping},
		"read":    {"read <reg>", "Read a register by name or key", (*shell).read},
		"write":   {"write <reg> <value>", "Write a register", (*shell).write},
		"raw":     {"raw read <key> <n> | raw write <key> [bytes...]", "Run a frame bypassing the key map", (*shell).raw},
		"scan":    {"scan", "Read every readable register", (*shell).scan},
		"reset":   {"reset", "Pulse the reset register", (*shell).reset},
		"ports":   {"ports", "List serial devices", (*shell).ports},
		"monitor": {"monitor [interval]", "Chart the odometer speeds", (*shell).monitorCmd},
		"stats":   {"stats", "Show link counters (simulator only)", (*shell).statsCmd},
	}
}

// exec runs one input line. It returns true when the user asked to quit.
func (s *shell) exec(line string) (bool, error) {
	args, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse: %w", err)
	}
	if len(args) == 0 {
		return false, nil
	}

	name := strings.ToLower(args[0])
	switch name {
	case "quit", "exit", "q":
		return true, nil
	case "?":
		name = "help"
	}
	cmd, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q (type 'help' for available commands)", args[0])
	}
	if err := cmd.run(s, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return false, fmt.Errorf("usage: %s", cmd.usage)
		}
		return false, err
	}
	return false, nil
}

func (s *shell) help([]string) error {
	names := []string{"help", "dict", "ping", "read", "write", "raw", "scan", "reset", "ports", "monitor", "stats"}
	fmt.Fprintln(s.out, "Available commands:")
	for _, n := range names {
		c := commands[n]
		fmt.Fprintf(s.out, "  %-48s %s\n", c.usage, c.help)
	}
	fmt.Fprintf(s.out, "  %-48s %s\n", "quit", "Exit the program")
	return nil
}

func (s *shell) dict([]string) error {
	fmt.Fprint(s.out, s.mcu.Table().Dictionary())
	return nil
}

func (s *shell) ping([]string) error {
	if err := s.mcu.Ping(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "ok")
	return nil
}

func (s *shell) read(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	e, err := s.mcu.Lookup(args[0])
	if err != nil {
		return err
	}
	r, err := s.mcu.Read(e)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s (raw 0x%X)\n", r, r.Raw)
	return nil
}

func (s *shell) write(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	e, err := s.mcu.Lookup(args[0])
	if err != nil {
		return err
	}
	v, err := strconv.ParseInt(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("bad value %q: %w", args[1], err)
	}
	return s.mcu.Write(e, v)
}

func (s *shell) raw(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	key, err := parseByte(args[1])
	if err != nil {
		return err
	}

	switch args[0] {
	case "read":
		if len(args) != 3 {
			return errUsage
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("bad length %q: %w", args[2], err)
		}
		value, err := s.mcu.ReadRaw(protocol.Key(key), n)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "% X\n", value)
		return nil
	case "write":
		value := make([]byte, 0, len(args)-2)
		for _, a := range args[2:] {
			b, err := parseByte(a)
			if err != nil {
				return err
			}
			value = append(value, b)
		}
		return s.mcu.WriteRaw(protocol.Key(key), value)
	default:
		return errUsage
	}
}

func (s *shell) scan([]string) error {
	readings, err := s.mcu.Scan()
	for _, r := range readings {
		fmt.Fprintln(s.out, r)
	}
	return err
}

func (s *shell) reset([]string) error {
	return s.mcu.Reset()
}

func (s *shell) ports([]string) error {
	if s.listPorts == nil {
		return errors.New("port listing not available")
	}
	ports, err := s.listPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(s.out, "no serial ports found")
	}
	for _, p := range ports {
		fmt.Fprintln(s.out, p)
	}
	return nil
}

func (s *shell) monitorCmd(args []string) error {
	if s.monitor == nil {
		return errors.New("monitor not available")
	}
	interval := 100 * time.Millisecond
	if len(args) > 1 {
		return errUsage
	}
	if len(args) == 1 {
		d, err := time.ParseDuration(args[0])
		if err != nil || d <= 0 {
			return fmt.Errorf("bad interval %q", args[0])
		}
		interval = d
	}
	return s.monitor(interval)
}

func (s *shell) statsCmd([]string) error {
	if s.stats == nil {
		return errors.New("stats are only available with the simulator")
	}
	fmt.Fprintln(s.out, s.stats())
	return nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad byte %q", s)
	}
	return byte(v), nil
}
