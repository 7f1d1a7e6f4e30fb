// Command devtree inspects the device tree and watches device events.
//
// Usage:
//
//	devtree <command> [flags] [args]
//
// Commands:
//
//	list     List devices matching filters
//	info     Show one device with its properties and attributes
//	watch    Print device events as they happen
//	block    Add a USB block rule
//	unblock  Remove a USB block rule
//	rules    List USB block rules
//
// Examples:
//
//	# All partitions with a filesystem type
//	devtree list -subsystem block -property ID_FS_TYPE=*
//
//	# USB events, blocking devices on the block list and journaling events
//	devtree watch -subsystem usb/usb_device,block -enforce -journal
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Hara602/devtree/internal/config"
	"github.com/Hara602/devtree/internal/sysutil"
)

const usage = `devtree - Linux device tree inspector

Usage:
  devtree <command> [flags] [args]

Commands:
  list     List devices matching filters
  info     Show one device with its properties and attributes
  watch    Print device events as they happen
  block    Add a USB block rule
  unblock  Remove a USB block rule
  rules    List USB block rules

Use "devtree <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "list":
		err = runList(args)
	case "info":
		err = runInfo(args)
	case "watch":
		err = runWatch(ctx, args)
	case "block":
		err = runBlock(ctx, args)
	case "unblock":
		err = runUnblock(ctx, args)
	case "rules":
		err = runRules(ctx, args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	sysutil.Log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads path, or the defaults with environment overrides when
// path is empty, and sets up logging.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}
	if err := sysutil.InitLogger(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList parses a comma separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
