package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Hara602/devtree/internal/watcher"
	"github.com/Hara602/devtree/pkg/udev"
)

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `devtree list - List devices matching filters

Usage:
  devtree list [flags]

Filters of the same kind are alternatives; different kinds must all match.

Flags:
`)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "Configuration file")
	subsystems := fs.String("subsystem", "", "Comma separated subsystems (globs allowed)")
	exclude := fs.String("exclude", "", "Comma separated subsystems to leave out")
	properties := fs.String("property", "", "Comma separated KEY=VALUE property matches")
	tags := fs.String("tag", "", "Comma separated tags")
	parent := fs.String("parent", "", "Only list this syspath and the devices below it")
	initialized := fs.Bool("initialized", false, "Only list devices udev has processed")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, err := udev.NewContext(watcher.ContextOptions(cfg.Sysfs)...)
	if err != nil {
		return err
	}
	defer ctx.Close()

	e, err := udev.NewEnumerator(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	for _, s := range splitList(*subsystems) {
		if err := e.MatchSubsystem(s); err != nil {
			return err
		}
	}
	for _, s := range splitList(*exclude) {
		if err := e.NomatchSubsystem(s); err != nil {
			return err
		}
	}
	for _, p := range splitList(*properties) {
		key, value, _ := strings.Cut(p, "=")
		if err := e.MatchProperty(key, value); err != nil {
			return err
		}
	}
	for _, tag := range splitList(*tags) {
		if err := e.MatchTag(tag); err != nil {
			return err
		}
	}
	if *parent != "" {
		p, err := ctx.DeviceFromSyspath(*parent)
		if err != nil {
			return err
		}
		defer p.Close()
		if err := e.MatchParent(p); err != nil {
			return err
		}
	}
	if *initialized {
		if err := e.MatchIsInitialized(); err != nil {
			return err
		}
	}

	devices, err := e.ScanDevices()
	if err != nil {
		return err
	}
	defer devices.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBSYSTEM\tDEVNODE\tSYSPATH")
	for dev := range devices.All() {
		subsystem, _ := dev.Subsystem()
		devnode, ok := dev.Devnode()
		if !ok {
			devnode = "-"
		}
		syspath, _ := dev.Syspath()
		fmt.Fprintf(tw, "%s\t%s\t%s\n", subsystem, devnode, syspath)
		dev.Close()
	}
	return tw.Flush()
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `devtree info - Show one device

Usage:
  devtree info [flags] <syspath | subsystem:sysname | b|c MAJOR:MINOR>

Flags:
`)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "Configuration file")
	attrs := fs.Bool("attributes", false, "Also print sysfs attributes")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("device required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, err := udev.NewContext(watcher.ContextOptions(cfg.Sysfs)...)
	if err != nil {
		return err
	}
	defer ctx.Close()

	dev, err := lookup(ctx, fs.Args())
	if err != nil {
		return err
	}
	defer dev.Close()

	printDevice(os.Stdout, dev, *attrs)
	return nil
}

// lookup resolves the device arguments of info.
func lookup(ctx *udev.Context, args []string) (*udev.Device, error) {
	if len(args) == 2 {
		var kind udev.DeviceKind
		switch args[0] {
		case "b":
			kind = udev.BlockDevice
		case "c":
			kind = udev.CharDevice
		default:
			return nil, fmt.Errorf("device kind must be b or c, got %q", args[0])
		}
		var major, minor uint32
		if _, err := fmt.Sscanf(args[1], "%d:%d", &major, &minor); err != nil {
			return nil, fmt.Errorf("parsing device number %q: %w", args[1], err)
		}
		return ctx.DeviceFromDevnum(kind, major, minor)
	}
	if subsystem, sysname, ok := strings.Cut(args[0], ":"); ok && !strings.HasPrefix(args[0], "/") {
		return ctx.DeviceFromSubsystemSysname(subsystem, sysname)
	}
	return ctx.DeviceFromSyspath(args[0])
}

func printDevice(w io.Writer, dev *udev.Device, attrs bool) {
	fields := []struct {
		name   string
		lookup func() (string, bool)
	}{
		{"SYSPATH", dev.Syspath},
		{"DEVPATH", dev.Devpath},
		{"SUBSYSTEM", dev.Subsystem},
		{"SYSNAME", dev.Sysname},
		{"DEVTYPE", dev.Devtype},
		{"DRIVER", dev.Driver},
		{"DEVNODE", dev.Devnode},
	}
	for _, f := range fields {
		if v, ok := f.lookup(); ok {
			fmt.Fprintf(w, "%-12s %s\n", f.name+":", v)
		}
	}
	if n, ok := dev.Devnum(); ok {
		fmt.Fprintf(w, "%-12s %s\n", "DEVNUM:", n)
	}
	fmt.Fprintf(w, "%-12s %t\n", "INITIALIZED:", dev.IsInitialized())
	if tags := dev.Tags(); len(tags) > 0 {
		fmt.Fprintf(w, "%-12s %s\n", "TAGS:", strings.Join(tags, " "))
	}
	for _, link := range dev.Devlinks() {
		fmt.Fprintf(w, "%-12s %s\n", "DEVLINK:", link)
	}

	fmt.Fprintln(w)
	for p := range dev.Properties().All() {
		fmt.Fprintf(w, "E: %s=%s\n", p.Name, p.Value)
	}
	if !attrs {
		return
	}
	fmt.Fprintln(w)
	for a := range dev.Attributes().All() {
		if v, ok := a.Value(); ok {
			fmt.Fprintf(w, "A: %s=%q\n", a.Name(), v)
		}
	}
}
