package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/Hara602/devtree/internal/analysis"
	"github.com/Hara602/devtree/internal/config"
	"github.com/Hara602/devtree/internal/journal"
	"github.com/Hara602/devtree/internal/model"
	"github.com/Hara602/devtree/internal/policy"
	"github.com/Hara602/devtree/internal/store"
	"github.com/Hara602/devtree/internal/sysutil"
	"github.com/Hara602/devtree/internal/watcher"
	"go.uber.org/zap"
)

// Mounted volumes are scanned shallowly; a full walk of a large disk would
// stall the event loop.
const (
	inspectDepth = 2
	inspectLimit = 2000
)

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `devtree watch - Print device events as they happen

Usage:
  devtree watch [flags]

Devices present at start are reported with action "existing".

Flags:
`)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "Configuration file")
	source := fs.String("source", "", "Event source: udev or kernel (default from config)")
	subsystems := fs.String("subsystem", "", "Comma separated subsystem or subsystem/devtype filters")
	tags := fs.String("tag", "", "Comma separated tag filters")
	enforce := fs.Bool("enforce", false, "Deauthorize USB devices on the block list")
	record := fs.Bool("journal", false, "Record events in the database")
	inspect := fs.Bool("inspect", false, "Scan mounted volumes for files with a forged type")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *source != "" {
		cfg.Monitor.Source = *source
	}
	if s := splitList(*subsystems); len(s) > 0 {
		cfg.Monitor.Subsystems = s
	}
	if t := splitList(*tags); len(t) > 0 {
		cfg.Monitor.Tags = t
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	h := &eventHandler{inspect: *inspect}
	if *enforce || *record {
		db, err := store.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		if *enforce {
			if os.Geteuid() != 0 {
				sysutil.Log.Warn("not running as root, deauthorizing devices will fail")
			}
			h.enforcer = policy.NewEnforcer(policy.NewRules(db), watcher.ContextOptions(cfg.Sysfs)...)
		}
		if *record {
			h.journal = journal.New(db)
			sysutil.Log.Info("journal session started", zap.String("session", h.journal.Session()))
		}
	}

	return watch(ctx, *cfg, h)
}

func watch(ctx context.Context, cfg config.Config, h *eventHandler) error {
	w := watcher.New(cfg)
	events, err := w.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer w.Stop()
	sysutil.Log.Info("watching device events",
		zap.String("source", cfg.Monitor.Source),
		zap.Strings("subsystems", cfg.Monitor.Subsystems),
		zap.Strings("tags", cfg.Monitor.Tags))

	for ev := range events {
		h.handle(ctx, ev)
	}
	if h.journal != nil && h.journal.Gaps() > 0 {
		sysutil.Log.Warn("events were lost during the session", zap.Uint64("missing", h.journal.Gaps()))
	}
	return nil
}

type eventHandler struct {
	enforcer *policy.Enforcer
	journal  *journal.Journal
	inspect  bool
}

func (h *eventHandler) handle(ctx context.Context, ev model.DeviceEvent) {
	fields := []zap.Field{
		zap.String("action", ev.Action),
		zap.String("subsystem", ev.Subsystem),
		zap.String("syspath", ev.Syspath),
	}
	if ev.Seqnum != 0 {
		fields = append(fields, zap.Uint64("seqnum", ev.Seqnum))
	}
	if ev.DevicePath != "" {
		fields = append(fields, zap.String("dev", ev.DevicePath))
	}
	if ev.MountPoint != "" {
		fields = append(fields, zap.String("mount", ev.MountPoint))
	}
	if ev.IsUSB() {
		fields = append(fields,
			zap.String("vid", ev.VendorID),
			zap.String("pid", ev.ProductID),
			zap.String("serial", ev.Serial),
			zap.String("type", ev.DeviceType))
	}
	sysutil.Log.Info("device event", fields...)

	if h.journal != nil {
		if _, err := h.journal.Record(ctx, ev); err != nil {
			sysutil.Log.Error("journal write failed", zap.Error(err))
		}
	}

	if ev.Action != "add" && ev.Action != model.ActionExisting {
		return
	}
	if analysis.Class(ev.DeviceType).Suspicious() {
		sysutil.Log.Error("usb device offers storage and keyboard at once",
			zap.String("syspath", ev.USBSyspath), zap.String("serial", ev.Serial))
	}
	// enforce once per usb_device, not for each of its children
	if h.enforcer != nil && ev.IsUSB() && ev.Syspath == ev.USBSyspath {
		if _, err := h.enforcer.Enforce(ctx, ev.Syspath); err != nil && !errors.Is(err, policy.ErrNotUSB) {
			sysutil.Log.Error("enforcing block rules failed", zap.String("syspath", ev.Syspath), zap.Error(err))
		}
	}
	if h.inspect && ev.MountPoint != "" {
		findings, err := analysis.ScanVolume(ev.MountPoint, inspectDepth, inspectLimit)
		if err != nil {
			sysutil.Log.Warn("volume scan incomplete", zap.String("mount", ev.MountPoint), zap.Error(err))
		}
		for _, f := range findings {
			sysutil.Log.Warn("file type does not match its name",
				zap.String("path", f.Path),
				zap.String("declared", f.Declared),
				zap.String("actual", f.Actual),
				zap.String("risk", string(f.Risk)))
		}
	}
}
