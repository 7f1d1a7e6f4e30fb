// Package watcher turns device uevents into model.DeviceEvent values.
package watcher

import (
	"context"
	"strings"

	"github.com/Hara602/devtree/internal/config"
	"github.com/Hara602/devtree/internal/model"
	"github.com/Hara602/devtree/pkg/udev"
)

// DeviceWatcher reports devices present at start and every change after.
type DeviceWatcher interface {
	// Start begins watching. The channel is closed once the watcher stops,
	// either through Stop or because ctx is done.
	Start(ctx context.Context) (<-chan model.DeviceEvent, error)
	// Stop ends watching and waits for the watcher to wind down.
	Stop()
}

// New returns the watcher for the current platform.
func New(cfg config.Config) DeviceWatcher {
	return newWatcher(cfg)
}

// ContextOptions converts the sysfs section of the configuration.
func ContextOptions(cfg config.SysfsConfig) []udev.Option {
	var opts []udev.Option
	if cfg.SysPath != "" {
		opts = append(opts, udev.WithSysPath(cfg.SysPath))
	}
	if cfg.DevPath != "" {
		opts = append(opts, udev.WithDevPath(cfg.DevPath))
	}
	if cfg.RunPath != "" {
		opts = append(opts, udev.WithRunPath(cfg.RunPath))
	}
	return opts
}

// ApplyFilters installs the monitor section of the configuration on m.
// Subsystem entries have the form "subsystem" or "subsystem/devtype".
func ApplyFilters(m *udev.Monitor, cfg config.MonitorConfig) error {
	for _, s := range cfg.Subsystems {
		subsystem, devtype, ok := cutDevtype(s)
		var err error
		if ok {
			err = m.MatchSubsystemDevtype(subsystem, devtype)
		} else {
			err = m.MatchSubsystem(subsystem)
		}
		if err != nil {
			return err
		}
	}
	for _, tag := range cfg.Tags {
		if err := m.MatchTag(tag); err != nil {
			return err
		}
	}
	return nil
}

func cutDevtype(s string) (subsystem, devtype string, ok bool) {
	return strings.Cut(s, "/")
}
