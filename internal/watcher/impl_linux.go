package watcher

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Hara602/devtree/internal/analysis"
	"github.com/Hara602/devtree/internal/config"
	"github.com/Hara602/devtree/internal/model"
	"github.com/Hara602/devtree/internal/sysutil"
	"github.com/Hara602/devtree/pkg/udev"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// A freshly inserted stick is usually mounted by the desktop within a few
// seconds of its partition appearing.
const (
	mountWaitAttempts = 20
	mountWaitInterval = 500 * time.Millisecond
)

type linuxWatcher struct {
	cfg    config.Config
	events chan model.DeviceEvent
	stop   chan struct{}
	done   chan struct{}

	started  atomic.Bool
	stopOnce sync.Once
	pending  sync.WaitGroup

	// newMonitor opens the event source. Tests swap it for a socketpair.
	newMonitor func(*udev.Context) (*udev.Monitor, error)
}

func newWatcher(cfg config.Config) DeviceWatcher {
	w := &linuxWatcher{
		cfg:    cfg,
		events: make(chan model.DeviceEvent, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.newMonitor = func(c *udev.Context) (*udev.Monitor, error) {
		return udev.NewMonitor(c, udev.WithSource(udev.Source(cfg.Monitor.Source)))
	}
	return w
}

func (w *linuxWatcher) Start(ctx context.Context) (<-chan model.DeviceEvent, error) {
	if !w.started.CompareAndSwap(false, true) {
		return nil, errors.New("watcher: already started")
	}
	ready := make(chan error, 1)
	go w.run(ctx, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return w.events, nil
}

func (w *linuxWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
	}
}

// run owns every udev value it creates; none of them leave this goroutine,
// which stays on one OS thread for its whole life.
func (w *linuxWatcher) run(parent context.Context, ready chan<- error) {
	defer close(w.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	uctx, err := udev.NewContext(ContextOptions(w.cfg.Sysfs)...)
	if err != nil {
		ready <- err
		return
	}
	defer uctx.Close()

	// listen before scanning so nothing that appears in between is lost
	sock, err := w.listen(uctx)
	if err != nil {
		ready <- err
		return
	}
	defer sock.Close()

	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	ready <- nil

	w.scanExisting(ctx, uctx)
	w.poll(ctx, uctx, sock)

	cancel()
	w.pending.Wait()
	close(w.events)
	sysutil.Log.Info("device watcher stopped")
}

func (w *linuxWatcher) listen(uctx *udev.Context) (*udev.MonitorSocket, error) {
	m, err := w.newMonitor(uctx)
	if err != nil {
		return nil, err
	}
	if err := ApplyFilters(m, w.cfg.Monitor); err != nil {
		m.Close()
		return nil, err
	}
	return m.Listen()
}

// scanExisting reports the devices already present, restricted to the
// configured subsystems.
func (w *linuxWatcher) scanExisting(ctx context.Context, uctx *udev.Context) {
	e, err := udev.NewEnumerator(uctx)
	if err != nil {
		sysutil.Log.Error("cannot enumerate existing devices", zap.Error(err))
		return
	}
	defer e.Close()

	for _, s := range w.cfg.Monitor.Subsystems {
		subsystem, _, _ := cutDevtype(s)
		if err := e.MatchSubsystem(subsystem); err != nil {
			sysutil.Log.Error("invalid subsystem filter", zap.String("subsystem", s), zap.Error(err))
			return
		}
	}
	for _, tag := range w.cfg.Monitor.Tags {
		if err := e.MatchTag(tag); err != nil {
			sysutil.Log.Error("invalid tag filter", zap.String("tag", tag), zap.Error(err))
			return
		}
	}

	devices, err := e.ScanDevices()
	if err != nil {
		sysutil.Log.Error("scanning existing devices failed", zap.Error(err))
		return
	}
	defer devices.Close()
	sysutil.Log.Info("scanning existing devices", zap.Int("count", devices.Len()))

	for dev := range devices.All() {
		ev := w.describe(uctx, dev, model.ActionExisting)
		dev.Close()
		if !w.wanted(ev) {
			continue
		}
		if ev.DevicePath != "" {
			ev.MountPoint = sysutil.MountPoint(ev.DevicePath)
		}
		if !w.emit(ctx, ev) {
			return
		}
	}
}

func (w *linuxWatcher) poll(ctx context.Context, uctx *udev.Context, sock *udev.MonitorSocket) {
	fds := []unix.PollFd{{Fd: int32(sock.FD()), Events: unix.POLLIN}}
	timeout := int(w.cfg.Monitor.PollTimeout / time.Millisecond)

	for ctx.Err() == nil {
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			sysutil.Log.Error("polling monitor socket failed", zap.Error(err))
			return
		}
		if n == 0 {
			continue
		}
		for {
			uev, ok := sock.ReceiveEvent()
			if !ok {
				break
			}
			w.handle(ctx, uctx, uev)
		}
	}
}

func (w *linuxWatcher) handle(ctx context.Context, uctx *udev.Context, uev *udev.Event) {
	ev := w.describe(uctx, uev.Device, uev.Type().String())
	if action, ok := uev.Action(); ok {
		ev.Action = action
	}
	uev.Close()

	sysutil.Log.Debug("uevent received",
		zap.String("action", ev.Action),
		zap.Uint64("seqnum", ev.Seqnum),
		zap.String("syspath", ev.Syspath))

	if ev.Action == "add" && ev.Devtype == "partition" && ev.DevicePath != "" {
		// plain data only: the udev values stay with this goroutine
		w.pending.Add(1)
		go func() {
			defer w.pending.Done()
			ev.MountPoint = sysutil.WaitForMount(ctx, ev.DevicePath, mountWaitAttempts, mountWaitInterval)
			if ev.MountPoint == "" && ctx.Err() == nil {
				sysutil.Log.Warn("partition appeared but was not mounted", zap.String("dev", ev.DevicePath))
			}
			w.emit(ctx, ev)
		}()
		return
	}
	w.emit(ctx, ev)
}

// describe copies what the rest of the program needs out of dev.
func (w *linuxWatcher) describe(uctx *udev.Context, dev *udev.Device, action string) model.DeviceEvent {
	ev := model.DeviceEvent{
		Action:    action,
		Seqnum:    dev.SequenceNumber(),
		TimeStamp: time.Now(),
	}
	ev.Syspath, _ = dev.Syspath()
	ev.Subsystem, _ = dev.Subsystem()
	ev.Devtype, _ = dev.Devtype()
	ev.DevicePath, _ = dev.Devnode()

	// a removed device has no sysfs directory left to read
	if action == "remove" {
		return ev
	}
	usb, ok := analysis.FindUSBDevice(uctx, dev)
	if !ok {
		return ev
	}
	defer usb.Close()

	info := analysis.ReadUSBInfo(usb)
	ev.USBSyspath = info.Syspath
	ev.VendorID = info.VendorID
	ev.ProductID = info.ProductID
	ev.Serial = info.Serial
	ev.Product = info.Product

	class, err := analysis.ClassifyUSB(uctx, usb)
	if err != nil {
		sysutil.Log.Debug("cannot classify usb device", zap.String("syspath", info.Syspath), zap.Error(err))
	}
	ev.DeviceType = string(class)
	return ev
}

// wanted applies the devtype half of "subsystem/devtype" filters, which the
// enumerator cannot express.
func (w *linuxWatcher) wanted(ev model.DeviceEvent) bool {
	if len(w.cfg.Monitor.Subsystems) == 0 {
		return true
	}
	for _, s := range w.cfg.Monitor.Subsystems {
		subsystem, devtype, ok := cutDevtype(s)
		if subsystem == ev.Subsystem && (!ok || devtype == ev.Devtype) {
			return true
		}
	}
	return false
}

func (w *linuxWatcher) emit(ctx context.Context, ev model.DeviceEvent) bool {
	select {
	case w.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
