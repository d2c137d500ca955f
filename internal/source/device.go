package source

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"vigil/internal/logging"
)

// DeviceNotifier receives capture device hotplug notifications.
type DeviceNotifier interface {
	NotifyDisconnected(reason string)
	ReconnectNow()
}

// DeviceWatcher listens for udev netlink events on the video4linux subsystem
// and forwards add/remove events for one device node to a DeviceNotifier.
type DeviceWatcher struct {
	device   string
	logger   *slog.Logger
	notifier DeviceNotifier

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewDeviceWatcher returns nil when device is empty so callers can skip the
// watcher without extra checks.
func NewDeviceWatcher(device string, notifier DeviceNotifier, logger *slog.Logger) *DeviceWatcher {
	device = strings.TrimSpace(device)
	if device == "" || notifier == nil {
		return nil
	}
	return &DeviceWatcher{
		device:   device,
		logger:   logging.NewComponentLogger(logger, "device-watcher"),
		notifier: notifier,
	}
}

// Start connects to the netlink socket. Failure is logged and non-fatal: the
// manager still detects a lost device through read errors.
func (w *DeviceWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(w.logger, "failed to connect to netlink socket; device hotplug detection disabled", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "unplugged cameras are detected on the next read timeout instead"),
		)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.monitorLoop(ctx, conn, quit)

	w.logger.Info("device watcher started",
		logging.String(logging.FieldEventType, "device_watcher_started"),
		logging.String("device", w.device),
	)
	return nil
}

// Stop shuts down the watcher.
func (w *DeviceWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false

	w.logger.Info("device watcher stopped",
		logging.String(logging.FieldEventType, "device_watcher_stopped"),
	)
}

func (w *DeviceWatcher) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, w.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "device hotplug detection may be affected"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=video4linux with ACTION=add|remove.
func (w *DeviceWatcher) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

func (w *DeviceWatcher) handleEvent(uevent netlink.UEvent) {
	devname := extractDeviceName(uevent)
	if devname == "" || devname != w.device {
		w.logger.Debug("ignoring uevent",
			logging.String("device", devname),
			logging.String("action", string(uevent.Action)),
		)
		return
	}

	switch uevent.Action {
	case netlink.REMOVE:
		logging.WarnWithContext(w.logger, "capture device removed", "device_removed",
			logging.String("device", devname),
			logging.String(logging.FieldErrorHint, "reconnect the camera"),
			logging.String(logging.FieldImpact, "frames are skipped until the device returns"),
		)
		w.notifier.NotifyDisconnected("capture device " + devname + " removed")
	case netlink.ADD:
		w.logger.Info("capture device added",
			logging.String(logging.FieldEventType, "device_added"),
			logging.String("device", devname),
		)
		w.notifier.ReconnectNow()
	}
}

// extractDeviceName gets the device path from a uevent.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
