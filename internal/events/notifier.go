// SPDX-License-Identifier: MIT

package events

import (
	"context"
	"log/slog"

	"github.com/nikoksr/notify"
)

// HostLevel is the host-configured notification surface: {os, toast, both, none}.
type HostLevel string

const (
	HostLevelOS    HostLevel = "os"
	HostLevelToast HostLevel = "toast"
	HostLevelBoth  HostLevel = "both"
	HostLevelNone  HostLevel = "none"
)

// Notifier fans a single logical "notify the user" call out to zero, one, or
// two channels, with the same optionality as stream.ManagerConfig.
// AlertCallback: a nil/unconfigured surface is a no-op, never an error.
//
// The "os" surface is any nikoksr/notify service the host registers (desktop
// toast, webhook, mail, …) — this package does not pick one itself, since
// which OS-notification backend is appropriate is a host concern, not an
// engine one. The "toast" surface is the in-app event bus: a
// KindNotificationToast event the host UI renders itself.
type Notifier struct {
	bus    *Bus
	level  HostLevel
	logger *slog.Logger

	os *notify.Notify // nil until RegisterService is called at least once
}

// NewNotifier creates a Notifier publishing in-app toasts to bus and
// forwarding "os"/"both" level notifications to any services later
// registered via RegisterService.
func NewNotifier(bus *Bus, level HostLevel, logger *slog.Logger) *Notifier {
	return &Notifier{bus: bus, level: level, logger: logger}
}

// RegisterService adds a nikoksr/notify backend (desktop, mail, webhook, …)
// used for the "os"/"both" notification surface. Safe to call more than
// once; each call adds an additional fan-out target.
func (n *Notifier) RegisterService(svc notify.Notifier) {
	if n.os == nil {
		n.os = notify.New()
	}
	n.os.UseServices(svc)
}

// SetLevel changes the active notification surface at runtime (host setting).
func (n *Notifier) SetLevel(level HostLevel) {
	n.level = level
}

// Notify emits title/body at the given severity through whichever surfaces
// the current HostLevel enables. Failures from the registered OS notify
// service are logged, never returned: per the event bus's own contract,
// notification failures must not disrupt the engine.
func (n *Notifier) Notify(ctx context.Context, level NotificationLevel, title, body string) {
	switch n.level {
	case HostLevelNone:
		return
	case HostLevelOS:
		n.notifyOS(ctx, title, body)
	case HostLevelToast:
		n.notifyToast(level, title, body)
	case HostLevelBoth:
		n.notifyOS(ctx, title, body)
		n.notifyToast(level, title, body)
	}
}

func (n *Notifier) notifyToast(level NotificationLevel, title, body string) {
	if n.bus == nil {
		return
	}
	n.bus.Publish(KindNotificationToast, ToastPayload{Title: title, Body: body, Level: level})
}

func (n *Notifier) notifyOS(ctx context.Context, title, body string) {
	if n.os == nil {
		return
	}
	if err := n.os.Send(ctx, title, body); err != nil && n.logger != nil {
		n.logger.Warn("os notification failed", "title", title, "error", err)
	}
}
