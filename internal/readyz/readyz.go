// Package readyz signals process readiness to systemd via the
// standard NOTIFY_SOCKET protocol, per spec.md §6: "Systemd readiness
// is signaled... after the first catalog publish."
package readyz

import (
	"log/slog"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready notifies systemd that the process is ready to serve, once the
// importer has published its first catalog. It's a no-op (and not an
// error) outside a systemd unit with NOTIFY_SOCKET set — SdNotify
// reports that via its bool return, not an error.
func Ready(log *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warn("systemd notify failed", "error", err)
		return
	}
	if sent {
		log.Debug("notified systemd readiness")
	}
}
