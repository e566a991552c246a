package readyz

import (
	"io"
	"log/slog"
	"os"
	"testing"
)

func TestReadyWithoutNotifySocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	os.Unsetenv("NOTIFY_SOCKET")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	Ready(log) // must not panic when there is no systemd supervisor
}
