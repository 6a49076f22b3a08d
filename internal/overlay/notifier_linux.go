//go:build linux

package overlay

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"
	expireMillis = int32(8000)
)

// NewNotifier connects to the session bus notification service.
func NewNotifier(perMinute int, logger *slog.Logger) (*Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("overlay: connect session bus: %w", err)
	}
	return newNotifier(&dbusPoster{conn: conn}, perMinute, logger), nil
}

type dbusPoster struct {
	conn *dbus.Conn
}

func (p *dbusPoster) post(summary, body string, urgency byte, replaces uint32) (uint32, error) {
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)}
	call := p.conn.Object(notifyDest, notifyPath).Call(notifyMethod, 0,
		"clueless", replaces, "dialog-warning", summary, body, []string{}, hints, expireMillis)
	if call.Err != nil {
		return 0, call.Err
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// The session bus connection is shared; it is not closed here.
func (p *dbusPoster) close() error { return nil }
