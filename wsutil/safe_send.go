package wsutil

import "log/slog"

// SafeSend sends data to a channel without blocking or panicking.
// If the channel is full the message is dropped; a closed channel is recovered and logged.
// It reports whether the message was queued.
func SafeSend(ch chan []byte, data []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("send on closed channel", "tag", "wsutil", "panic", r)
			sent = false
		}
	}()
	select {
	case ch <- data:
		return true
	default:
		return false
	}
}
