package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "petitchat/pkg/logx"
)

// notifier sends sd_notify states. Outside systemd (no NOTIFY_SOCKET) it is a no-op.
type notifier func(state string)

func sdNotifier(log logx.Logger) notifier {
	return func(state string) {
		sent, err := daemon.SdNotify(false, state)
		if err != nil {
			log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
			return
		}
		if sent {
			log.Trace("sd_notify", logx.String("state", state))
		}
	}
}
