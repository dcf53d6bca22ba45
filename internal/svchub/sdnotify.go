package svchub

import (
	"net"
	"os"
	"strings"
)

// SdNotify sends "READY=1" to the systemd-style NOTIFY_SOCKET, if set
// (spec §6.4). The socket may be abstract (leading '@', substituted
// for a NUL byte per the Linux abstract-socket-namespace convention).
// Failures are logged and never fatal.
func (h *Hub) SdNotify() {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return
	}
	if strings.HasPrefix(addr, "@") {
		addr = "\x00" + addr[1:]
	}

	h.log("sd_notify", addr, nil)

	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		h.log("sd_notify", err.Error(), 3)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("READY=1")); err != nil {
		h.log("sd_notify", err.Error(), 3)
	}
}
