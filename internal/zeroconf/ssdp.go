package zeroconf

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

var ssdpGroup = &net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: 1900}

const ssdpSearchTarget = "urn:schemas-upnp-org:service:FileHub:1"

// ssdpResponder answers M-SEARCH requests for a single, fixed search
// target identifying this hub, and sends the matching NOTIFY on
// announce.
type ssdpResponder struct {
	gen  int64
	logf LogFunc

	conn *net.UDPConn

	closeOnce sync.Once
}

func newSSDPResponder(gen int64, logf LogFunc) (responder, error) {
	iface, err := multicastInterface()
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenMulticastUDP("udp4", iface, ssdpGroup)
	if err != nil {
		return nil, err
	}
	return &ssdpResponder{gen: gen, logf: logf, conn: conn}, nil
}

func (r *ssdpResponder) run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		r.stop()
	}()

	buf := make([]byte, 2048)
	for {
		_ = r.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if n == 0 || addr == nil {
			continue
		}
		if isMSearch(buf[:n]) {
			r.reply(addr)
		}
	}
}

func isMSearch(pkt []byte) bool {
	return strings.HasPrefix(string(pkt), "M-SEARCH") && strings.Contains(string(pkt), ssdpSearchTarget)
}

func (r *ssdpResponder) reply(to *net.UDPAddr) {
	resp := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nST: %s\r\nUSN: gen-%d\r\nCACHE-CONTROL: max-age=1800\r\n\r\n",
		ssdpSearchTarget, r.gen,
	)
	_, _ = r.conn.WriteToUDP([]byte(resp), to)
}

func (r *ssdpResponder) announce() {
	msg := fmt.Sprintf(
		"NOTIFY * HTTP/1.1\r\nNT: %s\r\nNTS: ssdp:alive\r\nUSN: gen-%d\r\n\r\n",
		ssdpSearchTarget, r.gen,
	)
	_, _ = r.conn.WriteToUDP([]byte(msg), ssdpGroup)
}

func (r *ssdpResponder) stop() {
	r.closeOnce.Do(func() {
		_ = r.conn.Close()
	})
}
