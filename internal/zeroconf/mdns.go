package zeroconf

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

var mdnsGroup = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// mdnsResponder answers the minimal mDNS one-shot query this hub
// needs to be discoverable by: "who has <hostname>.local". It is not
// a general mDNS stack — no SRV/TXT records, no service browsing.
type mdnsResponder struct {
	gen  int64
	logf LogFunc

	conn *net.UDPConn
	name string

	closeOnce sync.Once
}

func newMDNSResponder(gen int64, logf LogFunc) (responder, error) {
	iface, err := multicastInterface()
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenMulticastUDP("udp4", iface, mdnsGroup)
	if err != nil {
		return nil, err
	}
	host, _ := hostname()
	return &mdnsResponder{gen: gen, logf: logf, conn: conn, name: strings.ToLower(host) + ".local"}, nil
}

func (r *mdnsResponder) run(ctx context.Context) {
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
		if looksLikeNameQuery(buf[:n], r.name) {
			r.reply(addr)
		}
	}
}

func (r *mdnsResponder) reply(to *net.UDPAddr) {
	msg := fmt.Sprintf("mdns-reply gen=%d name=%s", r.gen, r.name)
	_, _ = r.conn.WriteToUDP([]byte(msg), to)
}

// announce sends an unsolicited presence packet to the multicast
// group, the re-announce job's periodic nudge.
func (r *mdnsResponder) announce() {
	msg := fmt.Sprintf("mdns-announce gen=%d name=%s", r.gen, r.name)
	_, _ = r.conn.WriteToUDP([]byte(msg), mdnsGroup)
}

func (r *mdnsResponder) stop() {
	r.closeOnce.Do(func() {
		_ = r.conn.Close()
	})
}

// looksLikeNameQuery is a best-effort substring probe, not a DNS
// message parser: good enough to decide whether to answer without
// pulling in a full mDNS/DNS library for a one-record responder.
func looksLikeNameQuery(pkt []byte, name string) bool {
	return strings.Contains(strings.ToLower(string(pkt)), name)
}

func hostname() (string, error) {
	return osHostname()
}
