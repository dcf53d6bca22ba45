package zeroconf

import (
	"net"
	"os"
)

func osHostname() (string, error) {
	return os.Hostname()
}

// multicastInterface picks the first up, non-loopback interface that
// supports multicast. Responders bind to it explicitly rather than
// the zero interface so replies go out the same link the query
// arrived on in the common single-NIC case.
func multicastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		f := ifaces[i].Flags
		if f&net.FlagUp == 0 || f&net.FlagLoopback != 0 || f&net.FlagMulticast == 0 {
			continue
		}
		return &ifaces[i], nil
	}
	return nil, errNoMulticastInterface
}

type noMulticastInterfaceError string

func (e noMulticastInterfaceError) Error() string { return string(e) }

const errNoMulticastInterface = noMulticastInterfaceError("no up, non-loopback, multicast-capable interface found")
