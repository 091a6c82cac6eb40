package web

import (
	"net"
	"net/netip"
	"sort"
)

// SystemSnapshot reports where the daemon is reachable and how much room is
// left for sensor recordings.
type SystemSnapshot struct {
	LocalAddrs     []string `json:"local_addrs,omitempty"`
	DiskPath       string   `json:"disk_path,omitempty"`
	DiskAvailBytes uint64   `json:"disk_avail_bytes,omitempty"`
	LastError      string   `json:"last_error,omitempty"`
}

// interfaceAddrs lists "<iface>: <cidr>" for every routable IPv4 address so
// the UI can show which URL to open on a phone.
func interfaceAddrs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			prefix, err := netip.ParsePrefix(a.String())
			if err != nil {
				continue
			}
			if ip := prefix.Addr(); ip.Is4() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast() {
				out = append(out, iface.Name+": "+prefix.String())
			}
		}
	}
	sort.Strings(out)
	return out
}
