package app

import (
	"net"
)

// interfaceAddrs lists addresses of interfaces that are up and not loopback.
var interfaceAddrs = func() ([]net.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var addrs []net.Addr
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		addrs = append(addrs, ifaceAddrs...)
	}
	return addrs, nil
}

// lanURL returns the URL other devices on the network should open.
// A wildcard listen host resolves to the first non-loopback IPv4 address.
func lanURL(listenAddr string, addrs []net.Addr) (string, bool) {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "0" {
		return "", false
	}

	if host != "" && host != "0.0.0.0" && host != "::" {
		ip := net.ParseIP(host)
		if ip == nil || ip.IsLoopback() {
			return "", false
		}
		return "http://" + net.JoinHostPort(host, port), true
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
			continue
		}
		return "http://" + net.JoinHostPort(ip.String(), port), true
	}
	return "", false
}
