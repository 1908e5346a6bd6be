package proxy

import (
	"net"
	"strconv"
	"strings"

	M "github.com/sagernet/sing/common/metadata"
)

// defaultForwardPort is used when an absolute http:// URL carries no explicit
// port.
const defaultForwardPort = "80"

// defaultTunnelPort is used when a CONNECT request-target carries no port.
const defaultTunnelPort = "80"

// splitHostPortDefault splits "host[:port]" into host and port, applying
// defaultPort when no port is present. It rejects an empty host.
func splitHostPortDefault(hostport, defaultPort string) (host, port string, err error) {
	if hostport == "" {
		return "", "", errEmptyHost
	}
	h, p, splitErr := net.SplitHostPort(hostport)
	if splitErr != nil {
		// No colon at all is the common "bare host" case; net.SplitHostPort
		// returns an error for that rather than the missing port alone.
		if strings.Contains(hostport, ":") && !strings.HasSuffix(hostport, ":") {
			return "", "", splitErr
		}
		h = strings.TrimSuffix(hostport, ":")
		p = defaultPort
	}
	if h == "" {
		return "", "", errEmptyHost
	}
	if p == "" {
		p = defaultPort
	}
	return h, p, nil
}

// dialTarget joins host and port into a dial address and also returns the
// sing socket address it parses to; parseConnectTarget uses the latter to
// reject targets that do not form a valid address.
func dialTarget(host, port string) (addr string, sockAddr M.Socksaddr) {
	addr = net.JoinHostPort(host, port)
	sockAddr = M.ParseSocksaddr(addr)
	return addr, sockAddr
}

// parseConnectTarget parses a CONNECT request-target ("host:port", splitting
// on the last colon so a bracketed IPv6 literal's colons aren't mistaken for
// the port separator) into a dial address.
func parseConnectTarget(requestTarget string) (addr string, sockAddr M.Socksaddr, err error) {
	idx := strings.LastIndexByte(requestTarget, ':')
	var host, port string
	if idx < 0 {
		host, port = requestTarget, defaultTunnelPort
	} else {
		host, port = requestTarget[:idx], requestTarget[idx+1:]
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
		if port == "" {
			port = defaultTunnelPort
		}
	}
	if host == "" {
		return "", M.Socksaddr{}, errEmptyHost
	}
	if _, convErr := strconv.Atoi(port); convErr != nil {
		return "", M.Socksaddr{}, errInvalidPort
	}
	addr, sockAddr = dialTarget(host, port)
	if !sockAddr.IsValid() {
		return "", M.Socksaddr{}, errInvalidPort
	}
	return addr, sockAddr, nil
}
