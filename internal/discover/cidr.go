// Package discover scans address ranges for SSH-reachable balancer
// candidates. A candidate must present an SSH protocol banner; a port
// that merely accepts TCP is not enough to suggest it for the fleet.
package discover

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Candidate is a host that answered a scan with an SSH banner.
type Candidate struct {
	Address string
	Port    int
	Banner  string // e.g. "SSH-2.0-OpenSSH_9.7"
	Known   bool   // already present in the fleet registry
}

// Scanner probes address ranges for SSH endpoints.
type Scanner struct {
	port        int
	concurrency int
	timeout     time.Duration
	known       map[string]bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPort sets the TCP port probed on every address.
func WithPort(port int) Option {
	return func(s *Scanner) {
		if port > 0 {
			s.port = port
		}
	}
}

// WithConcurrency bounds parallel dials.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithTimeout bounds each dial and banner read.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithKnownAddresses marks addresses already in the fleet so scan
// results can distinguish new hosts from registered ones. Addresses
// may carry an SSH port suffix; comparison uses the bare host.
func WithKnownAddresses(addrs []string) Option {
	return func(s *Scanner) {
		for _, addr := range addrs {
			s.known[bareAddress(addr)] = true
		}
	}
}

// NewScanner creates a Scanner with defaults: port 22, 32 parallel
// dials, 2s per-probe timeout.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		port:        22,
		concurrency: 32,
		timeout:     2 * time.Second,
		known:       make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan probes every usable host address in the CIDR range and returns
// the candidates that presented an SSH banner, sorted by address.
// Network and broadcast addresses are skipped for IPv4 ranges.
func (s *Scanner) Scan(ctx context.Context, cidr string) ([]Candidate, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid CIDR %q: %w", cidr, err)
	}

	ips := EnumerateHosts(network)
	if len(ips) == 0 {
		return nil, nil
	}

	var (
		mu      sync.Mutex
		results []Candidate
		wg      sync.WaitGroup
		sem     = make(chan struct{}, s.concurrency)
	)

	for _, ip := range ips {
		wg.Add(1)
		go func(addr net.IP) {
			defer wg.Done()

			// Acquire semaphore, respecting context cancellation.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			// Check context again after acquiring semaphore.
			if ctx.Err() != nil {
				return
			}

			banner, ok := s.probe(addr.String())
			if !ok {
				return
			}

			mu.Lock()
			results = append(results, Candidate{
				Address: addr.String(),
				Port:    s.port,
				Banner:  banner,
				Known:   s.known[addr.String()],
			})
			mu.Unlock()
		}(ip)
	}

	wg.Wait()

	// Sort results by IP address.
	sort.Slice(results, func(i, j int) bool {
		ipA := net.ParseIP(results[i].Address).To4()
		ipB := net.ParseIP(results[j].Address).To4()
		if ipA != nil && ipB != nil {
			return binary.BigEndian.Uint32(ipA) < binary.BigEndian.Uint32(ipB)
		}
		return results[i].Address < results[j].Address
	})

	return results, nil
}

// probe dials the address and reads the protocol greeting. SSH
// servers send "SSH-<version>-<software>" before the client speaks,
// so one read with a deadline is enough to classify the port.
func (s *Scanner) probe(addr string) (string, bool) {
	target := net.JoinHostPort(addr, strconv.Itoa(s.port))
	conn, err := net.DialTimeout("tcp", target, s.timeout)
	if err != nil {
		return "", false
	}
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return "", false
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	banner := strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(banner, "SSH-") {
		return "", false
	}
	return banner, true
}

func bareAddress(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// EnumerateHosts returns all usable host IPs in the given network.
// For IPv4 networks larger than /31, it skips the network address
// (all host bits 0) and the broadcast address (all host bits 1).
func EnumerateHosts(network *net.IPNet) []net.IP {
	ip := network.IP.To4()
	if ip == nil {
		// IPv6 or invalid; not supported.
		return nil
	}

	mask := network.Mask
	ones, bits := mask.Size()
	if bits != 32 {
		return nil
	}

	// /32 is a single host.
	if ones == 32 {
		result := make(net.IP, 4)
		copy(result, ip)
		return []net.IP{result}
	}

	start := binary.BigEndian.Uint32(ip)
	hostBits := uint(bits - ones)
	size := uint32(1) << hostBits

	var hosts []net.IP

	// /31 is a point-to-point link: both addresses are usable (RFC 3021).
	if ones == 31 {
		for i := uint32(0); i < size; i++ {
			addr := make(net.IP, 4)
			binary.BigEndian.PutUint32(addr, start+i)
			hosts = append(hosts, addr)
		}
		return hosts
	}

	// For /30 and larger: skip network (first) and broadcast (last).
	for i := uint32(1); i < size-1; i++ {
		addr := make(net.IP, 4)
		binary.BigEndian.PutUint32(addr, start+i)
		hosts = append(hosts, addr)
	}

	return hosts
}
