// Package discovery locates game servers announcing themselves over
// mDNS on the local network.
package discovery

import (
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

const (
	// DefaultService is the mDNS service type game servers advertise.
	DefaultService = "_freehold._tcp"

	DefaultBrowseTimeout = 2 * time.Second
)

// ServerInfo describes a discovered game server.
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// Addr returns the host:port string suitable for a session dial.
func (s ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type BrowserParams struct {
	// Service overrides the mDNS service type to query for.
	Service string

	Logger *zap.Logger
}

// Browser runs one-shot mDNS queries for game servers.
type Browser struct {
	service string
	log     *zap.Logger
}

func CreateBrowser(params *BrowserParams) *Browser {
	log := params.Logger
	if log == nil {
		log = zap.Must(zap.NewDevelopment())
	}

	service := params.Service
	if service == "" {
		service = DefaultService
	}

	return &Browser{
		service: service,
		log:     log,
	}
}

type AdvertiserParams struct {
	// InstanceName is the human-readable name announced to browsers.
	InstanceName string

	// Service overrides the mDNS service type to advertise under.
	Service string

	Port   int
	Logger *zap.Logger
}

// Advertiser announces a game server over mDNS until shut down.
type Advertiser struct {
	server *mdns.Server
	log    *zap.Logger
}

func CreateAdvertiser(params *AdvertiserParams) (*Advertiser, error) {
	log := params.Logger
	if log == nil {
		log = zap.Must(zap.NewDevelopment())
	}

	service := params.Service
	if service == "" {
		service = DefaultService
	}

	ips, err := localIPs()
	if err != nil {
		return nil, err
	}

	zone, err := mdns.NewMDNSService(params.InstanceName, service, "", "", params.Port, ips, []string{"proto=freehold"})
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return nil, err
	}

	log.Info("Advertising server over mDNS",
		zap.String("name", params.InstanceName),
		zap.String("service", service),
		zap.Int("port", params.Port))

	return &Advertiser{
		server: server,
		log:    log,
	}, nil
}

func (a *Advertiser) Shutdown() error {
	a.log.Debug("Stopping mDNS advertisement")
	return a.server.Shutdown()
}

// localIPs returns the non-loopback IPv4 addresses of up interfaces.
func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}

// Browse sends a single mDNS query and collects every server that
// answers before the timeout elapses.
func (b *Browser) Browse(timeout time.Duration) ([]ServerInfo, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	collected := make(chan []ServerInfo, 1)

	go func() {
		servers := []ServerInfo{}
		for entry := range entries {
			info := ServerInfo{
				Name: entry.Name,
				Port: entry.Port,
			}

			// Prefer IPv4; plenty of home routers still mangle
			// link-local IPv6 multicast answers.
			if entry.AddrV4 != nil {
				info.Host = entry.AddrV4.String()
			} else if entry.AddrV6 != nil {
				info.Host = entry.AddrV6.String()
			} else {
				b.log.Debug("Skipping mDNS entry with no address", zap.String("name", entry.Name))
				continue
			}

			b.log.Info("Discovered server",
				zap.String("name", info.Name),
				zap.String("addr", info.Addr()))
			servers = append(servers, info)
		}
		collected <- servers
	}()

	params := &mdns.QueryParam{
		Service: b.service,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	}
	err := mdns.Query(params)
	close(entries)

	servers := <-collected
	if err != nil {
		return nil, err
	}
	return servers, nil
}
