package discovery

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType 是画布服务在局域网中广播的 mDNS 服务类型
const ServiceType = "_canvas._tcp"

// Announcer 在局域网内广播画布服务地址
type Announcer struct {
	server *mdns.Server
	log    *logrus.Entry
}

// TXTRecords 返回广播时附带的 TXT 记录
func TXTRecords(wsPath string) []string {
	return []string{"app=collaborative-canvas", "path=" + wsPath}
}

// Announce 启动 mDNS 广播。instance 为空时使用主机名。
func Announce(instance string, port int) (*Announcer, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port for mDNS announce: %d", port)
	}
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}

	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, TXTRecords("/ws"))
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	log := logrus.WithFields(logrus.Fields{"component": "mdns", "instance": instance, "port": port})
	log.Info("mDNS announce started")
	return &Announcer{server: server, log: log}, nil
}

// Shutdown 停止广播
func (a *Announcer) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	a.log.Info("Stopping mDNS announce")
	return a.server.Shutdown()
}

// Entry 是浏览到的一个画布服务
type Entry struct {
	Instance string
	Addr     string // host:port
	Info     []string
}

// Browse 在 timeout 内查找局域网中的画布服务，每发现一个调用一次 found
func Browse(timeout time.Duration, found func(Entry)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			if entry, ok := toEntry(e); ok {
				found(entry)
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	<-done
	if err != nil {
		return fmt.Errorf("mDNS query failed: %w", err)
	}
	return nil
}

func toEntry(e *mdns.ServiceEntry) (Entry, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Entry{}, false
	}
	return Entry{
		Instance: e.Name,
		Addr:     e.AddrV4.String() + ":" + strconv.Itoa(e.Port),
		Info:     e.InfoFields,
	}, true
}
