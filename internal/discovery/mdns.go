package discovery

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"net"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

// BeaconInterval is how often MDNSLocator re-broadcasts its endpoint,
// the same cadence role as the teacher's cfg.BroadcastIntv.
const BeaconInterval = 5 * time.Second

const defaultMulticastGroup = "239.255.42.99"
const defaultMulticastPort = 41234

// notifee handles libp2p's HandlePeerFound callback by connecting to
// the found peer, mirroring node.go's mdnsNotifeeImpl — used here purely to keep an
// mDNS service alive and attempt connections to co-located peers,
// which primes the network for the direct UDP beacon below.
type notifee struct{ h host.Host }

func (n *notifee) HandlePeerFound(info peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = n.h.Connect(ctx, info)
}

// MDNSLocator is the concrete Locator: a libp2p host announced over
// mDNS (for LAN peer presence, the literal mechanism spec.md names),
// plus an XChaCha20-Poly1305-encrypted UDP multicast beacon carrying
// each node's actual "ws://host:port" dial endpoint. libp2p's own
// transport is never used for session traffic — only its mDNS service.
type MDNSLocator struct {
	h         host.Host
	mdnsSvc   mdns.Service
	beaconKey []byte
	group     string
	port      int

	conn *net.UDPConn
}

// NewMDNSLocator starts a minimal libp2p host (listening on TCP only,
// no DHT — SPEC_FULL.md §3 drops that surface since no
// operation here needs a second transport) and its mDNS service under
// tag.
func NewMDNSLocator(tag string, beaconKey []byte) (*MDNSLocator, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/0.0.0.0/tcp/0"))
	if err != nil {
		return nil, fmt.Errorf("discovery: start libp2p host: %w", err)
	}
	l := &MDNSLocator{h: h, beaconKey: beaconKey, group: defaultMulticastGroup, port: defaultMulticastPort}
	l.mdnsSvc = mdns.NewMdnsService(h, tag, &notifee{h: h})
	if err := l.mdnsSvc.Start(); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("discovery: start mdns: %w", err)
	}
	return l, nil
}

// NewBeaconKey generates a fresh random XChaCha20-Poly1305 key for
// the beacon side channel. Pairing devices must share this key
// out of band (spec.md §7's 6-digit code exchange is the natural
// place to convey it, though this repo does not wire that path).
func NewBeaconKey() ([]byte, error) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	return key, err
}

func (l *MDNSLocator) Advertise(ctx context.Context, nodeID, endpoint string) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.group, l.port))
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("discovery: dial beacon group: %w", err)
	}

	go func() {
		defer conn.Close()
		ticker := time.NewTicker(BeaconInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pkt, err := encryptBeacon(beacon{NodeID: nodeID, Endpoint: endpoint, TS: time.Now().Unix()}, l.beaconKey)
				if err != nil {
					log.Printf("[discovery] beacon encrypt failed: %v", err)
					continue
				}
				if _, err := conn.Write(pkt); err != nil {
					log.Printf("[discovery] beacon write failed: %v", err)
				}
			}
		}
	}()
	return nil
}

func (l *MDNSLocator) Browse(ctx context.Context) (<-chan PeerEndpoint, error) {
	groupIP := net.ParseIP(l.group)
	laddr := &net.UDPAddr{IP: groupIP, Port: l.port}
	conn, err := net.ListenMulticastUDP("udp", nil, laddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: listen beacon group: %w", err)
	}
	l.conn = conn

	out := make(chan PeerEndpoint, 16)
	go func() {
		defer close(out)
		defer conn.Close()
		buf := make([]byte, 2048)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				return
			}
			b, err := decryptBeacon(buf[:n], l.beaconKey)
			if err != nil {
				continue
			}
			select {
			case out <- PeerEndpoint{NodeID: b.NodeID, Endpoint: b.Endpoint, LastSeen: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (l *MDNSLocator) Close() error {
	if l.conn != nil {
		_ = l.conn.Close()
	}
	if l.mdnsSvc != nil {
		_ = l.mdnsSvc.Close()
	}
	return l.h.Close()
}
