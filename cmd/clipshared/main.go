// Command clipshared is the node process spec.md describes: it pairs
// with one peer over the local network, keeps two clipboards in sync,
// and exposes a localhost status/control API. Flag handling and the
// env/identity/discovery/server startup sequence follow the teacher's
// main.go closely (flag.XxxVar against a defaulted Config struct,
// context.WithCancel for the whole process, log.Fatalf on fatal
// startup errors, signal-driven graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clipshare-node/internal/arbiter"
	"clipshare-node/internal/clipboard"
	"clipshare-node/internal/config"
	"clipshare-node/internal/discovery"
	"clipshare-node/internal/handshake"
	"clipshare-node/internal/identity"
	"clipshare-node/internal/pairinglog"
	"clipshare-node/internal/statusapi"
	"clipshare-node/internal/supervisor"
	"clipshare-node/internal/transfer"
	"clipshare-node/internal/transport"
)

func main() {
	cfg := config.Default()

	flag.IntVar(&cfg.DefaultPort, "port", cfg.DefaultPort, "transport listen port")
	flag.IntVar(&cfg.ChunkSizeBytes, "chunk-size", cfg.ChunkSizeBytes, "file transfer chunk size in bytes")
	flag.StringVar(&cfg.DeviceName, "device-name", cfg.DeviceName, "name advertised to the peer during pairing")
	flag.StringVar(&cfg.Platform, "platform", cfg.Platform, "platform string advertised during pairing")
	flag.StringVar(&cfg.MDNSTag, "mdns-tag", cfg.MDNSTag, "mDNS service tag used to find the peer")
	flag.StringVar(&cfg.StatusAPIAddr, "status-addr", cfg.StatusAPIAddr, "localhost bind address for the status/control API")

	var (
		recvDir      string
		controlToken string
		staticPeer   string
		listPairings bool
	)
	flag.StringVar(&recvDir, "recv-dir", "", "directory received files are written to (default: ~/.clipshare/received)")
	flag.StringVar(&controlToken, "control-token", "", "bearer token required on /control/* endpoints (default: open)")
	flag.StringVar(&staticPeer, "peer", "", "skip mDNS discovery and dial this ws://host:port endpoint directly")
	flag.BoolVar(&listPairings, "list-pairings", false, "print the pairing attempt ledger and exit")
	flag.Parse()
	if cfg.ChunkSizeBytes < config.MinChunkSize || cfg.ChunkSizeBytes > config.MaxChunkSize {
		log.Fatalf("chunk-size %d outside %d-%d bytes", cfg.ChunkSizeBytes, config.MinChunkSize, config.MaxChunkSize)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("resolve home directory: %v", err)
	}
	stateDir := filepath.Join(home, ".clipshare")
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		log.Fatalf("create state dir: %v", err)
	}

	ledger, err := pairinglog.Open(filepath.Join(stateDir, "pairing_log.db"))
	if err != nil {
		log.Fatalf("open pairing log: %v", err)
	}
	defer ledger.Close()

	if listPairings {
		printPairings(ledger)
		return
	}

	if cfg.DeviceName == "" {
		cfg.DeviceName, _ = os.Hostname()
	}
	if cfg.Platform == "" {
		cfg.Platform = defaultPlatform()
	}
	if recvDir == "" {
		recvDir = filepath.Join(stateDir, "received")
	}
	if err := os.MkdirAll(recvDir, 0o700); err != nil {
		log.Fatalf("create receive dir: %v", err)
	}

	tokenStore, err := identity.NewTokenStore(filepath.Join(stateDir, "device_token.txt"))
	if err != nil {
		log.Fatalf("open token store: %v", err)
	}
	id, err := identity.New(tokenStore)
	if err != nil {
		log.Fatalf("derive identity: %v", err)
	}
	log.Printf("[clipshared] device id=%s name=%q platform=%q", id.ID, cfg.DeviceName, cfg.Platform)

	peerTokens, err := identity.NewPeerTokenStore(filepath.Join(stateDir, "peer_tokens.json"))
	if err != nil {
		log.Fatalf("open peer token ledger: %v", err)
	}

	adapter := clipboard.NewPlatformAdapter()
	cache := transfer.OpenCache(transfer.DefaultCachePath())
	arb := arbiter.New(cfg.UpdateDelay, append(cfg.TempPathIndicators, recvDir))

	locator, closeLocator := buildLocator(cfg, staticPeer, stateDir)
	defer closeLocator()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenAddr := fmt.Sprintf("0.0.0.0:%d", cfg.DefaultPort)
	listener, err := transport.NewListener(listenAddr, "/clipshare")
	if err != nil {
		log.Fatalf("listen on %s: %v", listenAddr, err)
	}
	defer listener.Close()
	log.Printf("[clipshared] accepting peer connections on %s", listenAddr)

	if ip, err := localIPv4(); err != nil {
		log.Printf("[clipshared] could not determine a LAN address to advertise: %v", err)
	} else {
		endpoint := fmt.Sprintf("ws://%s:%d/clipshare", ip, cfg.DefaultPort)
		if err := locator.Advertise(ctx, id.ID, endpoint); err != nil {
			log.Printf("[clipshared] advertise failed: %v", err)
		} else {
			log.Printf("[clipshared] advertising %s", endpoint)
		}
	}

	recorder := &pairinglog.HandshakeRecorder{Ledger: ledger}
	go acceptLoop(ctx, listener, peerTokens, adapter, cache, arb, cfg, recvDir, recorder)

	sup := supervisor.New(id, locator, adapter, cache, arb, cfg.ChunkSizeBytes, recvDir, cfg.DeviceName, cfg.Platform)
	sup.Config.ClipboardCheckInterval = cfg.ClipboardCheckInterval
	sup.Config.MinProcessInterval = cfg.MinProcessInterval

	status := &statusapi.Server{
		Addr:         cfg.StatusAPIAddr,
		Provider:     sup,
		Ledger:       ledger,
		Reconnector:  sup,
		ControlToken: controlToken,
	}
	if err := status.Start(); err != nil {
		log.Fatalf("start status API on %s: %v", cfg.StatusAPIAddr, err)
	}
	defer status.Stop()
	log.Printf("[clipshared] status API listening on %s", cfg.StatusAPIAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	runDone := make(chan error, 1)
	go func() { runDone <- sup.Run(ctx) }()

	select {
	case sig := <-sigCh:
		log.Printf("[clipshared] received %s, shutting down", sig)
	case err := <-runDone:
		log.Printf("[clipshared] supervisor exited: %v", err)
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		log.Printf("[clipshared] supervisor did not stop in time, exiting anyway")
	}
}

// acceptLoop serves every inbound connection as its own responder
// session; spec.md's single-peer model means in steady state only one
// is ever live, but the accept path makes no assumption about that.
func acceptLoop(ctx context.Context, listener *transport.Listener, peerTokens *identity.PeerTokenStore, adapter clipboard.Adapter, cache *transfer.Cache, arb *arbiter.Arbiter, cfg *config.Config, recvDir string, recorder handshake.AttemptRecorder) {
	policy := func(deviceID, deviceName, platform string) bool { return true }
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			return
		}
		go func() {
			if err := supervisor.ServeAccepted(ctx, conn, peerTokens, policy, adapter, cache, arb, cfg.ChunkSizeBytes, recvDir, recorder); err != nil {
				log.Printf("[clipshared] accepted session ended: %v", err)
			}
		}()
	}
}

func buildLocator(cfg *config.Config, staticPeer, stateDir string) (discovery.Locator, func()) {
	if staticPeer != "" {
		loc := discovery.NewStaticLocator(discovery.PeerEndpoint{NodeID: "static", Endpoint: staticPeer})
		return loc, func() { loc.Close() }
	}

	key, err := loadOrCreateBeaconKey(filepath.Join(stateDir, "beacon_key"))
	if err != nil {
		log.Fatalf("beacon key: %v", err)
	}
	loc, err := discovery.NewMDNSLocator(cfg.MDNSTag, key)
	if err != nil {
		log.Fatalf("start mdns locator: %v", err)
	}
	return loc, func() { loc.Close() }
}

func loadOrCreateBeaconKey(path string) ([]byte, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) == 32 {
		return b, nil
	}
	key, err := discovery.NewBeaconKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func printPairings(ledger *pairinglog.Ledger) {
	attempts, err := ledger.List()
	if err != nil {
		log.Fatalf("list pairings: %v", err)
	}
	if len(attempts) == 0 {
		fmt.Println("no pairing attempts recorded")
		return
	}
	for _, a := range attempts {
		fmt.Printf("%s  %-12s %-20s %-10s %-16s %s\n",
			a.Timestamp.Format(time.RFC3339), a.DeviceID, a.DeviceName, a.Platform, a.Outcome, a.Reason)
	}
}

func defaultPlatform() string {
	switch {
	case fileExists("/System/Library"):
		return "macos"
	case fileExists(`C:\Windows`):
		return "windows"
	default:
		return "linux"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// localIPv4 picks the first non-loopback IPv4 address bound to this
// host. Good enough for a typical single-NIC LAN box; multi-homed
// hosts should use -peer to skip discovery and dial directly.
func localIPv4() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", fmt.Errorf("no non-loopback IPv4 address found")
}
