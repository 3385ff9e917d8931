// Command tcplisten opens a TUN device and waits for a single inbound TCP
// connection on a given port, relaying stdin to the connection's outbound
// stream and the connection's inbound stream to stdout.
//
// As in cmd/tcpconnect, TUN reads and stdin reads happen on their own
// goroutines and funnel into a single owning goroutine that is the only
// thing touching the connection and network interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/minnet/internal/config"
	"github.com/tinyrange/minnet/internal/ipv4"
	"github.com/tinyrange/minnet/internal/netif"
	"github.com/tinyrange/minnet/internal/session"
	"github.com/tinyrange/minnet/internal/tcpcore"
	"github.com/tinyrange/minnet/internal/tcpwire"
	"github.com/tinyrange/minnet/internal/tuntap"
)

const tickInterval = 100 * time.Millisecond

type peer struct {
	ip   net.IP
	port uint16
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	device := flag.String("device", "", "TUN device name override")
	localIP := flag.String("local-ip", "10.0.0.1", "this interface's IPv4 address")
	localMAC := flag.String("local-mac", "02:00:00:00:00:01", "this interface's Ethernet address")
	listenPort := flag.Uint("port", 9000, "TCP port to accept a connection on")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}

	id := session.New()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "tcplisten", "session", id.String())

	devName := *device
	if devName == "" {
		devName = cfg.Device
	}
	dev, err := tuntap.Open(devName, tuntap.ModeTAP)
	if err != nil {
		return fmt.Errorf("tcplisten: open tun device: %w", err)
	}
	defer dev.Close()
	logger.Info("opened tun device", "name", dev.Name())

	mac, err := net.ParseMAC(*localMAC)
	if err != nil {
		return fmt.Errorf("tcplisten: parse -local-mac: %w", err)
	}
	port := uint16(*listenPort)

	g, ctx := errgroup.WithContext(context.Background())

	frames := make(chan []byte, 64)
	g.Go(func() error { return pumpFrames(ctx, dev, frames) })

	input := make(chan []byte, 64)
	inputClosed := make(chan struct{})
	g.Go(func() error { return pumpStdin(ctx, input, inputClosed) })

	g.Go(func() error {
		nic := netif.New(mac, net.ParseIP(*localIP), logger.With("component", "netif"))
		conn := tcpcore.NewConnection(cfg.TCPCoreConfig())
		var remote *peer

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case frame := <-frames:
				if p := handleInboundFrame(nic, conn, frame, port, remote, logger); p != nil {
					remote = p
				}

			case data := <-input:
				conn.Write(data)

			case <-inputClosed:
				conn.EndInputStream()
				inputClosed = nil

			case <-ticker.C:
				conn.Tick(uint64(tickInterval / time.Millisecond))
				if remote != nil {
					flushOutbound(nic, conn, net.ParseIP(*localIP), *remote, port)
				}
				nic.Tick(uint64(tickInterval / time.Millisecond))
				for _, out := range nic.PopOutgoing() {
					if err := dev.WritePacket(out); err != nil {
						return fmt.Errorf("tcplisten: write tun: %w", err)
					}
				}
			}

			if err := drainToStdout(conn); err != nil {
				return err
			}
			if conn.Receiver().Reassembler().Output().EOF() && !conn.Active() {
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func pumpFrames(ctx context.Context, dev *tuntap.Device, out chan<- []byte) error {
	buf := make([]byte, 65535)
	for {
		n, err := dev.ReadPacket(buf)
		if err != nil {
			return fmt.Errorf("tcplisten: read tun: %w", err)
		}
		frame := append([]byte(nil), buf[:n]...)
		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func pumpStdin(ctx context.Context, out chan<- []byte, closed chan<- struct{}) error {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			close(closed)
			return nil
		}
	}
}

// handleInboundFrame processes one inbound frame, returning a non-nil peer
// the first time a segment for port arrives (recording who to reply to).
func handleInboundFrame(nic *netif.NetworkInterface, conn *tcpcore.Connection, frame []byte, port uint16, known *peer, logger *slog.Logger) *peer {
	dgram, ok := nic.RecvFrame(frame)
	if !ok {
		return nil
	}
	hdr, err := ipv4.Parse(dgram)
	if err != nil {
		logger.Warn("dropping malformed ipv4 datagram", "err", err)
		return nil
	}
	seg, ports, err := tcpwire.Decode(hdr.Payload)
	if err != nil {
		logger.Warn("dropping malformed tcp segment", "err", err)
		return nil
	}
	if ports.Dst != port {
		return nil
	}
	conn.SegmentReceived(seg)

	if known == nil {
		logger.Info("accepted connection", "from", hdr.Src.String(), "port", ports.Src)
		return &peer{ip: append(net.IP(nil), hdr.Src...), port: ports.Src}
	}
	return nil
}

func flushOutbound(nic *netif.NetworkInterface, conn *tcpcore.Connection, localIP net.IP, remote peer, port uint16) {
	for _, seg := range conn.DequeueOutbound() {
		payload := tcpwire.Encode(seg, port, remote.port)
		dgram := ipv4.Build(localIP, remote.ip, ipv4.ProtocolTCP, 64, payload)
		nic.SendDatagram(dgram, remote.ip)
	}
}

func drainToStdout(conn *tcpcore.Connection) error {
	out := conn.Receiver().Reassembler().Output()
	for {
		data := out.PeekOutput(4096)
		if len(data) == 0 {
			return nil
		}
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("tcplisten: write stdout: %w", err)
		}
		out.PopOutput(len(data))
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tcplisten: %v\n", err)
		os.Exit(1)
	}
}
