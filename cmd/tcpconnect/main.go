// Command tcpconnect opens a TUN device, resolves a host:service endpoint,
// and drives a single outbound TCP connection over it, relaying stdin to
// the connection's outbound stream and the connection's inbound stream to
// stdout.
//
// Reads of the TUN device and of stdin happen on their own goroutines, but
// everything that touches the connection and network interface runs on a
// single owning goroutine driven by a select loop: tcpcore.Connection and
// netif.NetworkInterface are not safe for concurrent use, by design (see
// the concurrency notes in internal/tcpcore).
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
	"github.com/tinyrange/minnet/internal/netaddr"
	"github.com/tinyrange/minnet/internal/netif"
	"github.com/tinyrange/minnet/internal/tcpcore"
	"github.com/tinyrange/minnet/internal/tcpwire"
	"github.com/tinyrange/minnet/internal/tuntap"
)

const (
	localPort    = 40000
	tickInterval = 100 * time.Millisecond
)

func run() error {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	device := flag.String("device", "", "TUN device name override")
	localIP := flag.String("local-ip", "10.0.0.2", "this interface's IPv4 address")
	localMAC := flag.String("local-mac", "02:00:00:00:00:02", "this interface's Ethernet address")
	host := flag.String("host", "", "remote host to connect to")
	service := flag.String("service", "", "remote port or service name")
	flag.Parse()

	if *host == "" || *service == "" {
		return errors.New("tcpconnect: -host and -service are required")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "tcpconnect")

	remote, err := netaddr.New(context.Background(), *host, *service)
	if err != nil {
		return fmt.Errorf("tcpconnect: resolve %s:%s: %w", *host, *service, err)
	}

	devName := *device
	if devName == "" {
		devName = cfg.Device
	}
	dev, err := tuntap.Open(devName, tuntap.ModeTAP)
	if err != nil {
		return fmt.Errorf("tcpconnect: open tun device: %w", err)
	}
	defer dev.Close()
	logger.Info("opened tun device", "name", dev.Name())

	mac, err := net.ParseMAC(*localMAC)
	if err != nil {
		return fmt.Errorf("tcpconnect: parse -local-mac: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	frames := make(chan []byte, 64)
	g.Go(func() error { return pumpFrames(ctx, dev, frames) })

	input := make(chan []byte, 64)
	inputClosed := make(chan struct{})
	g.Go(func() error { return pumpStdin(ctx, input, inputClosed) })

	g.Go(func() error {
		nic := netif.New(mac, net.ParseIP(*localIP), logger.With("component", "netif"))
		conn := tcpcore.NewConnection(cfg.TCPCoreConfig())
		conn.Connect()

		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case frame := <-frames:
				handleInboundFrame(nic, conn, frame, localPort, logger)

			case data := <-input:
				conn.Write(data)

			case <-inputClosed:
				conn.EndInputStream()
				inputClosed = nil

			case <-ticker.C:
				conn.Tick(uint64(tickInterval / time.Millisecond))
				flushOutbound(nic, conn, net.ParseIP(*localIP), remote, localPort)
				nic.Tick(uint64(tickInterval / time.Millisecond))
				for _, out := range nic.PopOutgoing() {
					if err := dev.WritePacket(out); err != nil {
						return fmt.Errorf("tcpconnect: write tun: %w", err)
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
			return fmt.Errorf("tcpconnect: read tun: %w", err)
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

func handleInboundFrame(nic *netif.NetworkInterface, conn *tcpcore.Connection, frame []byte, port uint16, logger *slog.Logger) {
	dgram, ok := nic.RecvFrame(frame)
	if !ok {
		return
	}
	hdr, err := ipv4.Parse(dgram)
	if err != nil {
		logger.Warn("dropping malformed ipv4 datagram", "err", err)
		return
	}
	seg, ports, err := tcpwire.Decode(hdr.Payload)
	if err != nil {
		logger.Warn("dropping malformed tcp segment", "err", err)
		return
	}
	if ports.Dst != port {
		return
	}
	conn.SegmentReceived(seg)
}

func flushOutbound(nic *netif.NetworkInterface, conn *tcpcore.Connection, localIP net.IP, remote netaddr.Address, port uint16) {
	for _, seg := range conn.DequeueOutbound() {
		payload := tcpwire.Encode(seg, port, remote.Port())
		dgram := ipv4.Build(localIP, remote.IP(), ipv4.ProtocolTCP, 64, payload)
		nic.SendDatagram(dgram, remote.IP())
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
			return fmt.Errorf("tcpconnect: write stdout: %w", err)
		}
		out.PopOutput(len(data))
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tcpconnect: %v\n", err)
		os.Exit(1)
	}
}
