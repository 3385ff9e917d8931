// Package sock wraps the host's POSIX-ish socket primitives (UDP sockets,
// TCP listeners/connections, and in-memory stream pairs) with the thin,
// exception-free surface this stack's test harnesses and CLI glue expect:
// a way to send/receive labelled datagrams, accept/connect streams, and
// get at a connection's raw file descriptor for metrics collection.
package sock

import (
	"fmt"
	"net"

	"github.com/higebu/netfd"
)

// Datagram pairs a received payload with the address it came from.
type Datagram struct {
	Payload []byte
	Source  net.Addr
}

// UDPSocket is a small wrapper over *net.UDPConn matching the bind/send/recv
// shape of a BSD datagram socket.
type UDPSocket struct {
	conn *net.UDPConn
}

// NewUDPSocket creates an unbound UDP socket.
func NewUDPSocket() (*UDPSocket, error) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("sock: new udp socket: %w", err)
	}
	return &UDPSocket{conn: conn}, nil
}

// Bind rebinds the socket to a specific local address.
func (s *UDPSocket) Bind(addr *net.UDPAddr) error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("sock: close before rebind: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("sock: bind %s: %w", addr, err)
	}
	s.conn = conn
	return nil
}

// SendTo writes payload to addr without requiring a prior Connect.
func (s *UDPSocket) SendTo(addr *net.UDPAddr, payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, addr)
	if err != nil {
		return fmt.Errorf("sock: sendto %s: %w", addr, err)
	}
	return nil
}

// Recv reads one datagram, returning its payload and source address.
func (s *UDPSocket) Recv(maxLen int) (Datagram, error) {
	buf := make([]byte, maxLen)
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		return Datagram{}, fmt.Errorf("sock: recv: %w", err)
	}
	return Datagram{Payload: buf[:n], Source: addr}, nil
}

// LocalAddr returns the socket's bound local address.
func (s *UDPSocket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// FD returns the underlying file descriptor, for metrics collection or
// passing to another process.
func (s *UDPSocket) FD() int {
	return netfd.GetFdFromConn(s.conn)
}

// Close releases the socket.
func (s *UDPSocket) Close() error {
	return s.conn.Close()
}

// TCPListener wraps a net.Listener to mirror the bind+listen+accept flow.
type TCPListener struct {
	ln net.Listener
}

// ListenTCP binds and listens on addr.
func ListenTCP(addr *net.TCPAddr) (*TCPListener, error) {
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sock: listen %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

// Accept blocks for the next inbound connection.
func (l *TCPListener) Accept() (net.Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("sock: accept: %w", err)
	}
	return conn, nil
}

// Addr returns the bound local address.
func (l *TCPListener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *TCPListener) Close() error { return l.ln.Close() }

// DialTCP connects to addr, mirroring TCPSocket::connect.
func DialTCP(addr *net.TCPAddr) (net.Conn, error) {
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("sock: connect %s: %w", addr, err)
	}
	return conn, nil
}

// FD extracts the raw file descriptor backing any net.Conn, for anything
// that needs to hand a descriptor to a subprocess.
func FD(conn net.Conn) int {
	return netfd.GetFdFromConn(conn)
}

// LocalStreamPair returns a connected, in-memory pair of stream endpoints,
// mirroring the socketpair(AF_UNIX, SOCK_STREAM, ...) pattern used to wire
// two local peers together without going through the loopback interface.
// Unlike a real AF_UNIX pair these endpoints have no backing file
// descriptor; callers needing FD() must use DialTCP/ListenTCP instead.
func LocalStreamPair() (a, b net.Conn) {
	return net.Pipe()
}
