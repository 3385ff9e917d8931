package sock

import (
	"net"
	"testing"
)

func TestUDPLoopbackSendRecv(t *testing.T) {
	server, err := NewUDPSocket()
	if err != nil {
		t.Fatalf("NewUDPSocket: %v", err)
	}
	defer server.Close()
	if err := server.Bind(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	client, err := NewUDPSocket()
	if err != nil {
		t.Fatalf("NewUDPSocket: %v", err)
	}
	defer client.Close()

	if err := client.SendTo(server.LocalAddr(), []byte("hi there")); err != nil {
		t.Fatalf("SendTo: %v", err)
	}

	recvd, err := server.Recv(1500)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(recvd.Payload) != "hi there" {
		t.Fatalf("payload = %q, want %q", recvd.Payload, "hi there")
	}

	if err := server.SendTo(recvd.Source.(*net.UDPAddr), []byte("hi yourself")); err != nil {
		t.Fatalf("SendTo reply: %v", err)
	}
	recvd2, err := client.Recv(1500)
	if err != nil {
		t.Fatalf("Recv reply: %v", err)
	}
	if string(recvd2.Payload) != "hi yourself" {
		t.Fatalf("reply payload = %q, want %q", recvd2.Payload, "hi yourself")
	}
}

func TestTCPLoopbackAcceptConnectExchange(t *testing.T) {
	ln, err := ListenTCP(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- conn
	}()

	client, err := DialTCP(ln.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}
	defer client.Close()

	var server net.Conn
	select {
	case server = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("Accept: %v", err)
	}
	defer server.Close()

	if _, err := server.Write([]byte("hi there")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(buf[:n]) != "hi there" {
		t.Fatalf("client read = %q, want %q", buf[:n], "hi there")
	}

	if FD(client) <= 0 {
		t.Fatalf("expected a positive file descriptor for a real TCP socket")
	}
}

func TestLocalStreamPairExchange(t *testing.T) {
	a, b := LocalStreamPair()
	defer a.Close()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Write([]byte("hi there"))
	}()

	buf := make([]byte, 64)
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hi there" {
		t.Fatalf("got %q, want %q", buf[:n], "hi there")
	}
	<-done
}
