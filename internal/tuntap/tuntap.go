// Package tuntap opens a Linux TUN device, the file descriptor that feeds
// raw IP datagrams (or, in TAP mode, Ethernet frames) between the kernel
// and this stack's network interface.
package tuntap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Mode selects whether the device exchanges IP datagrams (TUN) or
// Ethernet frames (TAP).
type Mode int

const (
	ModeTUN Mode = iota
	ModeTAP
)

// Device is an open TUN/TAP file descriptor.
type Device struct {
	file *os.File
	name string
}

// Open creates (or attaches to) a TUN/TAP device named name (pass "" for
// the kernel to pick one) in the given mode, without packet information
// headers.
func Open(name string, mode Mode) (*Device, error) {
	flags := unix.IFF_NO_PI
	switch mode {
	case ModeTUN:
		flags |= unix.IFF_TUN
	case ModeTAP:
		flags |= unix.IFF_TAP
	default:
		return nil, fmt.Errorf("tuntap: unknown mode %d", mode)
	}

	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tuntap: open /dev/net/tun: %w", err)
	}

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tuntap: build ifreq: %w", err)
	}
	ifr.SetUint16(uint16(flags))
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tuntap: TUNSETIFF: %w", err)
	}

	return &Device{file: os.NewFile(uintptr(fd), "/dev/net/tun"), name: ifr.Name()}, nil
}

// Name returns the kernel-assigned interface name (e.g. "tun0").
func (d *Device) Name() string { return d.name }

// ReadPacket reads a single datagram/frame from the device into buf.
func (d *Device) ReadPacket(buf []byte) (int, error) {
	n, err := d.file.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("tuntap: read: %w", err)
	}
	return n, nil
}

// WritePacket writes a single datagram/frame to the device.
func (d *Device) WritePacket(buf []byte) error {
	if _, err := d.file.Write(buf); err != nil {
		return fmt.Errorf("tuntap: write: %w", err)
	}
	return nil
}

// FD returns the raw file descriptor, for use with an external poller.
func (d *Device) FD() uintptr { return d.file.Fd() }

// Close releases the device.
func (d *Device) Close() error { return d.file.Close() }
