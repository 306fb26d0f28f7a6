// Package registry is an address book of named bulbs.
//
// Entries are maintained by the user (or by an emulator registering itself);
// nothing here discovers bulbs on the network.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when no entry has the requested name.
	ErrNotFound = errors.New("registry: bulb not found")
	// ErrInvalidEntry is returned for entries with an empty name or an
	// address that is not host:port.
	ErrInvalidEntry = errors.New("registry: invalid entry")
)

// Entry maps a bulb name to its host:port.
type Entry struct {
	Name string `json:"name" yaml:"name"`
	Addr string `json:"addr" yaml:"addr"`
}

// Validate checks that e can be stored.
func (e Entry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEntry)
	}
	if _, _, err := SplitAddr(e.Addr, 0); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidEntry, e.Name, err)
	}
	return nil
}

// Registry stores entries. A ttl of zero keeps an entry until it is
// deregistered.
type Registry interface {
	Register(ctx context.Context, e Entry, ttl time.Duration) error
	Deregister(ctx context.Context, name string) error
	Lookup(ctx context.Context, name string) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Watch(ctx context.Context) <-chan []Entry
}

// SplitAddr splits host[:port], using defaultPort when the port is missing.
// A defaultPort of zero makes the port mandatory.
func SplitAddr(addr string, defaultPort uint16) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		if defaultPort == 0 {
			return "", 0, err
		}
		// no port present
		host, portStr = addr, strconv.Itoa(int(defaultPort))
	}
	if host == "" {
		return "", 0, errors.New("missing host")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, uint16(port), nil
}

// JoinAddr is the inverse of SplitAddr. IPv6 hosts are bracketed.
func JoinAddr(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// Resolve turns a bulb name or a literal host[:port] into a host and port.
// Literal addresses (an IP, or anything with a port) pass through; other
// values are looked up in reg. A nil reg only accepts literals.
func Resolve(ctx context.Context, reg Registry, nameOrAddr string, defaultPort uint16) (string, uint16, error) {
	if isLiteral(nameOrAddr) || reg == nil {
		return SplitAddr(nameOrAddr, defaultPort)
	}
	e, err := reg.Lookup(ctx, nameOrAddr)
	if errors.Is(err, ErrNotFound) {
		// a plain hostname is still a valid address
		return SplitAddr(nameOrAddr, defaultPort)
	}
	if err != nil {
		return "", 0, err
	}
	return SplitAddr(e.Addr, defaultPort)
}

func isLiteral(s string) bool {
	if net.ParseIP(s) != nil {
		return true
	}
	_, _, err := net.SplitHostPort(s)
	return err == nil
}
