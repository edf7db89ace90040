//go:build linux
// +build linux

// Package sameuser refuses loopback connections from other local users.
package sameuser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/go-delve/sbdap/pkg/logflags"
)

// for testing
var (
	uid      = os.Getuid()
	readFile = os.ReadFile
)

type errConnectionNotFound struct {
	filename string
}

func (e *errConnectionNotFound) Error() string {
	return fmt.Sprintf("connection not found in %s", e.filename)
}

// peerUID scans a /proc/net/tcp{,6} table for the socket of the peer and
// returns its owner.
func peerUID(filename, localAddr, remoteAddr string) (int, error) {
	b, err := readFile(filename)
	if err != nil {
		return -1, err
	}
	for _, line := range strings.Split(strings.TrimSpace(string(b)), "\n") {
		// The kernel pads fields (%4d, %5u), hence Sscanf rather than
		// strings.Fields. %d stands in for %5u, which fmt does not know.
		var (
			sl                            int
			readLocalAddr, readRemoteAddr string
			state                         int
			queue, timer                  string
			retransmit                    int
			remoteUID                     uint
		)
		n, err := fmt.Sscanf(line, "%4d: %s %s %02X %s %s %08X %d",
			&sl, &readLocalAddr, &readRemoteAddr, &state, &queue, &timer, &retransmit, &remoteUID)
		if n != 8 || err != nil {
			continue // header line
		}
		// The table lists the client's socket: its local address is our
		// remote address.
		if readLocalAddr != remoteAddr || readRemoteAddr != localAddr {
			continue
		}
		return int(remoteUID), nil
	}
	return -1, &errConnectionNotFound{filename}
}

func sameUserForHexLocalAddr(filename, localAddr, remoteAddr string) (bool, error) {
	remoteUID, err := peerUID(filename, localAddr, remoteAddr)
	if err != nil {
		return false, err
	}
	if remoteUID != uid {
		logflags.DAPLogger().Debugf("connection from different user (remote: %d, local: %d)", remoteUID, uid)
		return false, nil
	}
	return true, nil
}

func addrToHex4(addr *net.TCPAddr) string {
	// Layout of /proc/net/tcp: net/ipv4/tcp_ipv4.c, get_tcp4_sock.
	b := addr.IP.To4()
	return fmt.Sprintf("%02X%02X%02X%02X:%04X", b[3], b[2], b[1], b[0], addr.Port)
}

func addrToHex6(addr *net.TCPAddr) string {
	a16 := addr.IP.To16()
	// Layout of /proc/net/tcp6: net/ipv6/tcp_ipv6.c, get_tcp6_sock.
	words := make([]uint32, 4)
	if err := binary.Read(bytes.NewReader(a16), binary.LittleEndian, words); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%08X%08X%08X%08X:%04X", words[0], words[1], words[2], words[3], addr.Port)
}

func sameUserForRemoteAddr4(localAddr, remoteAddr *net.TCPAddr) (bool, error) {
	r, err := sameUserForHexLocalAddr("/proc/net/tcp", addrToHex4(localAddr), addrToHex4(remoteAddr))
	var notFound *errConnectionNotFound
	if errors.As(err, &notFound) {
		// IPv4 connections to a dual stack socket show up as mapped
		// addresses in the tcp6 table.
		r, err2 := sameUserForHexLocalAddr("/proc/net/tcp6", "0000000000000000FFFF0000"+addrToHex4(localAddr), "0000000000000000FFFF0000"+addrToHex4(remoteAddr))
		if err2 == nil {
			return r, nil
		}
	}
	return r, err
}

func sameUserForRemoteAddr6(localAddr, remoteAddr *net.TCPAddr) (bool, error) {
	return sameUserForHexLocalAddr("/proc/net/tcp6", addrToHex6(localAddr), addrToHex6(remoteAddr))
}

func sameUserForRemoteAddr(localAddr, remoteAddr *net.TCPAddr) (bool, error) {
	if remoteAddr.IP.To4() == nil {
		return sameUserForRemoteAddr6(localAddr, remoteAddr)
	}
	return sameUserForRemoteAddr4(localAddr, remoteAddr)
}

// CanAccept reports whether a connection accepted on listenAddr may be
// served. Only loopback listeners are checked.
func CanAccept(listenAddr, localAddr, remoteAddr net.Addr) bool {
	laddr, ok := listenAddr.(*net.TCPAddr)
	if !ok || !laddr.IP.IsLoopback() {
		return true
	}
	remoteAddrTCP, ok1 := remoteAddr.(*net.TCPAddr)
	localAddrTCP, ok2 := localAddr.(*net.TCPAddr)
	if !ok1 || !ok2 {
		return true
	}

	log := logflags.DAPLogger()
	same, err := sameUserForRemoteAddr(localAddrTCP, remoteAddrTCP)
	if err != nil {
		log.Errorf("cannot check remote address: %v", err)
	}
	if !same {
		msg := fmt.Sprintf("closing connection from different user (%v): connections to localhost are only accepted from the same UNIX user", remoteAddrTCP)
		if logflags.Any() {
			log.Error(msg)
		} else {
			fmt.Fprintln(os.Stderr, msg)
		}
		return false
	}
	return true
}
