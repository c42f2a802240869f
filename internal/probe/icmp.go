package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58
)

var (
	icmpSeq     atomic.Uint32
	icmpPayload = []byte("devicewatch")

	errNoAddress = errors.New("icmp: no usable address")
)

// icmpChecker sends one echo request over an unprivileged datagram socket and
// waits for the matching reply. Hosts that do not allow unprivileged ICMP
// (see net.ipv4.ping_group_range) fail here like an unreachable target.
func icmpChecker(ctx context.Context, address string) error {
	ip, err := resolveIP(ctx, address)
	if err != nil {
		return err
	}

	network, listen := "udp4", "0.0.0.0"
	var echoType icmp.Type = ipv4.ICMPTypeEcho
	proto := protocolICMP
	if ip.To4() == nil {
		network, listen = "udp6", "::"
		echoType = ipv6.ICMPTypeEchoRequest
		proto = protocolIPv6ICMP
	}

	conn, err := icmp.ListenPacket(network, listen)
	if err != nil {
		return fmt.Errorf("icmp: listen: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return err
	}

	// the socket is closed on cancellation so a blocked read returns
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	seq := int(icmpSeq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: echoType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  seq,
			Data: icmpPayload,
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return err
	}

	dst := &net.UDPAddr{IP: ip}
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return fmt.Errorf("icmp: write: %w", err)
	}

	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("icmp: read: %w", err)
		}

		if !samePeer(peer, ip) {
			continue
		}

		reply, err := icmp.ParseMessage(proto, rb[:n])
		if err != nil {
			continue
		}

		switch reply.Type {
		case ipv4.ICMPTypeEchoReply, ipv6.ICMPTypeEchoReply:
			// the kernel rewrites the echo ID on datagram sockets, so only
			// the sequence number is matched
			if echo, ok := reply.Body.(*icmp.Echo); ok && echo.Seq == seq {
				return nil
			}
		}
	}
}

func resolveIP(ctx context.Context, address string) (net.IP, error) {
	host := address
	if h, _, err := net.SplitHostPort(address); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP, nil
	}
	return nil, fmt.Errorf("%w: %s", errNoAddress, address)
}

func samePeer(peer net.Addr, ip net.IP) bool {
	switch p := peer.(type) {
	case *net.UDPAddr:
		return p.IP.Equal(ip)
	case *net.IPAddr:
		return p.IP.Equal(ip)
	default:
		return false
	}
}
