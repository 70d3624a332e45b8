package network

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestResolveIPLiteral(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "::1", "10.1.2.3"} {
		got, err := Resolve(context.Background(), host)
		if err != nil || got != host {
			t.Errorf("Resolve(%q) = %q, %v", host, got, err)
		}
	}
}

func TestResolveCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Resolve(ctx, "classroom.invalid"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestPreferIPv4(t *testing.T) {
	got, err := preferIPv4([]string{"2001:db8::1", "192.0.2.7"})
	if err != nil || got != "192.0.2.7" {
		t.Fatalf("preferIPv4 = %q, %v", got, err)
	}
	got, err = preferIPv4([]string{"2001:db8::1"})
	if err != nil || got != "2001:db8::1" {
		t.Fatalf("preferIPv4 v6 only = %q, %v", got, err)
	}
	if _, err := preferIPv4(nil); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("preferIPv4(nil) err = %v", err)
	}
}

func TestTrimBrackets(t *testing.T) {
	if got := trimBrackets("[2620:fe::fe]"); got != "2620:fe::fe" {
		t.Fatalf("trimBrackets = %q", got)
	}
	if got := trimBrackets("9.9.9.9"); got != "9.9.9.9" {
		t.Fatalf("trimBrackets = %q", got)
	}
}

func TestDialContextLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	conn, err := DialContext(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	conn.Close()
}

func TestRelayHeuristics(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"wg0", true},
		{"utun3", true},
		{"CloudflareWARP", true},
		{"eth0", false},
		{"en0", false},
	}
	for _, tt := range tests {
		if got := isTunnelName(tt.name); got != tt.want {
			t.Errorf("isTunnelName(%q) = %v", tt.name, got)
		}
	}

	if !inCGNAT(&net.IPNet{IP: net.ParseIP("100.100.1.1"), Mask: net.CIDRMask(32, 32)}) {
		t.Error("100.100.1.1 should be CGNAT")
	}
	if inCGNAT(&net.IPAddr{IP: net.ParseIP("192.168.1.5")}) {
		t.Error("192.168.1.5 is not CGNAT")
	}
}
