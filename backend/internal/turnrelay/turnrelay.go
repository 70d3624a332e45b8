// Package turnrelay runs a small embedded TURN server so students behind
// symmetric NATs can still reach the teacher.
package turnrelay

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/pion/turn/v4"
)

// Config is a single long-term credential on one UDP port.
type Config struct {
	PublicIP string
	Port     int
	Realm    string
	Username string
	Password string
}

// Relay wraps a running TURN server.
type Relay struct {
	server *turn.Server
	conn   net.PacketConn
}

// Start listens on cfg.Port and relays through cfg.PublicIP.
func Start(cfg Config) (*Relay, error) {
	relayIP := net.ParseIP(cfg.PublicIP)
	if relayIP == nil {
		return nil, fmt.Errorf("turn: invalid public ip %q", cfg.PublicIP)
	}

	conn, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("turn: listen: %w", err)
	}

	key := turn.GenerateAuthKey(cfg.Username, cfg.Realm, cfg.Password)
	server, err := turn.NewServer(turn.ServerConfig{
		Realm: cfg.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			if username != cfg.Username {
				slog.Debug("turn auth rejected", "user", username, "addr", srcAddr)
				return nil, false
			}
			return key, true
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: conn,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: relayIP,
					Address:      "0.0.0.0",
				},
			},
		},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("turn: start server: %w", err)
	}

	slog.Info("turn relay listening", "addr", conn.LocalAddr().String(), "relay_ip", relayIP.String(), "realm", cfg.Realm)
	return &Relay{server: server, conn: conn}, nil
}

// Addr is the local UDP address the relay listens on.
func (r *Relay) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// URL returns the ICE server URL clients should use.
func (r *Relay) URL(host string) string {
	_, port, _ := net.SplitHostPort(r.conn.LocalAddr().String())
	return fmt.Sprintf("turn:%s:%s?transport=udp", host, port)
}

func (r *Relay) Close() error {
	return r.server.Close()
}
