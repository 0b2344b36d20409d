package ingest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"smart-meter-monitor/internal/config"
)

// Session is a connected MQTT v5 client plus the channel its connection
// failure is reported on.
type Session struct {
	Client *paho.Client
	Lost   <-chan error
	conn   net.Conn
}

// ClientID returns cfg's client id or a generated one carrying prefix.
func ClientID(cfg config.MQTTConfig, prefix string) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// Address joins the configured broker host and port.
func Address(cfg config.MQTTConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// Dial opens a TCP connection to the broker and performs the MQTT handshake.
// onPublish may be nil for publish-only clients.
func Dial(ctx context.Context, cfg config.MQTTConfig, clientID string, onPublish func(paho.PublishReceived) (bool, error)) (*Session, error) {
	dialCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", Address(cfg))
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	lost := make(chan error, 1)
	report := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	clientCfg := paho.ClientConfig{
		ClientID:      clientID,
		Conn:          conn,
		OnClientError: report,
		OnServerDisconnect: func(d *paho.Disconnect) {
			report(fmt.Errorf("server disconnect: reason code %d", d.ReasonCode))
		},
	}
	if onPublish != nil {
		clientCfg.OnPublishReceived = []func(paho.PublishReceived) (bool, error){onPublish}
	}
	client := paho.NewClient(clientCfg)

	cp := &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  uint16(cfg.KeepAlive / time.Second),
		CleanStart: true,
	}
	if cfg.Username != "" {
		cp.Username = cfg.Username
		cp.UsernameFlag = true
	}
	if cfg.Password != "" {
		cp.Password = []byte(cfg.Password)
		cp.PasswordFlag = true
	}

	ack, err := client.Connect(dialCtx, cp)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect refused: reason code %d", ack.ReasonCode)
	}

	return &Session{Client: client, Lost: lost, conn: conn}, nil
}

// Close sends a normal disconnect and releases the connection.
func (s *Session) Close() {
	if s == nil || s.Client == nil {
		return
	}
	_ = s.Client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	_ = s.conn.Close()
}
