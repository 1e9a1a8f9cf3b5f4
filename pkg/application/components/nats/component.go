package nats

import (
	"context"
	"errors"
	"fmt"

	natsgo "github.com/nats-io/nats.go"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

var ErrNotConnected = errors.New("nats connection not available")

type NatsComponent struct {
	*core.BaseComponent
	cfg  *Config
	conn *natsgo.Conn
}

func NewNatsComponent(cfg *Config) *NatsComponent {
	return &NatsComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_NATS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
	}
}

func (n *NatsComponent) Start(ctx context.Context) error {
	if err := n.BaseComponent.Start(ctx); err != nil {
		return err
	}
	conn, err := natsgo.Connect(n.cfg.URL, n.options()...)
	if err != nil {
		_ = n.BaseComponent.Stop(ctx)
		return fmt.Errorf("nats connect: %w", err)
	}
	n.conn = conn
	logging.Infof(ctx, "nats connected to %s", conn.ConnectedUrlRedacted())
	return nil
}

func (n *NatsComponent) options() []natsgo.Option {
	opts := []natsgo.Option{
		natsgo.ReconnectWait(n.cfg.ReconnectWait),
		natsgo.MaxReconnects(n.cfg.MaxReconnects),
		natsgo.Timeout(n.cfg.ConnectTimeout),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warnf(context.Background(), "nats disconnected: %v", err)
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			logging.Infof(context.Background(), "nats reconnected to %s", c.ConnectedUrlRedacted())
		}),
	}
	if n.cfg.Name != "" {
		opts = append(opts, natsgo.Name(n.cfg.Name))
	}
	if n.cfg.Token != "" {
		opts = append(opts, natsgo.Token(n.cfg.Token))
	}
	if n.cfg.User != "" {
		opts = append(opts, natsgo.UserInfo(n.cfg.User, n.cfg.Password))
	}
	return opts
}

func (n *NatsComponent) Stop(ctx context.Context) error {
	defer func() { _ = n.BaseComponent.Stop(ctx) }()
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

func (n *NatsComponent) HealthCheck() error {
	if err := n.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	if n.conn == nil || !n.conn.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Publish sends data on subject. It does not wait for a server ack.
func (n *NatsComponent) Publish(subject string, data []byte) error {
	if n.conn == nil || n.conn.IsClosed() {
		return ErrNotConnected
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (n *NatsComponent) Conn() *natsgo.Conn { return n.conn }
