package events

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSMirror republishes every event on a NATS subject derived from its type,
// e.g. "kadim.events.trade.completed", for consumers outside this process.
type NATSMirror struct {
	nc     *nats.Conn
	prefix string
}

// DialNATS connects to url. Reconnects are handled by the client.
func DialNATS(url, prefix string, logger *zap.Logger) (*NATSMirror, error) {
	nc, err := nats.Connect(url,
		nats.Name("kadim-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSMirror{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}, nil
}

// Subject returns the subject an event type is mirrored to.
func (m *NATSMirror) Subject(typ Type) string {
	if m.prefix == "" {
		return string(typ)
	}
	return m.prefix + "." + string(typ)
}

func (m *NATSMirror) Forward(typ Type, payload []byte) error {
	return m.nc.Publish(m.Subject(typ), payload)
}

func (m *NATSMirror) Close() {
	if err := m.nc.Drain(); err != nil {
		m.nc.Close()
	}
}
