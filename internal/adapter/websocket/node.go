package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/centrifugal/centrifuge"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	"github.com/pscheid92/tilecast/internal/domain"
	"github.com/pscheid92/tilecast/internal/relay"
	"github.com/pscheid92/tilecast/internal/wire"
)

const (
	// Channel is the single centrifuge channel carrying payloads.
	Channel = "recommendations"

	historyTTL         = 24 * time.Hour
	resubscribeDelay   = time.Second
	centrifugeLabel    = "centrifuge"
	disconnectReplaced = 3600
)

// Subscriber is the relay the node forwards from.
type Subscriber interface {
	Subscribe(ctx context.Context, clientID string) (*relay.Subscription, error)
}

// Node serves the relay over the centrifuge protocol. Each publication is
// kept as a one-entry history so subscribers recovering in cache mode start
// at the latest payload.
type Node struct {
	node    *centrifuge.Node
	metrics *metrics.StreamMetrics

	mu      sync.Mutex
	clients map[string]*centrifuge.Client
}

func NewNode(m *metrics.StreamMetrics, logLevel string) (*Node, error) {
	conf := centrifuge.Config{LogLevel: parseCentrifugeLogLevel(logLevel), LogHandler: slogHandler}
	node, err := centrifuge.New(conf)
	if err != nil {
		return nil, fmt.Errorf("create centrifuge node: %w", err)
	}

	n := &Node{node: node, metrics: m, clients: make(map[string]*centrifuge.Client)}
	node.OnConnecting(n.onConnecting)
	node.OnConnect(n.onConnect)
	return n, nil
}

func (n *Node) Run() error {
	if err := n.node.Run(); err != nil {
		return fmt.Errorf("run centrifuge node: %w", err)
	}
	return nil
}

func (n *Node) Shutdown(ctx context.Context) error {
	return n.node.Shutdown(ctx)
}

func (n *Node) Handler(checkOrigin func(*http.Request) bool) http.Handler {
	return centrifuge.NewWebsocketHandler(n.node, centrifuge.WebsocketConfig{CheckOrigin: checkOrigin})
}

// Publish sends p to every channel subscriber and replaces the channel's history entry.
func (n *Node) Publish(p domain.Payload) error {
	data, err := wire.Encode(p)
	if err != nil {
		return err
	}
	if _, err := n.node.Publish(Channel, data, centrifuge.WithHistory(1, historyTTL)); err != nil {
		return fmt.Errorf("publish to channel %s: %w", Channel, err)
	}
	n.metrics.MessagesSent.WithLabelValues(centrifugeLabel).Inc()
	return nil
}

// Latest returns the payload held in channel history.
func (n *Node) Latest() (domain.Payload, bool, error) {
	res, err := n.node.History(Channel, centrifuge.WithLimit(1))
	if err != nil {
		return domain.Payload{}, false, fmt.Errorf("read channel history: %w", err)
	}
	if len(res.Publications) == 0 {
		return domain.Payload{}, false, nil
	}
	p, err := wire.Decode(res.Publications[0].Data)
	if err != nil {
		return domain.Payload{}, false, err
	}
	return p, true, nil
}

// Follow forwards relay payloads into the channel until ctx ends. It
// resubscribes after an eviction so a stall never silences the channel.
func (n *Node) Follow(ctx context.Context, src Subscriber) {
	for {
		sub, err := src.Subscribe(ctx, "")
		if err != nil {
			slog.WarnContext(ctx, "Centrifuge bridge could not subscribe", "error", err)
			return
		}

		n.forward(ctx, sub)
		sub.Close()

		if ctx.Err() != nil || sub.Reason() == relay.ReasonShutdown {
			return
		}
		slog.WarnContext(ctx, "Centrifuge bridge subscription ended, resubscribing", "reason", sub.Reason())

		select {
		case <-time.After(resubscribeDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) forward(ctx context.Context, sub *relay.Subscription) {
	for {
		select {
		case p, ok := <-sub.Updates():
			if !ok {
				return
			}
			if err := n.Publish(p); err != nil {
				slog.WarnContext(ctx, "Centrifuge publish failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) onConnecting(ctx context.Context, _ centrifuge.ConnectEvent) (centrifuge.ConnectReply, error) {
	if _, ok := centrifuge.GetCredentials(ctx); ok {
		return centrifuge.ConnectReply{}, nil
	}
	return centrifuge.ConnectReply{Credentials: &centrifuge.Credentials{}}, nil
}

func (n *Node) onConnect(client *centrifuge.Client) {
	clientID := client.UserID()
	slog.Debug("Centrifuge client connected", "client_id", clientID, "conn_id", client.ID())
	n.metrics.ActiveConnections.WithLabelValues(centrifugeLabel).Inc()

	if clientID != "" {
		n.mu.Lock()
		prev := n.clients[clientID]
		n.clients[clientID] = client
		n.mu.Unlock()

		if prev != nil {
			slog.Info("Superseding centrifuge client with same client id", "client_id", clientID)
			prev.Disconnect(centrifuge.Disconnect{Code: disconnectReplaced, Reason: string(relay.ReasonSuperseded)})
		}
	}

	client.OnSubscribe(func(e centrifuge.SubscribeEvent, cb centrifuge.SubscribeCallback) {
		if e.Channel != Channel {
			cb(centrifuge.SubscribeReply{}, centrifuge.ErrorPermissionDenied)
			return
		}
		cb(centrifuge.SubscribeReply{Options: centrifuge.SubscribeOptions{
			EnablePositioning: true,
			EnableRecovery:    true,
			RecoveryMode:      centrifuge.RecoveryModeCache,
		}}, nil)
	})

	client.OnDisconnect(func(e centrifuge.DisconnectEvent) {
		slog.Debug("Centrifuge client disconnected", "client_id", clientID, "reason", e.Reason)
		n.metrics.ActiveConnections.WithLabelValues(centrifugeLabel).Dec()

		if clientID == "" {
			return
		}
		n.mu.Lock()
		if n.clients[clientID] == client {
			delete(n.clients, clientID)
		}
		n.mu.Unlock()
	})
}

func slogHandler(entry centrifuge.LogEntry) {
	attrs := make([]any, 0, len(entry.Fields)*2)
	for k, v := range entry.Fields {
		attrs = append(attrs, k, v)
	}
	switch entry.Level {
	case centrifuge.LogLevelDebug, centrifuge.LogLevelTrace:
		slog.Debug(entry.Message, attrs...)
	case centrifuge.LogLevelInfo:
		slog.Info(entry.Message, attrs...)
	case centrifuge.LogLevelWarn:
		slog.Warn(entry.Message, attrs...)
	case centrifuge.LogLevelError:
		slog.Error(entry.Message, attrs...)
	case centrifuge.LogLevelNone:
	}
}

func parseCentrifugeLogLevel(level string) centrifuge.LogLevel {
	switch level {
	case "debug":
		return centrifuge.LogLevelDebug
	case "warn":
		return centrifuge.LogLevelWarn
	case "error":
		return centrifuge.LogLevelError
	default:
		return centrifuge.LogLevelInfo
	}
}
