package messaging

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/nats-io/nats.go"
)

// Broadcaster publishes JSON-encoded town events on the embedded server.
type Broadcaster struct {
	server *NatsServer
}

func NewBroadcaster(server *NatsServer) *Broadcaster {
	return &Broadcaster{server: server}
}

func (b *Broadcaster) Publish(_ context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "failed to encode event", goerr.V("subject", subject))
	}
	if err := b.server.Publish(subject, data); err != nil {
		return goerr.Wrap(err, "failed to publish event", goerr.V("subject", subject))
	}
	return nil
}

// Watch connects to a running server at url and calls fn with every
// message on subject until ctx is cancelled. Wildcards are allowed.
func Watch(ctx context.Context, url, subject string, fn func(subject string, data []byte)) error {
	conn, err := nats.Connect(url)
	if err != nil {
		return goerr.Wrap(err, "failed to connect", goerr.V("url", url))
	}
	defer conn.Close()

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		fn(msg.Subject, msg.Data)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to subscribe", goerr.V("subject", subject))
	}
	defer func() { _ = sub.Unsubscribe() }()

	<-ctx.Done()
	return nil
}
