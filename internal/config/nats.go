package config

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/talgya/mini-town/internal/messaging"
)

type Nats struct {
	Enabled      bool   `toml:"enabled"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	StartTimeout string `toml:"start_timeout"`
}

func (n *Nats) Validate() error {
	el := errors.NewErrorList()

	if n.StartTimeout != "" {
		if _, err := time.ParseDuration(n.StartTimeout); err != nil {
			el.Add(fmt.Errorf("nats.start_timeout: %w", err))
		}
	}
	if n.Port < -1 || n.Port > 65535 {
		el.Add(fmt.Errorf("nats.port %d is out of range", n.Port))
	}

	return el.Err()
}

// BuildServer creates the embedded NATS server. It returns nil when NATS
// is disabled.
func (n *Nats) BuildServer() (*messaging.NatsServer, error) {
	if !n.Enabled {
		return nil, nil
	}
	var opts []messaging.NatsServerOpt
	if n.StartTimeout != "" {
		d, err := time.ParseDuration(n.StartTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing start_timeout: %w", err)
		}
		opts = append(opts, messaging.WithStartTimeout(d))
	}
	if n.Host != "" {
		opts = append(opts, messaging.WithHost(n.Host))
	}
	if n.Port != 0 {
		opts = append(opts, messaging.WithPort(n.Port))
	}
	return messaging.NewNatsServer(opts...)
}
