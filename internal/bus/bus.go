package bus

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

// DefaultChannelBufferSize is the per-subscriber queue depth used when
// the config leaves it unset.
const DefaultChannelBufferSize = 1000

// New builds the event bus named by cfg.Type. An empty type selects the
// in-process channel bus of the community profile; "nats" connects to
// the broker shared by the API and worker processes.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Type)); kind {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		b, err := NewNATSBus(cfg)
		if err != nil {
			return nil, fmt.Errorf("nats event bus: %w", err)
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type %q (want channel or nats)", cfg.Type)
	}
}
