package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

// instanceSnapshot is the wire shape an operator (or a control-plane
// process) publishes to push a topology change without waiting for the
// next poll.
type instanceSnapshot struct {
	ServiceName string `json:"service_name"`
	InstanceID  string `json:"instance_id"`
	Address     string `json:"address"`
	Port        int    `json:"port"`
	Weight      int    `json:"weight"`
	Removed     bool   `json:"removed"`
}

// AMQPWatchProvider layers incremental topology pushes on top of a base
// Provider's List: it subscribes to a per-service fanout exchange
// ("discovery.instances.<service>") and applies add/remove deltas to the
// base snapshot via Watermill/AMQP, rather than relying solely on
// poll-based refresh.
type AMQPWatchProvider struct {
	base       Provider
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewAMQPWatchProvider(base Provider, amqpURI string, logger *slog.Logger) (*AMQPWatchProvider, error) {
	sub, err := amqp.NewSubscriber(
		amqp.NewDurablePubSubConfig(amqpURI, nil),
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: amqp subscriber: %w", err)
	}
	return &AMQPWatchProvider{base: base, subscriber: sub, logger: logger}, nil
}

func (p *AMQPWatchProvider) List(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error) {
	return p.base.List(ctx, serviceName)
}

func (p *AMQPWatchProvider) Watch(ctx context.Context, serviceName string) (<-chan []*model.ServiceInstance, error) {
	snapshot, err := p.base.List(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	topic := "discovery.instances." + serviceName
	messages, err := p.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("discovery: subscribe %s: %w", topic, err)
	}

	byKey := make(map[string]*model.ServiceInstance, len(snapshot))
	for _, inst := range snapshot {
		byKey[inst.Key()] = inst
	}

	out := make(chan []*model.ServiceInstance, 1)
	out <- snapshot

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var delta instanceSnapshot
				if err := json.Unmarshal(msg.Payload, &delta); err != nil {
					p.logger.Warn("DISCOVERY_MALFORMED_DELTA", slog.Any("err", err))
					msg.Ack()
					continue
				}

				inst := model.NewServiceInstance(delta.ServiceName, delta.InstanceID, delta.Address, delta.Port, delta.Weight)
				if delta.Removed {
					delete(byKey, inst.Key())
				} else {
					byKey[inst.Key()] = inst
				}

				current := make([]*model.ServiceInstance, 0, len(byKey))
				for _, v := range byKey {
					current = append(current, v)
				}
				select {
				case out <- current:
				case <-ctx.Done():
					msg.Ack()
					return
				}
				msg.Ack()
			}
		}
	}()

	return out, nil
}

func (p *AMQPWatchProvider) Close() error { return p.subscriber.Close() }
