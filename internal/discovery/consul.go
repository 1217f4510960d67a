package discovery

import (
	"context"
	"fmt"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

// ConsulProvider lists and watches healthy service instances from a Consul
// catalog, the production discovery backend. hashicorp/consul/api is used
// directly rather than through a discovery wrapper package, since none is
// imported here (see DESIGN.md).
type ConsulProvider struct {
	client *consulapi.Client
}

func NewConsulProvider(addr string) (*ConsulProvider, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: consul client: %w", err)
	}
	return &ConsulProvider{client: client}, nil
}

func (p *ConsulProvider) List(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error) {
	entries, _, err := p.client.Health().Service(serviceName, "", true, (&consulapi.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discovery: consul health query: %w", err)
	}

	out := make([]*model.ServiceInstance, 0, len(entries))
	for _, e := range entries {
		weight := 1
		if w, ok := e.Service.Meta["weight"]; ok {
			fmt.Sscanf(w, "%d", &weight)
		}
		inst := model.NewServiceInstance(serviceName, e.Service.ID, e.Service.Address, e.Service.Port, weight)
		out = append(out, inst)
	}
	return out, nil
}

// Watch uses Consul's blocking query semantics (via WaitIndex) to push
// updates as soon as the catalog changes, falling back to a bounded poll
// interval between blocking calls.
func (p *ConsulProvider) Watch(ctx context.Context, serviceName string) (<-chan []*model.ServiceInstance, error) {
	ch := make(chan []*model.ServiceInstance, 1)
	go func() {
		defer close(ch)
		var lastIndex uint64
		for {
			opts := (&consulapi.QueryOptions{WaitIndex: lastIndex, WaitTime: 30 * time.Second}).WithContext(ctx)
			entries, meta, err := p.client.Health().Service(serviceName, "", true, opts)
			if err != nil {
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			lastIndex = meta.LastIndex

			out := make([]*model.ServiceInstance, 0, len(entries))
			for _, e := range entries {
				out = append(out, model.NewServiceInstance(serviceName, e.Service.ID, e.Service.Address, e.Service.Port, 1))
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
