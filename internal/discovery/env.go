package discovery

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

// EnvProvider reads a static, comma-separated instance list from an
// environment variable named GATEWAY_INSTANCES_<SERVICE>, e.g.
// GATEWAY_INSTANCES_LOGIC="logic-1@10.0.0.5:7001,logic-2@10.0.0.6:7001".
// This is the default provider for local development and tests, with no
// external dependency required.
type EnvProvider struct {
	pollInterval time.Duration
}

func NewEnvProvider(pollInterval time.Duration) *EnvProvider {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &EnvProvider{pollInterval: pollInterval}
}

func (p *EnvProvider) List(_ context.Context, serviceName string) ([]*model.ServiceInstance, error) {
	key := "GATEWAY_INSTANCES_" + strings.ToUpper(serviceName)
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}

	var out []*model.ServiceInstance
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		inst, err := parseInstance(serviceName, entry)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func parseInstance(serviceName, entry string) (*model.ServiceInstance, error) {
	idAndAddr := strings.SplitN(entry, "@", 2)
	if len(idAndAddr) != 2 {
		return nil, fmt.Errorf("discovery: malformed instance entry %q", entry)
	}
	instanceID, addr := idAndAddr[0], idAndAddr[1]

	hostPort := strings.SplitN(addr, ":", 2)
	if len(hostPort) != 2 {
		return nil, fmt.Errorf("discovery: malformed address %q", addr)
	}
	port, err := strconv.Atoi(hostPort[1])
	if err != nil {
		return nil, fmt.Errorf("discovery: invalid port in %q: %w", addr, err)
	}
	return model.NewServiceInstance(serviceName, instanceID, hostPort[0], port, 1), nil
}

func (p *EnvProvider) Watch(ctx context.Context, serviceName string) (<-chan []*model.ServiceInstance, error) {
	ch := make(chan []*model.ServiceInstance, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		for {
			instances, err := p.List(ctx, serviceName)
			if err == nil {
				select {
				case ch <- instances:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
