// Package discovery abstracts how the service registry (internal/registry)
// learns about backend instances: a static environment-variable list for
// local development, a Consul-backed provider for production, and an
// AMQP-fanout watch provider that applies pushed topology changes to its
// Watch stream. The registry reads only List, on its refresh interval;
// no component consumes Watch, so pushed changes reach the registry only
// through the next List.
package discovery

import (
	"context"

	"github.com/kestrel-games/arcade-gateway/internal/domain/model"
)

// Provider lists current instances for a service and optionally streams
// incremental topology changes.
type Provider interface {
	// List returns the currently known instances of serviceName.
	List(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error)

	// Watch streams topology snapshots for serviceName until ctx is
	// cancelled. Implementations that only support polling may synthesize
	// a channel fed by periodic List calls.
	Watch(ctx context.Context, serviceName string) (<-chan []*model.ServiceInstance, error)
}
