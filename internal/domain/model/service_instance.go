package model

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ServiceInstance is one addressable backend worker process (a logic,
// chat, or fight shard) known to the router and registry.
type ServiceInstance struct {
	ServiceName string
	InstanceID  string
	Address     string
	Port        int
	Weight      int

	healthy        atomic.Bool
	lastHealthCheck atomic.Int64
}

func NewServiceInstance(serviceName, instanceID, address string, port, weight int) *ServiceInstance {
	si := &ServiceInstance{
		ServiceName: serviceName,
		InstanceID:  instanceID,
		Address:     address,
		Port:        port,
		Weight:      weight,
	}
	si.healthy.Store(true)
	si.lastHealthCheck.Store(time.Now().UnixNano())
	return si
}

func (s *ServiceInstance) Endpoint() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

func (s *ServiceInstance) IsHealthy() bool { return s.healthy.Load() }

func (s *ServiceInstance) SetHealthy(ok bool) {
	s.healthy.Store(ok)
	s.lastHealthCheck.Store(time.Now().UnixNano())
}

func (s *ServiceInstance) LastHealthCheck() time.Time {
	return time.Unix(0, s.lastHealthCheck.Load())
}

// Key satisfies the ring.Member interface used by the consistent hash ring.
func (s *ServiceInstance) Key() string { return s.ServiceName + "/" + s.InstanceID }
