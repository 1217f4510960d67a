package model

import "time"

// GatewayStats is the top-level shape served at /stats: a snapshot of
// every subsystem a dashboard or operator curl needs to see at once.
type GatewayStats struct {
	Uptime      time.Duration    `json:"uptime"`
	Connections ConnectionStats  `json:"connections"`
	RouteCache  RouteCacheStats  `json:"route_cache"`
}

type ConnectionStats struct {
	Active           int   `json:"active"`
	TotalCreated     int64 `json:"total_created"`
	TotalDestroyed   int64 `json:"total_destroyed"`
	PeakConcurrent   int64 `json:"peak_concurrent"`
	ConnectionErrors int64 `json:"connection_errors"`
}

type RouteCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}
