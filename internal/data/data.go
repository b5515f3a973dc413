// Package data provides data access layer implementations.
// It handles database connections, telemetry persistence and webhook delivery.
package data

import (
	"github.com/google/wire"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewRedisClient,
	NewMySQLClient,
)
