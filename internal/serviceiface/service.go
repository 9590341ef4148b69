// Package serviceiface is the lifecycle contract the app manager drives for
// every entry in services.yaml.
package serviceiface

// Service is started in sequence order and stopped in reverse. Start must
// not block; long-running work belongs in a goroutine stopped by Stop.
type Service interface {
	Name() string
	Start() error
	Stop() error
}
