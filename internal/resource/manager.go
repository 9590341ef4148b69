package resource

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"TalkToDataLoanPro/internal/logger"
	"TalkToDataLoanPro/internal/serviceiface"
)

// Pinger is a resource the heartbeat can probe, such as *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type ResourceManager struct {
	resources         map[string]interface{}
	status            map[string]error
	mu                sync.RWMutex
	stopChan          chan struct{}
	heartbeatInterval time.Duration
	pingTimeout       time.Duration
}

func NewResourceManagerService(cfg map[string]interface{}) serviceiface.Service {
	return NewResourceManager(cfg)
}

func NewResourceManager(cfg map[string]interface{}) *ResourceManager {
	interval := 30 * time.Second
	if val, ok := cfg["heartbeat_interval"]; ok {
		switch v := val.(type) {
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				interval = d
			}
		case int:
			interval = time.Duration(v) * time.Second
		case float64:
			interval = time.Duration(v) * time.Second
		}
	}
	return &ResourceManager{
		resources:         make(map[string]interface{}),
		status:            make(map[string]error),
		stopChan:          make(chan struct{}),
		heartbeatInterval: interval,
		pingTimeout:       5 * time.Second,
	}
}

func (rm *ResourceManager) Name() string { return "resourcemanager" }

func (rm *ResourceManager) Start() error {
	logger.Audit("ResourceManager started, heartbeat every %v", rm.heartbeatInterval)
	rm.Check(context.Background())
	go rm.heartbeatLoop()
	return nil
}

func (rm *ResourceManager) Stop() error {
	close(rm.stopChan)
	return nil
}

func (rm *ResourceManager) heartbeatLoop() {
	ticker := time.NewTicker(rm.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			for name, err := range rm.Check(context.Background()) {
				if err != nil {
					logger.Audit("heartbeat: %s unhealthy: %v", name, err)
				}
			}
		}
	}
}

// Check pings every Pinger resource and records the outcome.
func (rm *ResourceManager) Check(ctx context.Context) map[string]error {
	rm.mu.RLock()
	pingers := make(map[string]Pinger)
	for key, r := range rm.resources {
		if p, ok := r.(Pinger); ok {
			pingers[key] = p
		}
	}
	rm.mu.RUnlock()

	out := make(map[string]error, len(pingers))
	for key, p := range pingers {
		pctx, cancel := context.WithTimeout(ctx, rm.pingTimeout)
		out[key] = p.PingContext(pctx)
		cancel()
	}

	rm.mu.Lock()
	for key, err := range out {
		if prev, seen := rm.status[key]; seen && (prev == nil) != (err == nil) {
			log.Printf("[HEARTBEAT] %s healthy=%v", key, err == nil)
		}
		rm.status[key] = err
	}
	rm.mu.Unlock()
	return out
}

// Status reports the last heartbeat result per resource: "ok" or the error.
func (rm *ResourceManager) Status() map[string]string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make(map[string]string, len(rm.status))
	for key, err := range rm.status {
		if err != nil {
			out[key] = fmt.Sprintf("error: %v", err)
			continue
		}
		out[key] = "ok"
	}
	return out
}

func (rm *ResourceManager) AddResource(key string, resource interface{}) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.resources[key] = resource
}

func (rm *ResourceManager) GetResource(key string) (interface{}, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	resource, exists := rm.resources[key]
	return resource, exists
}

func (rm *ResourceManager) RemoveResource(key string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.resources, key)
	delete(rm.status, key)
}

func (rm *ResourceManager) ListResources() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	keys := make([]string, 0, len(rm.resources))
	for key := range rm.resources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
