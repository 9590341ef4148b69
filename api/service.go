package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"TalkToDataLoanPro/internal/serviceiface"
)

type GatewayService struct {
	config  map[string]interface{}
	handler http.Handler
	server  *http.Server
}

// NewGatewayService serves handler on the configured port. services.yaml
// may set port, shutdown_timeout, rate_interval, rate_burst and
// allowed_origins; defaultPort applies when port is absent.
func NewGatewayService(cfg map[string]interface{}, handler http.Handler, defaultPort string) serviceiface.Service {
	port := defaultPort
	switch v := cfg["port"].(type) {
	case int:
		port = fmt.Sprint(v)
	case string:
		if v != "" {
			port = v
		}
	}
	var interval time.Duration
	if v, ok := cfg["rate_interval"].(string); ok {
		interval, _ = time.ParseDuration(v)
	}
	burst, _ := cfg["rate_burst"].(int)

	h := AuditRequests(handler)
	h = RateLimit(NewLimiter(interval, burst), h)
	h = CORS(stringList(cfg["allowed_origins"]), h)
	return &GatewayService{
		config:  cfg,
		handler: handler,
		server: &http.Server{
			Addr:              ":" + port,
			Handler:           RecoverPanics(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// stringList accepts a YAML list or a comma separated string.
func stringList(v interface{}) []string {
	var out []string
	switch x := v.(type) {
	case string:
		for _, s := range strings.Split(x, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, e := range x {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func (s *GatewayService) Name() string {
	return "loanbook"
}

func (s *GatewayService) Start() error {
	go func() {
		log.Printf("API Gateway started on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Gateway server failed: %v", err)
		}
	}()
	return nil
}

func (s *GatewayService) Stop() error {
	timeout := 15 * time.Second
	if v, ok := s.config["shutdown_timeout"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil {
			timeout = d
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	log.Println("API Gateway stopped.")
	return nil
}
