package appmanager

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"TalkToDataLoanPro/api"
	"TalkToDataLoanPro/api/loanbook"
	"TalkToDataLoanPro/internal/config"
	"TalkToDataLoanPro/internal/jobs"
	"TalkToDataLoanPro/internal/logger"
	"TalkToDataLoanPro/internal/resource"
	"TalkToDataLoanPro/internal/serviceiface"
	"TalkToDataLoanPro/internal/store"
)

var (
	appConfig = &config.Config{}
	st        *store.Store
	profiles  store.Profiles
	pgxPool   *pgxpool.Pool
	resources *resource.ResourceManager
)

// SetConfig installs the environment configuration services fall back to
// when services.yaml leaves a setting out.
func SetConfig(c *config.Config) {
	appConfig = c
}

func SetStore(s *store.Store) {
	st = s
}

// SetProfiles replaces the store's profile source, typically with a chain
// that reads profile files before the database.
func SetProfiles(p store.Profiles) {
	profiles = p
}

func SetPgxPool(pool *pgxpool.Pool) {
	pgxPool = pool
}

// GetStore returns the active store
func GetStore() *store.Store {
	return st
}

// poolPinger lets the heartbeat probe a pgx pool.
type poolPinger struct{ pool *pgxpool.Pool }

func (p poolPinger) PingContext(ctx context.Context) error { return p.pool.Ping(ctx) }

var serviceConstructors = map[string]func(map[string]interface{}) serviceiface.Service{
	"logger": func(cfg map[string]interface{}) serviceiface.Service {
		return logger.NewLoggerService(withDefaults(cfg, map[string]interface{}{
			"level": appConfig.LogLevel,
		}))
	},
	"resourcemanager": func(cfg map[string]interface{}) serviceiface.Service {
		rm := resource.NewResourceManager(cfg)
		if st != nil && st.DB != nil {
			rm.AddResource("db", st.DB)
		}
		if pgxPool != nil {
			rm.AddResource("pgxpool", poolPinger{pgxPool})
		}
		resources = rm
		return rm
	},
	"cron": func(cfg map[string]interface{}) serviceiface.Service {
		cfg = withDefaults(cfg, map[string]interface{}{
			"recompute_schedule": appConfig.RecomputeSchedule,
			"timezone":           appConfig.TimeZone,
		})
		return jobs.NewCronService(cfg, st.Datasets, st.Records)
	},
	"loanbook": func(cfg map[string]interface{}) serviceiface.Service {
		deps := loanbook.NewDeps(st, profiles, loanbook.Settings{
			MaxUploadMB:    appConfig.MaxUploadMB,
			MaxEmptyRows:   appConfig.MaxEmptyRows,
			ConfigCacheTTL: appConfig.ConfigCacheTTL,
			Buckets:        appConfig.Buckets,
		}, healthStatus)
		return api.NewGatewayService(cfg, loanbook.NewRouter(deps), appConfig.HTTPPort)
	},
}

func healthStatus() map[string]string {
	if resources == nil {
		return nil
	}
	return resources.Status()
}

// withDefaults fills keys missing from cfg without touching the caller's map.
func withDefaults(cfg, defaults map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(cfg)+len(defaults))
	for k, v := range defaults {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

// ------------------- MANAGER -------------------

type AppManager struct {
	services []serviceiface.Service
	mu       sync.Mutex
}

func NewAppManager() *AppManager {
	return &AppManager{
		services: make([]serviceiface.Service, 0),
	}
}

func (am *AppManager) RegisterService(s serviceiface.Service) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.services = append(am.services, s)
}

func (am *AppManager) StartAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()

	// First pass: start all except Resourcemanager
	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			continue
		}
		fmt.Println("Starting service:", service.Name())
		if err := service.Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
		}
	}

	// Now start resourcemanager so its first heartbeat sees started services
	for _, service := range am.services {
		if service.Name() == "resourcemanager" {
			fmt.Println("Starting service:", service.Name())
			if err := service.Start(); err != nil {
				return fmt.Errorf("failed to start service %s: %w", service.Name(), err)
			}
		}
	}
	return nil
}

// StopAll stops services in reverse order and reports the first failure
// after trying every service.
func (am *AppManager) StopAll() error {
	am.mu.Lock()
	defer am.mu.Unlock()
	var first error
	for i := len(am.services) - 1; i >= 0; i-- {
		svc := am.services[i]
		if err := svc.Stop(); err != nil && first == nil {
			first = fmt.Errorf("failed to stop service %s: %w", svc.Name(), err)
		}
	}
	return first
}

// ------------------- YAML CONFIG -------------------

type ServiceSequencer struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name       string                 `yaml:"name"`
	StartOrder int                    `yaml:"start_order"`
	Config     map[string]interface{} `yaml:"config"`
}

func LoadServiceSequence(path string) ([]ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseServiceSequence(data)
}

// ParseServiceSequence decodes services.yaml content sorted by start_order.
func ParseServiceSequence(data []byte) ([]ServiceConfig, error) {
	var seq ServiceSequencer
	if err := yaml.Unmarshal(data, &seq); err != nil {
		return nil, err
	}

	sort.SliceStable(seq.Services, func(i, j int) bool {
		return seq.Services[i].StartOrder < seq.Services[j].StartOrder
	})

	return seq.Services, nil
}

// AutoRegisterServices builds every known service in sequence order.
// SetStore must have been called first. Unknown names are an error so a
// typo in services.yaml does not silently drop a service.
func (am *AppManager) AutoRegisterServices(configs []ServiceConfig) error {
	if st == nil {
		return fmt.Errorf("appmanager: no store configured")
	}
	for _, svc := range configs {
		constructor, ok := serviceConstructors[svc.Name]
		if !ok {
			return fmt.Errorf("appmanager: unknown service %q", svc.Name)
		}
		if enabled, ok := svc.Config["enabled"].(bool); ok && !enabled {
			continue
		}
		am.RegisterService(constructor(svc.Config))
	}

	for _, svc := range am.services {
		if l, ok := svc.(*logger.LoggerService); ok {
			logger.SetGlobalLogger(l)
			break
		}
	}
	return nil
}

func (am *AppManager) GetServiceByName(name string) serviceiface.Service {
	for _, svc := range am.services {
		if svc.Name() == name {
			return svc
		}
	}
	return nil
}
