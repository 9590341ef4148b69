package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"TalkToDataLoanPro/internal/config"
	"TalkToDataLoanPro/internal/dataset"
	"TalkToDataLoanPro/internal/logger"
	"TalkToDataLoanPro/internal/serviceiface"
)

type CronService struct {
	config map[string]interface{}
	job    *RecomputeJob
	cron   *cron.Cron
}

// NewCronService schedules the collection recompute. services.yaml may set
// recompute_schedule, timezone, batch_size and max_retries.
func NewCronService(cfg map[string]interface{}, datasets DatasetSource, records dataset.RecordStore) serviceiface.Service {
	rc := NewDefaultRecomputeConfig()
	if cfg != nil {
		if s, ok := cfg["recompute_schedule"].(string); ok && s != "" {
			rc.Schedule = s
		}
		if tz, ok := cfg["timezone"].(string); ok && tz != "" {
			rc.TimeZone = tz
		}
		if n := intValue(cfg["batch_size"]); n > 0 {
			rc.BatchSize = n
		}
		if v, ok := cfg["max_retries"]; ok {
			rc.MaxRetries = intValue(v)
		}
	}
	return &CronService{
		config: cfg,
		job:    &RecomputeJob{Datasets: datasets, Records: records, Config: rc},
	}
}

// NewDefaultRecomputeConfig returns the defaults from the config package.
func NewDefaultRecomputeConfig() RecomputeConfig {
	return RecomputeConfig{
		Schedule:   config.DefaultRecomputeSchedule,
		TimeZone:   config.DefaultTimeZone,
		BatchSize:  config.RecomputeBatchSize,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
		Timeout:    30 * time.Minute,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	rc := s.job.Config
	loc, err := time.LoadLocation(rc.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid timezone for collection recompute: %v", err)
	}

	s.cron = cron.New(cron.WithLocation(loc))
	_, err = s.cron.AddFunc(rc.Schedule, func() {
		logger.Audit("Running collection recompute at %s", time.Now().In(loc))
		ctx, cancel := context.WithTimeout(context.Background(), rc.Timeout)
		defer cancel()
		if _, err := s.job.Run(ctx); err != nil {
			logger.Audit("Collection recompute failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("unable to schedule collection recompute: %v", err)
	}
	s.cron.Start()

	logger.Audit("Cron service started with collection recompute (%s)", rc.Schedule)
	log.Println("Cron service started, collection recompute scheduled")
	return nil
}

func (s *CronService) Stop() error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	log.Println("Cron service stopped.")
	return nil
}

func intValue(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}
