package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/appmanager"
	"TalkToDataLoanPro/internal/config"
	"TalkToDataLoanPro/internal/store"
	"TalkToDataLoanPro/internal/store/pgstore"
	"TalkToDataLoanPro/internal/store/sqlitestore"
)

// openStore connects the configured backend. The returned closer releases
// every connection it opened.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return sqlitestore.New(db), func() { db.Close() }, nil

	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: open: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("postgres: ping: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("postgres: pool: %w", err)
		}
		if err := pgstore.Migrate(ctx, db, cfg.DBSchema); err != nil {
			pool.Close()
			db.Close()
			return nil, nil, err
		}
		appmanager.SetPgxPool(pool)
		return pgstore.New(db, pool, cfg.DBSchema), func() {
			pool.Close()
			db.Close()
		}, nil
	}
	return nil, nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
}

func main() {
	envFile := flag.String("env", "../.env", "dotenv file loaded before reading the environment")
	servicesFile := flag.String("services", "../services.yaml", "service sequence file")
	flag.Parse()

	// Load .env for local dev, missing file is fine
	_ = godotenv.Load(*envFile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}
	decimal.MarshalJSONWithoutQuotes = true

	st, closeStore, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	defer closeStore()

	appmanager.SetConfig(cfg)
	appmanager.SetStore(st)
	if cfg.ProfileDir != "" {
		appmanager.SetProfiles(store.ProfileChain{store.DirProfiles{Dir: cfg.ProfileDir}, st.Profiles})
	}

	manager := appmanager.NewAppManager()

	// Load service configs from YAML
	servicesCfg, err := appmanager.LoadServiceSequence(*servicesFile)
	if err != nil {
		log.Fatal("failed to load service sequence:", err)
	}
	if err := manager.AutoRegisterServices(servicesCfg); err != nil {
		log.Fatal("failed to register services:", err)
	}

	if err := manager.StartAll(); err != nil {
		log.Fatal("failed to start:", err)
	}
	log.Printf("[main] loan book running (driver=%s, port=%s)", cfg.Driver, cfg.HTTPPort)

	// Graceful shutdown handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	if err := manager.StopAll(); err != nil {
		log.Println("failed to stop:", err)
	}
}
