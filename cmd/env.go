package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/domain-scout/internal/cache"
	"github.com/sells-group/domain-scout/internal/store"
	"github.com/sells-group/domain-scout/pkg/anthropic"
	"github.com/sells-group/domain-scout/pkg/rdap"
	"github.com/sells-group/domain-scout/pkg/registrar"
)

// initStore opens the configured database backend and runs migrations.
// Callers should defer st.Close().
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "domains.db"
		}
		st, err = store.OpenSQLite(dsn)
	case "postgres":
		st, err = store.OpenPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initCache builds the configured cache backend.
func initCache(ctx context.Context) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return cache.NewMemory(), nil
	case "redis":
		return cache.NewRedis(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	default:
		return nil, eris.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}

func initRDAP() rdap.Client {
	opts := []rdap.Option{
		rdap.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.RDAP.TimeoutSecs) * time.Second}),
	}
	if cfg.RDAP.BaseURL != "" {
		opts = append(opts, rdap.WithBaseURL(cfg.RDAP.BaseURL))
	}
	if cfg.RDAP.RatePerSec > 0 {
		opts = append(opts, rdap.WithRateLimit(cfg.RDAP.RatePerSec, cfg.RDAP.RateBurst))
	}
	return rdap.NewClient(opts...)
}

func initAnthropic() (anthropic.Client, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (DOMAINSCOUT_ANTHROPIC_KEY)")
	}
	return anthropic.NewClient(cfg.Anthropic.Key), nil
}

func initRegistrar() (registrar.Client, error) {
	if cfg.Registrar.APIUser == "" || cfg.Registrar.APIKey == "" {
		return nil, eris.New("registrar credentials are required (DOMAINSCOUT_REGISTRAR_API_USER, DOMAINSCOUT_REGISTRAR_API_KEY)")
	}
	creds := registrar.Credentials{
		APIUser:  cfg.Registrar.APIUser,
		APIKey:   cfg.Registrar.APIKey,
		UserName: cfg.Registrar.Username,
		ClientIP: cfg.Registrar.ClientIP,
	}
	if creds.UserName == "" {
		creds.UserName = creds.APIUser
	}
	opts := []registrar.Option{
		registrar.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Registrar.TimeoutSecs) * time.Second}),
	}
	if cfg.Registrar.BaseURL != "" {
		opts = append(opts, registrar.WithBaseURL(cfg.Registrar.BaseURL))
	}
	zap.L().Debug("registrar client configured", zap.String("api_user", creds.APIUser))
	return registrar.NewClient(creds, opts...), nil
}
