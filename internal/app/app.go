// Package app cablea las dependencias del servicio y expone el handler
// HTTP y el ciclo de vida del servidor.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mercatto/authd/internal/cache"
	memcache "github.com/mercatto/authd/internal/cache/memory"
	rediscache "github.com/mercatto/authd/internal/cache/redis"
	"github.com/mercatto/authd/internal/config"
	"github.com/mercatto/authd/internal/email"
	authctrl "github.com/mercatto/authd/internal/http/controllers/auth"
	emailctrl "github.com/mercatto/authd/internal/http/controllers/email"
	healthctrl "github.com/mercatto/authd/internal/http/controllers/health"
	socialctrl "github.com/mercatto/authd/internal/http/controllers/social"
	mw "github.com/mercatto/authd/internal/http/middlewares"
	"github.com/mercatto/authd/internal/http/router"
	authsvc "github.com/mercatto/authd/internal/http/services/auth"
	socialsvc "github.com/mercatto/authd/internal/http/services/social"
	jwtx "github.com/mercatto/authd/internal/jwt"
	"github.com/mercatto/authd/internal/metrics"
	"github.com/mercatto/authd/internal/observability/logger"
	"github.com/mercatto/authd/internal/session"
	"github.com/mercatto/authd/internal/social"
	"github.com/mercatto/authd/internal/social/providers"
	"github.com/mercatto/authd/internal/store/pg"
)

// App contiene las dependencias cableadas del servicio.
type App struct {
	Config  *config.Config
	Store   *pg.Store
	Handler http.Handler
}

// New construye la aplicación completa desde la configuración.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := pg.New(ctx, pg.Config{
		DSN:             cfg.Storage.DSN,
		MaxConns:        cfg.Storage.Postgres.MaxConns,
		ConnMaxLifetime: cfg.PostgresConnMaxLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	c, err := buildCache(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		store.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	identities := store.Identities()

	resolver := session.NewResolver(c, identities.GetByID, cfg.SnapshotTTL())

	adminIssuer := jwtx.NewIssuer(cfg.JWT.Admin.Secret, cfg.JWT.Admin.Issuer, cfg.JWT.Admin.TokenTTL())
	customerIssuer := jwtx.NewIssuer(cfg.JWT.Customer.Secret, cfg.JWT.Customer.Issuer, cfg.JWT.Customer.TokenTTL())

	registry, err := buildProviders(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	reconciler := social.NewReconciler(social.Deps{
		Identities: identities,
		Links:      store.Links(),
		Apple:      store.AppleProfiles(),
		Blacklist:  store.Blacklist(),
		Issuer:     customerIssuer,
		Sessions:   resolver,
	})

	authService := authsvc.NewService(authsvc.Deps{
		Identities:     identities,
		AdminIssuer:    adminIssuer,
		CustomerIssuer: customerIssuer,
		Resolver:       resolver,
	})
	socialService := socialsvc.NewService(socialsvc.Deps{
		Registry:   registry,
		Reconciler: reconciler,
	})

	sender := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	codes := email.NewCodeService(c, sender, cfg.EmailCodeTTL())

	handler := router.New(router.Deps{
		Auth: authctrl.NewController(authService,
			authctrl.CookieConfig{Name: cfg.JWT.Admin.CookieName, TTL: cfg.JWT.Admin.TokenTTL()},
			authctrl.CookieConfig{Name: cfg.JWT.Customer.CookieName, TTL: cfg.JWT.Customer.TokenTTL()},
		),
		Social: socialctrl.NewController(socialService),
		Email:  emailctrl.NewController(codes, identities, resolver),
		Health: healthctrl.NewController(store),
		Guard: mw.GuardDeps{
			AdminIssuer:    adminIssuer,
			CustomerIssuer: customerIssuer,
			Resolver:       resolver,
			AdminCookie:    cfg.JWT.Admin.CookieName,
			CustomerCookie: cfg.JWT.Customer.CookieName,
			AdminAPIKey:    cfg.Auth.AdminAPIKey,
		},
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		MetricsRegistry:    reg,
	})

	return &App{Config: cfg, Store: store, Handler: handler}, nil
}

// Close libera los recursos de la aplicación.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
}

// Serve levanta el servidor HTTP y bloquea hasta que el contexto se cancele,
// después drena conexiones con un plazo acotado.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("http server listening", logger.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Kind == "redis" {
		rc := rediscache.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
		if err := rc.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return rc, nil
	}
	return memcache.New(cfg.SnapshotTTL()), nil
}

func buildProviders(cfg *config.Config) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	if g := cfg.Providers.Google; g.Enabled {
		registry.Register(providers.NewGoogle(g.ClientID, g.ClientSecret, g.RedirectURL, g.Scopes))
		// One Tap comparte credenciales con Google pero postea el ID token
		// directo al callback.
		registry.Register(providers.NewGoogleOneTap(g.ClientID))
	}
	if f := cfg.Providers.Facebook; f.Enabled {
		registry.Register(providers.NewFacebook(f.ClientID, f.ClientSecret, f.RedirectURL, f.Scopes))
	}
	if a := cfg.Providers.Apple; a.Enabled {
		apple, err := providers.NewApple(a.ClientID, a.RedirectURL, a.TeamID, a.KeyID, a.KeyFile, a.Scopes)
		if err != nil {
			return nil, fmt.Errorf("apple provider: %w", err)
		}
		registry.Register(apple)
	}

	return registry, nil
}
