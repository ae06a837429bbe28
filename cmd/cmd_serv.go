package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amsterdam/dso-gateway/internal/httpapi"
	"github.com/amsterdam/dso-gateway/internal/logging"
	"github.com/amsterdam/dso-gateway/internal/render"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/store"
)

func servCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"serv"},
		Short:   "Run the gateway HTTP service",
		Run:     cmdServ,
	}
	return c
}

func cmdServ(cmd *cobra.Command, args []string) {
	setup(cpath)

	zlog := logging.New(conf.LogLevel, conf.ShouldUseJSONLogs())

	reg, err := sdata.NewRegistry(sdata.NewFSLoader(conf.SchemaPath))
	if err != nil {
		log.Fatalf("schema load failed: %s", err)
	}

	profiles, err := scopes.NewProfileStore(scopes.NewFSLoader(conf.SchemaPath + "/profiles"))
	if err != nil {
		log.Fatalf("profile load failed: %s", err)
	}

	db, err := store.Open(store.Config{
		DriverName:      conf.DB.Type,
		ConnString:      conf.DB.ConnString,
		MaxOpenConns:    conf.DB.MaxOpenConns,
		MaxIdleConns:    conf.DB.MaxIdleConns,
		ConnMaxLifetime: conf.DB.MaxConnLifetime,
	})
	if err != nil {
		log.Fatalf("database open failed: %s", err)
	}
	defer db.Close()

	prefetch := render.NewPrefetchCache(conf.Prefetch.MaxEntries, conf.Prefetch.TTL)

	srv := httpapi.NewServer(reg, profiles, zlog, db, prefetch, httpapi.Config{
		BaseURL:           conf.BaseURL,
		DefaultPageSize:   20,
		MaxPageSize:       1000,
		RateLimitEnabled:  conf.RateLimiter.Enable,
		RequestsPerSecond: conf.RateLimiter.RequestsPerSecond,
		RateLimitBurst:    conf.RateLimiter.Burst,
	})

	handler := srv.Router(httpapi.CORSConfig{
		AllowedOrigins: conf.AllowedOrigins,
		Debug:          conf.DebugCORS,
	})

	hs := &http.Server{
		Addr:              conf.HostPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// SIGHUP re-reads schemas and profiles; a failed reload logs and
	// keeps the previous snapshot serving.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := reg.Reload(); err != nil {
				log.Errorf("schema reload failed: %s", err)
				continue
			}
			if err := profiles.Reload(); err != nil {
				log.Errorf("profile reload failed: %s", err)
				continue
			}
			log.Info("schema and profiles reloaded")
		}
	}()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := hs.Shutdown(ctx); err != nil {
			log.Errorf("shutdown: %s", err)
		}
	}()

	log.Infof("%s listening on %s", conf.AppName, conf.HostPort)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %s", err)
	}
}
