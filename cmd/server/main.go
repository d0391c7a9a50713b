package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"studio-booking-api/internal/config"
	"studio-booking-api/internal/handler"
	"studio-booking-api/internal/health"
	"studio-booking-api/internal/ratelimit"
	"studio-booking-api/internal/reminder"
)

func main() {
	app := fx.New(
		fx.Provide(func() (config.Config, error) { return config.Load(".") }),
		fx.Provide(provideLocation),
		infraModule,
		domainModule,

		fx.Provide(provideRouter),
		fx.Invoke(seedAdmin),
		fx.Invoke(startHTTP),
		fx.Invoke(startHealth),
		fx.Invoke(startReminders),
		fx.Invoke(startJanitors),
	)
	app.Run()
}

func provideRouter(h *handler.Handler) *gin.Engine {
	r := gin.Default()
	h.Routes(r)
	return r
}

func startHTTP(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine) {
	srv := &http.Server{Addr: cfg.Server.Address, Handler: engine}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Printf("http on %s", cfg.Server.Address)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("http: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("shutting down http")
			return srv.Shutdown(ctx)
		},
	})
}

func startHealth(lc fx.Lifecycle, cfg config.Config, pool *pgxpool.Pool) {
	// probes have their own bucket
	hs := health.New(pool, ratelimit.New(5, 10, nil))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPC.Address)
			if err != nil {
				return err
			}
			go func() {
				if err := hs.Serve(lis); err != nil {
					log.Printf("grpc: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			hs.Stop()
			return nil
		},
	})
}

func startReminders(lc fx.Lifecycle, cfg config.Config, job *reminder.Job) error {
	if cfg.Reminders.Schedule == "" {
		log.Println("reminders: no schedule, waiting for the dispatch endpoint")
		return nil
	}
	c, err := job.Schedule(cfg.Reminders.Schedule)
	if err != nil {
		return err
	}
	log.Printf("reminders: scheduled %q", cfg.Reminders.Schedule)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}

func startJanitors(lc fx.Lifecycle, limiters limiters) {
	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go limiters.Booking.Janitor(stop)
			go limiters.Auth.Janitor(stop)
			return nil
		},
		OnStop: func(context.Context) error {
			close(stop)
			return nil
		},
	})
}

func provideLocation(cfg config.Config) (*time.Location, error) {
	return cfg.Location()
}
