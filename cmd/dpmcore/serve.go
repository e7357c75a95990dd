package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/drowningchild/dpmcore/internal/api"
	"github.com/drowningchild/dpmcore/internal/dpm"
	"github.com/drowningchild/dpmcore/internal/dvfs"
	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
	"github.com/drowningchild/dpmcore/internal/infrastructure/database"
	"github.com/drowningchild/dpmcore/internal/infrastructure/influxdb"
	"github.com/drowningchild/dpmcore/internal/infrastructure/logging"
	"github.com/drowningchild/dpmcore/internal/infrastructure/mqtt"
	"github.com/drowningchild/dpmcore/migrations"
)

// influxConnectAttempts bounds the InfluxDB connection retries at startup.
const influxConnectAttempts = 5

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API, the DVFS governor and the event sinks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return serve(cmd.Context(), cfg, logging.New(cfg.Logging, version))
		},
	}
}

// serve runs until ctx is cancelled or a component fails.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - cfg: Loaded configuration
//   - log: Root logger
//
// Returns:
//   - error: nil on clean shutdown, or error describing the failure
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.Info("starting dpmcore",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", cfg.Site.ID,
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	steps := dvfs.NewStepHistory(db.DB, log.Component("dvfs"))
	sinks := dpm.MultiSink{dpm.NewMetrics(registry), hub}
	observers := []dvfs.Observer{dvfs.NewMetrics(registry).Observe, steps.Observe, hub.ObserveDVFS}

	g, gctx := errgroup.WithContext(ctx)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.ConnectWithRetry(ctx, cfg.MQTT, log.Component("mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

		pub := newMQTTPublisher(mqttClient, log.Component("mqtt"))
		sinks = append(sinks, pub)
		observers = append(observers, pub.Observe)
		g.Go(func() error { return pub.Run(gctx) })
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influx, err := influxdb.ConnectWithRetry(ctx, cfg.InfluxDB, influxConnectAttempts,
			influxdb.WithDefaultTag("site", cfg.Site.ID))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		rec := influxRecorder{client: influx}
		sinks = append(sinks, rec)
		observers = append(observers, rec.Observe)
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	history := dpm.NewSQLiteHistory(db.DB)
	st, err := buildStack(cfg, log, stackOptions{
		sink:      sinks,
		history:   history,
		observers: observers,
	})
	if err != nil {
		return err
	}
	defer st.close()

	srv, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Logger:        log.Component("api"),
		Manager:       st.manager,
		History:       history,
		Steps:         steps,
		Governor:      st.governor,
		DB:            db,
		MQTT:          mqttClient,
		Hub:           hub,
		Gatherer:      registry,
		Registerer:    registry,
		SleepDuration: cfg.Power.SleepDuration,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(gctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if st.governor != nil {
		g.Go(func() error { return st.governor.Run(gctx) })
		sampler := dvfs.NewSampler(dvfs.CPUSource{}, st.governor, cfg.DVFS.SampleInterval, log.Component("dvfs"))
		g.Go(func() error { return sampler.Run(gctx) })
		log.Info("dvfs sampler started", "device", cfg.DVFS.Device, "sample_interval", cfg.DVFS.SampleInterval)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("dpmcore stopped")
	return nil
}
