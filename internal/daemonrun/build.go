package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vigil/internal/admission"
	"vigil/internal/config"
	"vigil/internal/inference"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/notify"
	"vigil/internal/pipeline"
	"vigil/internal/preflight"
	"vigil/internal/services"
	"vigil/internal/sink"
	"vigil/internal/source"
	"vigil/internal/storage"
	"vigil/internal/store"
	"vigil/internal/suppression"
)

// runtime holds every component built for one daemon run.
type runtime struct {
	logger       *slog.Logger
	store        *store.Store
	source       source.Source
	manager      *source.Manager
	devices      *source.DeviceWatcher
	detector     *inference.HTTPDetector
	describer    *inference.LLMDescriber
	coordinator  *inference.Coordinator
	guardian     *storage.Guardian
	hub          *notify.Hub
	orchestrator *pipeline.Orchestrator
}

var openStore = store.Open

// build constructs the component graph. Subscriber connection failures are
// logged and skipped; every other failure aborts startup.
func build(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (_ *runtime, err error) {
	rt := &runtime{logger: logger}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	rt.store, err = openStore(cfg.DatabasePath())
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "open event store", cfg.DatabasePath(), err)
	}

	rt.source, err = source.New(cfg.Source)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "build source", source.RedactURL(cfg.Source.URL), err)
	}
	rt.manager = source.NewManager(rt.source, cfg.Source, logger,
		source.WithStateObserver(func(s source.State) { m.SetConnectionState(int(s)) }),
		source.WithAttemptObserver(m.RecordAttempt),
	)
	rt.devices = source.NewDeviceWatcher(cfg.Source.Device, rt.manager, logger)

	motion := admission.NewDiffDetector(cfg.Admission)
	filter, err := admission.NewFilter(motion, cfg.Admission, logger)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "build admission filter", "", err)
	}

	rt.detector, err = inference.NewHTTPDetector(cfg.Detector)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "build detector", "", err)
	}
	var describer inference.Describer
	if rt.describer = inference.NewLLMDescriber(cfg.Describer); rt.describer != nil {
		describer = rt.describer
	}
	rt.coordinator, err = inference.NewCoordinator(rt.detector, describer, cfg.Detector, cfg.Describer, logger,
		inference.WithLatencyObserver(m.ObserveLatency),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "build inference", "", err)
	}

	engine, err := suppression.New(cfg.Suppression.Window, cfg.Suppression.Threshold)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "build suppression", "", err)
	}

	st := rt.store
	rt.guardian, err = storage.NewGuardian(cfg.Paths.DataDir, cfg.Storage, logger,
		storage.WithOnRotate(func(ctx context.Context, shard string) error {
			removed, err := st.DeleteShard(ctx, shard)
			if err != nil {
				return err
			}
			m.StorageRotations.Inc()
			logger.Debug("event rows removed with shard",
				logging.Shard(shard),
				logging.Int64("rows", removed),
			)
			return nil
		}),
		storage.WithObserver(func(s storage.Stats) { m.SetStorage(s.TotalBytes, s.Percent) }),
	)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "build storage guardian", cfg.Paths.DataDir, err)
	}

	sinks := sink.NewFanOut(logger, m.RecordPersistenceFailure,
		sink.NewStoreSink(rt.store),
		sink.NewJSONLSink(cfg.Paths.DataDir),
		sink.NewTextSink(cfg.Paths.DataDir),
	)
	images := sink.NewImageWriter(cfg.Paths.DataDir, cfg.Pipeline.AnnotateImages, cfg.Pipeline.JPEGQuality)

	rt.hub = notify.NewHub(cfg.Notify.QueueSize, logger,
		notify.WithDropObserver(m.RecordDrop),
		notify.WithPublishTimeout(time.Duration(cfg.Notify.RequestTimeout)*time.Second),
	)
	subscribe(rt.hub, cfg.Notify, logger)

	rt.orchestrator, err = pipeline.New(cfg, pipeline.Components{
		Source:     rt.manager,
		Admission:  filter,
		Inference:  rt.coordinator,
		Suppressor: engine,
		Guardian:   rt.guardian,
		Sinks:      sinks,
		Images:     images,
		Publisher:  rt.hub,
		Observer:   m,
	}, logger)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "build pipeline", "", err)
	}
	return rt, nil
}

// subscribe attaches every configured notification subscriber to hub.
func subscribe(hub *notify.Hub, cfg config.Notify, logger *slog.Logger) {
	if cfg.NATSURL != "" {
		if sub, err := notify.NewNATSSubscriber(cfg, logger); err != nil {
			subscriberUnavailable(logger, "nats", err)
		} else {
			hub.Subscribe(sub)
		}
	}
	if cfg.MQTTBroker != "" {
		if sub, err := notify.NewMQTTSubscriber(cfg, logger); err != nil {
			subscriberUnavailable(logger, "mqtt", err)
		} else {
			hub.Subscribe(sub)
		}
	}
	if cfg.NtfyTopic != "" {
		hub.Subscribe(notify.NewNtfySubscriber(cfg))
	}
}

func subscriberUnavailable(logger *slog.Logger, name string, err error) {
	logging.WarnWithContext(logger, "notification subscriber unavailable", "notify_subscriber_unavailable",
		logging.String("subscriber", name),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the broker address in [notify]"),
		logging.String(logging.FieldImpact, "events are not published to "+name),
	)
}

func (rt *runtime) preflightTargets() preflight.Targets {
	t := preflight.Targets{
		Source:   rt.source,
		Detector: rt.detector,
		Store:    rt.store,
		Guardian: rt.guardian,
	}
	if rt.describer != nil {
		t.Describer = rt.describer
	}
	return t
}

// applyConfig hot-reloads the settings that can change without a restart.
func (rt *runtime) applyConfig(cfg *config.Config) {
	if cfg == nil || rt.coordinator == nil {
		return
	}
	rt.coordinator.SetFilter(inference.FilterFromConfig(cfg.Detector))
}

// close releases what build opened. The orchestrator owns the source, sinks
// and hub once it has run; closing them again is harmless.
func (rt *runtime) close() {
	if rt == nil {
		return
	}
	var errs []error
	if rt.orchestrator == nil {
		if rt.manager != nil {
			rt.manager.Disconnect()
		}
		if rt.hub != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			errs = append(errs, rt.hub.Close(ctx))
			cancel()
		}
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if err := errors.Join(errs...); err != nil && rt.logger != nil {
		rt.logger.Debug("runtime close reported errors", logging.Error(fmt.Errorf("close: %w", err)))
	}
}
