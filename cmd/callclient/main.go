// Command callclient joins an appointment's consultation channel from a
// headless host, publishes local camera and microphone, and records the call
// until interrupted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eldercare-platform/internal/audit"
	"eldercare-platform/internal/call"
	"eldercare-platform/internal/config"
	"eldercare-platform/internal/consult"
	"eldercare-platform/internal/docstore"
	"eldercare-platform/internal/events"
	"eldercare-platform/internal/media"
	"eldercare-platform/internal/media/pionrtc"
	"eldercare-platform/internal/records"
	"eldercare-platform/internal/token"
	"eldercare-platform/pkg/logger"
)

func main() {
	appointmentID := flag.String("appointment", "", "appointment to start a consultation for")
	listDevices := flag.Bool("devices", false, "list capture devices and exit")
	record := flag.Bool("record", false, "start server-side recording after joining")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := token.ValidateConfig(cfg.RTC.AppID); err != nil {
		log.Error("rtc config invalid", "err", err)
		os.Exit(1)
	}

	provider := pionrtc.NewProvider(cfg.RTC.SignalingURL, pionrtc.WithLogger(log))
	tokens := token.NewProvisioner(token.ProvisionerConfig{
		Endpoint:   cfg.RTC.TokenEndpoint,
		Production: cfg.IsProduction(),
		Strict:     cfg.RTC.TokenStrict,
		TTL:        cfg.RTC.TokenTTL,
	}, log)

	client := call.New(cfg.RTC.AppID, provider, tokens,
		call.WithLogger(logger.Component(log, "call")),
		call.WithDefaultChannel(cfg.RTC.DefaultChannel),
		call.WithClientConfig(media.ClientConfig{AppID: cfg.RTC.AppID, Mode: "rtc", Codec: "vp8"}),
	)

	if *listDevices {
		devs := client.GetAvailableDevices(rootCtx)
		for _, d := range append(devs.Cameras, devs.Microphones...) {
			log.Info("device", "kind", string(d.Kind), "id", d.ID, "label", d.Label)
		}
		return
	}
	if *appointmentID == "" {
		log.Error("-appointment is required")
		os.Exit(2)
	}

	store, closeStore, err := docstore.Open(rootCtx, cfg, log)
	if err != nil {
		log.Error("document store init failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer func() { _ = closeStore() }()

	auditor := audit.NewObserver(audit.NewService(audit.NewDocRepo(store)), log)
	defer auditor.Close()
	client.Events().Attach(auditor)
	client.Events().SubscribeAll(func(ev events.Event) {
		log.Debug("call event", "event", string(ev.Name))
	})

	if err := client.Initialize(rootCtx); err != nil {
		log.Error("call client init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Dispose(ctx); err != nil {
			log.Warn("dispose failed", "err", err)
		}
	}()

	syncer := records.NewSynchronizer(records.NewDocRepository(store, log), log)
	consultation := consult.New(client, syncer, consult.WithLogger(log))

	res, err := consultation.Start(rootCtx, *appointmentID)
	if !client.State().Joined {
		log.Error("consultation start failed", "appointment_id", *appointmentID, "err", err)
		return
	}
	if err != nil {
		// Joined without local media: remote participants still render.
		log.Warn("consultation started degraded", "err", err)
	}
	log.Info("consultation started", "appointment_id", *appointmentID, "channel", res.Channel, "uid", res.UID, "call_id", res.CallID)

	if *record {
		if _, err := consultation.ToggleRecording(rootCtx); err != nil {
			log.Warn("recording start failed", "err", err)
		}
	}

	<-rootCtx.Done()
	log.Info("ending consultation")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := consultation.End(ctx); err != nil {
		log.Warn("consultation end reported an error", "err", err)
	}
	_ = logger.ShutdownFlush(ctx, 2*time.Second)
}
