package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"livecast/internal/api"
	"livecast/internal/config"
	"livecast/internal/domain"
	"livecast/internal/marker"
	"livecast/internal/media"
	"livecast/internal/recording"
	"livecast/internal/rtc"
	"livecast/internal/session"
	"livecast/internal/state"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	role := domain.RoleBroadcaster
	if cfg.Role == "viewer" {
		role = domain.RoleViewer
	}

	markerStore, err := marker.Open(cfg.MarkerPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session marker store")
	}
	defer markerStore.Close()

	store := state.NewStore()
	events, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range events {
			log.Debug().Str("module", "main").Str("field", ev.Field).Msg("state changed")
		}
	}()

	apiClient := api.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	ctrl := session.NewController(apiClient, store, markerStore, rtc.NewClient)

	mediaMgr := media.NewManager(media.NewDevice(), media.Profile{
		IdealWidth:     cfg.Media.IdealWidth,
		IdealHeight:    cfg.Media.IdealHeight,
		IdealFrameRate: cfg.Media.IdealFrameRate,
	})
	defer mediaMgr.Dispose()

	creds, restored, err := ctrl.RestoreSession(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("previous session not restorable")
	}
	if !restored {
		roomName := cfg.Room
		if role == domain.RoleViewer {
			if roomName == "" {
				// Viewers without a configured room join the busiest one.
				rooms, err := apiClient.GetRoomList(ctx)
				if err != nil {
					log.Fatal().Err(err).Msg("failed to list rooms")
				}
				if len(rooms) == 0 {
					log.Fatal().Msg("no active rooms to watch")
				}
				pick := rooms[0]
				for _, r := range rooms[1:] {
					if r.NumParticipants > pick.NumParticipants {
						pick = r
					}
				}
				roomName = pick.Name
			}
		} else {
			roomName, err = ctrl.CreateRoom(ctx, roomName)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to create room")
			}
		}
		creds, err = ctrl.InitializeStream(ctx, roomName, role)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to fetch stream credentials")
		}
	}

	var stream *media.CaptureStream
	if role == domain.RoleBroadcaster {
		stream, err = mediaMgr.Acquire(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open capture devices")
		}
	}

	if err := ctrl.Connect(ctx, creds, stream); err != nil {
		if kind, ok := domain.KindOf(err); ok && kind == domain.FailurePublish {
			log.Error().Err(err).Msg("stream is up with degraded publication")
		} else {
			log.Fatal().Err(err).Msg("failed to start stream")
		}
	}

	recorder := recording.NewRecorder(cfg.RecordingDir)
	if stream != nil {
		if src, ok := stream.VideoTrack().(media.EncodedSource); ok {
			if path, err := recorder.Start(src); err != nil {
				log.Warn().Err(err).Msg("local recording unavailable")
			} else {
				log.Info().Str("path", path).Msg("local recording started")
			}
		}
	}

	snap := store.Snapshot()
	log.Info().
		Str("room", snap.RoomID).
		Str("sid", snap.RoomSID).
		Str("state", snap.ConnectionState.String()).
		Msg("livecast started")

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		if _, err := recorder.Stop(); err != nil && err != recording.ErrNotRecording {
			log.Error().Err(err).Msg("recorder stop")
		}
		if err := ctrl.DeleteRoom(); err != nil {
			log.Error().Err(err).Msg("room teardown")
		}
	}()
	select {
	case <-shutdownDone:
		log.Info().Msg("Exited gracefully")
	case <-time.After(5 * time.Second):
		log.Error().Msg("Forced to shutdown")
	}
}
