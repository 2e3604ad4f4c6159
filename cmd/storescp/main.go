package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/otcheredev/dicom-store-gateway/internal/cache"
	"github.com/otcheredev/dicom-store-gateway/internal/config"
	"github.com/otcheredev/dicom-store-gateway/internal/database"
	"github.com/otcheredev/dicom-store-gateway/internal/httpapi"
	"github.com/otcheredev/dicom-store-gateway/internal/identity"
	"github.com/otcheredev/dicom-store-gateway/internal/metrics"
	"github.com/otcheredev/dicom-store-gateway/internal/repository"
	"github.com/otcheredev/dicom-store-gateway/pkg/aggregator"
	"github.com/otcheredev/dicom-store-gateway/pkg/dimse"
	"github.com/otcheredev/dicom-store-gateway/pkg/events"
	"github.com/otcheredev/dicom-store-gateway/pkg/logger"
	"github.com/otcheredev/dicom-store-gateway/pkg/receiver"
	"github.com/otcheredev/dicom-store-gateway/pkg/storage"
	"github.com/otcheredev/dicom-store-gateway/pkg/tags"
)

var defaultTransferSyntaxes = []string{
	"1.2.840.10008.1.2.1", // Explicit VR Little Endian
	"1.2.840.10008.1.2",   // Implicit VR Little Endian
}

func main() {
	cfg, err := config.LoadSCP()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("starting DICOM store SCP")

	if err := database.Connect(database.Config(cfg.Database)); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	var cacheImpl cache.Cache
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		cacheImpl, err = cache.NewRedisCache(addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		log.Info().Msg("redis front-cache initialized")
	} else {
		cacheImpl = cache.NewMemoryCache()
		log.Info().Msg("memory front-cache initialized")
	}

	transferSyntaxes := defaultTransferSyntaxes
	if cfg.UncompressedOnly {
		transferSyntaxes = []string{"1.2.840.10008.1.2.1", "1.2.840.10008.1.2"}
	}

	var backend storage.Backend
	switch cfg.StorageBackend {
	case "object-store":
		log.Fatal().Msg("object-store backend requires an ObjectClient implementation to be wired in by the deployment; none configured")
	default:
		fsBackend, err := storage.NewFilesystemBackend(cfg.OutDir)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize filesystem storage backend")
		}
		backend = fsBackend
	}
	backend = storage.NewCachedBackend(backend, cacheImpl, 5*time.Minute)

	bus := events.NewBus(256)
	agg := aggregator.New(time.Duration(cfg.StudyTimeoutSecs)*time.Second, bus)
	auditRepo := repository.NewAuditRepository()
	peerRepo := repository.NewPeerRepository()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go metrics.Subscribe(ctx, bus)

	pipeline := &receiver.Pipeline{
		Backend:    backend,
		Aggregator: agg,
		Bus:        bus,
		Audit:      auditRepo,
		Log:        log.Logger,
		TagList:    tags.ResolveSymbolic(cfg.ExtractTags),
		GroupMode:  tags.ParseGroupMode(cfg.GroupingStrategy),
	}

	serverCfg := dimse.ServerConfig{
		AETitle:                   cfg.CallingAETitle,
		SupportedTransferSyntaxes: transferSyntaxes,
		MaxPDULength:              cfg.MaxPDULength,
		ImplementationClassUID:    "1.2.826.0.1.3680043.2.1143.107.104.103.1",
		ImplementationVersionName: "GATEWAY_1",
		Strict:                    cfg.Strict,
		Promiscuous:               cfg.Promiscuous,
	}

	// Identity validation is independent of Promiscuous: Promiscuous only
	// widens which SOP classes/transfer syntaxes negotiation accepts, it
	// says nothing about who is allowed to associate.
	peers, err := peerRepo.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load peer credentials, accepting identity-less associations only")
	}
	var creds []identity.Credential
	for _, p := range peers {
		if p.IdentityUsername != "" {
			creds = append(creds, identity.Credential{Username: p.IdentityUsername, PasswordHash: p.IdentityPasswordHash})
		}
	}
	validator := identity.NewValidator(creds, nil, false)
	serverCfg.IdentityValidator = validator.Validate

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind SCP listener")
	}

	router := httpapi.NewRouter(cfg.Ops, peerRepo, agg)
	opsAddr := fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port)
	opsServer := &http.Server{Addr: opsAddr, Handler: router}

	go func() {
		log.Info().Str("addr", listener.Addr().String()).Str("ae_title", cfg.CallingAETitle).Msg("SCP listening")
		if err := receiver.Serve(ctx, listener, serverCfg, pipeline); err != nil {
			log.Error().Err(err).Msg("SCP serve loop exited")
		}
	}()
	go func() {
		log.Info().Str("addr", opsAddr).Msg("ops HTTP surface listening")
		if err := opsServer.ListenAndServe(); err != nil {
			log.Debug().Err(err).Msg("ops HTTP server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	listener.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = opsServer.Shutdown(shutdownCtx)
	log.Info().Msg("SCP stopped")
}
