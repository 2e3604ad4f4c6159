package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/suyashkumar/dicom"

	"github.com/otcheredev/dicom-store-gateway/internal/config"
	"github.com/otcheredev/dicom-store-gateway/internal/database"
	"github.com/otcheredev/dicom-store-gateway/pkg/dimse"
	"github.com/otcheredev/dicom-store-gateway/pkg/events"
	"github.com/otcheredev/dicom-store-gateway/pkg/logger"
	"github.com/otcheredev/dicom-store-gateway/pkg/sender"
	"github.com/otcheredev/dicom-store-gateway/pkg/tags"
	"github.com/otcheredev/dicom-store-gateway/pkg/ulpdu"
)

func main() {
	cfg, err := config.LoadSCU()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if err := database.Connect(database.Config(cfg.Database)); err != nil {
		log.Warn().Err(err).Msg("failed to connect to database; peer lookup and audit trail disabled for this run")
	} else {
		defer database.Close()
	}

	paths := os.Args[1:]
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: storescu <file.dcm> [file.dcm ...]")
		os.Exit(2)
	}

	jobs := make([]sender.Job, 0, len(paths))
	for _, path := range paths {
		job, err := loadJob(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("skipping unreadable file")
			continue
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		log.Fatal().Msg("no sendable files")
	}

	bus := events.NewBus(256)
	go logEvents(bus)

	identity := ulpdu.UserIdentity{}
	switch {
	case cfg.JWT != "":
		identity = ulpdu.UserIdentity{Present: true, Type: 5, Token: cfg.JWT}
	case cfg.SAMLAssertion != "":
		identity = ulpdu.UserIdentity{Present: true, Type: 4, Token: cfg.SAMLAssertion}
	case cfg.KerberosServiceTicket != "":
		identity = ulpdu.UserIdentity{Present: true, Type: 3, Token: cfg.KerberosServiceTicket}
	case cfg.Username != "" && cfg.Password != "":
		identity = ulpdu.UserIdentity{Present: true, Type: 2, Username: cfg.Username, Password: cfg.Password}
	case cfg.Username != "":
		identity = ulpdu.UserIdentity{Present: true, Type: 1, Username: cfg.Username}
	}

	clientCfg := dimse.ClientConfig{
		CallingAETitle:            cfg.CallingAETitle,
		CalledAETitle:             cfg.CalledAETitle,
		Address:                   cfg.Addr,
		MaxPDULength:              cfg.MaxPDULength,
		ImplementationClassUID:    "1.2.826.0.1.3680043.2.1143.107.104.103.2",
		ImplementationVersionName: "GATEWAY_1",
		Identity:                  identity,
	}

	senderCfg := sender.Config{
		Client:         clientCfg,
		Workers:        cfg.Concurrency,
		NeverTranscode: cfg.NeverTranscode,
		FailFirst:      cfg.FailFirst,
	}
	summary, err := sender.Send(context.Background(), jobs, senderCfg, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("transfer failed")
	}

	log.Info().Int("sent", summary.Sent).Int("failed", summary.Failed).Msg("transfer complete")
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func loadJob(path string) (sender.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sender.Job{}, err
	}
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return sender.Job{}, err
	}
	_, _, sopInstanceUID, sopClassUID, err := tags.ExtractIdentifiers(&ds)
	if err != nil {
		return sender.Job{}, err
	}
	transferSyntax, err := tags.TransferSyntax(&ds)
	if err != nil {
		return sender.Job{}, err
	}
	return sender.Job{
		SOPClassUID:    sopClassUID,
		SOPInstanceUID: sopInstanceUID,
		TransferSyntax: transferSyntax,
		Dataset:        data,
	}, nil
}

func logEvents(bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	for ev := range ch {
		switch ev.Kind {
		case events.FileSending:
			log.Debug().Str("sop_instance_uid", ev.FileSendingPayload.SOPInstanceUID).Msg("sending")
		case events.FileSent:
			log.Info().Str("sop_instance_uid", ev.FileSentPayload.SOPInstanceUID).Uint16("status", ev.FileSentPayload.Status).Msg("sent")
		case events.FileError:
			log.Warn().Str("sop_instance_uid", ev.FileErrorPayload.SOPInstanceUID).Err(ev.FileErrorPayload.Err).Msg("send failed")
		}
	}
}
