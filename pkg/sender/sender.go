// Package sender implements the SCU-side sender pipeline: parallel
// workers, each holding its own association, draining a shared job queue
// and publishing lifecycle events as they send.
package sender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/otcheredev/dicom-store-gateway/pkg/dimse"
	"github.com/otcheredev/dicom-store-gateway/pkg/dimseerr"
	"github.com/otcheredev/dicom-store-gateway/pkg/events"
	"github.com/otcheredev/dicom-store-gateway/pkg/ulpdu"
)

// DefaultTransferSyntaxes is proposed for every abstract syntax unless the
// caller overrides it.
var DefaultTransferSyntaxes = []string{
	"1.2.840.10008.1.2.1", // Explicit VR Little Endian
	"1.2.840.10008.1.2",   // Implicit VR Little Endian
}

// Job is one instance queued to send.
type Job struct {
	SOPClassUID    string
	SOPInstanceUID string
	TransferSyntax string
	Dataset        []byte
}

// Config controls one transfer run.
type Config struct {
	Client  dimse.ClientConfig
	Workers int
	// NeverTranscode proposes only each job's own (already-encoded)
	// transfer syntax per abstract syntax instead of every default
	// transfer syntax, so the peer must accept the file as-is or the
	// association negotiates no usable context for it.
	NeverTranscode bool
	// FailFirst aborts the remaining jobs on a worker's shard as soon
	// as one C-STORE fails, instead of continuing through the shard.
	FailFirst bool
}

// Summary is returned once every job has been attempted.
type Summary struct {
	Sent   int
	Failed int
}

// Send pre-scans jobs for the union of SOP classes (so every worker's
// association proposes every abstract syntax it is about to send, per
// spec), shards jobs round-robin across Workers parallel associations,
// and sends each job through dimse.Client.SendCStore.
func Send(ctx context.Context, jobs []Job, cfg Config, bus *events.Bus) (Summary, error) {
	start := time.Now()
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}

	proposals := buildProposals(jobs, cfg.NeverTranscode)

	if bus != nil {
		bus.Publish(events.Event{
			Kind: events.TransferStarted,
			At:   time.Now(),
			TransferStartedPayload: &events.TransferStartedPayload{
				DestinationAETitle: cfg.Client.CalledAETitle,
				TotalFiles:         len(jobs),
				Workers:            workers,
			},
		})
	}

	shards := make([][]Job, workers)
	for i, j := range jobs {
		shards[i%workers] = append(shards[i%workers], j)
	}

	var summary Summary
	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		shard := shards[w]
		if len(shard) == 0 {
			continue
		}
		group.Go(func() error {
			sent, failed := runWorker(gctx, w, shard, cfg.Client, proposals, cfg.FailFirst, bus)
			mu.Lock()
			summary.Sent += sent
			summary.Failed += failed
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return summary, err
	}

	if bus != nil {
		bus.Publish(events.Event{
			Kind: events.TransferCompleted,
			At:   time.Now(),
			TransferCompletedPayload: &events.TransferCompletedPayload{
				Sent: summary.Sent, Failed: summary.Failed, Duration: time.Since(start),
			},
		})
	}
	return summary, nil
}

func runWorker(ctx context.Context, worker int, shard []Job, clientCfg dimse.ClientConfig, proposals []ulpdu.PresentationContextProposal, failFirst bool, bus *events.Bus) (sent, failed int) {
	client, err := dimse.Associate(ctx, clientCfg, proposals)
	if err != nil {
		for _, j := range shard {
			publishFileError(bus, worker, j.SOPInstanceUID, err)
		}
		return 0, len(shard)
	}
	defer client.Release()

	for i, j := range shard {
		select {
		case <-ctx.Done():
			publishFileError(bus, worker, j.SOPInstanceUID, ctx.Err())
			failed++
			continue
		default:
		}

		if bus != nil {
			bus.Publish(events.Event{
				Kind: events.FileSending,
				At:   time.Now(),
				FileSendingPayload: &events.FileSendingPayload{SOPInstanceUID: j.SOPInstanceUID, Worker: worker},
			})
		}

		attemptStart := time.Now()
		result, err := client.SendCStore(j.SOPClassUID, j.SOPInstanceUID, j.Dataset, j.TransferSyntax)
		if err == nil && dimseerr.IsFailure(result.Status) {
			err = dimseerr.NewDimseStatusFailure("C-STORE", result.Status)
		}
		if err != nil {
			publishFileError(bus, worker, j.SOPInstanceUID, err)
			failed++
			if failFirst {
				remaining := shard[i+1:]
				for _, skipped := range remaining {
					publishFileError(bus, worker, skipped.SOPInstanceUID, fmt.Errorf("aborted: prior C-STORE failed and fail_first is set"))
				}
				failed += len(remaining)
				return sent, failed
			}
			continue
		}
		if bus != nil {
			bus.Publish(events.Event{
				Kind: events.FileSent,
				At:   time.Now(),
				FileSentPayload: &events.FileSentPayload{
					SOPInstanceUID: j.SOPInstanceUID, Worker: worker, Status: result.Status, Duration: time.Since(attemptStart),
				},
			})
		}
		sent++
	}
	return sent, failed
}

func publishFileError(bus *events.Bus, worker int, sopInstanceUID string, err error) {
	if bus == nil {
		return
	}
	bus.Publish(events.Event{
		Kind: events.FileError,
		At:   time.Now(),
		FileErrorPayload: &events.FileErrorPayload{SOPInstanceUID: sopInstanceUID, Worker: worker, Err: err},
	})
}

// buildProposals proposes one presentation context per distinct abstract
// syntax. When neverTranscode is set, each context offers only the
// transfer syntaxes the jobs' own files are already encoded in, so the
// peer either accepts the file as-is or the context goes unnegotiated;
// otherwise every abstract syntax gets the full set of default transfer
// syntaxes, leaving the peer free to pick whichever it prefers.
func buildProposals(jobs []Job, neverTranscode bool) []ulpdu.PresentationContextProposal {
	var order []string
	seen := make(map[string]bool)
	nativeTS := make(map[string]map[string]bool)
	for _, j := range jobs {
		if !seen[j.SOPClassUID] {
			seen[j.SOPClassUID] = true
			order = append(order, j.SOPClassUID)
		}
		if nativeTS[j.SOPClassUID] == nil {
			nativeTS[j.SOPClassUID] = make(map[string]bool)
		}
		if j.TransferSyntax != "" {
			nativeTS[j.SOPClassUID][j.TransferSyntax] = true
		}
	}
	var proposals []ulpdu.PresentationContextProposal
	id := byte(1)
	for _, abstractSyntax := range order {
		transferSyntaxes := DefaultTransferSyntaxes
		if neverTranscode {
			transferSyntaxes = nil
			for ts := range nativeTS[abstractSyntax] {
				transferSyntaxes = append(transferSyntaxes, ts)
			}
		}
		proposals = append(proposals, ulpdu.PresentationContextProposal{
			ID:               id,
			AbstractSyntax:   abstractSyntax,
			TransferSyntaxes: transferSyntaxes,
		})
		id += 2
	}
	return proposals
}
