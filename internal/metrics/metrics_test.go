package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/otcheredev/dicom-store-gateway/pkg/events"
)

func TestObserveFileStoredIncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(filesStoredTotal)
	observe(events.Event{Kind: events.FileStored, FileStoredPayload: &events.FileStoredPayload{Bytes: 1024}})
	if after := testutil.ToFloat64(filesStoredTotal); after != before+1 {
		t.Errorf("filesStoredTotal = %v, want %v", after, before+1)
	}
}

func TestObserveConnectionLabelsByAccepted(t *testing.T) {
	beforeAccepted := testutil.ToFloat64(associationsTotal.WithLabelValues("true"))
	observe(events.Event{Kind: events.Connection, ConnectionPayload: &events.ConnectionPayload{Accepted: true}})
	if after := testutil.ToFloat64(associationsTotal.WithLabelValues("true")); after != beforeAccepted+1 {
		t.Errorf("associationsTotal{accepted=true} = %v, want %v", after, beforeAccepted+1)
	}
}

func TestObserveFileErrorLabelsFailed(t *testing.T) {
	before := testutil.ToFloat64(filesSentTotal.WithLabelValues("failed"))
	observe(events.Event{Kind: events.FileError})
	if after := testutil.ToFloat64(filesSentTotal.WithLabelValues("failed")); after != before+1 {
		t.Errorf("filesSentTotal{outcome=failed} = %v, want %v", after, before+1)
	}
}

func TestSubscribeStopsOnContextCancel(t *testing.T) {
	bus := events.NewBus(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Subscribe(ctx, bus)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return after context cancellation")
	}
}
