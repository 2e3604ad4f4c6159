// Package metrics exposes Prometheus collectors fed by a pkg/events
// subscription, grounded on the teacher's promhttp.Handler wiring in
// cmd/server/main.go.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/otcheredev/dicom-store-gateway/pkg/events"
)

var (
	associationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicom_gateway_associations_total",
		Help: "Total associations accepted or rejected.",
	}, []string{"accepted"})

	filesStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dicom_gateway_files_stored_total",
		Help: "Total instances persisted by the receiver pipeline.",
	})

	filesStoredBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dicom_gateway_files_stored_bytes_total",
		Help: "Total bytes persisted by the receiver pipeline.",
	})

	studiesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dicom_gateway_studies_completed_total",
		Help: "Total studies the aggregator considered complete (idle timeout elapsed).",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicom_gateway_errors_total",
		Help: "Total errors published to the event bus, labeled by stage.",
	}, []string{"stage"})

	filesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicom_gateway_files_sent_total",
		Help: "Total C-STORE attempts made by the sender pipeline.",
	}, []string{"outcome"})

	transferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dicom_gateway_transfer_duration_seconds",
		Help:    "Wall-clock duration of completed sender transfers.",
		Buckets: prometheus.DefBuckets,
	})
)

// Subscribe drains bus until ctx is cancelled, updating collectors from
// every published event. Run it in its own goroutine; it never blocks the
// publisher because events.Bus.Subscribe channels are already
// drop-on-full.
func Subscribe(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			observe(ev)
		}
	}
}

func observe(ev events.Event) {
	switch ev.Kind {
	case events.Connection:
		accepted := "false"
		if ev.ConnectionPayload != nil && ev.ConnectionPayload.Accepted {
			accepted = "true"
		}
		associationsTotal.WithLabelValues(accepted).Inc()
	case events.FileStored:
		filesStoredTotal.Inc()
		if ev.FileStoredPayload != nil {
			filesStoredBytes.Add(float64(ev.FileStoredPayload.Bytes))
		}
	case events.StudyCompleted:
		studiesCompletedTotal.Inc()
	case events.Error:
		stage := "unknown"
		if ev.ErrorPayload != nil {
			stage = ev.ErrorPayload.Stage
		}
		errorsTotal.WithLabelValues(stage).Inc()
	case events.FileSent:
		filesSentTotal.WithLabelValues("sent").Inc()
	case events.FileError:
		filesSentTotal.WithLabelValues("failed").Inc()
	case events.TransferCompleted:
		if ev.TransferCompletedPayload != nil {
			transferDuration.Observe(ev.TransferCompletedPayload.Duration.Seconds())
		}
	}
}
