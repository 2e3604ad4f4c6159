// Package receiver implements the SCP-side receiver pipeline: it
// implements dimse.StoreHandler, decodes each reassembled data set,
// applies the pre-store transform hook, persists it through the storage
// backend, feeds the study aggregator, and publishes lifecycle events.
package receiver

import (
	"bytes"
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/otcheredev/dicom-store-gateway/pkg/aggregator"
	"github.com/otcheredev/dicom-store-gateway/pkg/dimse"
	"github.com/otcheredev/dicom-store-gateway/pkg/events"
	"github.com/otcheredev/dicom-store-gateway/pkg/storage"
	"github.com/otcheredev/dicom-store-gateway/pkg/tags"
	"github.com/otcheredev/dicom-store-gateway/pkg/transform"
)

// AuditRecorder persists one row per DIMSE exchange, independent of the
// in-memory event bus.
type AuditRecorder interface {
	RecordCStore(ctx context.Context, studyUID, sopInstanceUID string, status uint16, duration time.Duration, errMsg string)
}

// Pipeline wires together storage, the transform hook, the aggregator, the
// event bus and the audit trail behind dimse.StoreHandler.
type Pipeline struct {
	Backend    storage.Backend
	Hook       transform.Hook
	Aggregator *aggregator.Aggregator
	Bus        *events.Bus
	Audit      AuditRecorder
	Log        zerolog.Logger
	// TagList and GroupMode implement the tag-extraction helper
	// (extract_tags/grouping_strategy); TagList is empty when no tags
	// were configured, in which case extraction is skipped entirely.
	TagList   []tag.Tag
	GroupMode tags.GroupMode
}

// HandleCStore implements dimse.StoreHandler.
func (p *Pipeline) HandleCStore(ctx context.Context, req dimse.CStoreRequest) (dimse.CStoreResult, error) {
	start := time.Now()

	ds, err := dicom.Parse(bytes.NewReader(req.Dataset), int64(len(req.Dataset)), nil)
	if err != nil {
		p.publishError("parse-dataset", err)
		p.recordAudit(ctx, "", req.SOPInstanceUID, dimse.StatusCannotUnderstand, start, err)
		return dimse.CStoreResult{Status: dimse.StatusCannotUnderstand}, err
	}

	studyUID, seriesUID, sopInstanceUID, sopClassUID, err := tags.ExtractIdentifiers(&ds)
	if err != nil {
		p.publishError("extract-identifiers", err)
		p.recordAudit(ctx, "", req.SOPInstanceUID, dimse.StatusCannotUnderstand, start, err)
		return dimse.CStoreResult{Status: dimse.StatusCannotUnderstand}, err
	}
	if sopInstanceUID == "" {
		sopInstanceUID = req.SOPInstanceUID
	}
	if sopClassUID == "" {
		sopClassUID = req.AbstractSyntax
	}

	status := dimse.StatusSuccess
	result, err := transform.Apply(ctx, p.Hook, &ds)
	if err != nil {
		p.publishError("transform", err)
		p.recordAudit(ctx, studyUID, sopInstanceUID, dimse.StatusCannotUnderstand, start, err)
		return dimse.CStoreResult{Status: dimse.StatusCannotUnderstand}, err
	}
	if result.Modified {
		status = dimse.StatusWarningCoercion
	}

	encoded := req.Dataset
	if result.Modified {
		// Key the stored instance by the data set as written, so an edited
		// identifying UID is reflected in the storage key.
		if s, se, si, sc, idErr := tags.ExtractIdentifiers(&ds); idErr == nil {
			studyUID, seriesUID = s, se
			if si != "" {
				sopInstanceUID = si
			}
			if sc != "" {
				sopClassUID = sc
			}
		}
		var buf bytes.Buffer
		if err := dicom.Write(&buf, ds); err != nil {
			p.publishError("re-encode-dataset", err)
			p.recordAudit(ctx, studyUID, sopInstanceUID, dimse.StatusCannotUnderstand, start, err)
			return dimse.CStoreResult{Status: dimse.StatusCannotUnderstand}, err
		}
		encoded = buf.Bytes()
	}

	key := storage.Key{StudyInstanceUID: studyUID, SeriesInstanceUID: seriesUID, SOPInstanceUID: sopInstanceUID}
	uri, err := p.Backend.Put(ctx, key, encoded)
	if err != nil {
		p.publishError("storage-put", err)
		p.recordAudit(ctx, studyUID, sopInstanceUID, dimse.StatusRefusedOutOfResources, start, err)
		return dimse.CStoreResult{Status: dimse.StatusRefusedOutOfResources}, err
	}

	instanceTags, studyTags, seriesTags, tagGroup := p.extractTags(&ds)

	if p.Aggregator != nil {
		p.Aggregator.Record(studyUID, seriesUID, aggregator.Instance{
			SOPInstanceUID: sopInstanceUID,
			SOPClassUID:    sopClassUID,
			StorageKey:     uri,
			ReceivedAt:     start,
			Tags:           instanceTags,
		}, studyTags, seriesTags)
	}

	if p.Bus != nil {
		p.Bus.Publish(events.Event{
			Kind: events.FileStored,
			At:   time.Now(),
			FileStoredPayload: &events.FileStoredPayload{
				StudyInstanceUID:  studyUID,
				SeriesInstanceUID: seriesUID,
				SOPInstanceUID:    sopInstanceUID,
				SOPClassUID:       sopClassUID,
				StorageKey:        uri,
				TransferSyntax:    req.TransferSyntax,
				Bytes:             len(encoded),
				Transformed:       result.Modified,
				Tags:              tagGroup,
			},
		})
	}

	p.recordAudit(ctx, studyUID, sopInstanceUID, status, start, nil)
	return dimse.CStoreResult{Status: status}, nil
}

// extractTags runs the configured tag-extraction helper over ds and
// splits the result into the instance-level map kept on the instance,
// the study/series-level maps the aggregator dedups at their nodes, and
// the events.TagGroup shape published on FileStored. Returns all-nil/zero
// when no tags are configured.
func (p *Pipeline) extractTags(ds *dicom.Dataset) (instanceTags, studyTags, seriesTags map[string]string, group events.TagGroup) {
	if len(p.TagList) == 0 {
		return nil, nil, nil, events.TagGroup{}
	}
	grouped, err := tags.ExtractGrouped(ds, p.TagList, p.GroupMode)
	if err != nil {
		p.publishError("extract-tags", err)
		return nil, nil, nil, events.TagGroup{}
	}
	switch grouped.Mode {
	case tags.Scoped:
		studyTags = mergeTagMaps(grouped.Scoped.Patient, grouped.Scoped.Study)
		seriesTags = grouped.Scoped.Series
		instanceTags = grouped.Scoped.Instance
		group = events.TagGroup{Scoped: &events.ScopedTags{
			Patient: grouped.Scoped.Patient, Study: grouped.Scoped.Study,
			Series: grouped.Scoped.Series, Instance: grouped.Scoped.Instance,
		}}
	case tags.StudyLevel:
		studyTags = grouped.StudyLevel.StudyLevel
		instanceTags = grouped.StudyLevel.InstanceLevel
		group = events.TagGroup{StudyLevel: &events.StudyLevelTags{
			StudyLevel: grouped.StudyLevel.StudyLevel, InstanceLevel: grouped.StudyLevel.InstanceLevel,
		}}
	default:
		instanceTags = grouped.Flat
		group = events.TagGroup{Flat: grouped.Flat}
	}
	return instanceTags, studyTags, seriesTags, group
}

func mergeTagMaps(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func (p *Pipeline) publishError(stage string, err error) {
	if p.Bus == nil {
		return
	}
	p.Bus.Publish(events.Event{Kind: events.Error, At: time.Now(), ErrorPayload: &events.ErrorPayload{Stage: stage, Err: err}})
}

func (p *Pipeline) recordAudit(ctx context.Context, studyUID, sopInstanceUID string, status uint16, start time.Time, err error) {
	if p.Audit == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.Audit.RecordCStore(ctx, studyUID, sopInstanceUID, status, time.Since(start), msg)
}

// Serve accepts connections on listener until ctx is cancelled, running
// one ServeAssociation goroutine per accepted connection.
func Serve(ctx context.Context, listener net.Listener, cfg dimse.ServerConfig, pipeline *Pipeline) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	if pipeline.Bus != nil {
		pipeline.Bus.Publish(events.Event{
			Kind: events.ServerStarted,
			At:   time.Now(),
			ServerStartedPayload: &events.ServerStartedPayload{Address: listener.Addr().String(), AETitle: cfg.AETitle},
		})
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go handleConnection(ctx, conn, cfg, pipeline)
	}
}

func handleConnection(ctx context.Context, conn net.Conn, cfg dimse.ServerConfig, pipeline *Pipeline) {
	hooks := dimse.Hooks{
		OnAssociated: func(callingAE, calledAE string, remote net.Addr) {
			pipeline.Log.Info().Str("calling_ae", callingAE).Str("called_ae", calledAE).Stringer("remote", remote).Msg("association accepted")
			publishConnection(pipeline, callingAE, calledAE, remote.String(), true, "")
		},
		OnReleased: func(callingAE string) {
			pipeline.Log.Debug().Str("calling_ae", callingAE).Msg("association released")
		},
		OnAborted: func(callingAE string, err error) {
			pipeline.Log.Warn().Str("calling_ae", callingAE).Err(err).Msg("association aborted")
			publishConnection(pipeline, callingAE, cfg.AETitle, "", false, err.Error())
		},
	}
	if err := dimse.ServeAssociation(ctx, conn, cfg, pipeline, hooks); err != nil {
		pipeline.Log.Debug().Err(err).Msg("association ended")
	}
}

func publishConnection(pipeline *Pipeline, callingAE, calledAE, remote string, accepted bool, reason string) {
	if pipeline.Bus == nil {
		return
	}
	pipeline.Bus.Publish(events.Event{
		Kind: events.Connection,
		At:   time.Now(),
		ConnectionPayload: &events.ConnectionPayload{
			CallingAETitle: callingAE,
			CalledAETitle:  calledAE,
			RemoteAddr:     remote,
			Accepted:       accepted,
			Reason:         reason,
		},
	})
}
