// Package aggregator builds the in-memory Study -> Series -> Instance
// trees the receiver pipeline populates as C-STORE requests arrive, and
// emits a StudyCompleted event once a study has gone idle (no new
// instance) for a configurable duration.
package aggregator

import (
	"sync"
	"time"

	"github.com/otcheredev/dicom-store-gateway/pkg/events"
)

// Instance is one stored SOP instance within a series.
type Instance struct {
	SOPInstanceUID string
	SOPClassUID    string
	// StorageKey is the URI the storage backend returned from put, the
	// canonical identity carried into events and ops lookups.
	StorageKey string
	ReceivedAt time.Time
	Tags       map[string]string
}

// Series owns the instances belonging to one SeriesInstanceUID, kept in
// both arrival order (Order) and by SOPInstanceUID (Instances) so a
// retransmitted instance updates in place without disturbing the order
// of the instances around it.
type Series struct {
	SeriesInstanceUID string
	Instances         map[string]*Instance
	Order             []string
	Tags              map[string]string
}

// Study owns the series belonging to one StudyInstanceUID, plus the idle
// timer used to detect "no more instances are coming."
type Study struct {
	StudyInstanceUID string
	Series           map[string]*Series
	FirstReceivedAt  time.Time
	LastReceivedAt   time.Time
	Tags             map[string]string
	timer            *time.Timer
}

func (s *Study) seriesCount() int { return len(s.Series) }

func (s *Study) instanceCount() int {
	n := 0
	for _, series := range s.Series {
		n += len(series.Instances)
	}
	return n
}

// Aggregator is mutex-guarded; one instance serves every concurrent
// receiver goroutine in the SCP.
type Aggregator struct {
	mu         sync.Mutex
	studies    map[string]*Study
	idleAfter  time.Duration
	bus        *events.Bus
}

// New creates an Aggregator that fires StudyCompleted idleAfter has
// elapsed since the last instance of a study arrived.
func New(idleAfter time.Duration, bus *events.Bus) *Aggregator {
	return &Aggregator{studies: make(map[string]*Study), idleAfter: idleAfter, bus: bus}
}

// Record adds one received instance to its study/series, creating both if
// needed, and (re)arms the study's idle timer. studyTags and seriesTags
// are deduplicated at their respective node the first time each study or
// series is seen, per the studyLevel grouping's "dedup at the Study
// node" rule — a later instance's study/series-level tag values do not
// overwrite the ones already recorded.
func (a *Aggregator) Record(studyUID, seriesUID string, inst Instance, studyTags, seriesTags map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	study, ok := a.studies[studyUID]
	if !ok {
		study = &Study{
			StudyInstanceUID: studyUID,
			Series:           make(map[string]*Series),
			FirstReceivedAt:  inst.ReceivedAt,
			Tags:             studyTags,
		}
		a.studies[studyUID] = study
	}
	study.LastReceivedAt = inst.ReceivedAt

	series, ok := study.Series[seriesUID]
	if !ok {
		series = &Series{SeriesInstanceUID: seriesUID, Instances: make(map[string]*Instance), Tags: seriesTags}
		study.Series[seriesUID] = series
	}
	instCopy := inst
	if _, exists := series.Instances[inst.SOPInstanceUID]; !exists {
		series.Order = append(series.Order, inst.SOPInstanceUID)
	}
	series.Instances[inst.SOPInstanceUID] = &instCopy

	a.armTimer(studyUID, study)
}

func (a *Aggregator) armTimer(studyUID string, study *Study) {
	if study.timer != nil {
		study.timer.Stop()
	}
	study.timer = time.AfterFunc(a.idleAfter, func() {
		a.completeStudy(studyUID)
	})
}

func (a *Aggregator) completeStudy(studyUID string) {
	a.mu.Lock()
	study, ok := a.studies[studyUID]
	if !ok {
		a.mu.Unlock()
		return
	}
	seriesCount := study.seriesCount()
	instanceCount := study.instanceCount()
	idleFor := time.Since(study.LastReceivedAt)
	seriesViews := buildSeriesViews(study)
	delete(a.studies, studyUID)
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Publish(events.Event{
			Kind: events.StudyCompleted,
			At:   time.Now(),
			StudyCompletedPayload: &events.StudyCompletedPayload{
				StudyInstanceUID: studyUID,
				SeriesCount:      seriesCount,
				InstanceCount:    instanceCount,
				IdleFor:          idleFor,
				Tags:             study.Tags,
				Series:           seriesViews,
			},
		})
	}
}

// buildSeriesViews renders a study's tree for the StudyCompleted payload,
// with each series' instances in insertion order.
func buildSeriesViews(study *Study) []events.SeriesView {
	views := make([]events.SeriesView, 0, len(study.Series))
	for _, series := range study.Series {
		instViews := make([]events.InstanceView, 0, len(series.Order))
		for _, sopInstanceUID := range series.Order {
			inst := series.Instances[sopInstanceUID]
			instViews = append(instViews, events.InstanceView{
				SOPInstanceUID: inst.SOPInstanceUID,
				SOPClassUID:    inst.SOPClassUID,
				URI:            inst.StorageKey,
				Tags:           inst.Tags,
				ReceivedAt:     inst.ReceivedAt,
			})
		}
		views = append(views, events.SeriesView{
			SeriesInstanceUID: series.SeriesInstanceUID,
			Tags:              series.Tags,
			Instances:         instViews,
		})
	}
	return views
}

// Snapshot returns a read-only view of one study's tree, for the ops HTTP
// surface's study lookup.
func (a *Aggregator) Snapshot(studyUID string) (*Study, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	study, ok := a.studies[studyUID]
	return study, ok
}
