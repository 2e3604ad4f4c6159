package aggregator

import (
	"testing"
	"time"

	"github.com/otcheredev/dicom-store-gateway/pkg/events"
)

func TestRecordBuildsStudySeriesTree(t *testing.T) {
	a := New(time.Hour, nil)
	now := time.Now()
	a.Record("study-1", "series-1", Instance{SOPInstanceUID: "sop-1", ReceivedAt: now}, nil, nil)
	a.Record("study-1", "series-1", Instance{SOPInstanceUID: "sop-2", ReceivedAt: now}, nil, nil)
	a.Record("study-1", "series-2", Instance{SOPInstanceUID: "sop-3", ReceivedAt: now}, nil, nil)

	study, ok := a.Snapshot("study-1")
	if !ok {
		t.Fatal("expected study-1 to be present after Record")
	}
	if study.seriesCount() != 2 {
		t.Errorf("seriesCount = %d, want 2", study.seriesCount())
	}
	if study.instanceCount() != 3 {
		t.Errorf("instanceCount = %d, want 3", study.instanceCount())
	}
}

func TestSnapshotMissingStudy(t *testing.T) {
	a := New(time.Hour, nil)
	if _, ok := a.Snapshot("does-not-exist"); ok {
		t.Error("expected ok=false for a study never recorded")
	}
}

func TestStudyCompletesAfterIdleTimeout(t *testing.T) {
	bus := events.NewBus(4)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	a := New(20*time.Millisecond, bus)
	a.Record("study-1", "series-1", Instance{SOPInstanceUID: "sop-1", StorageKey: "file:///sop-1.dcm", ReceivedAt: time.Now()}, nil, nil)

	select {
	case ev := <-ch:
		if ev.Kind != events.StudyCompleted {
			t.Fatalf("got event kind %s, want StudyCompleted", ev.Kind)
		}
		if ev.StudyCompletedPayload.StudyInstanceUID != "study-1" {
			t.Errorf("StudyInstanceUID = %q, want %q", ev.StudyCompletedPayload.StudyInstanceUID, "study-1")
		}
		if ev.StudyCompletedPayload.InstanceCount != 1 {
			t.Errorf("InstanceCount = %d, want 1", ev.StudyCompletedPayload.InstanceCount)
		}
		if len(ev.StudyCompletedPayload.Series) != 1 {
			t.Fatalf("got %d series in the tree, want 1", len(ev.StudyCompletedPayload.Series))
		}
		series := ev.StudyCompletedPayload.Series[0]
		if len(series.Instances) != 1 || series.Instances[0].URI != "file:///sop-1.dcm" {
			t.Errorf("series instances = %+v, want one instance with URI file:///sop-1.dcm", series.Instances)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for StudyCompleted event")
	}

	if _, ok := a.Snapshot("study-1"); ok {
		t.Error("expected study to be removed from the aggregator once completed")
	}
}

func TestStudyCompletedPreservesTagsAndMultiSeriesCounts(t *testing.T) {
	bus := events.NewBus(4)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	a := New(20*time.Millisecond, bus)
	studyTags := map[string]string{"StudyInstanceUID": "1.2.3"}
	seriesATags := map[string]string{"Modality": "CT"}
	seriesBTags := map[string]string{"Modality": "MR"}
	now := time.Now()
	a.Record("study-1", "series-a", Instance{SOPInstanceUID: "sop-1", ReceivedAt: now}, studyTags, seriesATags)
	a.Record("study-1", "series-a", Instance{SOPInstanceUID: "sop-2", ReceivedAt: now}, studyTags, seriesATags)
	a.Record("study-1", "series-b", Instance{SOPInstanceUID: "sop-3", ReceivedAt: now}, studyTags, seriesBTags)

	select {
	case ev := <-ch:
		p := ev.StudyCompletedPayload
		if p.SeriesCount != 2 || p.InstanceCount != 3 {
			t.Fatalf("SeriesCount/InstanceCount = %d/%d, want 2/3", p.SeriesCount, p.InstanceCount)
		}
		if p.Tags["StudyInstanceUID"] != "1.2.3" {
			t.Errorf("study tags = %+v, want StudyInstanceUID=1.2.3", p.Tags)
		}
		counts := map[int]bool{}
		for _, s := range p.Series {
			counts[len(s.Instances)] = true
		}
		if !counts[2] || !counts[1] {
			t.Errorf("series instance counts = %+v, want one series of 2 and one of 1", p.Series)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for StudyCompleted event")
	}
}

func TestIdleTimerResetsOnNewInstance(t *testing.T) {
	bus := events.NewBus(4)
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	a := New(50*time.Millisecond, bus)
	a.Record("study-1", "series-1", Instance{SOPInstanceUID: "sop-1", ReceivedAt: time.Now()}, nil, nil)
	time.Sleep(30 * time.Millisecond)
	a.Record("study-1", "series-1", Instance{SOPInstanceUID: "sop-2", ReceivedAt: time.Now()}, nil, nil)

	select {
	case ev := <-ch:
		if ev.StudyCompletedPayload.InstanceCount != 2 {
			t.Errorf("InstanceCount = %d, want 2 (timer should have been reset by the second Record)", ev.StudyCompletedPayload.InstanceCount)
		}
		if len(ev.StudyCompletedPayload.Series) != 1 || len(ev.StudyCompletedPayload.Series[0].Instances) != 2 {
			t.Fatalf("want 1 series with 2 instances, got %+v", ev.StudyCompletedPayload.Series)
		}
		if ev.StudyCompletedPayload.Series[0].Instances[0].SOPInstanceUID != "sop-1" ||
			ev.StudyCompletedPayload.Series[0].Instances[1].SOPInstanceUID != "sop-2" {
			t.Errorf("instances out of insertion order: %+v", ev.StudyCompletedPayload.Series[0].Instances)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for StudyCompleted event")
	}
}
