package tags

import (
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func mustDataset(t *testing.T, pairs map[tag.Tag]string) *dicom.Dataset {
	t.Helper()
	var elems []*dicom.Element
	for tg, v := range pairs {
		el, err := dicom.NewElement(tg, v)
		if err != nil {
			t.Fatalf("dicom.NewElement(%v, %q): %v", tg, v, err)
		}
		elems = append(elems, el)
	}
	ds := dicom.Dataset{Elements: elems}
	return &ds
}

func TestExtractKnownTags(t *testing.T) {
	ds := mustDataset(t, map[tag.Tag]string{
		tag.StudyInstanceUID: "1.2.3",
		tag.PatientName:      "DOE^JOHN",
	})
	out, err := Extract(ds, []tag.Tag{tag.StudyInstanceUID, tag.PatientName})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out["StudyInstanceUID"] != "1.2.3" {
		t.Errorf("StudyInstanceUID = %q, want %q", out["StudyInstanceUID"], "1.2.3")
	}
	if out["PatientName"] != "DOE^JOHN" {
		t.Errorf("PatientName = %q, want %q", out["PatientName"], "DOE^JOHN")
	}
}

func TestExtractMissingTagOmitted(t *testing.T) {
	ds := mustDataset(t, map[tag.Tag]string{tag.StudyInstanceUID: "1.2.3"})
	out, err := Extract(ds, []tag.Tag{tag.StudyInstanceUID, tag.SeriesInstanceUID})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, present := out["SeriesInstanceUID"]; present {
		t.Error("expected a tag absent from the data set to be omitted, not present with an empty value")
	}
	if len(out) != 1 {
		t.Errorf("got %d entries, want 1", len(out))
	}
}

func TestExtractIdentifiers(t *testing.T) {
	ds := mustDataset(t, map[tag.Tag]string{
		tag.StudyInstanceUID:  "1.2.3",
		tag.SeriesInstanceUID: "1.2.3.4",
		tag.SOPInstanceUID:    "1.2.3.4.5",
		tag.SOPClassUID:       "1.2.840.10008.5.1.4.1.1.2",
	})
	studyUID, seriesUID, sopInstanceUID, sopClassUID, err := ExtractIdentifiers(ds)
	if err != nil {
		t.Fatalf("ExtractIdentifiers: %v", err)
	}
	if studyUID != "1.2.3" || seriesUID != "1.2.3.4" || sopInstanceUID != "1.2.3.4.5" || sopClassUID != "1.2.840.10008.5.1.4.1.1.2" {
		t.Errorf("got (%q, %q, %q, %q)", studyUID, seriesUID, sopInstanceUID, sopClassUID)
	}
}

func TestTransferSyntaxReadsFileMeta(t *testing.T) {
	ds := mustDataset(t, map[tag.Tag]string{tag.TransferSyntaxUID: "1.2.840.10008.1.2"})
	ts, err := TransferSyntax(ds)
	if err != nil {
		t.Fatalf("TransferSyntax: %v", err)
	}
	if ts != "1.2.840.10008.1.2" {
		t.Errorf("TransferSyntax = %q, want %q", ts, "1.2.840.10008.1.2")
	}
}

func TestTransferSyntaxMissingIsError(t *testing.T) {
	ds := mustDataset(t, map[tag.Tag]string{tag.StudyInstanceUID: "1.2.3"})
	if _, err := TransferSyntax(ds); err == nil {
		t.Fatal("expected an error when the file-meta transfer syntax element is absent")
	}
}

func TestResolveSymbolicSkipsUnknownNames(t *testing.T) {
	got := ResolveSymbolic([]string{"PatientName", "NotARealTag", "StudyInstanceUID"})
	if len(got) != 2 {
		t.Fatalf("got %d tags, want 2 (unknown name skipped)", len(got))
	}
}

func TestParseGroupMode(t *testing.T) {
	cases := map[string]GroupMode{"by-scope": Scoped, "study-level": StudyLevel, "flat": Flat, "": Flat, "garbage": Flat}
	for strategy, want := range cases {
		if got := ParseGroupMode(strategy); got != want {
			t.Errorf("ParseGroupMode(%q) = %v, want %v", strategy, got, want)
		}
	}
}

func TestExtractGroupedScoped(t *testing.T) {
	ds := mustDataset(t, map[tag.Tag]string{
		tag.PatientName:       "DOE^JOHN",
		tag.StudyInstanceUID:  "1.2.3",
		tag.SeriesInstanceUID: "1.2.3.4",
		tag.SOPInstanceUID:    "1.2.3.4.5",
	})
	g, err := ExtractGrouped(ds, []tag.Tag{tag.PatientName, tag.StudyInstanceUID, tag.SeriesInstanceUID, tag.SOPInstanceUID}, Scoped)
	if err != nil {
		t.Fatalf("ExtractGrouped: %v", err)
	}
	if g.Scoped == nil {
		t.Fatal("Scoped sub-map is nil")
	}
	if g.Scoped.Patient["PatientName"] != "DOE^JOHN" {
		t.Errorf("Patient[PatientName] = %q, want %q", g.Scoped.Patient["PatientName"], "DOE^JOHN")
	}
	if g.Scoped.Study["StudyInstanceUID"] != "1.2.3" {
		t.Errorf("Study[StudyInstanceUID] = %q, want %q", g.Scoped.Study["StudyInstanceUID"], "1.2.3")
	}
	if g.Scoped.Series["SeriesInstanceUID"] != "1.2.3.4" {
		t.Errorf("Series[SeriesInstanceUID] = %q, want %q", g.Scoped.Series["SeriesInstanceUID"], "1.2.3.4")
	}
	if g.Scoped.Instance["SOPInstanceUID"] != "1.2.3.4.5" {
		t.Errorf("Instance[SOPInstanceUID] = %q, want %q", g.Scoped.Instance["SOPInstanceUID"], "1.2.3.4.5")
	}
}

func TestExtractGroupedStudyLevel(t *testing.T) {
	ds := mustDataset(t, map[tag.Tag]string{
		tag.StudyInstanceUID: "1.2.3",
		tag.SOPInstanceUID:   "1.2.3.4.5",
	})
	g, err := ExtractGrouped(ds, []tag.Tag{tag.StudyInstanceUID, tag.SOPInstanceUID}, StudyLevel)
	if err != nil {
		t.Fatalf("ExtractGrouped: %v", err)
	}
	if g.StudyLevel == nil {
		t.Fatal("StudyLevel sub-map is nil")
	}
	if g.StudyLevel.StudyLevel["StudyInstanceUID"] != "1.2.3" {
		t.Errorf("StudyLevel[StudyInstanceUID] = %q, want %q", g.StudyLevel.StudyLevel["StudyInstanceUID"], "1.2.3")
	}
	if g.StudyLevel.InstanceLevel["SOPInstanceUID"] != "1.2.3.4.5" {
		t.Errorf("InstanceLevel[SOPInstanceUID] = %q, want %q", g.StudyLevel.InstanceLevel["SOPInstanceUID"], "1.2.3.4.5")
	}
}

func TestExtractGroupedFlat(t *testing.T) {
	ds := mustDataset(t, map[tag.Tag]string{tag.StudyInstanceUID: "1.2.3"})
	g, err := ExtractGrouped(ds, []tag.Tag{tag.StudyInstanceUID}, Flat)
	if err != nil {
		t.Fatalf("ExtractGrouped: %v", err)
	}
	if g.Flat["StudyInstanceUID"] != "1.2.3" {
		t.Errorf("Flat[StudyInstanceUID] = %q, want %q", g.Flat["StudyInstanceUID"], "1.2.3")
	}
}
