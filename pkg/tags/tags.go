// Package tags implements the tag-extraction helper: given a parsed DICOM
// data set, resolve (group, element) tags to VR-aware string values using
// the bundled DICOM dictionary from github.com/suyashkumar/dicom, with
// optional flat/scoped/study-level grouping of the results.
package tags

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// GroupMode controls how a requested tag list is folded into the result
// bag handed to FileStored and the study aggregator.
type GroupMode int

const (
	// Flat returns one object, one property per requested tag.
	Flat GroupMode = iota
	// Scoped returns four objects {patient, study, series, instance},
	// each holding the subset whose tag's IE level matches.
	Scoped
	// StudyLevel returns two objects {studyLevel, instanceLevel};
	// study-level tags are deduplicated at the aggregator's Study node,
	// instance-level tags stay on the instance.
	StudyLevel
)

// ParseGroupMode maps the config's grouping_strategy value
// ("by-scope"|"flat"|"study-level") to a GroupMode, defaulting to Flat
// for an empty or unrecognised value.
func ParseGroupMode(strategy string) GroupMode {
	switch strategy {
	case "by-scope":
		return Scoped
	case "study-level":
		return StudyLevel
	default:
		return Flat
	}
}

// Level is the IE (information entity) level a tag naturally belongs to,
// used by Scoped and StudyLevel grouping.
type Level int

const (
	LevelPatient Level = iota
	LevelStudy
	LevelSeries
	LevelInstance
)

// levelTable classifies the tags an operator is likely to name in
// extract_tags. A tag absent from the table defaults to LevelInstance —
// the safest bucket, since an unrecognised attribute is assumed specific
// to the instance rather than shared across the series or study.
var levelTable = map[tag.Tag]Level{
	tag.PatientName:        LevelPatient,
	tag.PatientID:          LevelPatient,
	tag.PatientBirthDate:   LevelPatient,
	tag.PatientSex:         LevelPatient,
	tag.StudyInstanceUID:   LevelStudy,
	tag.StudyDate:          LevelStudy,
	tag.StudyTime:          LevelStudy,
	tag.StudyDescription:   LevelStudy,
	tag.AccessionNumber:    LevelStudy,
	tag.SeriesInstanceUID:  LevelSeries,
	tag.SeriesDate:         LevelSeries,
	tag.SeriesTime:         LevelSeries,
	tag.SeriesDescription:  LevelSeries,
	tag.SeriesNumber:       LevelSeries,
	tag.Modality:           LevelSeries,
	tag.SOPInstanceUID:     LevelInstance,
	tag.SOPClassUID:        LevelInstance,
	tag.InstanceNumber:     LevelInstance,
	tag.Rows:               LevelInstance,
	tag.Columns:            LevelInstance,
}

// LevelOf reports the IE level Scoped/StudyLevel grouping assigns to t.
func LevelOf(t tag.Tag) Level {
	if l, ok := levelTable[t]; ok {
		return l
	}
	return LevelInstance
}

// symbolicTable resolves the symbolic tag names an operator lists in
// extract_tags to their (group, element) pairs.
var symbolicTable = map[string]tag.Tag{
	"PatientName":        tag.PatientName,
	"PatientID":          tag.PatientID,
	"PatientBirthDate":   tag.PatientBirthDate,
	"PatientSex":         tag.PatientSex,
	"StudyInstanceUID":   tag.StudyInstanceUID,
	"StudyDate":          tag.StudyDate,
	"StudyTime":          tag.StudyTime,
	"StudyDescription":   tag.StudyDescription,
	"AccessionNumber":    tag.AccessionNumber,
	"SeriesInstanceUID":  tag.SeriesInstanceUID,
	"SeriesDate":         tag.SeriesDate,
	"SeriesTime":         tag.SeriesTime,
	"SeriesDescription":  tag.SeriesDescription,
	"SeriesNumber":       tag.SeriesNumber,
	"Modality":           tag.Modality,
	"SOPInstanceUID":     tag.SOPInstanceUID,
	"SOPClassUID":        tag.SOPClassUID,
	"InstanceNumber":     tag.InstanceNumber,
	"Rows":               tag.Rows,
	"Columns":            tag.Columns,
}

// ResolveSymbolic maps symbolic tag names (config's extract_tags list) to
// their dictionary tags. Names absent from the table are skipped rather
// than treated as an error — an operator's typo should not take down the
// receiver pipeline.
func ResolveSymbolic(names []string) []tag.Tag {
	out := make([]tag.Tag, 0, len(names))
	for _, name := range names {
		if t, ok := symbolicTable[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Grouped is the result of extracting and grouping a tag list per
// GroupMode: exactly one of Flat, Scoped or StudyLevel is populated,
// matching Mode.
type Grouped struct {
	Mode       GroupMode
	Flat       map[string]string
	Scoped     *ScopedTags
	StudyLevel *StudyLevelTags
}

// ScopedTags is the Scoped grouping's four IE-level sub-maps.
type ScopedTags struct {
	Patient  map[string]string
	Study    map[string]string
	Series   map[string]string
	Instance map[string]string
}

// StudyLevelTags is the StudyLevel grouping's two sub-maps.
type StudyLevelTags struct {
	StudyLevel    map[string]string
	InstanceLevel map[string]string
}

// ExtractGrouped resolves tags against ds and folds the result per mode.
func ExtractGrouped(ds *dicom.Dataset, tagList []tag.Tag, mode GroupMode) (Grouped, error) {
	flat, err := Extract(ds, tagList)
	if err != nil {
		return Grouped{}, err
	}
	g := Grouped{Mode: mode}
	switch mode {
	case Scoped:
		scoped := &ScopedTags{
			Patient:  map[string]string{},
			Study:    map[string]string{},
			Series:   map[string]string{},
			Instance: map[string]string{},
		}
		for _, t := range tagList {
			v, ok := flat[tagKey(t)]
			if !ok {
				continue
			}
			switch LevelOf(t) {
			case LevelPatient:
				scoped.Patient[tagKey(t)] = v
			case LevelStudy:
				scoped.Study[tagKey(t)] = v
			case LevelSeries:
				scoped.Series[tagKey(t)] = v
			default:
				scoped.Instance[tagKey(t)] = v
			}
		}
		g.Scoped = scoped
	case StudyLevel:
		sl := &StudyLevelTags{StudyLevel: map[string]string{}, InstanceLevel: map[string]string{}}
		for _, t := range tagList {
			v, ok := flat[tagKey(t)]
			if !ok {
				continue
			}
			if LevelOf(t) == LevelPatient || LevelOf(t) == LevelStudy {
				sl.StudyLevel[tagKey(t)] = v
			} else {
				sl.InstanceLevel[tagKey(t)] = v
			}
		}
		g.StudyLevel = sl
	default:
		g.Flat = flat
	}
	return g, nil
}

// Extract resolves every requested tag against one parsed data set,
// rendering each value with renderValue: a single string value as-is, any
// other value through fmt.Sprint.
// A tag absent from the data set is simply omitted from the result, not
// an error — callers that need a tag to be present check the map.
func Extract(ds *dicom.Dataset, tags []tag.Tag) (map[string]string, error) {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		elem, err := ds.FindElementByTag(t)
		if err != nil {
			continue
		}
		out[tagKey(t)] = renderValue(elem)
	}
	return out, nil
}

func tagKey(t tag.Tag) string {
	info, err := tag.Find(t)
	if err == nil && info.Name != "" {
		return info.Name
	}
	return fmt.Sprintf("%04X%04X", t.Group, t.Element)
}

func renderValue(elem *dicom.Element) string {
	if elem == nil || elem.Value == nil {
		return ""
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		if len(v) == 1 {
			return v[0]
		}
		return fmt.Sprint(v)
	case []int:
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

// StudyInstanceUID, SeriesInstanceUID, SOPInstanceUID and SOPClassUID are
// the tags every receiver-pipeline lookup needs, named once here so
// pkg/receiver and pkg/aggregator do not each hardcode the group/element
// pairs.
var (
	StudyInstanceUID  = tag.StudyInstanceUID
	SeriesInstanceUID = tag.SeriesInstanceUID
	SOPInstanceUID    = tag.SOPInstanceUID
	SOPClassUID       = tag.SOPClassUID
)

// TransferSyntax reads the data set's own Transfer Syntax UID from the
// file-meta group (0002,0010), the encoding the bytes on disk were
// actually written in, rather than assuming a fixed default.
func TransferSyntax(ds *dicom.Dataset) (string, error) {
	elem, err := ds.FindElementByTag(tag.TransferSyntaxUID)
	if err != nil {
		return "", fmt.Errorf("transfer syntax UID not present in file-meta: %w", err)
	}
	return renderValue(elem), nil
}

// ExtractIdentifiers pulls the four identifying UIDs used throughout the
// receiver pipeline and the study aggregator.
func ExtractIdentifiers(ds *dicom.Dataset) (studyUID, seriesUID, sopInstanceUID, sopClassUID string, err error) {
	values, err := Extract(ds, []tag.Tag{tag.StudyInstanceUID, tag.SeriesInstanceUID, tag.SOPInstanceUID, tag.SOPClassUID})
	if err != nil {
		return "", "", "", "", err
	}
	return values[tagKey(tag.StudyInstanceUID)], values[tagKey(tag.SeriesInstanceUID)], values[tagKey(tag.SOPInstanceUID)], values[tagKey(tag.SOPClassUID)], nil
}
