// Package events implements the lifecycle event bus: a typed set of
// payloads (spec.md §6) broadcast to any number of subscribers over
// buffered channels, so one slow subscriber cannot stall DIMSE traffic.
package events

import "time"

// Kind discriminates the payload carried by an Event.
type Kind int

const (
	ServerStarted Kind = iota
	Connection
	FileStored
	StudyCompleted
	Error
	TransferStarted
	FileSending
	FileSent
	FileError
	TransferCompleted
)

func (k Kind) String() string {
	names := [...]string{
		"ServerStarted", "Connection", "FileStored", "StudyCompleted", "Error",
		"TransferStarted", "FileSending", "FileSent", "FileError", "TransferCompleted",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Event wraps a Kind with its payload and a timestamp set by the
// publisher.
type Event struct {
	Kind      Kind
	At        time.Time
	ServerStartedPayload  *ServerStartedPayload  `json:"-"`
	ConnectionPayload     *ConnectionPayload     `json:"-"`
	FileStoredPayload     *FileStoredPayload     `json:"-"`
	StudyCompletedPayload *StudyCompletedPayload `json:"-"`
	ErrorPayload          *ErrorPayload          `json:"-"`
	TransferStartedPayload  *TransferStartedPayload  `json:"-"`
	FileSendingPayload      *FileSendingPayload      `json:"-"`
	FileSentPayload         *FileSentPayload         `json:"-"`
	FileErrorPayload        *FileErrorPayload        `json:"-"`
	TransferCompletedPayload *TransferCompletedPayload `json:"-"`
}

type ServerStartedPayload struct {
	Address string
	AETitle string
}

type ConnectionPayload struct {
	CallingAETitle string
	CalledAETitle  string
	RemoteAddr     string
	Accepted       bool
	Reason         string
}

type FileStoredPayload struct {
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	SOPClassUID       string
	// StorageKey is the URI the storage backend returned from put — the
	// canonical identity for this instance, not a synthetic path.
	StorageKey     string
	TransferSyntax string
	Bytes          int
	Transformed    bool
	// Tags holds the extracted attributes per the configured
	// grouping_strategy; at most one of Tags.Flat/Scoped/StudyLevel is
	// populated, and none when no tags are configured or extraction fails.
	Tags TagGroup
}

// TagGroup mirrors pkg/tags.Grouped without importing pkg/tags, keeping
// this package free of a dependency on the DICOM dictionary.
type TagGroup struct {
	Flat       map[string]string
	Scoped     *ScopedTags
	StudyLevel *StudyLevelTags
}

type ScopedTags struct {
	Patient  map[string]string
	Study    map[string]string
	Series   map[string]string
	Instance map[string]string
}

type StudyLevelTags struct {
	StudyLevel    map[string]string
	InstanceLevel map[string]string
}

// StudyCompletedPayload carries the full Study -> Series -> Instance tree
// built by the aggregator, tags populated on each level per the
// configured grouping, plus the summary counters already published.
type StudyCompletedPayload struct {
	StudyInstanceUID string
	SeriesCount      int
	InstanceCount    int
	IdleFor          time.Duration
	Tags             map[string]string
	Series           []SeriesView
}

// SeriesView is one series node of a StudyCompleted tree.
type SeriesView struct {
	SeriesInstanceUID string
	Tags              map[string]string
	Instances         []InstanceView
}

// InstanceView is one instance leaf of a StudyCompleted tree, in arrival
// (insertion) order within its series.
type InstanceView struct {
	SOPInstanceUID string
	SOPClassUID    string
	URI            string
	Tags           map[string]string
	ReceivedAt     time.Time
}

type ErrorPayload struct {
	Stage string
	Err   error
}

type TransferStartedPayload struct {
	DestinationAETitle string
	TotalFiles         int
	Workers            int
}

type FileSendingPayload struct {
	SOPInstanceUID string
	Worker         int
}

type FileSentPayload struct {
	SOPInstanceUID string
	Worker         int
	Status         uint16
	Duration       time.Duration
}

type FileErrorPayload struct {
	SOPInstanceUID string
	Worker         int
	Err            error
}

type TransferCompletedPayload struct {
	Sent     int
	Failed   int
	Duration time.Duration
}
