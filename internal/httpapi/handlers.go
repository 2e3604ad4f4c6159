// Package httpapi implements the ambient ops HTTP surface: health/readiness
// probes, Prometheus metrics, peer list/create/get, and a read-only study lookup over
// the in-memory aggregator. Adapted from the teacher's deleted
// internal/handlers package, repointed at DIMSE gateway operations instead
// of DICOMweb/PACS management.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/otcheredev/dicom-store-gateway/internal/database"
	"github.com/otcheredev/dicom-store-gateway/internal/models"
	"github.com/otcheredev/dicom-store-gateway/internal/repository"
	"github.com/otcheredev/dicom-store-gateway/pkg/aggregator"
)

// HealthHandler answers liveness/readiness probes.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health always succeeds once the process is serving.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready fails if the database connection is unusable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if database.DB == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "database not connected"})
		return
	}
	sqlDB, err := database.DB.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// PeerHandler exposes list, create and get over internal/models.PeerConfig.
type PeerHandler struct {
	Repo *repository.PeerRepository
}

func NewPeerHandler(repo *repository.PeerRepository) *PeerHandler {
	return &PeerHandler{Repo: repo}
}

func (h *PeerHandler) List(w http.ResponseWriter, r *http.Request) {
	peers, err := h.Repo.List(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, peers)
}

func (h *PeerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.PeerConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	peer := &models.PeerConfig{
		Name:                      req.Name,
		AETitle:                   req.AETitle,
		Host:                      req.Host,
		Port:                      req.Port,
		MaxPDULength:              req.MaxPDULength,
		PreferredTransferSyntaxes: models.StringSlice(req.PreferredTransferSyntaxes),
		IsActive:                  true,
	}
	if err := h.Repo.Create(r.Context(), peer); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, peer)
}

func (h *PeerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	peer, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "peer not found"})
		return
	}
	writeJSON(w, http.StatusOK, peer)
}

// StudyHandler exposes a read-only view of the in-memory study aggregator.
type StudyHandler struct {
	Aggregator *aggregator.Aggregator
}

func NewStudyHandler(agg *aggregator.Aggregator) *StudyHandler {
	return &StudyHandler{Aggregator: agg}
}

type studyView struct {
	StudyInstanceUID string            `json:"study_instance_uid"`
	SeriesCount      int               `json:"series_count"`
	InstanceCount    int               `json:"instance_count"`
	Tags             map[string]string `json:"tags,omitempty"`
	Series           []seriesView      `json:"series"`
}

type seriesView struct {
	SeriesInstanceUID string            `json:"series_instance_uid"`
	Tags              map[string]string `json:"tags,omitempty"`
	Instances         []instanceView    `json:"instances"`
}

type instanceView struct {
	SOPInstanceUID string            `json:"sop_instance_uid"`
	SOPClassUID    string            `json:"sop_class_uid"`
	URI            string            `json:"uri"`
	Tags           map[string]string `json:"tags,omitempty"`
}

func (h *StudyHandler) Get(w http.ResponseWriter, r *http.Request) {
	studyUID := chi.URLParam(r, "studyUID")
	study, ok := h.Aggregator.Snapshot(studyUID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "study not found or already completed"})
		return
	}
	view := studyView{StudyInstanceUID: study.StudyInstanceUID, Tags: study.Tags}
	for _, series := range study.Series {
		sv := seriesView{SeriesInstanceUID: series.SeriesInstanceUID, Tags: series.Tags}
		for _, sopInstanceUID := range series.Order {
			inst := series.Instances[sopInstanceUID]
			sv.Instances = append(sv.Instances, instanceView{
				SOPInstanceUID: inst.SOPInstanceUID,
				SOPClassUID:    inst.SOPClassUID,
				URI:            inst.StorageKey,
				Tags:           inst.Tags,
			})
		}
		view.InstanceCount += len(series.Instances)
		view.Series = append(view.Series, sv)
	}
	view.SeriesCount = len(view.Series)
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
