// Package buckets serves bucket summaries and bucket configuration
// maintenance.
package buckets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"TalkToDataLoanPro/api"
	"TalkToDataLoanPro/api/constants"
	"TalkToDataLoanPro/api/utils"
	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/store"
)

// Deps is what the bucket handlers run against.
type Deps struct {
	Service *bucket.Service
	Configs store.Configs
	// Cache, when set, is the source behind Service and is invalidated on
	// every configuration write.
	Cache *bucket.CachedSource
}

// Register mounts the bucket routes.
func Register(r *mux.Router, d *Deps) {
	r.HandleFunc("/api/bucket-summary/{datasetId}", MultipleSummaries(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/bucket-configs/effective/{datasetId}", EffectiveConfigs(d)).Methods(http.MethodGet)
	r.HandleFunc("/api/bucket-configs/check", CheckConfig(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/bucket-configs/lookup", LookupConfig(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/bucket-configs", ListConfigs(d)).Methods(http.MethodGet)
	r.HandleFunc("/api/bucket-configs", CreateConfig(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/bucket-configs/{id}", GetConfig(d)).Methods(http.MethodGet)
	r.HandleFunc("/api/bucket-configs/{id}", UpdateConfig(d)).Methods(http.MethodPut)
	r.HandleFunc("/api/bucket-configs/{id}", DeleteConfig(d)).Methods(http.MethodDelete)
}

// MultipleSummaries runs the selected configurations over a dataset.
func MultipleSummaries(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var req bucket.SummaryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSONShort)
			return
		}
		req.DatasetID = mux.Vars(r)["datasetId"]

		summaries, err := d.Service.MultipleSummaries(r.Context(), req)
		if err != nil {
			api.LogError("[MultipleSummaries] dataset=%s: %v", req.DatasetID, err)
			api.RespondWithErr(w, err)
			return
		}
		api.LogInfo("[MultipleSummaries] dataset=%s summaries=%d in %v", req.DatasetID, len(summaries), time.Since(start))
		api.RespondWithPayload(w, true, "", summaries)
	}
}

// EffectiveConfigs lists the configurations a summary would use for the
// dataset without running them.
func EffectiveConfigs(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID := mux.Vars(r)["datasetId"]
		cfgs, err := d.Service.Effective(r.Context(), datasetID, r.URL.Query().Get("user_id"))
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", cfgs)
	}
}

// ListConfigs returns one page of the caller's configurations.
func ListConfigs(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
			return
		}
		page, err := utils.ExtractPagination(r)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.FormatError(constants.ErrInvalidPage, err))
			return
		}
		cfgs, total, err := d.Configs.List(r.Context(), userID, page.Limit, page.Offset)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		page.SetPaginationStats(total)
		api.RespondWithPayload(w, true, "", utils.Page{Items: cfgs, Pagination: page})
	}
}

// GetConfig returns one configuration.
func GetConfig(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := configID(w, r)
		if !ok {
			return
		}
		cfg, err := d.Configs.Get(r.Context(), id)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", cfg)
	}
}

// CreateConfig stores a new configuration for the caller.
func CreateConfig(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, ok := decodeConfig(w, r)
		if !ok {
			return
		}
		cfg.ID = ""
		if err := d.Configs.Create(r.Context(), cfg); err != nil {
			api.LogError("[CreateConfig] user=%s: %v", cfg.UserID, err)
			api.RespondWithErr(w, err)
			return
		}
		d.invalidate(cfg.DatasetID)
		api.LogInfo("[CreateConfig] id=%s user=%s field=%s", cfg.ID, cfg.UserID, cfg.TargetField)
		api.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "rows": cfg})
	}
}

// UpdateConfig rewrites a configuration the caller owns.
func UpdateConfig(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := configID(w, r)
		if !ok {
			return
		}
		cfg, ok := decodeConfig(w, r)
		if !ok {
			return
		}
		previous, err := d.Configs.Get(r.Context(), id)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		cfg.ID = id
		if err := d.Configs.Update(r.Context(), cfg); err != nil {
			api.LogError("[UpdateConfig] id=%s: %v", id, err)
			api.RespondWithErr(w, err)
			return
		}
		d.invalidate(previous.DatasetID)
		d.invalidate(cfg.DatasetID)
		api.RespondWithPayload(w, true, "", cfg)
	}
}

// DeleteConfig removes a configuration the caller owns. user_id comes from
// the body or the query string.
func DeleteConfig(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := configID(w, r)
		if !ok {
			return
		}
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			var body struct {
				UserID string `json:"user_id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			userID = body.UserID
		}
		if userID == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
			return
		}
		deleted, err := d.Configs.Delete(r.Context(), id, userID)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		d.invalidate(deleted.DatasetID)
		api.LogInfo("[DeleteConfig] id=%s user=%s", id, userID)
		api.RespondWithResult(w, true, "")
	}
}

type fieldRequest struct {
	DatasetID   string `json:"dataset_id"`
	UserID      string `json:"user_id"`
	TargetField string `json:"target_field"`
}

func (f *fieldRequest) decode(w http.ResponseWriter, r *http.Request) bool {
	if err := json.NewDecoder(r.Body).Decode(f); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSONShort)
		return false
	}
	if f.DatasetID == "" || f.UserID == "" || strings.TrimSpace(f.TargetField) == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrMissingFields)
		return false
	}
	if _, err := uuid.Parse(f.DatasetID); err != nil {
		api.RespondWithErr(w, fmt.Errorf("%w: %q", bucket.ErrInvalidDataset, f.DatasetID))
		return false
	}
	return true
}

// CheckConfig reports whether the caller already has a configuration for a
// dataset field.
func CheckConfig(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fieldRequest
		if !req.decode(w, r) {
			return
		}
		cfg, err := d.Configs.Find(r.Context(), req.DatasetID, req.UserID, req.TargetField)
		switch {
		case err == nil:
			api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "exists": true, "id": cfg.ID})
		case api.StatusFor(err) == http.StatusNotFound:
			api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true, "exists": false})
		default:
			api.RespondWithErr(w, err)
		}
	}
}

// LookupConfig returns the caller's configuration for a dataset field.
func LookupConfig(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fieldRequest
		if !req.decode(w, r) {
			return
		}
		cfg, err := d.Configs.Find(r.Context(), req.DatasetID, req.UserID, req.TargetField)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", cfg)
	}
}

func configID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidID)
		return "", false
	}
	return id, true
}

func decodeConfig(w http.ResponseWriter, r *http.Request) (*bucket.Config, bool) {
	var cfg bucket.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSONShort+": "+err.Error())
		return nil, false
	}
	if cfg.UserID == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
		return nil, false
	}
	if cfg.DatasetID != nil {
		if *cfg.DatasetID == "" {
			cfg.DatasetID = nil
		} else if _, err := uuid.Parse(*cfg.DatasetID); err != nil {
			api.RespondWithErr(w, fmt.Errorf("%w: %q", bucket.ErrInvalidDataset, *cfg.DatasetID))
			return nil, false
		}
	}
	return &cfg, true
}

func (d *Deps) invalidate(datasetID *string) {
	if d.Cache != nil {
		d.Cache.Invalidate(datasetID)
	}
}
