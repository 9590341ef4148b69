// Package datasets serves dataset uploads and dataset maintenance.
package datasets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"

	"TalkToDataLoanPro/api"
	"TalkToDataLoanPro/api/constants"
	"TalkToDataLoanPro/api/utils"
	"TalkToDataLoanPro/internal/dataset"
	"TalkToDataLoanPro/internal/ingest"
	"TalkToDataLoanPro/internal/loan"
	"TalkToDataLoanPro/internal/store"
	"TalkToDataLoanPro/internal/validation"
)

// ProfileWriter stores mapping profile definitions.
type ProfileWriter interface {
	Save(ctx context.Context, id, name, fileType string, definition []byte) (string, error)
}

// Deps is what the dataset handlers run against.
type Deps struct {
	Datasets store.Datasets
	Records  store.Records
	Profiles store.Profiles
	// ProfileWriter is optional; without it profiles cannot be created over
	// HTTP.
	ProfileWriter ProfileWriter
	Pipeline      *ingest.Pipeline
	MaxUploadMB   int
	// Fields caches field lists per dataset.
	Fields *cache.Cache
}

// NewFieldsCache returns the cache the fields handler uses.
func NewFieldsCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, 2*ttl)
}

// Register mounts the dataset routes.
func Register(r *mux.Router, d *Deps) {
	r.HandleFunc("/api/datasets/upload", UploadMappedDataset(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/datasets", ListDatasets(d)).Methods(http.MethodGet)
	r.HandleFunc("/api/datasets/{id}", GetDataset(d)).Methods(http.MethodGet)
	r.HandleFunc("/api/datasets/{id}/collection-fields", UpdateCollectionFields(d)).Methods(http.MethodPost)
	r.HandleFunc("/api/datasets/{id}/fields", GetFields(d)).Methods(http.MethodGet)
	r.HandleFunc("/api/datasets/{id}/file-type", SetFileType(d)).Methods(http.MethodPut)
	r.HandleFunc("/api/mapping-profiles", CreateMappingProfile(d)).Methods(http.MethodPost)
}

// ListDatasets returns one page of the caller's datasets.
func ListDatasets(d *Deps) http.HandlerFunc {
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
		items, total, err := d.Datasets.List(r.Context(), userID, page.Limit, page.Offset)
		if err != nil {
			api.LogError("list datasets for %s: %v", userID, err)
			api.RespondWithErr(w, err)
			return
		}
		page.SetPaginationStats(total)
		api.RespondWithPayload(w, true, "", utils.Page{Items: items, Pagination: page})
	}
}

// GetDataset returns one of the caller's datasets.
func GetDataset(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := validation.PreValidateDataset(r.Context(), d.Datasets, mux.Vars(r)["id"], r.URL.Query().Get("user_id"), true)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", res.Dataset)
	}
}

// UpdateCollectionFields re-derives the collection columns of a dataset
// owned by the caller.
func UpdateCollectionFields(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		datasetID := mux.Vars(r)["id"]
		userID, _ := validation.ExtractUserID(r)
		if _, err := validation.PreValidateDataset(r.Context(), d.Datasets, datasetID, userID, true); err != nil {
			api.RespondWithErr(w, err)
			return
		}

		n, err := dataset.RecomputeCollections(r.Context(), d.Records, d.Datasets, datasetID)
		if err != nil {
			api.LogError("[UpdateCollectionFields] dataset=%s: %v", datasetID, err)
			api.RespondWithErr(w, err)
			return
		}
		api.LogInfo("[UpdateCollectionFields] dataset=%s updated=%d in %v", datasetID, n, time.Since(start))
		api.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success":       true,
			"dataset_id":    datasetID,
			"updated_count": n,
			"message":       constants.FormatError(constants.SuccessFieldsRecompute, n),
		})
	}
}

// GetFields lists the columns a bucket config can target: the canonical
// columns plus the additional_fields keys of the dataset's first record.
func GetFields(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasetID := mux.Vars(r)["id"]
		if d.Fields != nil {
			if v, ok := d.Fields.Get(datasetID); ok {
				api.RespondWithPayload(w, true, "", v)
				return
			}
		}
		if _, err := validation.PreValidateDataset(r.Context(), d.Datasets, datasetID, "", false); err != nil {
			api.RespondWithErr(w, err)
			return
		}

		extra, err := d.Records.FirstAdditionalFields(r.Context(), datasetID)
		if err != nil {
			api.LogError("[GetFields] dataset=%s: %v", datasetID, err)
			api.RespondWithErr(w, err)
			return
		}
		fields := FieldList(extra)
		if d.Fields != nil {
			d.Fields.SetDefault(datasetID, fields)
		}
		api.RespondWithPayload(w, true, "", fields)
	}
}

// FieldList merges the canonical catalog with additional-field keys.
// Canonical columns come first; keys that shadow a canonical name are
// skipped.
func FieldList(extra map[string]any) []loan.ColumnInfo {
	fields := loan.Columns()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !loan.IsCanonical(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, loan.ColumnInfo{Name: k, Type: "json", IsJSON: true})
	}
	return fields
}

type fileTypeRequest struct {
	UserID   string `json:"user_id"`
	FileType string `json:"file_type"`
}

// SetFileType changes the summary type used to pick global default configs.
func SetFileType(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fileTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSONShort)
			return
		}
		req.FileType = strings.TrimSpace(req.FileType)
		if req.FileType == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileTypeMissing)
			return
		}
		datasetID := mux.Vars(r)["id"]
		if _, err := validation.PreValidateDataset(r.Context(), d.Datasets, datasetID, req.UserID, true); err != nil {
			api.RespondWithErr(w, err)
			return
		}
		if err := d.Datasets.SetFileType(r.Context(), datasetID, req.FileType); err != nil {
			api.RespondWithErr(w, err)
			return
		}
		api.LogInfo("[SetFileType] dataset=%s file_type=%s", datasetID, req.FileType)
		api.RespondWithResult(w, true, "")
	}
}

type profileRequest struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	FileType   string          `json:"file_type"`
	Definition json.RawMessage `json:"definition"`
}

// CreateMappingProfile validates and stores a mapping profile.
func CreateMappingProfile(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.ProfileWriter == nil {
			api.RespondWithError(w, http.StatusNotImplemented, "mapping profiles are read-only on this server")
			return
		}
		var req profileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Definition) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSONRequired)
			return
		}
		id, err := d.ProfileWriter.Save(r.Context(), req.ID, req.Name, req.FileType, req.Definition)
		if err != nil {
			if errors.Is(err, ingest.ErrMapping) {
				api.RespondWithError(w, http.StatusBadRequest, err.Error())
				return
			}
			api.LogError("[CreateMappingProfile] %v", err)
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrInternalServer)
			return
		}
		api.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "id": id})
	}
}
