package datasets

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"TalkToDataLoanPro/api"
	"TalkToDataLoanPro/api/constants"
	"TalkToDataLoanPro/internal/checksum"
	"TalkToDataLoanPro/internal/dataset"
	"TalkToDataLoanPro/internal/ingest"
	"TalkToDataLoanPro/internal/store"
)

// formMemory is how much of a multipart body is kept in memory before the
// rest spills to temporary files.
const formMemory = 32 << 20

// UploadMappedDataset creates a dataset from an uploaded workbook using a
// stored mapping profile. The request is multipart with file, user_id,
// mapping_profile_id and optional name and description.
func UploadMappedDataset(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		defer func() {
			if rec := recover(); rec != nil {
				api.LogError("[UploadMappedDataset] panic after %v: %v", time.Since(start), rec)
				api.RespondWithError(w, http.StatusInternalServerError, constants.ErrInternalServer)
			}
		}()

		maxBytes := int64(d.MaxUploadMB) << 20
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formMemory/32)
		}
		if err := r.ParseMultipartForm(formMemory); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
				api.RespondWithError(w, http.StatusRequestEntityTooLarge, constants.FormatError(constants.ErrFileTooLarge, d.MaxUploadMB))
				return
			}
			api.RespondWithError(w, http.StatusBadRequest, "multipart parse error: "+err.Error())
			return
		}
		defer r.MultipartForm.RemoveAll()

		userID := strings.TrimSpace(r.FormValue(constants.FormUserID))
		profileID := strings.TrimSpace(r.FormValue(constants.FormMappingProfileID))
		if userID == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrMissingUserID)
			return
		}
		if profileID == "" {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrMissingProfile)
			return
		}
		file, header, err := r.FormFile(constants.FormFile)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrMissingFile)
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !slices.Contains(constants.UploadExtensions, ext) {
			api.RespondWithError(w, http.StatusBadRequest, constants.FormatError(constants.ErrInvalidFileFormat, ext, constants.UploadExtensions))
			return
		}
		if maxBytes > 0 && header.Size > maxBytes {
			api.RespondWithError(w, http.StatusRequestEntityTooLarge, constants.FormatError(constants.ErrFileTooLarge, d.MaxUploadMB))
			return
		}
		data, err := io.ReadAll(file)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileUploadFailed)
			return
		}
		if len(data) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrEmptyFile)
			return
		}

		profile, err := d.Profiles.Get(ctx, profileID)
		if err != nil {
			if errors.Is(err, store.ErrProfileNotFound) {
				api.RespondWithError(w, http.StatusNotFound, constants.FormatError(constants.ErrProfileNotFound, profileID))
				return
			}
			api.LogError("[UploadMappedDataset] profile %s: %v", profileID, err)
			api.RespondWithErr(w, err)
			return
		}

		sum := checksum.Fingerprint(data)
		existing, err := d.Datasets.FindUploaded(ctx, userID, sum)
		if err != nil {
			api.RespondWithErr(w, err)
			return
		}
		if existing != nil {
			api.RespondWithError(w, http.StatusConflict, constants.FormatError(constants.ErrDuplicateUpload, existing.ID))
			return
		}

		name := strings.TrimSpace(r.FormValue(constants.FormName))
		if name == "" {
			name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
		ds := &dataset.Dataset{
			UserID:       userID,
			Name:         name,
			Description:  strings.TrimSpace(r.FormValue(constants.FormDescription)),
			FileType:     profile.FileType,
			Status:       dataset.StatusProcessing,
			FileChecksum: sum,
		}
		if err := d.Datasets.Create(ctx, ds); err != nil {
			api.LogError("[UploadMappedDataset] create dataset: %v", err)
			api.RespondWithErr(w, err)
			return
		}
		api.LogInfo("[UploadMappedDataset] Start dataset=%s file=%s size=%d profile=%s", ds.ID, header.Filename, len(data), profileID)

		res, err := d.Pipeline.Run(ctx, ingest.Request{
			DatasetID: ds.ID,
			FileName:  header.Filename,
			Data:      data,
			Profile:   profile,
		})
		if err != nil {
			api.LogError("[UploadMappedDataset] dataset=%s failed after %v: %v", ds.ID, time.Since(start), err)
			api.RespondWithJSON(w, api.StatusFor(err), map[string]interface{}{
				"success":    false,
				"error":      err.Error(),
				"dataset_id": ds.ID,
				"result":     res,
			})
			return
		}

		if fresh, err := d.Datasets.Get(ctx, ds.ID); err == nil {
			ds = fresh
		}
		api.LogInfo("[UploadMappedDataset] Done dataset=%s inserted=%d in %v", ds.ID, res.Inserted, time.Since(start))
		api.RespondWithJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": constants.FormatError(constants.SuccessUploaded, res.Inserted),
			"dataset": ds,
			"result":  res,
		})
	}
}
