package api

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bobarin/vidguard/internal/errs"
	"github.com/bobarin/vidguard/internal/orchestrator"
)

// Handler bundles the orchestrator every route dispatches through. It holds
// no other state — the orchestrator and its collaborators already own
// everything a request needs.
type Handler struct {
	orch *orchestrator.Orchestrator
}

func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	return &Handler{orch: orch}
}

const maxUploadBytes = 2 << 30 // 2 GiB

// Upload handles POST /v1/upload.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing \"video\" file field")
		return
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
	default:
		respondError(w, http.StatusBadRequest, "unsupported video type: use .mp4, .mov, .avi, .mkv or .webm")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	result, err := h.orch.Upload(r.Context(), data, header.Filename)
	if err != nil {
		respondErrorFor(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"jobId":      result.JobID,
		"previewURL": "/v1/preview/" + result.JobID + "/frame/0",
		"videoInfo":  result.VideoInfo,
	})
}

// UseExistingVideo handles POST /v1/use-existing-video.
func (h *Handler) UseExistingVideo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceURL string `json:"sourceUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceURL == "" {
		respondError(w, http.StatusBadRequest, "sourceUrl is required")
		return
	}

	jobID, err := h.orch.UseExistingVideo(r.Context(), req.SourceURL)
	if err != nil {
		respondErrorFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"jobId": jobID})
}

// Status handles GET /v1/status/{id}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := h.orch.GetStatus(r.Context(), id)
	if err != nil {
		respondErrorFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"stage":    status.Stage,
		"progress": status.Progress,
		"error":    status.Error,
	})
}

// Download handles GET /v1/download/{id}.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := h.orch.Download(r.Context(), id)
	if err != nil {
		respondErrorFor(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// AnalyzeVideo handles POST /v1/analyze-video/{id}.
func (h *Handler) AnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.orch.AnalyzeVideo(r.Context(), id)
	if err != nil {
		respondErrorFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"findings":           result.Findings,
		"summary":            result.Summary,
		"riskLevel":          result.RiskLevel,
		"predictedAgeRating": result.PredictedAgeRating,
	})
}

// AnalyzeAudio handles POST /v1/analyze-audio/{id}.
func (h *Handler) AnalyzeAudio(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		CustomWords []string `json:"customWords"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	matches, err := h.orch.AnalyzeAudio(r.Context(), id, body.CustomWords)
	if err != nil {
		respondErrorFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// PreviewFrame handles GET /v1/preview/{id}/frame/{i}.
func (h *Handler) PreviewFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "i"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "frame index must be an integer")
		return
	}
	path, err := h.orch.PreviewFramePath(r.Context(), id, index)
	if err != nil {
		respondErrorFor(w, err)
		return
	}
	http.ServeFile(w, r, path)
}

// SuggestReplacements handles POST /v1/suggest-replacements/{id}.
func (h *Handler) SuggestReplacements(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WordsToReplace []string `json:"wordsToReplace"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	alternatives, err := h.orch.SuggestAlternatives(r.Context(), body.WordsToReplace, 1.0)
	if err != nil {
		respondErrorFor(w, err)
		return
	}

	suggestions := make([]map[string]any, 0, len(body.WordsToReplace))
	for _, word := range body.WordsToReplace {
		suggestions = append(suggestions, map[string]any{
			"original":     word,
			"alternatives": alternatives[word],
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// DeleteJob handles DELETE /v1/jobs/{id}.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orch.DeleteJob(r.Context(), id); err != nil {
		respondErrorFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// runOperation is the shared body for every edit-operation endpoint: decode
// {jobId, ...params}, dispatch to the orchestrator, return {downloadPath}.
func (h *Handler) runOperation(w http.ResponseWriter, r *http.Request, op string) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "jobId is required")
		return
	}
	delete(body, "jobId")

	result, err := h.orch.RunOperation(r.Context(), jobID, op, body)
	if err != nil {
		respondErrorFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"downloadPath": "/v1/download/" + jobID,
		"message":      result.Message,
	})
}

// BlurObject handles POST /v1/blur-object.
func (h *Handler) BlurObject(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "blur-object")
}

// ReplaceGenerative handles POST /v1/replace-generative.
func (h *Handler) ReplaceGenerative(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "replace-generative")
}

// CensorAudio handles POST /v1/censor-audio. mode selects beep or dub.
func (h *Handler) CensorAudio(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, _ := body["mode"].(string)
	switch mode {
	case "beep":
		h.runOperationWithBody(w, r, "beep-profanity", body)
	case "dub":
		h.runOperationWithBody(w, r, "dub-profanity", body)
	default:
		respondError(w, http.StatusBadRequest, "mode must be \"beep\" or \"dub\"")
	}
}

func (h *Handler) runOperationWithBody(w http.ResponseWriter, r *http.Request, op string, body map[string]any) {
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "jobId is required")
		return
	}
	delete(body, "jobId")
	delete(body, "mode")

	result, err := h.orch.RunOperation(r.Context(), jobID, op, body)
	if err != nil {
		respondErrorFor(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"downloadPath": "/v1/download/" + jobID,
		"message":      result.Message,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"detail": message})
}

// respondErrorFor maps an error through the taxonomy's own status code
// rather than always answering 500, so a bad request or a not-found job
// surfaces the right HTTP status without a per-handler type switch.
func respondErrorFor(w http.ResponseWriter, err error) {
	respondError(w, errs.StatusFor(err), err.Error())
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
