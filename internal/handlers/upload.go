package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/taskdeck/apiserver/internal/services"
	"github.com/taskdeck/apiserver/internal/storage"
	"github.com/taskdeck/apiserver/internal/store"
)

const (
	maxImageBytes  = 5 << 20
	formFieldImage = "image"
	uploadsPrefix  = "/uploads/"
)

// UploadHandler stores profile images in object storage and serves them back.
type UploadHandler struct {
	userService *services.UserService
	storage     *storage.Storage
}

// NewUploadHandler constructs an UploadHandler with the provided dependencies.
func NewUploadHandler(userService *services.UserService, st *storage.Storage) *UploadHandler {
	return &UploadHandler{
		userService: userService,
		storage:     st,
	}
}

// UploadProfileImage accepts a multipart image, stores it under a fresh
// object key, and records its URL on the current user's profile.
func (h *UploadHandler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}

	data, err := readFileLimited(file, maxImageBytes)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	contentType, err := validateImage(data, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to upload image")
		return
	}

	key := imageObjectKey(header.Filename)
	if err := h.storage.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upload image")
		return
	}

	user.ImageURL = uploadsPrefix + key
	updated, err := h.userService.Update(r.Context(), user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upload image")
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{Message: "Profile image updated successfully", User: updated})
}

// ServeUpload streams a stored object back to the client.
func (h *UploadHandler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if strings.Contains(key, "/") || strings.Contains(key, "..") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	reader, err := h.storage.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to fetch image")
		return
	}
	defer reader.Close()

	// Objects are at most maxImageBytes, so buffering keeps the error
	// path clean: a failed read aborts before any header is written.
	data, err := io.ReadAll(io.LimitReader(reader, maxImageBytes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch image")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// validateImage decides whether an upload is acceptable based on its bytes
// and declared media type, and returns the content type to store.
func validateImage(data []byte, declaredType string) (string, error) {
	if !strings.HasPrefix(declaredType, "image/") {
		return "", errors.New("only images can be uploaded")
	}
	detected := http.DetectContentType(data)
	if !strings.HasPrefix(detected, "image/") {
		return "", errors.New("only images can be uploaded")
	}
	return detected, nil
}

// imageObjectKey derives a collision-resistant object key, keeping only the
// original file extension.
func imageObjectKey(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return uuid.NewString() + ext
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
