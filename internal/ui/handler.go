package ui

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/config"
	httperrors "github.com/jw6ventures/foodlog/internal/http/errors"
	"github.com/jw6ventures/foodlog/internal/images"
	"github.com/jw6ventures/foodlog/internal/tracker"
	"github.com/jw6ventures/foodlog/internal/validation"
	"github.com/jw6ventures/foodlog/internal/workspace"
)

// Multipart parts beyond this are buffered on disk while parsing.
const maxFormBytes = validation.MaxImageSizeBytes + 1<<20

// Handler serves server-rendered HTML pages.
type Handler struct {
	cfg       *config.Config
	registry  *workspace.Registry
	sessions  *auth.SessionManager
	templates map[string]*template.Template
	log       logrus.FieldLogger
}

func NewHandler(cfg *config.Config, registry *workspace.Registry, sessions *auth.SessionManager, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{cfg: cfg, registry: registry, sessions: sessions, templates: templates, log: log}
}

// Dashboard renders today's list, totals and the add or edit form.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ws := mustWorkspace(r)
	tr := ws.Tracker

	data := map[string]any{
		"Title":   "Today",
		"Email":   identityEmail(ws),
		"Today":   tr.Now().Format("Monday, January 2, 2006"),
		"Entries": tr.Entries(),
		"Stats":   tr.Stats(),
	}
	if raw := r.URL.Query().Get("edit"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if entry, ok := tr.Entry(id); ok {
				data["Editing"] = &entry
			}
		}
	}

	h.render(w, r, http.StatusOK, "dashboard.html", h.withFlash(r, data))
}

// CreateFood adds an entry from a multipart form.
func (h *Handler) CreateFood(w http.ResponseWriter, r *http.Request) {
	h.saveFood(w, r, 0)
}

// UpdateFood edits the entry named in the path.
func (h *Handler) UpdateFood(w http.ResponseWriter, r *http.Request) {
	id, err := foodID(r)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid food id")
		return
	}
	h.saveFood(w, r, id)
}

// UploadTooLarge answers a food form whose body overran the request limit. The
// body was never read, so only the image-size message can be given.
func (h *Handler) UploadTooLarge(w http.ResponseWriter, r *http.Request) {
	h.redirectWithError(w, r, 0, validation.ImageSize(validation.MaxImageSizeBytes+1).Err())
}

func (h *Handler) saveFood(w http.ResponseWriter, r *http.Request, editingID int64) {
	ws := mustWorkspace(r)

	form, err := parseFoodForm(r)
	if err != nil {
		h.redirectWithError(w, r, editingID, err)
		return
	}
	form.EditingID = editingID

	if _, err := ws.Tracker.AddOrUpdate(r.Context(), form); err != nil {
		h.redirectWithError(w, r, editingID, err)
		return
	}

	status := "Food added"
	if editingID != 0 {
		status = "Food updated"
	}
	h.redirect(w, r, "/", map[string]string{"status": status})
}

// DeleteFood removes the entry named in the path.
func (h *Handler) DeleteFood(w http.ResponseWriter, r *http.Request) {
	ws := mustWorkspace(r)

	id, err := foodID(r)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid food id")
		return
	}

	if err := ws.Tracker.Remove(r.Context(), id); err != nil {
		h.redirectWithError(w, r, 0, err)
		return
	}
	h.redirect(w, r, "/", map[string]string{"status": "Food deleted"})
}

func (h *Handler) redirectWithError(w http.ResponseWriter, r *http.Request, editingID int64, err error) {
	msg := tracker.Message(err)
	if msg == "An error occurred" {
		h.log.WithError(err).Warn("food operation failed")
	}
	params := map[string]string{"error": msg}
	if editingID != 0 {
		params["edit"] = strconv.FormatInt(editingID, 10)
	}
	h.redirect(w, r, "/", params)
}

func foodID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("food id %d out of range", id)
	}
	return id, nil
}

// parseFoodForm reads name, calories and an optional image. An image is read
// up to one byte past the limit so the validator can reject it by size.
func parseFoodForm(r *http.Request) (tracker.Form, error) {
	var form tracker.Form

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err = r.ParseMultipartForm(maxFormBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return form, err
	}

	form.Name = r.FormValue("name")
	if raw := strings.TrimSpace(r.FormValue("calories")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return form, validation.Calories(-1).Err()
		}
		form.Calories = &n
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return form, nil
	case err != nil:
		return form, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, validation.MaxImageSizeBytes+1))
	if err != nil {
		return form, err
	}
	form.Image = &images.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return form, nil
}

func identityEmail(ws *workspace.Workspace) string {
	if id := ws.Controller.Identity(); id != nil {
		return id.Email
	}
	return ""
}
