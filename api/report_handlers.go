package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"vialactivo/pkg/export"
	"vialactivo/pkg/ontology"
	"vialactivo/pkg/photos"
	"vialactivo/pkg/shared"
)

const photoField = "foto"

// CreateReport accepts a JSON body or a multipart form carrying the photo in
// the "foto" part. In multipart forms ubicacion and medidas are JSON text.
func (h *Handlers) CreateReport(w http.ResponseWriter, r *http.Request) {
	var (
		req      ontology.CreateReportRequest
		uploaded bool
		err      error
	)
	if isMultipart(r) {
		req, uploaded, err = h.decodeMultipartReport(w, r)
	} else {
		err = decodeJSON(r, &req)
	}
	if err != nil {
		h.sendDecodeError(w, r, err)
		return
	}

	report, err := h.reports.Create(r.Context(), req)
	if err != nil {
		if uploaded {
			h.discardPhoto(r, req.FotoURL)
		}
		h.sendServiceError(w, r, err)
		return
	}

	sendSuccess(w, http.StatusCreated, report)
}

func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.FindAll(r.Context())
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendList(w, reports, len(reports))
}

func (h *Handlers) ListUserReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.FindByUser(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendList(w, reports, len(reports))
}

func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.FindByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendSuccess(w, http.StatusOK, report)
}

func (h *Handlers) UpdateReport(w http.ResponseWriter, r *http.Request) {
	var req ontology.UpdateReportRequest
	if err := decodeJSON(r, &req); err != nil {
		h.sendDecodeError(w, r, err)
		return
	}

	report, err := h.reports.Update(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendSuccess(w, http.StatusOK, report)
}

func (h *Handlers) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.reports.Delete(r.Context(), id); err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendSuccess(w, http.StatusOK, map[string]string{"id": id, "message": "Reporte eliminado"})
}

type nearRequest struct {
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
	Radius *float64 `json:"radius"`
}

// NearReports takes {lat, lng, radius}; radius defaults to 10 km.
func (h *Handlers) NearReports(w http.ResponseWriter, r *http.Request) {
	var body nearRequest
	if err := decodeJSON(r, &body); err != nil {
		h.sendDecodeError(w, r, err)
		return
	}

	verr := &shared.ValidationError{}
	if body.Lat == nil {
		verr.Add("lat", "is required")
	}
	if body.Lng == nil {
		verr.Add("lng", "is required")
	}
	if err := verr.OrNil(); err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	q := ontology.NearQuery{Longitude: *body.Lng, Latitude: *body.Lat}
	if body.Radius != nil {
		q.MaxDistanceMeters = *body.Radius
	}

	reports, err := h.reports.Near(r.Context(), q)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendList(w, reports, len(reports))
}

func (h *Handlers) ReportsInArea(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	verr := &shared.ValidationError{}
	parse := func(name string) float64 {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			verr.Add(name, "is required")
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			verr.Add(name, "must be a number")
		}
		return v
	}

	q := ontology.BoundingBoxQuery{
		NeLat: parse("neLat"),
		NeLng: parse("neLng"),
		SwLat: parse("swLat"),
		SwLng: parse("swLng"),
	}
	if err := verr.OrNil(); err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	reports, err := h.reports.InBoundingBox(r.Context(), q)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendList(w, reports, len(reports))
}

// ExportReports streams every report and the statistics computed from the
// same read as an xlsx workbook.
func (h *Handlers) ExportReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.FindAll(r.Context())
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	snap, err := h.statistics.Snapshot(r.Context(), reports)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	now := time.Now().UTC()
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition",
		`attachment; filename="reportes-`+now.Format("20060102-150405")+`.xlsx"`)
	if err := export.WriteWorkbook(w, reports, snap, now); err != nil {
		// headers are gone at this point; log only
		h.logger.Error("Failed to write workbook", zap.Error(err))
	}
}

func (h *Handlers) GetStatistics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.statistics.Compute(r.Context())
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	sendSuccess(w, http.StatusOK, snap)
}

// decodeMultipartReport reads the form and stores the photo part, if any.
// uploaded reports whether a photo was stored for req.FotoURL.
func (h *Handlers) decodeMultipartReport(w http.ResponseWriter, r *http.Request) (req ontology.CreateReportRequest, uploaded bool, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, photos.MaxPhotoBytes+1<<20)
	if err := r.ParseMultipartForm(photos.MaxPhotoBytes); err != nil {
		return req, false, errBadBody{err}
	}

	form := func(name string) string { return strings.TrimSpace(r.FormValue(name)) }
	verr := &shared.ValidationError{}

	req.Titulo = form("titulo")
	req.Descripcion = form("descripcion")
	req.Estado = form("estado")
	req.Tipo = form("tipo")
	req.Vialidad = form("vialidad")
	req.Nivel = form("nivel")
	req.UsuarioID = form("usuarioId")
	req.NombreUsuario = form("nombreUsuario")
	req.EmailUsuario = form("emailUsuario")
	req.Direccion = form("direccion")
	req.Municipio = form("municipio")
	req.Parroquia = form("parroquia")
	req.Ciudad = form("ciudad")
	req.UbiCompleta = form("ubiCompleta")
	req.FotoURL = form("fotoUrl")

	if raw := form("ubicacion"); raw != "" {
		p, err := ontology.DecodeCoordinates(raw)
		if err != nil {
			return req, false, err
		}
		req.Ubicacion = p
	}
	if raw := form("medidas"); raw != "" {
		m, err := ontology.DecodeMedidas(raw)
		if err != nil {
			return req, false, err
		}
		req.Medidas = m
	}
	counts := []struct {
		name string
		dst  *int
	}{
		{"cantidadTrafficLight", &req.CantidadTrafficLight},
		{"cantidadLight", &req.CantidadLight},
	}
	for _, c := range counts {
		if raw := form(c.name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				verr.Add(c.name, "must be an integer")
				continue
			}
			*c.dst = v
		}
	}
	if raw := form("fechaReporte"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			verr.Add("fechaReporte", "must be an RFC 3339 timestamp")
		} else {
			req.FechaReporte = &t
		}
	}
	if err := verr.OrNil(); err != nil {
		return req, false, err
	}

	file, header, err := r.FormFile(photoField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, false, nil
	case err != nil:
		return req, false, errBadBody{err}
	}
	defer file.Close()

	if h.photos == nil {
		return req, false, shared.NewValidationError(photoField, "photo uploads are disabled")
	}
	url, err := h.photos.Save(r.Context(), header.Header.Get("Content-Type"), file)
	if err != nil {
		return req, false, err
	}
	req.FotoURL = url
	return req, true, nil
}

// discardPhoto removes a photo stored for a report that was not created.
func (h *Handlers) discardPhoto(r *http.Request, ref string) {
	if err := h.photos.Remove(context.WithoutCancel(r.Context()), ref); err != nil {
		h.logger.Warn("Failed to remove orphaned photo", zap.String("ref", ref), zap.Error(err))
	}
}

// errBadBody marks a request body that could not be parsed at all.
type errBadBody struct{ err error }

func (e errBadBody) Error() string { return "invalid request body: " + e.err.Error() }
func (e errBadBody) Unwrap() error { return e.err }

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if shared.IsValidation(err) {
			return err
		}
		return errBadBody{err}
	}
	return nil
}

func (h *Handlers) sendDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var bad errBadBody
	if errors.As(err, &bad) {
		sendError(w, http.StatusBadRequest, shared.CodeInvalidJSON, bad.Error(), nil)
		return
	}
	h.sendServiceError(w, r, err)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
