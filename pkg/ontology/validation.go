package ontology

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"vialactivo/pkg/shared"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// NewReport builds a report from a create request: text is trimmed,
// defaults are applied and the result is validated.
func NewReport(req CreateReportRequest, id string, now time.Time) (*Report, error) {
	r := &Report{
		ID:                   id,
		Titulo:               strings.TrimSpace(req.Titulo),
		Descripcion:          strings.TrimSpace(req.Descripcion),
		Estado:               NormalizeEstado(req.Estado),
		Tipo:                 Tipo(strings.TrimSpace(req.Tipo)),
		Vialidad:             Vialidad(strings.TrimSpace(req.Vialidad)),
		Nivel:                Nivel(strings.TrimSpace(req.Nivel)),
		Medidas:              req.Medidas,
		CantidadTrafficLight: req.CantidadTrafficLight,
		CantidadLight:        req.CantidadLight,
		FechaReporte:         now,
		UsuarioID:            strings.TrimSpace(req.UsuarioID),
		NombreUsuario:        strings.TrimSpace(req.NombreUsuario),
		EmailUsuario:         strings.TrimSpace(req.EmailUsuario),
		Direccion:            strings.TrimSpace(req.Direccion),
		Municipio:            strings.TrimSpace(req.Municipio),
		Parroquia:            strings.TrimSpace(req.Parroquia),
		Ciudad:               strings.TrimSpace(req.Ciudad),
		UbiCompleta:          strings.TrimSpace(req.UbiCompleta),
		FotoURL:              strings.TrimSpace(req.FotoURL),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if req.Ubicacion != nil {
		r.Ubicacion = normalizePoint(*req.Ubicacion)
	}
	if r.Estado == "" {
		r.Estado = EstadoPendiente
	}
	if r.Tipo == "" {
		r.Tipo = TipoOther
	}
	if r.Nivel == "" {
		r.Nivel = NivelMedio
	}
	if req.FechaReporte != nil && !req.FechaReporte.IsZero() {
		r.FechaReporte = req.FechaReporte.UTC()
	}

	if err := ValidateReport(r); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply merges the non-nil fields of the request onto r. ID and CreatedAt
// are never touched.
func (req UpdateReportRequest) Apply(r *Report) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&r.Titulo, req.Titulo)
	setString(&r.Descripcion, req.Descripcion)
	setString(&r.UsuarioID, req.UsuarioID)
	setString(&r.NombreUsuario, req.NombreUsuario)
	setString(&r.EmailUsuario, req.EmailUsuario)
	setString(&r.Direccion, req.Direccion)
	setString(&r.Municipio, req.Municipio)
	setString(&r.Parroquia, req.Parroquia)
	setString(&r.Ciudad, req.Ciudad)
	setString(&r.UbiCompleta, req.UbiCompleta)
	setString(&r.FotoURL, req.FotoURL)

	if req.Ubicacion != nil {
		r.Ubicacion = normalizePoint(*req.Ubicacion)
	}
	if req.Estado != nil {
		r.Estado = NormalizeEstado(*req.Estado)
	}
	if req.Tipo != nil {
		r.Tipo = Tipo(strings.TrimSpace(*req.Tipo))
	}
	if req.Vialidad != nil {
		r.Vialidad = Vialidad(strings.TrimSpace(*req.Vialidad))
	}
	if req.Nivel != nil {
		r.Nivel = Nivel(strings.TrimSpace(*req.Nivel))
	}
	if req.Medidas != nil {
		r.Medidas = req.Medidas
	}
	if req.CantidadTrafficLight != nil {
		r.CantidadTrafficLight = *req.CantidadTrafficLight
	}
	if req.CantidadLight != nil {
		r.CantidadLight = *req.CantidadLight
	}
	if req.FechaReporte != nil {
		r.FechaReporte = req.FechaReporte.UTC()
	}
}

// NormalizeEstado maps the legacy "en proceso" spelling onto en_proceso.
func NormalizeEstado(s string) Estado {
	s = strings.TrimSpace(s)
	if s == estadoEnProcesoLegacy {
		return EstadoEnProceso
	}
	return Estado(s)
}

func normalizePoint(p Point) Point {
	if p.Type == "" {
		p.Type = PointType
	}
	return p
}

// ValidateReport checks every field rule of a report. All violations are
// returned together in a *shared.ValidationError.
func ValidateReport(r *Report) error {
	verr := &shared.ValidationError{}
	collect(verr, validate.Struct(r))

	if err := ValidatePoint(r.Ubicacion); err != nil {
		var pv *shared.ValidationError
		if errors.As(err, &pv) {
			verr.Fields = append(verr.Fields, pv.Fields...)
		}
	}
	if r.Medidas != nil {
		checkMeasure(verr, "medidas.alto", r.Medidas.Alto)
		checkMeasure(verr, "medidas.ancho", r.Medidas.Ancho)
		checkMeasure(verr, "medidas.largo", r.Medidas.Largo)
	}
	return verr.OrNil()
}

// ValidatePoint enforces exactly two finite coordinates with
// longitude in [-180,180] and latitude in [-90,90].
func ValidatePoint(p Point) error {
	verr := &shared.ValidationError{}
	if p.Type != "" && p.Type != PointType {
		verr.Add("ubicacion.type", fmt.Sprintf("must be %q", PointType))
	}
	if len(p.Coordinates) != 2 {
		verr.Add("ubicacion.coordinates", "must contain exactly [longitude, latitude]")
		return verr
	}
	checkLongitude(verr, "ubicacion.coordinates[0]", p.Coordinates[0])
	checkLatitude(verr, "ubicacion.coordinates[1]", p.Coordinates[1])
	return verr.OrNil()
}

// Validate fills in the default radius and checks the query point.
func (q *NearQuery) Validate() error {
	verr := &shared.ValidationError{}
	checkLongitude(verr, "lng", q.Longitude)
	checkLatitude(verr, "lat", q.Latitude)
	if q.MaxDistanceMeters == 0 {
		q.MaxDistanceMeters = DefaultNearDistanceMeters
	}
	if math.IsNaN(q.MaxDistanceMeters) || math.IsInf(q.MaxDistanceMeters, 0) || q.MaxDistanceMeters < 0 {
		verr.Add("radius", "must be a finite positive distance in meters")
	}
	return verr.OrNil()
}

// Validate checks the corners and rejects inverted rectangles, which
// includes boxes crossing the antimeridian.
func (q BoundingBoxQuery) Validate() error {
	verr := &shared.ValidationError{}
	checkLatitude(verr, "neLat", q.NeLat)
	checkLongitude(verr, "neLng", q.NeLng)
	checkLatitude(verr, "swLat", q.SwLat)
	checkLongitude(verr, "swLng", q.SwLng)
	if len(verr.Fields) > 0 {
		return verr
	}
	if q.NeLat <= q.SwLat {
		verr.Add("neLat", "must be greater than swLat")
	}
	if q.NeLng <= q.SwLng {
		verr.Add("neLng", "must be greater than swLng")
	}
	return verr.OrNil()
}

// ValidateEmail checks that an already normalized email is well formed.
func ValidateEmail(email string) error {
	verr := &shared.ValidationError{}
	collect(verr, validate.Var(email, "required,email"))
	for i := range verr.Fields {
		verr.Fields[i].Field = "email"
	}
	return verr.OrNil()
}

// DecodeMedidas decodes measurements sent as JSON text, as multipart
// submissions do. Empty text means no measurements.
func DecodeMedidas(text string) (*Medidas, error) {
	text = strings.TrimSpace(text)
	if text == "" || text == "null" {
		return nil, nil
	}
	var m Medidas
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		if shared.IsValidation(err) {
			return nil, err
		}
		return nil, shared.NewValidationError("medidas", "malformed measurements: "+err.Error())
	}
	return &m, nil
}

// DecodeCoordinates decodes a location sent as JSON text, either a GeoJSON
// point or a bare [longitude, latitude] pair.
func DecodeCoordinates(text string) (*Point, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.NewValidationError("ubicacion", "is required")
	}
	var p Point
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &p.Coordinates); err != nil {
			return nil, shared.NewValidationError("ubicacion", "malformed coordinates: "+err.Error())
		}
		p.Type = PointType
		return &p, nil
	}
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, shared.NewValidationError("ubicacion", "malformed location: "+err.Error())
	}
	if p.Type == "" {
		p.Type = PointType
	}
	return &p, nil
}

// UnmarshalJSON accepts numbers, numeric strings, empty strings and null
// for each dimension.
func (m *Medidas) UnmarshalJSON(data []byte) error {
	var raw struct {
		Alto  json.RawMessage `json:"alto"`
		Ancho json.RawMessage `json:"ancho"`
		Largo json.RawMessage `json:"largo"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return shared.NewValidationError("medidas", "must be an object with alto, ancho and largo")
	}
	var err error
	if m.Alto, err = decodeMeasure("alto", raw.Alto); err != nil {
		return err
	}
	if m.Ancho, err = decodeMeasure("ancho", raw.Ancho); err != nil {
		return err
	}
	if m.Largo, err = decodeMeasure("largo", raw.Largo); err != nil {
		return err
	}
	return nil
}

func decodeMeasure(name string, raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, shared.NewValidationError("medidas."+name, "must be a number")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, shared.NewValidationError("medidas."+name, fmt.Sprintf("%q is not a number", text))
	}
	return &v, nil
}

func checkMeasure(verr *shared.ValidationError, field string, v *float64) {
	if v == nil {
		return
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		verr.Add(field, "must be a finite number greater than or equal to 0")
	}
}

func checkLongitude(verr *shared.ValidationError, field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < -180 || v > 180 {
		verr.Add(field, "longitude must be between -180 and 180")
	}
}

func checkLatitude(verr *shared.ValidationError, field string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < -90 || v > 90 {
		verr.Add(field, "latitude must be between -90 and 90")
	}
}

func collect(verr *shared.ValidationError, err error) {
	if err == nil {
		return
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		verr.Add("", err.Error())
		return
	}
	for _, fe := range verrs {
		verr.Add(fe.Field(), fieldMessage(fe))
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
