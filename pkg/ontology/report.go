package ontology

import (
	"time"
)

type Estado string

const (
	EstadoPendiente Estado = "pendiente"
	EstadoEnProceso Estado = "en_proceso"
	EstadoTerminado Estado = "terminado"
	EstadoRechazado Estado = "rechazado"

	// legacy spelling still sent by older clients
	estadoEnProcesoLegacy = "en proceso"
)

type Tipo string

const (
	TipoPothole      Tipo = "pothole"
	TipoTrafficLight Tipo = "traffic_light"
	TipoLight        Tipo = "light"
	TipoOther        Tipo = "other"
)

type Vialidad string

const (
	VialidadCarreteraNacional Vialidad = "carretera_nacional"
	VialidadAvenidaPrincipal  Vialidad = "avenida_principal"
	VialidadTroncal           Vialidad = "troncal"
	VialidadCallePrincipal    Vialidad = "calle_principal"
	VialidadCalle             Vialidad = "calle"
)

type Nivel string

const (
	NivelAlto  Nivel = "alto"
	NivelMedio Nivel = "medio"
	NivelBajo  Nivel = "bajo"
)

const (
	PointType = "Point"

	TituloMaxLength = 100

	// DefaultNearDistanceMeters is the search radius used when a proximity
	// query does not supply one.
	DefaultNearDistanceMeters = 10000
)

// Point is a GeoJSON point; Coordinates are [longitude, latitude].
type Point struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

func NewPoint(lng, lat float64) Point {
	return Point{Type: PointType, Coordinates: []float64{lng, lat}}
}

func (p Point) Longitude() float64 {
	if len(p.Coordinates) < 1 {
		return 0
	}
	return p.Coordinates[0]
}

func (p Point) Latitude() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

// Medidas holds pothole dimensions in centimeters.
type Medidas struct {
	Alto  *float64 `json:"alto,omitempty" bson:"alto,omitempty"`
	Ancho *float64 `json:"ancho,omitempty" bson:"ancho,omitempty"`
	Largo *float64 `json:"largo,omitempty" bson:"largo,omitempty"`
}

// Complete reports whether all three dimensions are present.
func (m *Medidas) Complete() bool {
	return m != nil && m.Alto != nil && m.Ancho != nil && m.Largo != nil
}

type Report struct {
	ID                   string    `json:"id" bson:"_id"`
	Titulo               string    `json:"titulo" bson:"titulo" validate:"required,max=100"`
	Descripcion          string    `json:"descripcion" bson:"descripcion" validate:"required"`
	Ubicacion            Point     `json:"ubicacion" bson:"ubicacion"`
	Estado               Estado    `json:"estado" bson:"estado" validate:"required,oneof=pendiente en_proceso terminado rechazado"`
	Tipo                 Tipo      `json:"tipo" bson:"tipo" validate:"required,oneof=pothole traffic_light light other"`
	Vialidad             Vialidad  `json:"vialidad,omitempty" bson:"vialidad,omitempty" validate:"omitempty,oneof=carretera_nacional avenida_principal troncal calle_principal calle"`
	Nivel                Nivel     `json:"nivel" bson:"nivel" validate:"required,oneof=alto medio bajo"`
	Medidas              *Medidas  `json:"medidas,omitempty" bson:"medidas,omitempty"`
	CantidadTrafficLight int       `json:"cantidadTrafficLight" bson:"cantidadTrafficLight" validate:"gte=0"`
	CantidadLight        int       `json:"cantidadLight" bson:"cantidadLight" validate:"gte=0"`
	FechaReporte         time.Time `json:"fechaReporte" bson:"fechaReporte"`
	UsuarioID            string    `json:"usuarioId" bson:"usuarioId" validate:"required"`
	NombreUsuario        string    `json:"nombreUsuario" bson:"nombreUsuario" validate:"required"`
	EmailUsuario         string    `json:"emailUsuario" bson:"emailUsuario" validate:"required"`
	Direccion            string    `json:"direccion,omitempty" bson:"direccion,omitempty"`
	Municipio            string    `json:"municipio,omitempty" bson:"municipio,omitempty"`
	Parroquia            string    `json:"parroquia,omitempty" bson:"parroquia,omitempty"`
	Ciudad               string    `json:"ciudad,omitempty" bson:"ciudad,omitempty"`
	UbiCompleta          string    `json:"ubiCompleta,omitempty" bson:"ubiCompleta,omitempty"`
	FotoURL              string    `json:"fotoUrl" bson:"fotoUrl" validate:"required"`
	CreatedAt            time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time `json:"-" bson:"updatedAt"`
}

type CreateReportRequest struct {
	Titulo               string     `json:"titulo"`
	Descripcion          string     `json:"descripcion"`
	Ubicacion            *Point     `json:"ubicacion"`
	Estado               string     `json:"estado,omitempty"`
	Tipo                 string     `json:"tipo,omitempty"`
	Vialidad             string     `json:"vialidad,omitempty"`
	Nivel                string     `json:"nivel,omitempty"`
	Medidas              *Medidas   `json:"medidas,omitempty"`
	CantidadTrafficLight int        `json:"cantidadTrafficLight,omitempty"`
	CantidadLight        int        `json:"cantidadLight,omitempty"`
	FechaReporte         *time.Time `json:"fechaReporte,omitempty"`
	UsuarioID            string     `json:"usuarioId"`
	NombreUsuario        string     `json:"nombreUsuario"`
	EmailUsuario         string     `json:"emailUsuario"`
	Direccion            string     `json:"direccion,omitempty"`
	Municipio            string     `json:"municipio,omitempty"`
	Parroquia            string     `json:"parroquia,omitempty"`
	Ciudad               string     `json:"ciudad,omitempty"`
	UbiCompleta          string     `json:"ubiCompleta,omitempty"`
	FotoURL              string     `json:"fotoUrl"`
}

// UpdateReportRequest is a partial update; nil fields keep their stored value.
type UpdateReportRequest struct {
	Titulo               *string    `json:"titulo,omitempty"`
	Descripcion          *string    `json:"descripcion,omitempty"`
	Ubicacion            *Point     `json:"ubicacion,omitempty"`
	Estado               *string    `json:"estado,omitempty"`
	Tipo                 *string    `json:"tipo,omitempty"`
	Vialidad             *string    `json:"vialidad,omitempty"`
	Nivel                *string    `json:"nivel,omitempty"`
	Medidas              *Medidas   `json:"medidas,omitempty"`
	CantidadTrafficLight *int       `json:"cantidadTrafficLight,omitempty"`
	CantidadLight        *int       `json:"cantidadLight,omitempty"`
	FechaReporte         *time.Time `json:"fechaReporte,omitempty"`
	UsuarioID            *string    `json:"usuarioId,omitempty"`
	NombreUsuario        *string    `json:"nombreUsuario,omitempty"`
	EmailUsuario         *string    `json:"emailUsuario,omitempty"`
	Direccion            *string    `json:"direccion,omitempty"`
	Municipio            *string    `json:"municipio,omitempty"`
	Parroquia            *string    `json:"parroquia,omitempty"`
	Ciudad               *string    `json:"ciudad,omitempty"`
	UbiCompleta          *string    `json:"ubiCompleta,omitempty"`
	FotoURL              *string    `json:"fotoUrl,omitempty"`
}

// NearQuery selects reports within MaxDistanceMeters of a point.
type NearQuery struct {
	Longitude         float64 `json:"lng"`
	Latitude          float64 `json:"lat"`
	MaxDistanceMeters float64 `json:"radius"`
}

// BoundingBoxQuery selects reports inside the rectangle spanned by its
// north-east and south-west corners.
type BoundingBoxQuery struct {
	NeLat float64 `json:"neLat"`
	NeLng float64 `json:"neLng"`
	SwLat float64 `json:"swLat"`
	SwLng float64 `json:"swLng"`
}
