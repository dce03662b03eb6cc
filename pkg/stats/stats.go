// Package stats derives the dashboard statistics from a snapshot of reports.
// Every function is pure; callers fetch the snapshot once and pass it in.
package stats

import (
	"math"
	"sort"
	"strconv"

	"vialactivo/pkg/ontology"
)

const (
	CompactionFactor   = 1.3
	WasteFactor        = 1.10
	AsphaltDensityKgM3 = 2400.0

	TopMunicipios = 3
)

type Snapshot struct {
	TotalReportes            int              `json:"totalReportes"`
	Pendientes               int              `json:"pendientes"`
	EnProceso                int              `json:"enProceso"`
	Terminados               int              `json:"terminados"`
	Rechazados               int              `json:"rechazados"`
	TiposReportes            []TipoCount      `json:"tiposReportes"`
	Materiales               Materiales       `json:"materiales"`
	MunicipiosConMasReportes []MunicipioCount `json:"municipiosConMasReportes"`
}

type StatusCounts struct {
	Total      int
	Pendientes int
	EnProceso  int
	Terminados int
	Rechazados int
}

type TipoCount struct {
	Tipo     ontology.Tipo `json:"tipo"`
	Cantidad int           `json:"cantidad"`
}

// Materiales is the repair material estimate for pending work. Asfalto is
// the asphalt mass in kilograms with two decimals.
type Materiales struct {
	Asfalto    string `json:"asfalto"`
	Semaforos  int    `json:"semaforos"`
	Luminarias int    `json:"luminarias"`
}

type MunicipioCount struct {
	Municipio string                `json:"municipio"`
	Total     int                   `json:"total"`
	Reportes  map[ontology.Tipo]int `json:"reportes"`
}

// Compute derives every facet from the same slice.
func Compute(reports []ontology.Report) Snapshot {
	return Assemble(
		CountEstados(reports),
		CountTipos(reports),
		EstimateMateriales(reports),
		RankMunicipios(reports, TopMunicipios),
	)
}

// Assemble joins separately computed facets into a snapshot.
func Assemble(estados StatusCounts, tipos []TipoCount, materiales Materiales, municipios []MunicipioCount) Snapshot {
	return Snapshot{
		TotalReportes:            estados.Total,
		Pendientes:               estados.Pendientes,
		EnProceso:                estados.EnProceso,
		Terminados:               estados.Terminados,
		Rechazados:               estados.Rechazados,
		TiposReportes:            tipos,
		Materiales:               materiales,
		MunicipiosConMasReportes: municipios,
	}
}

// CountEstados counts reports per status. Total includes every report,
// rejected ones too.
func CountEstados(reports []ontology.Report) StatusCounts {
	c := StatusCounts{Total: len(reports)}
	for _, r := range reports {
		switch r.Estado {
		case ontology.EstadoPendiente:
			c.Pendientes++
		case ontology.EstadoEnProceso:
			c.EnProceso++
		case ontology.EstadoTerminado:
			c.Terminados++
		case ontology.EstadoRechazado:
			c.Rechazados++
		}
	}
	return c
}

// CountTipos counts reports per type in first-seen order.
func CountTipos(reports []ontology.Report) []TipoCount {
	out := []TipoCount{}
	index := make(map[ontology.Tipo]int)
	for _, r := range reports {
		i, ok := index[r.Tipo]
		if !ok {
			i = len(out)
			index[r.Tipo] = i
			out = append(out, TipoCount{Tipo: r.Tipo})
		}
		out[i].Cantidad++
	}
	return out
}

// EstimateMateriales sums the material needs of pending reports. Potholes
// contribute asphalt only when all three measurements are present; traffic
// lights and lights contribute at least one unit each.
func EstimateMateriales(reports []ontology.Report) Materiales {
	var volumeM3 float64
	var m Materiales
	for _, r := range reports {
		if r.Estado != ontology.EstadoPendiente {
			continue
		}
		switch r.Tipo {
		case ontology.TipoPothole:
			if r.Medidas.Complete() {
				volumeM3 += (*r.Medidas.Largo / 100) * (*r.Medidas.Ancho / 100) * (*r.Medidas.Alto / 100)
			}
		case ontology.TipoTrafficLight:
			m.Semaforos += atLeastOne(r.CantidadTrafficLight)
		case ontology.TipoLight:
			m.Luminarias += atLeastOne(r.CantidadLight)
		}
	}
	m.Asfalto = FormatKg(AsphaltMassKg(volumeM3))
	return m
}

// AsphaltMassKg converts a pothole volume into compacted asphalt mass.
func AsphaltMassKg(volumeM3 float64) float64 {
	return volumeM3 * CompactionFactor * WasteFactor * AsphaltDensityKgM3
}

// FormatKg rounds to two decimals.
func FormatKg(kg float64) string {
	return strconv.FormatFloat(math.Round(kg*100)/100, 'f', 2, 64)
}

// RankMunicipios groups pending reports by municipality and returns the n
// with the most reports. Ties keep first-seen order.
func RankMunicipios(reports []ontology.Report, n int) []MunicipioCount {
	out := []MunicipioCount{}
	index := make(map[string]int)
	for _, r := range reports {
		if r.Estado != ontology.EstadoPendiente || r.Municipio == "" {
			continue
		}
		i, ok := index[r.Municipio]
		if !ok {
			i = len(out)
			index[r.Municipio] = i
			out = append(out, MunicipioCount{Municipio: r.Municipio, Reportes: map[ontology.Tipo]int{}})
		}
		out[i].Total++
		out[i].Reportes[r.Tipo]++
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total > out[j].Total
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
