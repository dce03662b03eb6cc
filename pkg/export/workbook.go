// Package export renders reports and their statistics as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"vialactivo/pkg/ontology"
	"vialactivo/pkg/stats"
)

const (
	ReportsSheet    = "Reportes"
	StatisticsSheet = "Estadisticas"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var reportHeaders = []interface{}{
	"ID", "Titulo", "Descripcion", "Estado", "Tipo", "Vialidad", "Nivel",
	"Longitud", "Latitud", "Alto (cm)", "Ancho (cm)", "Largo (cm)",
	"Semaforos", "Luminarias", "Municipio", "Parroquia", "Ciudad", "Direccion",
	"Usuario", "Email", "Fecha Reporte", "Foto",
}

// WriteWorkbook writes one row per report on the Reportes sheet and the
// snapshot on the Estadisticas sheet.
func WriteWorkbook(w io.Writer, reports []ontology.Report, snap stats.Snapshot, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeReports(f, reports); err != nil {
		return err
	}

	if _, err := f.NewSheet(StatisticsSheet); err != nil {
		return fmt.Errorf("failed to create statistics sheet: %w", err)
	}
	if err := writeStatistics(f, snap, generatedAt); err != nil {
		return err
	}
	f.SetActiveSheet(0) // ReportsSheet

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeReports(f *excelize.File, reports []ontology.Report) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})

	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(ReportsSheet, "A1", &reportHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(reportHeaders), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(ReportsSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style headers: %w", err)
	}
	if err := f.SetColWidth(ReportsSheet, "A", "V", 18); err != nil {
		return fmt.Errorf("failed to size report columns: %w", err)
	}

	for i, r := range reports {
		row := []interface{}{
			r.ID, r.Titulo, r.Descripcion, string(r.Estado), string(r.Tipo), string(r.Vialidad), string(r.Nivel),
			r.Ubicacion.Longitude(), r.Ubicacion.Latitude(),
			measure(r.Medidas, func(m *ontology.Medidas) *float64 { return m.Alto }),
			measure(r.Medidas, func(m *ontology.Medidas) *float64 { return m.Ancho }),
			measure(r.Medidas, func(m *ontology.Medidas) *float64 { return m.Largo }),
			r.CantidadTrafficLight, r.CantidadLight,
			r.Municipio, r.Parroquia, r.Ciudad, r.Direccion,
			r.NombreUsuario, r.EmailUsuario,
			r.FechaReporte.UTC().Format("2006-01-02 15:04:05"),
			r.FotoURL,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ReportsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write report %s: %w", r.ID, err)
		}
	}
	return nil
}

func writeStatistics(f *excelize.File, snap stats.Snapshot, generatedAt time.Time) error {
	rows := [][]interface{}{
		{"Generado", generatedAt.UTC().Format("2006-01-02 15:04:05")},
		{},
		{"Total reportes", snap.TotalReportes},
		{"Pendientes", snap.Pendientes},
		{"En proceso", snap.EnProceso},
		{"Terminados", snap.Terminados},
		{"Rechazados", snap.Rechazados},
		{},
		{"Materiales"},
		{"Asfalto (kg)", snap.Materiales.Asfalto},
		{"Semaforos", snap.Materiales.Semaforos},
		{"Luminarias", snap.Materiales.Luminarias},
		{},
		{"Tipo", "Cantidad"},
	}
	for _, t := range snap.TiposReportes {
		rows = append(rows, []interface{}{string(t.Tipo), t.Cantidad})
	}
	rows = append(rows, []interface{}{}, []interface{}{"Municipio", "Total pendientes"})
	for _, m := range snap.MunicipiosConMasReportes {
		rows = append(rows, []interface{}{m.Municipio, m.Total})
	}

	for i := range rows {
		if len(rows[i]) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(StatisticsSheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write statistics: %w", err)
		}
	}
	if err := f.SetColWidth(StatisticsSheet, "A", "B", 22); err != nil {
		return fmt.Errorf("failed to size statistics columns: %w", err)
	}
	return nil
}

func measure(m *ontology.Medidas, pick func(*ontology.Medidas) *float64) interface{} {
	if m == nil {
		return nil
	}
	if v := pick(m); v != nil {
		return *v
	}
	return nil
}
