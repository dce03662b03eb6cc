package shared

import "fmt"

// NATS Subject patterns
const (
	SubjectPrefix = "vialactivo"

	// Report subjects
	SubjectReports       = "vialactivo.reportes"
	SubjectReportsAll    = "vialactivo.reportes.>"
	SubjectReportCreated = "vialactivo.reportes.created"
	SubjectReportUpdated = "vialactivo.reportes.updated"
	SubjectReportDeleted = "vialactivo.reportes.deleted"

	// Admin subjects
	SubjectAdmins          = "vialactivo.admins"
	SubjectAdminsAll       = "vialactivo.admins.>"
	SubjectAdminRegistered = "vialactivo.admins.registered"

	subjectReportEvent = "vialactivo.reportes.%s"
)

// Stream names
const (
	StreamReports = "VIALACTIVO_REPORTES"
	StreamAdmins  = "VIALACTIVO_ADMINS"
)

// Consumer names
const (
	ConsumerStatisticsRefresher = "statistics-refresher"
	ConsumerAuditLogger         = "audit-logger"
)

// ReportEventSubject returns the subject for a report event type
// (created, updated, deleted).
func ReportEventSubject(eventType string) string {
	return fmt.Sprintf(subjectReportEvent, eventType)
}
