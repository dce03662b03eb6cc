package ontology

import (
	"strings"
	"time"
)

type AdminRecord struct {
	Email     string    `json:"email" bson:"email" validate:"required,email"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type RegisterAdminRequest struct {
	Email string `json:"email"`
}

// NormalizeEmail trims and lower-cases an email so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
