package invoices

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewInvoiceNumber renders INV-YYYYMM-XXXXXXXX using the first eight hex digits of id.
func NewInvoiceNumber(at time.Time, id uuid.UUID) string {
	if id == uuid.Nil {
		id = uuid.New()
	}
	suffix := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
	return "INV-" + at.UTC().Format("200601") + "-" + suffix
}
