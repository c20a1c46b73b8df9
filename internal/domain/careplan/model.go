package careplan

import (
	"time"

	"github.com/google/uuid"
)

// CarePlan is the generated pharmaceutical care plan document for one order.
// One row per order; regeneration replaces the content in place.
type CarePlan struct {
	ID          uuid.UUID `json:"id"`
	OrderID     uuid.UUID `json:"order_id"`
	Content     string    `json:"content"`
	Model       string    `json:"model"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Document is the API projection returned for a completed order, pairing the
// plan content with the order context it was generated from.
type Document struct {
	OrderID          uuid.UUID `json:"order_id"`
	PatientName      string    `json:"patient_name"`
	MRN              string    `json:"mrn"`
	MedicationName   string    `json:"medication_name"`
	PrimaryDiagnosis string    `json:"primary_diagnosis"`
	Content          string    `json:"content"`
	Model            string    `json:"model"`
	GeneratedAt      time.Time `json:"generated_at"`
}
