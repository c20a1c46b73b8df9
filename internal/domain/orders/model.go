package orders

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. Identity key is the MRN.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	MRN       string    `db:"mrn" json:"mrn"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	DOB       time.Time `db:"dob" json:"dob"`
	Sex       *string   `db:"sex" json:"sex,omitempty"`
	WeightKG  *float64  `db:"weight_kg" json:"weight_kg,omitempty"`
	Allergies *string   `db:"allergies" json:"allergies,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Provider maps to the providers table. Identity key is the NPI.
type Provider struct {
	ID        uuid.UUID `db:"id" json:"id"`
	NPI       string    `db:"npi" json:"npi"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order maps to the orders table. Diagnosis codes and medication history are
// snapshotted at submission time and never re-derived from the patient row.
type Order struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	PatientID           uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderID          uuid.UUID `db:"provider_id" json:"provider_id"`
	MedicationName      string    `db:"medication_name" json:"medication_name"`
	PrimaryDiagnosis    string    `db:"primary_diagnosis" json:"primary_diagnosis"`
	AdditionalDiagnoses []string  `db:"additional_diagnoses" json:"additional_diagnoses,omitempty"`
	MedicationHistory   []string  `db:"medication_history" json:"medication_history,omitempty"`
	ClinicalNotes       *string   `db:"clinical_notes" json:"clinical_notes,omitempty"`
	Status              Status    `db:"status" json:"status"`
	ErrorMessage        *string   `db:"error_message" json:"error_message,omitempty"`
	OrderDate           time.Time `db:"order_date" json:"order_date"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// OrderSummary is the list/search projection: one row per order with the
// patient and provider identity fields joined in.
type OrderSummary struct {
	ID             uuid.UUID `json:"id"`
	PatientName    string    `json:"patient_name"`
	MRN            string    `json:"mrn"`
	ProviderName   string    `json:"provider_name"`
	NPI            string    `json:"npi"`
	MedicationName string    `json:"medication_name"`
	Status         Status    `json:"status"`
	OrderDate      time.Time `json:"order_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// OrderDetail is the single-order projection returned by GET /orders/:id.
type OrderDetail struct {
	Order    *Order    `json:"order"`
	Patient  *Patient  `json:"patient"`
	Provider *Provider `json:"provider"`
}

// ExportRow is the reporting projection: order, identities, and the
// generated document content when one exists.
type ExportRow struct {
	OrderID          uuid.UUID  `json:"order_id"`
	MRN              string     `json:"mrn"`
	PatientName      string     `json:"patient_name"`
	NPI              string     `json:"npi"`
	ProviderName     string     `json:"provider_name"`
	MedicationName   string     `json:"medication_name"`
	PrimaryDiagnosis string     `json:"primary_diagnosis"`
	Status           Status     `json:"status"`
	OrderDate        time.Time  `json:"order_date"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	PlanContent      *string    `json:"plan_content,omitempty"`
	PlanGeneratedAt  *time.Time `json:"plan_generated_at,omitempty"`
}

// IntakePatient carries the patient fields of an intake submission. DOB is a
// YYYY-MM-DD string so malformed dates surface as validation errors instead
// of bind failures.
type IntakePatient struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	MRN       string   `json:"mrn"`
	DOB       string   `json:"dob"`
	Sex       string   `json:"sex,omitempty"`
	WeightKG  *float64 `json:"weight_kg,omitempty"`
	Allergies string   `json:"allergies,omitempty"`
}

// IntakeProvider carries the provider fields of an intake submission.
type IntakeProvider struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	NPI       string `json:"npi"`
}

// IntakeRequest is the intake payload. ConfirmNotDuplicate lets the caller
// proceed past WARNING classifications; it never overrides BLOCKED.
type IntakeRequest struct {
	Patient             IntakePatient  `json:"patient"`
	Provider            IntakeProvider `json:"provider"`
	MedicationName      string         `json:"medication_name"`
	PrimaryDiagnosis    string         `json:"primary_diagnosis"`
	AdditionalDiagnoses []string       `json:"additional_diagnoses,omitempty"`
	MedicationHistory   []string       `json:"medication_history,omitempty"`
	ClinicalNotes       string         `json:"clinical_notes,omitempty"`
	ConfirmNotDuplicate bool           `json:"confirm_not_duplicate"`
}

// IntakeResult is the 201 body for an accepted order.
type IntakeResult struct {
	OrderID   uuid.UUID         `json:"order_id"`
	Status    Status            `json:"status"`
	Confirmed bool              `json:"confirmed,omitempty"`
	Notices   []string          `json:"notices,omitempty"`
	Links     map[string]string `json:"links"`
}

// StatusResult is the polling projection. DocumentAvailable is true iff the
// order reached completed and its care plan row exists.
type StatusResult struct {
	OrderID           uuid.UUID `json:"order_id"`
	Status            Status    `json:"status"`
	DocumentAvailable bool      `json:"document_available"`
	ErrorMessage      *string   `json:"error_message,omitempty"`
}
