package careplan

import (
	"fmt"
	"strings"

	"github.com/carebridge/careplan/internal/domain/orders"
)

// BuildPrompt renders the clinical pharmacist prompt for one order. The four
// section headings named here are the same ones MissingSections checks in
// the generated output.
func BuildPrompt(d *orders.OrderDetail) string {
	additional := "None"
	if len(d.Order.AdditionalDiagnoses) > 0 {
		additional = strings.Join(d.Order.AdditionalDiagnoses, ", ")
	}
	history := "None"
	if len(d.Order.MedicationHistory) > 0 {
		history = strings.Join(d.Order.MedicationHistory, ", ")
	}
	notes := "None provided"
	if d.Order.ClinicalNotes != nil && *d.Order.ClinicalNotes != "" {
		notes = *d.Order.ClinicalNotes
	}

	return fmt.Sprintf(`You are a clinical pharmacist creating a care plan for a specialty pharmacy patient.

Patient Information:
- Name: %s %s
- Date of Birth: %s
- MRN: %s

Provider: %s %s (NPI: %s)

Medication: %s
Primary Diagnosis (ICD-10): %s
Additional Diagnoses: %s
Medication History: %s
Patient Records/Notes: %s

Please generate a comprehensive pharmaceutical care plan with EXACTLY these four sections:

1. **Problem List / Drug Therapy Problems (DTPs)**
- Identify potential drug therapy problems related to the prescribed medication and diagnoses

2. **Goals (SMART format)**
- Specific, Measurable, Achievable, Relevant, Time-bound goals for this patient

3. **Pharmacist Interventions / Plan**
- Specific actions the pharmacist should take
- Patient education points
- Coordination with the prescribing provider

4. **Monitoring Plan & Lab Schedule**
- Labs to monitor and frequency
- Clinical parameters to track
- Follow-up schedule

Be specific and clinically relevant to the medication and diagnoses provided.`,
		d.Patient.FirstName, d.Patient.LastName,
		d.Patient.DOB.Format("2006-01-02"),
		d.Patient.MRN,
		d.Provider.FirstName, d.Provider.LastName, d.Provider.NPI,
		d.Order.MedicationName,
		d.Order.PrimaryDiagnosis,
		additional, history, notes)
}
