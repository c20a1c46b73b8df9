package orders

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Outcome is the duplicate classification verdict for a submission.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeWarning
	OutcomeBlocked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWarning:
		return "warning"
	case OutcomeBlocked:
		return "blocked"
	default:
		return "ok"
	}
}

// Classification is the result of running the three duplicate decision
// tables. Patient/Provider point at existing rows to reuse; nil means a new
// row must be created.
type Classification struct {
	Outcome     Outcome
	BlockedCode string
	Blocked     []string
	Warnings    []string
	Notices     []string
	Patient     *Patient
	Provider    *Provider
	// MRNConflict is the existing row whose MRN matched but whose identity
	// fields differ. A confirmed submission corrects that row instead of
	// inserting a second one under the same MRN.
	MRNConflict *Patient
}

// Classifier runs the provider, patient, and order duplicate checks against
// the existing record set. All reads happen on the caller's context, so the
// intake service can run the whole check inside one transaction.
type Classifier struct {
	patients  PatientRepository
	providers ProviderRepository
	orders    OrderRepository
}

func NewClassifier(patients PatientRepository, providers ProviderRepository, orders OrderRepository) *Classifier {
	return &Classifier{patients: patients, providers: providers, orders: orders}
}

// Classify applies the decision tables to a validated submission. dob is the
// parsed patient date of birth. BLOCKED reasons are never overridable;
// WARNING reasons require confirm_not_duplicate from the caller.
func (cl *Classifier) Classify(ctx context.Context, req *IntakeRequest, dob time.Time) (*Classification, error) {
	res := &Classification{}

	if err := cl.classifyProvider(ctx, &req.Provider, res); err != nil {
		return nil, err
	}
	if err := cl.classifyPatient(ctx, &req.Patient, dob, res); err != nil {
		return nil, err
	}
	// Order duplicates only exist relative to an existing patient row. An
	// MRN-conflicting row still counts: a confirmed submission attaches the
	// order to it, and same-day BLOCKED is never overridable.
	target := res.Patient
	if target == nil {
		target = res.MRNConflict
	}
	if target != nil {
		if err := cl.classifyOrder(ctx, target, req.MedicationName, res); err != nil {
			return nil, err
		}
	}

	switch {
	case len(res.Blocked) > 0:
		res.Outcome = OutcomeBlocked
	case len(res.Warnings) > 0:
		res.Outcome = OutcomeWarning
	default:
		res.Outcome = OutcomeOK
	}
	return res, nil
}

func (cl *Classifier) classifyProvider(ctx context.Context, p *IntakeProvider, res *Classification) error {
	existing, err := cl.providers.FindByNPI(ctx, p.NPI)
	if err != nil {
		return fmt.Errorf("find provider by npi: %w", err)
	}
	if existing == nil {
		return nil
	}
	if sameName(existing.FirstName, existing.LastName, p.FirstName, p.LastName) {
		res.Provider = existing
		res.Notices = append(res.Notices, "existing provider record reused")
		return nil
	}
	res.BlockedCode = CodeProviderConflict
	res.Blocked = append(res.Blocked, fmt.Sprintf(
		"NPI %s is already registered to a different provider name (%s %s)",
		p.NPI, existing.FirstName, existing.LastName))
	return nil
}

func (cl *Classifier) classifyPatient(ctx context.Context, p *IntakePatient, dob time.Time, res *Classification) error {
	byMRN, err := cl.patients.FindByMRN(ctx, p.MRN)
	if err != nil {
		return fmt.Errorf("find patient by mrn: %w", err)
	}
	if byMRN != nil {
		if sameName(byMRN.FirstName, byMRN.LastName, p.FirstName, p.LastName) && sameDay(byMRN.DOB, dob) {
			res.Patient = byMRN
			res.Notices = append(res.Notices, "existing patient record reused")
			return nil
		}
		res.MRNConflict = byMRN
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"MRN %s already belongs to a different patient identity (%s %s, born %s)",
			p.MRN, byMRN.FirstName, byMRN.LastName, byMRN.DOB.Format("2006-01-02")))
		return nil
	}

	byIdentity, err := cl.patients.FindByNameDOB(ctx, p.FirstName, p.LastName, dob)
	if err != nil {
		return fmt.Errorf("find patient by name and dob: %w", err)
	}
	if byIdentity != nil && byIdentity.MRN != p.MRN {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"possible duplicate patient: %s %s born %s already exists under MRN %s",
			p.FirstName, p.LastName, dob.Format("2006-01-02"), byIdentity.MRN))
	}
	return nil
}

func (cl *Classifier) classifyOrder(ctx context.Context, patient *Patient, medication string, res *Classification) error {
	existing, err := cl.orders.FindByPatientMedication(ctx, patient.ID, medication)
	if err != nil {
		return fmt.Errorf("find orders by patient and medication: %w", err)
	}
	if len(existing) == 0 {
		return nil
	}
	today := time.Now()
	for _, o := range existing {
		if sameDay(o.OrderDate, today) {
			res.BlockedCode = CodeSameDayDuplicate
			res.Blocked = append(res.Blocked, fmt.Sprintf(
				"duplicate order: %s for this patient was already submitted today", medication))
			return nil
		}
	}
	// Newest first, so the head is the most recent prior order.
	res.Warnings = append(res.Warnings, fmt.Sprintf(
		"%s was previously ordered for this patient on %s",
		medication, existing[0].OrderDate.Format("2006-01-02")))
	return nil
}

func sameName(aFirst, aLast, bFirst, bLast string) bool {
	return strings.EqualFold(strings.TrimSpace(aFirst), strings.TrimSpace(bFirst)) &&
		strings.EqualFold(strings.TrimSpace(aLast), strings.TrimSpace(bLast))
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
