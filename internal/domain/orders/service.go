package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/careplan/internal/validate"
)

// Enqueuer hands an accepted order id to the generation queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, orderID uuid.UUID) error
}

// TxRunner runs fn inside a storage transaction. Classification reads and
// the conditional writes of one intake must share a transaction so two
// concurrent submissions cannot both treat an uncommitted row as absent.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// NopTx runs fn without a transaction. Used with non-transactional stores.
func NopTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type Service struct {
	tx        TxRunner
	patients  PatientRepository
	providers ProviderRepository
	orders    OrderRepository
	queue     Enqueuer
	log       zerolog.Logger
}

func NewService(tx TxRunner, patients PatientRepository, providers ProviderRepository,
	orders OrderRepository, queue Enqueuer, log zerolog.Logger) *Service {
	if tx == nil {
		tx = NopTx
	}
	return &Service{tx: tx, patients: patients, providers: providers, orders: orders, queue: queue, log: log}
}

// Intake validates, classifies, persists, and enqueues one order
// submission. All storage reads and writes run in a single transaction;
// the queue is touched only after commit. The returned error is an
// *APIError for every client-addressable failure.
func (s *Service) Intake(ctx context.Context, req *IntakeRequest) (*IntakeResult, error) {
	if apiErr := validateIntake(req); apiErr != nil {
		return nil, apiErr
	}
	dob, _ := time.Parse("2006-01-02", strings.TrimSpace(req.Patient.DOB))

	var result *IntakeResult
	err := s.tx(ctx, func(ctx context.Context) error {
		c, err := NewClassifier(s.patients, s.providers, s.orders).Classify(ctx, req, dob)
		if err != nil {
			return err
		}

		switch c.Outcome {
		case OutcomeBlocked:
			return NewBlocked(c.BlockedCode, c.Blocked)
		case OutcomeWarning:
			if !req.ConfirmNotDuplicate {
				return NewWarning(c.Warnings)
			}
		}

		provider := c.Provider
		if provider == nil {
			provider = &Provider{
				NPI:       strings.TrimSpace(req.Provider.NPI),
				FirstName: strings.TrimSpace(req.Provider.FirstName),
				LastName:  strings.TrimSpace(req.Provider.LastName),
			}
			if err := s.providers.Create(ctx, provider); err != nil {
				return err
			}
		}

		patient := c.Patient
		if patient == nil && c.MRNConflict != nil {
			// Confirmed correction: the caller asserted the submitted
			// identity is right for this MRN, so rewrite the existing row
			// rather than trying to insert a second one under it.
			patient = c.MRNConflict
			patient.FirstName = strings.TrimSpace(req.Patient.FirstName)
			patient.LastName = strings.TrimSpace(req.Patient.LastName)
			patient.DOB = dob
			if err := s.patients.Update(ctx, patient); err != nil {
				return err
			}
		}
		if patient == nil {
			patient = &Patient{
				MRN:       strings.TrimSpace(req.Patient.MRN),
				FirstName: strings.TrimSpace(req.Patient.FirstName),
				LastName:  strings.TrimSpace(req.Patient.LastName),
				DOB:       dob,
				WeightKG:  req.Patient.WeightKG,
			}
			if v := strings.TrimSpace(req.Patient.Sex); v != "" {
				patient.Sex = &v
			}
			if v := strings.TrimSpace(req.Patient.Allergies); v != "" {
				patient.Allergies = &v
			}
			if err := s.patients.Create(ctx, patient); err != nil {
				return err
			}
		}

		order := &Order{
			PatientID:         patient.ID,
			ProviderID:        provider.ID,
			MedicationName:    strings.TrimSpace(req.MedicationName),
			PrimaryDiagnosis:  validate.NormalizeICD10(req.PrimaryDiagnosis),
			MedicationHistory: req.MedicationHistory,
			Status:            StatusPending,
			OrderDate:         time.Now(),
		}
		for _, code := range req.AdditionalDiagnoses {
			order.AdditionalDiagnoses = append(order.AdditionalDiagnoses, validate.NormalizeICD10(code))
		}
		if v := strings.TrimSpace(req.ClinicalNotes); v != "" {
			order.ClinicalNotes = &v
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}

		result = &IntakeResult{
			OrderID:   order.ID,
			Status:    order.Status,
			Confirmed: req.ConfirmNotDuplicate && c.Outcome == OutcomeWarning,
			Notices:   c.Notices,
			Links:     orderLinks(order.ID),
		}
		return nil
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		if constraint, ok := isUniqueViolation(err); ok {
			return nil, integrityRace(constraint)
		}
		return nil, fmt.Errorf("order intake: %w", err)
	}

	if err := s.queue.Enqueue(ctx, result.OrderID); err != nil {
		// The order row is committed; terminalize it so regenerate can
		// re-queue instead of leaving a pending order nothing will pick up.
		msg := "order could not be queued for generation"
		if serr := s.orders.SetStatus(ctx, result.OrderID, StatusFailed, &msg); serr != nil {
			s.log.Error().Err(serr).Str("order_id", result.OrderID.String()).Msg("mark unqueued order failed")
		}
		s.log.Error().Err(err).Str("order_id", result.OrderID.String()).Msg("enqueue order")
		return nil, NewInternal("order was recorded but could not be queued; retry with regenerate")
	}

	s.log.Info().
		Str("order_id", result.OrderID.String()).
		Str("medication", req.MedicationName).
		Bool("confirmed", result.Confirmed).
		Strs("notices", result.Notices).
		Msg("order accepted")
	return result, nil
}

// integrityRace converts a uniqueness violation that fired at commit time,
// despite a passing pre-check, into the duplicate response the classifier
// would have produced had the competing row been visible.
func integrityRace(constraint string) *APIError {
	switch {
	case strings.Contains(constraint, "npi"):
		return NewBlocked(CodeProviderConflict,
			[]string{"a provider with this NPI was registered concurrently; resubmit to classify against it"})
	case strings.Contains(constraint, "mrn"):
		return NewWarning([]string{"a patient with this MRN was created concurrently; resubmit to classify against it"})
	default:
		return NewWarning([]string{"a conflicting record was created concurrently; resubmit"})
	}
}

// Get returns the full order detail with patient and provider rows.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, NewNotFound("order not found")
	}
	patient, err := s.patients.GetByID(ctx, order.PatientID)
	if err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	provider, err := s.providers.GetByID(ctx, order.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	return &OrderDetail{Order: order, Patient: patient, Provider: provider}, nil
}

// Search lists order summaries matching the free-text search over patient
// name, MRN, and medication.
func (s *Service) Search(ctx context.Context, search string, limit, offset int) ([]*OrderSummary, int, error) {
	return s.orders.Search(ctx, search, limit, offset)
}

// Export returns the reporting projection of all orders with any generated
// document content joined in.
func (s *Service) Export(ctx context.Context) ([]*ExportRow, error) {
	return s.orders.Export(ctx)
}

func validateIntake(req *IntakeRequest) *APIError {
	var r validate.Report

	r.Require("patient.first_name", req.Patient.FirstName)
	r.Require("patient.last_name", req.Patient.LastName)
	ok, reason := validate.MRN(req.Patient.MRN)
	r.Check("patient.mrn", ok, reason)
	ok, reason = validate.Date(req.Patient.DOB)
	r.Check("patient.dob", ok, reason)

	r.Require("provider.first_name", req.Provider.FirstName)
	r.Require("provider.last_name", req.Provider.LastName)
	ok, reason = validate.NPI(req.Provider.NPI)
	r.Check("provider.npi", ok, reason)

	r.Require("medication_name", req.MedicationName)
	ok, reason = validate.ICD10(req.PrimaryDiagnosis)
	r.Check("primary_diagnosis", ok, reason)
	for i, code := range req.AdditionalDiagnoses {
		ok, reason = validate.ICD10(code)
		r.Check(fmt.Sprintf("additional_diagnoses[%d]", i), ok, reason)
	}

	if !r.OK() {
		return NewValidationError(r.Errors)
	}
	return nil
}

func orderLinks(id uuid.UUID) map[string]string {
	base := "/api/v1/orders/" + id.String()
	return map[string]string{
		"self":     base,
		"status":   base + "/status",
		"careplan": base + "/careplan",
	}
}
