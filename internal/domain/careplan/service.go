package careplan

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/careplan/internal/domain/orders"
)

// OrderReader loads the full order detail used for document rendering.
// *orders.Service satisfies it.
type OrderReader interface {
	Get(ctx context.Context, id uuid.UUID) (*orders.OrderDetail, error)
}

// Service is the read side of generated documents plus the regenerate
// operation. Generation itself happens in the worker.
type Service struct {
	tx     orders.TxRunner
	orders orders.OrderRepository
	reader OrderReader
	plans  Repository
	queue  orders.Enqueuer
	log    zerolog.Logger
}

func NewService(tx orders.TxRunner, reader OrderReader, orderRepo orders.OrderRepository, plans Repository, queue orders.Enqueuer, log zerolog.Logger) *Service {
	if tx == nil {
		tx = orders.NopTx
	}
	return &Service{
		tx:     tx,
		orders: orderRepo,
		reader: reader,
		plans:  plans,
		queue:  queue,
		log:    log.With().Str("component", "careplan").Logger(),
	}
}

// Status reports the generation state of an order for polling clients.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*orders.StatusResult, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, orders.NewNotFound("order not found")
	}
	res := &orders.StatusResult{
		OrderID:      order.ID,
		Status:       order.Status,
		ErrorMessage: order.ErrorMessage,
	}
	if order.Status == orders.StatusCompleted {
		plan, err := s.plans.GetByOrderID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load care plan: %w", err)
		}
		res.DocumentAvailable = plan != nil
	}
	return res, nil
}

// Fetch returns the generated document for a completed order. Any other
// state is reported as not ready.
func (s *Service) Fetch(ctx context.Context, id uuid.UUID) (*Document, error) {
	detail, err := s.reader.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Order.Status != orders.StatusCompleted {
		return nil, notReady(detail.Order.Status)
	}
	plan, err := s.plans.GetByOrderID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load care plan: %w", err)
	}
	if plan == nil {
		return nil, orders.NewNotFound("care plan not found")
	}
	return &Document{
		OrderID:          detail.Order.ID,
		PatientName:      detail.Patient.FirstName + " " + detail.Patient.LastName,
		MRN:              detail.Patient.MRN,
		MedicationName:   detail.Order.MedicationName,
		PrimaryDiagnosis: detail.Order.PrimaryDiagnosis,
		Content:          plan.Content,
		Model:            plan.Model,
		GeneratedAt:      plan.GeneratedAt,
	}, nil
}

// DownloadFile is the rendered text attachment for a completed order.
type DownloadFile struct {
	Filename string
	Content  string
}

// Download renders the document as a plain-text file with a header block.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (*DownloadFile, error) {
	detail, err := s.reader.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Order.Status != orders.StatusCompleted {
		return nil, notReady(detail.Order.Status)
	}
	plan, err := s.plans.GetByOrderID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load care plan: %w", err)
	}
	if plan == nil {
		return nil, orders.NewNotFound("care plan not found")
	}

	rule := strings.Repeat("=", 50)
	content := fmt.Sprintf(`PHARMACEUTICAL CARE PLAN
%s
Patient: %s %s
MRN: %s
DOB: %s
Provider: %s %s (NPI: %s)
Medication: %s
Primary Diagnosis: %s
Generated: %s
%s

%s
`,
		rule,
		detail.Patient.FirstName, detail.Patient.LastName,
		detail.Patient.MRN,
		detail.Patient.DOB.Format("2006-01-02"),
		detail.Provider.FirstName, detail.Provider.LastName, detail.Provider.NPI,
		detail.Order.MedicationName,
		detail.Order.PrimaryDiagnosis,
		plan.GeneratedAt.Format("2006-01-02 15:04"),
		rule,
		plan.Content)

	name := fmt.Sprintf("careplan_%s_%s_%s.txt",
		detail.Patient.MRN, detail.Order.MedicationName, detail.Order.OrderDate.Format("2006-01-02"))
	name = strings.NewReplacer(" ", "_", "/", "_").Replace(name)

	return &DownloadFile{Filename: name, Content: content}, nil
}

// Regenerate re-queues a terminal order for generation. Orders still pending
// or processing are rejected so the queue never carries two live deliveries
// for one order.
func (s *Service) Regenerate(ctx context.Context, id uuid.UUID) (*orders.StatusResult, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, orders.NewNotFound("order not found")
	}
	switch order.Status {
	case orders.StatusProcessing:
		return nil, orders.NewConflict(orders.CodeAlreadyRunning, "generation is already running for this order")
	case orders.StatusPending:
		return nil, orders.NewConflict(orders.CodeAlreadyQueued, "order is already queued for generation")
	}
	// The old document goes with the status reset, in one transaction:
	// only completed orders carry a document, and a pending or later
	// failed order must never serve the superseded one.
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.plans.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete superseded care plan: %w", err)
		}
		return s.orders.SetStatus(ctx, id, orders.StatusPending, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("reset order status: %w", err)
	}
	if err := s.queue.Enqueue(ctx, id); err != nil {
		msg := "order could not be queued for generation"
		_ = s.orders.SetStatus(ctx, id, orders.StatusFailed, &msg)
		return nil, orders.NewInternal("order could not be re-queued; retry with regenerate")
	}
	s.log.Info().Str("order_id", id.String()).Msg("order re-queued for generation")
	return &orders.StatusResult{OrderID: id, Status: orders.StatusPending}, nil
}

func notReady(status orders.Status) *orders.APIError {
	return &orders.APIError{
		HTTPStatus: http.StatusNotFound,
		Type:       "error",
		Code:       orders.CodeDocumentNotReady,
		Message:    fmt.Sprintf("care plan is not available; order status is %s", status),
	}
}
