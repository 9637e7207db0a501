/*
handlers.go - HTTP API handlers for the fee reconciliation engine

PURPOSE:
  Exposes the fee reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Payments:
    POST   /api/payments               Record and allocate a payment
    GET    /api/payments/{id}          Single payment with allocations

  Students:
    GET    /api/students               List students (optional ?institution_id=)
    POST   /api/students               Enrol student
    GET    /api/students/{id}          Get student details
    GET    /api/students/{id}/fees     Fee position with accrued penalties
    GET    /api/students/{id}/payments Payment history

  Institutions:
    GET    /api/institutions           List institutions
    POST   /api/institutions           Register institution

  Fees & Penalties:
    POST   /api/fees                   Create fee item
    GET    /api/penalty-rules          List rules (optional ?institution_id=)
    POST   /api/penalty-rules          Create penalty rule
    GET    /api/penalties/preview      Pure penalty preview (?student_id=&as_of=)

REQUEST FLOW:
  1. Decode JSON body
  2. Run struct validation (go-playground/validator)
  3. Call domain logic (engine, store)
  4. Map domain errors to HTTP status
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unknown/settled fee items, amount above
         outstanding, malformed penalty rules
  - 404: Unknown student or payment
  - 409: Concurrent modification (retryable by the client)
  - 500: Storage failures, allocation drift

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian/fee-engine/engine"
	"github.com/meridian/fee-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *engine.Engine

	validate *validator.Validate
}

// NewHandler creates a new handler backed by the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:    store,
		Engine:   engine.New(store),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) now() time.Time {
	if h.Engine.Now != nil {
		return h.Engine.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// CreatePayment records a payment and allocates it across fee items.
// POST /api/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	tendered, err := engine.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount (use a decimal string)", err)
		return
	}

	itemIDs := make([]engine.FeeItemID, len(req.FeeItemIDs))
	for i, id := range req.FeeItemIDs {
		itemIDs[i] = engine.FeeItemID(id)
	}

	// An omitted selection means "pay across everything outstanding".
	// The engine itself requires an explicit selection, so expand here.
	if len(itemIDs) == 0 {
		if _, _, err := h.Store.StudentInstitution(r.Context(), engine.StudentID(req.StudentID)); err != nil {
			writeEngineError(w, "Failed to resolve student", err)
			return
		}
		items, err := h.Store.OutstandingFeeItems(r.Context(), engine.StudentID(req.StudentID), nil)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list fee items", err)
			return
		}
		for _, item := range items {
			itemIDs = append(itemIDs, item.ID)
		}
	}

	result, err := h.Engine.AllocatePayment(r.Context(), engine.AllocationRequest{
		StudentID:  engine.StudentID(req.StudentID),
		FeeItemIDs: itemIDs,
		Tendered:   tendered,
		Method:     engine.PaymentMethod(req.Method),
		Notes:      req.Notes,
	})
	if err != nil {
		writeEngineError(w, "Failed to allocate payment", err)
		return
	}

	paymentsRecorded.WithLabelValues(req.Method).Inc()
	writeJSON(w, http.StatusCreated, toPaymentDTO(result.Payment, result.Allocations))
}

// GetPayment returns a single payment with its allocations.
// GET /api/payments/{id}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := engine.PaymentID(chi.URLParam(r, "id"))

	payment, allocations, err := h.Store.GetPayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, engine.ErrPaymentNotFound) {
			writeError(w, http.StatusNotFound, "Payment not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentDTO(*payment, allocations))
}

// ListStudentPayments returns a student's payment history, newest first.
// GET /api/students/{id}/payments
func (h *Handler) ListStudentPayments(w http.ResponseWriter, r *http.Request) {
	studentID := engine.StudentID(chi.URLParam(r, "id"))
	ctx := r.Context()

	payments, err := h.Store.ListPaymentsByStudent(ctx, studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, 0, len(payments))
	for _, p := range payments {
		allocations, err := h.Store.AllocationsForPayment(ctx, p.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load allocations", err)
			return
		}
		dtos = append(dtos, toPaymentDTO(p, allocations))
	}

	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STUDENT FEE VIEW
// =============================================================================

// GetStudentFees returns the outstanding fee items for a student, with
// penalties accrued as of today layered on top. Penalties are computed,
// never persisted.
// GET /api/students/{id}/fees
func (h *Handler) GetStudentFees(w http.ResponseWriter, r *http.Request) {
	studentID := engine.StudentID(chi.URLParam(r, "id"))
	ctx := r.Context()
	asOf := h.now()

	instID, _, err := h.Store.StudentInstitution(ctx, studentID)
	if err != nil {
		if errors.Is(err, engine.ErrStudentNotFound) {
			writeError(w, http.StatusNotFound, "Student not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to resolve student", err)
		return
	}

	items, err := h.Store.OutstandingFeeItems(ctx, studentID, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list fee items", err)
		return
	}
	rules, err := h.Store.PenaltyRules(ctx, instID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load penalty rules", err)
		return
	}

	resp := StudentFeesResponse{
		StudentID: string(studentID),
		Items:     make([]FeeItemDTO, 0, len(items)),
		AsOf:      asOf.Format("2006-01-02"),
	}
	totalOutstanding := engine.ZeroMoney()
	totalPenalty := engine.ZeroMoney()

	for _, item := range items {
		dto := toFeeItemDTO(item)
		if item.IsOverdue(asOf) {
			dto.Status = string(engine.FeeStatusOverdue)
		}

		itemPenalty := engine.ZeroMoney()
		for _, rule := range rules {
			p, err := engine.ComputePenalty(item, rule, asOf)
			if err != nil {
				continue // Misconfigured rule; skip rather than fail the view
			}
			itemPenalty = itemPenalty.Add(p)
		}
		if itemPenalty.IsPositive() {
			dto.Penalty = itemPenalty.String()
		}

		totalOutstanding = totalOutstanding.Add(item.Outstanding())
		totalPenalty = totalPenalty.Add(itemPenalty)
		resp.Items = append(resp.Items, dto)
	}

	resp.TotalOutstanding = totalOutstanding.String()
	resp.TotalPenalty = totalPenalty.String()
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PENALTY HANDLERS
// =============================================================================

// PreviewPenalties computes accrued penalties for a student's overdue
// items without writing anything.
// GET /api/penalties/preview?student_id=...&as_of=YYYY-MM-DD
func (h *Handler) PreviewPenalties(w http.ResponseWriter, r *http.Request) {
	studentID := engine.StudentID(r.URL.Query().Get("student_id"))
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "student_id is required", nil)
		return
	}

	asOf := h.now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
			return
		}
		asOf = parsed
	}

	assessments, err := h.Engine.PenaltyPreview(r.Context(), studentID, asOf)
	if err != nil {
		writeEngineError(w, "Failed to compute penalties", err)
		return
	}

	resp := PenaltyPreviewResponse{
		StudentID:   string(studentID),
		AsOf:        asOf.Format("2006-01-02"),
		Assessments: make([]PenaltyAssessmentDTO, 0, len(assessments)),
	}
	total := engine.ZeroMoney()
	for _, a := range assessments {
		resp.Assessments = append(resp.Assessments, PenaltyAssessmentDTO{
			FeeItemID:   string(a.FeeItemID),
			RuleID:      string(a.RuleID),
			RuleName:    a.RuleName,
			DaysOverdue: a.DaysOverdue,
			Penalty:     a.Penalty.String(),
		})
		total = total.Add(a.Penalty)
	}
	resp.TotalPenalty = total.String()

	writeJSON(w, http.StatusOK, resp)
}

// CreatePenaltyRule creates a penalty rule for an institution.
// POST /api/penalty-rules
func (h *Handler) CreatePenaltyRule(w http.ResponseWriter, r *http.Request) {
	var req CreatePenaltyRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	rule := engine.PenaltyRule{
		ID:              engine.PenaltyRuleID(orNewID(req.ID)),
		InstitutionID:   engine.InstitutionID(req.InstitutionID),
		Name:            req.Name,
		Type:            engine.PenaltyType(req.Type),
		GracePeriodDays: req.GracePeriodDays,
		IsCompound:      req.IsCompound,
	}
	if req.Amount != nil {
		amount, err := engine.ParseMoney(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		rule.Amount = &amount
	}
	if req.Percentage != nil {
		pct, err := decimal.NewFromString(*req.Percentage)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid percentage", err)
			return
		}
		rule.Percentage = &pct
	}
	if req.MaxPenalty != nil {
		cap, err := engine.ParseMoney(*req.MaxPenalty)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid max_penalty", err)
			return
		}
		rule.MaxPenalty = &cap
	}

	// A rule with no basis can never produce a charge; reject it here so
	// it is not discovered at assessment time.
	if rule.Amount == nil && rule.Percentage == nil {
		writeError(w, http.StatusBadRequest, "Rule needs an amount or a percentage", engine.ErrInvalidRule)
		return
	}

	if err := h.Store.SavePenaltyRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create penalty rule", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPenaltyRuleDTO(rule))
}

// ListPenaltyRules returns penalty rules, optionally scoped to one
// institution.
// GET /api/penalty-rules?institution_id=...
func (h *Handler) ListPenaltyRules(w http.ResponseWriter, r *http.Request) {
	instID := engine.InstitutionID(r.URL.Query().Get("institution_id"))
	if instID == "" {
		writeError(w, http.StatusBadRequest, "institution_id is required", nil)
		return
	}

	rules, err := h.Store.PenaltyRules(r.Context(), instID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list penalty rules", err)
		return
	}

	dtos := make([]PenaltyRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toPenaltyRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FEE ITEM HANDLERS
// =============================================================================

// CreateFeeItem creates a fee item for a student.
// POST /api/fees
func (h *Handler) CreateFeeItem(w http.ResponseWriter, r *http.Request) {
	var req CreateFeeItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	owed, err := engine.ParseMoney(req.OwedAmount)
	if err != nil || !owed.IsPositive() || owed.HasSubMinorUnits() {
		writeError(w, http.StatusBadRequest, "owed_amount must be a positive decimal with at most 2 decimal places", err)
		return
	}
	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid due_date format (use YYYY-MM-DD)", err)
		return
	}

	ctx := r.Context()
	instID, _, err := h.Store.StudentInstitution(ctx, engine.StudentID(req.StudentID))
	if err != nil {
		if errors.Is(err, engine.ErrStudentNotFound) {
			writeError(w, http.StatusNotFound, "Student not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to resolve student", err)
		return
	}

	item := engine.FeeItem{
		ID:            engine.FeeItemID(orNewID(req.ID)),
		StudentID:     engine.StudentID(req.StudentID),
		InstitutionID: instID,
		Label:         req.Label,
		OwedAmount:    owed,
		PaidAmount:    engine.ZeroMoney(),
		DueDate:       dueDate,
		Status:        engine.FeeStatusPending,
	}

	if err := h.Store.SaveFeeItem(ctx, item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create fee item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toFeeItemDTO(item))
}

// =============================================================================
// INSTITUTION HANDLERS
// =============================================================================

// CreateInstitution registers an institution. The code becomes the
// receipt number prefix.
// POST /api/institutions
func (h *Handler) CreateInstitution(w http.ResponseWriter, r *http.Request) {
	var req CreateInstitutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	inst := sqlite.Institution{ID: orNewID(req.ID), Name: req.Name, Code: req.Code}
	if err := h.Store.SaveInstitution(r.Context(), inst); err != nil {
		if sqlite.IsUniqueConstraintError(err) {
			writeError(w, http.StatusConflict, "Institution code already in use", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create institution", err)
		return
	}

	writeJSON(w, http.StatusCreated, toInstitutionDTO(r.Context(), h, inst.ID))
}

// ListInstitutions returns all institutions.
// GET /api/institutions
func (h *Handler) ListInstitutions(w http.ResponseWriter, r *http.Request) {
	institutions, err := h.Store.ListInstitutions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list institutions", err)
		return
	}

	dtos := make([]InstitutionDTO, len(institutions))
	for i, inst := range institutions {
		dtos[i] = InstitutionDTO{ID: inst.ID, Name: inst.Name, Code: inst.Code}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// CreateStudent enrols a student at an institution.
// POST /api/students
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	inst, err := h.Store.GetInstitution(r.Context(), req.InstitutionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve institution", err)
		return
	}
	if inst == nil {
		writeError(w, http.StatusBadRequest, "Unknown institution", nil)
		return
	}

	student := sqlite.Student{
		ID:            orNewID(req.ID),
		InstitutionID: req.InstitutionID,
		Name:          req.Name,
		AdmissionNo:   req.AdmissionNo,
	}
	if err := h.Store.SaveStudent(r.Context(), student); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create student", err)
		return
	}

	writeJSON(w, http.StatusCreated, StudentDTO{
		ID:            student.ID,
		InstitutionID: student.InstitutionID,
		Name:          student.Name,
		AdmissionNo:   student.AdmissionNo,
	})
}

// GetStudent returns a single student.
// GET /api/students/{id}
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	student, err := h.Store.GetStudent(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get student", err)
		return
	}
	if student == nil {
		writeError(w, http.StatusNotFound, "Student not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, StudentDTO{
		ID:            student.ID,
		InstitutionID: student.InstitutionID,
		Name:          student.Name,
		AdmissionNo:   student.AdmissionNo,
	})
}

// ListStudents returns students, optionally filtered by institution.
// GET /api/students?institution_id=...
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	instID := r.URL.Query().Get("institution_id")

	students, err := h.Store.ListStudents(r.Context(), instID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = StudentDTO{
			ID:            s.ID,
			InstitutionID: s.InstitutionID,
			Name:          s.Name,
			AdmissionNo:   s.AdmissionNo,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func toInstitutionDTO(ctx context.Context, h *Handler, id string) InstitutionDTO {
	inst, err := h.Store.GetInstitution(ctx, id)
	if err != nil || inst == nil {
		return InstitutionDTO{ID: id}
	}
	return InstitutionDTO{ID: inst.ID, Name: inst.Name, Code: inst.Code}
}

func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// writeEngineError maps domain errors from the allocation and penalty
// paths onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, engine.ErrStudentNotFound):
		writeError(w, http.StatusNotFound, "Student not found", err)
	case errors.Is(err, engine.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "Fee items changed while allocating; retry the payment", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
