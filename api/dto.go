/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY ON THE WIRE:
  All monetary amounts travel as decimal strings ("1234.50"), never as
  floats. Requests are parsed with engine.ParseMoney; responses use the
  canonical two-place rendering.

VALIDATION:
  Request types carry go-playground/validator struct tags. Handlers run
  the validator before touching domain logic; semantic checks (amount
  positive, items outstanding) stay in the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: Domain types these map to
*/
package api

import (
	"time"

	"github.com/meridian/fee-engine/engine"
)

// =============================================================================
// PAYMENT TYPES
// =============================================================================

// CreatePaymentRequest is the request to record and allocate a payment.
type CreatePaymentRequest struct {
	StudentID  string   `json:"student_id" validate:"required"`
	Amount     string   `json:"amount" validate:"required"`
	FeeItemIDs []string `json:"fee_item_ids,omitempty" validate:"omitempty,dive,required"`
	Method     string   `json:"method" validate:"required,oneof=cash bank_transfer mobile_money card"`
	Notes      string   `json:"notes,omitempty" validate:"max=500"`
}

// PaymentDTO represents a recorded payment in API responses.
type PaymentDTO struct {
	ID               string          `json:"id"`
	StudentID        string          `json:"student_id"`
	ReceiptNumber    string          `json:"receipt_number"`
	TenderedAmount   string          `json:"tendered_amount"`
	TotalOutstanding string          `json:"total_outstanding"`
	Method           string          `json:"method"`
	Status           string          `json:"status"`
	Notes            string          `json:"notes,omitempty"`
	CreatedAt        string          `json:"created_at"`
	Allocations      []AllocationDTO `json:"allocations,omitempty"`
}

// AllocationDTO is one payment-to-fee-item split line.
type AllocationDTO struct {
	FeeItemID       string `json:"fee_item_id"`
	AllocatedAmount string `json:"allocated_amount"`
	StatusAfter     string `json:"status_after"`
}

// =============================================================================
// FEE ITEM TYPES
// =============================================================================

// CreateFeeItemRequest is the request to create a fee item for a student.
type CreateFeeItemRequest struct {
	ID         string `json:"id,omitempty"`
	StudentID  string `json:"student_id" validate:"required"`
	Label      string `json:"label" validate:"required,max=200"`
	OwedAmount string `json:"owed_amount" validate:"required"`
	DueDate    string `json:"due_date" validate:"required,datetime=2006-01-02"`
}

// FeeItemDTO represents a fee item in API responses.
type FeeItemDTO struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	Label       string `json:"label"`
	OwedAmount  string `json:"owed_amount"`
	PaidAmount  string `json:"paid_amount"`
	Outstanding string `json:"outstanding"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
	// Penalty is the total accrued penalty across the institution's
	// rules, present on the student fees view.
	Penalty string `json:"penalty,omitempty"`
}

// StudentFeesResponse is the aggregate fee position of one student.
type StudentFeesResponse struct {
	StudentID        string       `json:"student_id"`
	Items            []FeeItemDTO `json:"items"`
	TotalOutstanding string       `json:"total_outstanding"`
	TotalPenalty     string       `json:"total_penalty"`
	AsOf             string       `json:"as_of"`
}

// =============================================================================
// PENALTY TYPES
// =============================================================================

// CreatePenaltyRuleRequest is the request to create a penalty rule.
type CreatePenaltyRuleRequest struct {
	ID              string  `json:"id,omitempty"`
	InstitutionID   string  `json:"institution_id" validate:"required"`
	Name            string  `json:"name" validate:"required,max=200"`
	Type            string  `json:"type" validate:"required,oneof=late_fee interest"`
	Amount          *string `json:"amount,omitempty"`
	Percentage      *string `json:"percentage,omitempty"`
	GracePeriodDays int     `json:"grace_period_days" validate:"gte=0"`
	IsCompound      bool    `json:"is_compound"`
	MaxPenalty      *string `json:"max_penalty,omitempty"`
}

// PenaltyRuleDTO represents a penalty rule in API responses.
type PenaltyRuleDTO struct {
	ID              string  `json:"id"`
	InstitutionID   string  `json:"institution_id"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Amount          *string `json:"amount,omitempty"`
	Percentage      *string `json:"percentage,omitempty"`
	GracePeriodDays int     `json:"grace_period_days"`
	IsCompound      bool    `json:"is_compound"`
	MaxPenalty      *string `json:"max_penalty,omitempty"`
}

// PenaltyAssessmentDTO is one rule's accrued penalty on one fee item.
type PenaltyAssessmentDTO struct {
	FeeItemID   string `json:"fee_item_id"`
	RuleID      string `json:"rule_id"`
	RuleName    string `json:"rule_name"`
	DaysOverdue int    `json:"days_overdue"`
	Penalty     string `json:"penalty"`
}

// PenaltyPreviewResponse lists accrued penalties for a student's overdue
// items without persisting anything.
type PenaltyPreviewResponse struct {
	StudentID    string                 `json:"student_id"`
	AsOf         string                 `json:"as_of"`
	Assessments  []PenaltyAssessmentDTO `json:"assessments"`
	TotalPenalty string                 `json:"total_penalty"`
}

// =============================================================================
// INSTITUTION / STUDENT TYPES
// =============================================================================

// CreateInstitutionRequest is the request to register an institution.
type CreateInstitutionRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" validate:"required,max=200"`
	Code string `json:"code" validate:"required,alphanum,min=2,max=8"`
}

// InstitutionDTO represents an institution in API responses.
type InstitutionDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// CreateStudentRequest is the request to enrol a student.
type CreateStudentRequest struct {
	ID            string `json:"id,omitempty"`
	InstitutionID string `json:"institution_id" validate:"required"`
	Name          string `json:"name" validate:"required,max=200"`
	AdmissionNo   string `json:"admission_no,omitempty" validate:"max=50"`
}

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID            string `json:"id"`
	InstitutionID string `json:"institution_id"`
	Name          string `json:"name"`
	AdmissionNo   string `json:"admission_no,omitempty"`
}

// ErrorResponse is the common error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPING HELPERS
// =============================================================================

func toPaymentDTO(p engine.Payment, allocations []engine.PaymentAllocation) PaymentDTO {
	dto := PaymentDTO{
		ID:               string(p.ID),
		StudentID:        string(p.StudentID),
		ReceiptNumber:    p.ReceiptNumber,
		TenderedAmount:   p.TenderedAmount.String(),
		TotalOutstanding: p.TotalOutstanding.String(),
		Method:           string(p.Method),
		Status:           string(p.Status),
		Notes:            p.Notes,
		CreatedAt:        p.CreatedAt.Format(time.RFC3339),
	}
	for _, a := range allocations {
		dto.Allocations = append(dto.Allocations, AllocationDTO{
			FeeItemID:       string(a.FeeItemID),
			AllocatedAmount: a.AllocatedAmount.String(),
			StatusAfter:     string(a.StatusAfter),
		})
	}
	return dto
}

func toFeeItemDTO(item engine.FeeItem) FeeItemDTO {
	return FeeItemDTO{
		ID:          string(item.ID),
		StudentID:   string(item.StudentID),
		Label:       item.Label,
		OwedAmount:  item.OwedAmount.String(),
		PaidAmount:  item.PaidAmount.String(),
		Outstanding: item.Outstanding().String(),
		DueDate:     item.DueDate.Format("2006-01-02"),
		Status:      string(item.Status),
	}
}

func toPenaltyRuleDTO(rule engine.PenaltyRule) PenaltyRuleDTO {
	dto := PenaltyRuleDTO{
		ID:              string(rule.ID),
		InstitutionID:   string(rule.InstitutionID),
		Name:            rule.Name,
		Type:            string(rule.Type),
		GracePeriodDays: rule.GracePeriodDays,
		IsCompound:      rule.IsCompound,
	}
	if rule.Amount != nil {
		s := rule.Amount.String()
		dto.Amount = &s
	}
	if rule.Percentage != nil {
		s := rule.Percentage.String()
		dto.Percentage = &s
	}
	if rule.MaxPenalty != nil {
		s := rule.MaxPenalty.String()
		dto.MaxPenalty = &s
	}
	return dto
}
