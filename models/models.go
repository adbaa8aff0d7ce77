package models

import "time"

type ProcurementStatus string

const (
	StatusDraft      ProcurementStatus = "draft"
	StatusPublished  ProcurementStatus = "published"
	StatusBidOpening ProcurementStatus = "bid_opening"
	StatusEvaluation ProcurementStatus = "evaluation"
	StatusAwarded    ProcurementStatus = "awarded"
	StatusContracted ProcurementStatus = "contracted"
	StatusCompleted  ProcurementStatus = "completed"
)

// BidsOpened reports whether bid contents may be shown for a procurement in this status.
func (s ProcurementStatus) BidsOpened() bool {
	switch s {
	case StatusEvaluation, StatusAwarded, StatusContracted, StatusCompleted:
		return true
	default:
		return false
	}
}

type ProcurementMethod string

const (
	MethodOpenBidding         ProcurementMethod = "open_bidding"
	MethodRestrictedBidding   ProcurementMethod = "restricted_bidding"
	MethodSingleSource        ProcurementMethod = "single_source"
	MethodRequestForQuotation ProcurementMethod = "request_for_quotation"
)

func ValidProcurementMethod(m ProcurementMethod) bool {
	switch m {
	case MethodOpenBidding, MethodRestrictedBidding, MethodSingleSource, MethodRequestForQuotation:
		return true
	default:
		return false
	}
}

// Procurement is a tender run for a constituency project.
type Procurement struct {
	ID                 string            `db:"id" json:"id"`
	ProcurementNumber  string            `db:"procurement_number" json:"procurement_number"`
	Title              string            `db:"title" json:"title"`
	Description        *string           `db:"description" json:"description,omitempty"`
	ConstituencyID     string            `db:"constituency_id" json:"constituency_id"`
	ProjectID          *string           `db:"project_id" json:"project_id,omitempty"`
	Method             ProcurementMethod `db:"procurement_method" json:"procurement_method"`
	EstimatedValue     float64           `db:"estimated_value" json:"estimated_value"`
	PublishDate        *time.Time        `db:"publish_date" json:"publish_date,omitempty"`
	ClosingDate        *time.Time        `db:"closing_date" json:"closing_date,omitempty"`
	BidOpeningDate     *time.Time        `db:"bid_opening_date" json:"bid_opening_date,omitempty"`
	ZPPAReference      *string           `db:"zppa_reference" json:"zppa_reference,omitempty"`
	Status             ProcurementStatus `db:"status" json:"status"`
	AwardedContractor  *string           `db:"awarded_contractor_id" json:"awarded_contractor_id,omitempty"`
	AwardedBidID       *string           `db:"awarded_bid_id" json:"awarded_bid_id,omitempty"`
	ContractValue      *float64          `db:"contract_value" json:"contract_value,omitempty"`
	AwardDate          *time.Time        `db:"award_date" json:"award_date,omitempty"`
	AwardJustification *string           `db:"award_justification" json:"award_justification,omitempty"`
	ContractStartDate  *time.Time        `db:"contract_start_date" json:"contract_start_date,omitempty"`
	ContractEndDate    *time.Time        `db:"contract_end_date" json:"contract_end_date,omitempty"`
	ContractTerms      *string           `db:"contract_terms" json:"contract_terms,omitempty"`
	CreatedBy          string            `db:"created_by" json:"created_by"`
	Version            int               `db:"version" json:"version"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// ProcurementVersion is an immutable snapshot of a procurement, written on every change.
type ProcurementVersion struct {
	ProcurementID string            `db:"procurement_id" json:"procurement_id"`
	Version       int               `db:"version" json:"version"`
	Status        ProcurementStatus `db:"status" json:"status"`
	Snapshot      []byte            `db:"snapshot" json:"-"`
	ChangedBy     string            `db:"changed_by" json:"changed_by"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
}

type BidStatus string

const (
	BidSubmitted BidStatus = "submitted"
	BidValid     BidStatus = "valid"
	BidInvalid   BidStatus = "invalid"
)

// Bid is one bidder's sealed submission. The plaintext fields stay nil until the opening ceremony.
type Bid struct {
	ID                     string     `db:"id" json:"id"`
	ProcurementID          string     `db:"procurement_id" json:"procurement_id"`
	BidderID               string     `db:"contractor_id" json:"contractor_id"`
	SubmittedBy            string     `db:"submitted_by" json:"submitted_by"`
	SubmittedAt            time.Time  `db:"submitted_at" json:"submitted_at"`
	Status                 BidStatus  `db:"status" json:"status"`
	SealedData             []byte     `db:"encrypted_bid_data" json:"-"`
	DocumentHash           string     `db:"bid_document_hash" json:"bid_document_hash"`
	DocumentID             *string    `db:"bid_document_id" json:"bid_document_id,omitempty"`
	Amount                 *float64   `db:"bid_amount" json:"bid_amount,omitempty"`
	TechnicalSummary       *string    `db:"technical_proposal_summary" json:"technical_proposal_summary,omitempty"`
	DeliveryTimelineDays   *int       `db:"delivery_timeline_days" json:"delivery_timeline_days,omitempty"`
	WarrantyMonths         *int       `db:"warranty_period_months" json:"warranty_period_months,omitempty"`
	OpenedAt               *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	OpenedBy               *string    `db:"opened_by" json:"opened_by,omitempty"`
	DisqualificationReason *string    `db:"disqualification_reason" json:"disqualification_reason,omitempty"`
	UpdatedAt              time.Time  `db:"updated_at" json:"-"`
}

// Sealed returns a copy with every field revealed at opening removed.
func (b Bid) Sealed() Bid {
	b.SealedData = nil
	b.Amount = nil
	b.TechnicalSummary = nil
	b.DeliveryTimelineDays = nil
	b.WarrantyMonths = nil
	return b
}

type Recommendation string

const (
	RecommendAward       Recommendation = "award"
	RecommendReject      Recommendation = "reject"
	RecommendConditional Recommendation = "conditional"
)

func ValidRecommendation(r Recommendation) bool {
	switch r {
	case RecommendAward, RecommendReject, RecommendConditional:
		return true
	default:
		return false
	}
}

const EvaluationCompleted = "completed"

// Evaluation is one evaluator's scored assessment of one bid.
type Evaluation struct {
	ID                string         `db:"id" json:"id"`
	ProcurementID     string         `db:"procurement_id" json:"procurement_id"`
	BidID             string         `db:"bid_id" json:"bid_id"`
	EvaluatorID       string         `db:"evaluator_id" json:"evaluator_id"`
	TechnicalScore    float64        `db:"technical_score" json:"technical_score"`
	FinancialScore    float64        `db:"financial_score" json:"financial_score"`
	ExperienceScore   *float64       `db:"experience_score" json:"experience_score,omitempty"`
	ComplianceScore   *float64       `db:"compliance_score" json:"compliance_score,omitempty"`
	TechnicalComments *string        `db:"technical_comments" json:"technical_comments,omitempty"`
	FinancialComments *string        `db:"financial_comments" json:"financial_comments,omitempty"`
	CompositeScore    float64        `db:"total_score" json:"total_score"`
	Recommendation    Recommendation `db:"recommendation" json:"recommendation"`
	Rationale         *string        `db:"recommendation_reason" json:"recommendation_reason,omitempty"`
	Status            string         `db:"status" json:"status"`
	CompletedAt       time.Time      `db:"completed_at" json:"completed_at"`
}

type AuditEventType string

const (
	EventBidSubmitted    AuditEventType = "bid_submitted"
	EventBidOpened       AuditEventType = "bid_opened"
	EventOpeningCeremony AuditEventType = "bids_opening_ceremony"
	EventBidEvaluated    AuditEventType = "bid_evaluated"
	EventContractAwarded AuditEventType = "contract_awarded"
)

// AuditEvent is an append-only, hash-stamped record of a workflow action.
type AuditEvent struct {
	ID            string         `db:"id" json:"id"`
	Seq           int64          `db:"seq" json:"-"`
	ProcurementID string         `db:"procurement_id" json:"procurement_id"`
	BidID         *string        `db:"bid_id" json:"bid_id,omitempty"`
	EventType     AuditEventType `db:"event_type" json:"event_type"`
	Description   string         `db:"event_description" json:"event_description"`
	ActorID       string         `db:"actor_id" json:"actor_id"`
	ActorRole     string         `db:"actor_role" json:"actor_role"`
	Payload       Payload        `db:"event_data" json:"event_data"`
	Hash          string         `db:"event_hash" json:"event_hash"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
}
