package models

import "github.com/shopspring/decimal"

type TaskKind string

const (
	TaskKindComment       TaskKind = "comment"
	TaskKindAccountRental TaskKind = "account_rental"
	TaskKindVideo         TaskKind = "video"
)

type ProofType string

const (
	ProofScreenshot ProofType = "screenshot"
	ProofLink       ProofType = "link"
)

// TaskTemplate is read-only catalog data.
type TaskTemplate struct {
	ID                 string          `json:"id" yaml:"id"`
	Kind               TaskKind        `json:"kind" yaml:"kind"`
	Title              string          `json:"title" yaml:"title"`
	UnitPrice          decimal.Decimal `json:"unit_price" yaml:"-"`
	RequiredProofTypes []ProofType     `json:"required_proof_types" yaml:"required_proof_types"`
	EstimatedMinutes   int             `json:"estimated_minutes" yaml:"estimated_minutes"`
	ProofSchema        string          `json:"proof_schema,omitempty" yaml:"proof_schema"`
}

func (t *TaskTemplate) Requires(pt ProofType) bool {
	for _, r := range t.RequiredProofTypes {
		if r == pt {
			return true
		}
	}
	return false
}
