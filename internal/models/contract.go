package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// ContractStatus is a state of the contract lifecycle.
type ContractStatus string

// Possible values for ContractStatus
const (
	ContractPendingPayment ContractStatus = "pending_payment"
	ContractActive         ContractStatus = "active"
	ContractExpired        ContractStatus = "expired"
	ContractArchived       ContractStatus = "archived"
	ContractCancelled      ContractStatus = "cancelled"
)

// ContractStatuses lists every status.
var ContractStatuses = []ContractStatus{
	ContractPendingPayment, ContractActive, ContractExpired, ContractArchived, ContractCancelled,
}

// ArchiveReasonRenewed is stamped on contracts superseded by a renewal.
const ArchiveReasonRenewed = "renewed"

// RenewalUplift is the premium multiplier applied on renewal.
const RenewalUplift = 1.10

// Contract is a subscribed insurance policy.
type Contract struct {
	ID              string         `json:"id" dynamodbav:"contract_id"`
	UserID          string         `json:"userId" dynamodbav:"user_id"`
	PolicyType      PolicyType     `json:"policyType" dynamodbav:"policy_type"`
	PolicyNumber    string         `json:"policyNumber" dynamodbav:"policy_number"`
	StartDate       time.Time      `json:"startDate" dynamodbav:"start_date"`
	EndDate         time.Time      `json:"endDate" dynamodbav:"end_date"`
	PremiumAmount   float64        `json:"premiumAmount" dynamodbav:"premium_amount"`
	Currency        string         `json:"currency" dynamodbav:"currency"`
	CoverageDetails string         `json:"coverageDetails" dynamodbav:"coverage_details"`
	Details         PolicyDetails  `json:"policyDetails" dynamodbav:"-"`
	PaymentIntentID string         `json:"paymentIntentId,omitempty" dynamodbav:"payment_intent_id,omitempty"`
	Status          ContractStatus `json:"status" dynamodbav:"status"`
	StatusUpdatedAt *time.Time     `json:"statusUpdatedAt,omitempty" dynamodbav:"status_updated_at,omitempty"`
	Signature       string         `json:"signature,omitempty" dynamodbav:"signature,omitempty"` // base64 image
	Claims          []string       `json:"claims" dynamodbav:"claims"`
	RenewalData     *RenewalData   `json:"renewalData,omitempty" dynamodbav:"renewal_data,omitempty"`
	RenewedFrom     string         `json:"renewedFrom,omitempty" dynamodbav:"renewed_from,omitempty"`

	// Set once archived.
	ArchivedAt    *time.Time `json:"archivedAt,omitempty" dynamodbav:"archived_at,omitempty"`
	ReplacedBy    string     `json:"replacedBy,omitempty" dynamodbav:"replaced_by,omitempty"`
	ArchiveReason string     `json:"archiveReason,omitempty" dynamodbav:"archive_reason,omitempty"`

	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// RenewalData is a staged renewal offer. Version increases every time an
// offer is written or consumed, so a stale execute can be detected.
type RenewalData struct {
	RenewalOffered bool      `json:"renewalOffered" dynamodbav:"renewal_offered"`
	RenewalPremium float64   `json:"renewalPremium" dynamodbav:"renewal_premium"`
	NewStartDate   time.Time `json:"newStartDate" dynamodbav:"new_start_date"`
	NewEndDate     time.Time `json:"newEndDate" dynamodbav:"new_end_date"`
	OfferedAt      time.Time `json:"offeredAt" dynamodbav:"offered_at"`
	Version        int       `json:"version" dynamodbav:"version"`
}

// ActiveAt reports whether the contract covers t.
func (c *Contract) ActiveAt(t time.Time) bool {
	return c.Status == ContractActive && !t.Before(c.StartDate) && !t.After(c.EndDate)
}

// OwnedBy reports whether userID owns the contract.
func (c *Contract) OwnedBy(userID string) bool { return c.UserID == userID }

// MaxPremium is the largest premium accepted on subscription.
const MaxPremium = 99_999_999.99

// AmountMinor returns the premium in cents. ok is false when the amount is
// not a number or does not fit in an int64.
func AmountMinor(premium float64) (cents int64, ok bool) {
	v := math.Round(premium * 100)
	if math.IsNaN(v) || v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// RoundCents rounds v to two decimals.
func RoundCents(v float64) float64 { return math.Round(v*100) / 100 }

// RenewalPremium applies the renewal uplift to premium.
func RenewalPremium(premium float64) float64 { return RoundCents(premium * RenewalUplift) }

// PolicyNumber builds a policy number from the issue time and contract id.
func PolicyNumber(issued time.Time, id string) string {
	suffix := strings.ToUpper(id)
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return "POL-" + issued.UTC().Format("2006") + "-" + suffix
}

// UnmarshalJSON decodes policyDetails into the variant named by policyType.
func (c *Contract) UnmarshalJSON(b []byte) error {
	type alias Contract
	var raw struct {
		alias
		Details json.RawMessage `json:"policyDetails"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Contract(raw.alias)
	c.Details = nil
	if len(raw.Details) == 0 || string(raw.Details) == "null" {
		return nil
	}
	d, err := NewPolicyDetails(c.PolicyType)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw.Details, d); err != nil {
		return err
	}
	c.Details = d
	return nil
}
