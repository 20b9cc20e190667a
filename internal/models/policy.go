package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
)

// PolicyType is one of the seven insurance products.
type PolicyType string

// Possible values for PolicyType
const (
	PolicyHealth       PolicyType = "health"
	PolicyTravel       PolicyType = "travel"
	PolicyAuto         PolicyType = "auto"
	PolicyLiability    PolicyType = "liability"
	PolicyHome         PolicyType = "home"
	PolicyProfessional PolicyType = "professional"
	PolicyTransport    PolicyType = "transport"
)

// PolicyTypes lists every policy type in display order.
var PolicyTypes = []PolicyType{
	PolicyHealth, PolicyTravel, PolicyAuto, PolicyLiability,
	PolicyHome, PolicyProfessional, PolicyTransport,
}

// frenchPolicyTypes maps the labels used by the web client.
var frenchPolicyTypes = map[string]PolicyType{
	"santé":                 PolicyHealth,
	"voyage":                PolicyTravel,
	"automobile":            PolicyAuto,
	"responsabilité civile": PolicyLiability,
	"habitation":            PolicyHome,
	"professionnelle":       PolicyProfessional,
}

// Valid reports whether p is one of the enumerated types.
func (p PolicyType) Valid() bool {
	for _, t := range PolicyTypes {
		if p == t {
			return true
		}
	}
	return false
}

// ParsePolicyType accepts the canonical value or its French label.
func ParsePolicyType(s string) (PolicyType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if p := PolicyType(s); p.Valid() {
		return p, true
	}
	p, ok := frenchPolicyTypes[s]
	return p, ok
}

// PolicyDetails is the policy-type specific part of a contract. Each policy
// type has exactly one implementation; the set is closed.
type PolicyDetails interface {
	PolicyType() PolicyType
	Validate() error
	// Rows returns label/value pairs for documents.
	Rows() [][2]string
	sealed()
}

// NewPolicyDetails returns an empty details value for p, ready to decode into.
func NewPolicyDetails(p PolicyType) (PolicyDetails, error) {
	switch p {
	case PolicyHealth:
		return &HealthDetails{}, nil
	case PolicyTravel:
		return &TravelDetails{}, nil
	case PolicyAuto:
		return &AutoDetails{}, nil
	case PolicyLiability:
		return &LiabilityDetails{}, nil
	case PolicyHome:
		return &HomeDetails{}, nil
	case PolicyProfessional:
		return &ProfessionalDetails{}, nil
	case PolicyTransport:
		return &TransportDetails{}, nil
	}
	return nil, apperr.Validation(fmt.Sprintf("invalid policy type %q", p))
}

// DecodePolicyDetails decodes raw JSON into the variant for p. Unknown
// fields are rejected.
func DecodePolicyDetails(p PolicyType, raw []byte) (PolicyDetails, error) {
	d, err := NewPolicyDetails(p)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, apperr.Validation("policyDetails is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(d); err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid %s policyDetails: %v", p, err))
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func invalid(p PolicyType, msg string) error {
	return apperr.Validation(fmt.Sprintf("%s policyDetails: %s", p, msg))
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) + " EUR" }

func yesNo(b bool) string {
	if b {
		return "oui"
	}
	return "non"
}

// HealthDetails covers health insurance.
type HealthDetails struct {
	CoverageLevel         string `json:"coverageLevel" dynamodbav:"coverage_level"` // basic|standard|premium
	Beneficiaries         int    `json:"beneficiaries" dynamodbav:"beneficiaries"`
	PreExistingConditions bool   `json:"preExistingConditions" dynamodbav:"pre_existing_conditions"`
}

func (*HealthDetails) PolicyType() PolicyType { return PolicyHealth }
func (*HealthDetails) sealed()                {}

func (d *HealthDetails) Validate() error {
	switch d.CoverageLevel {
	case "basic", "standard", "premium":
	default:
		return invalid(PolicyHealth, "coverageLevel must be basic, standard or premium")
	}
	if d.Beneficiaries < 1 {
		return invalid(PolicyHealth, "beneficiaries must be at least 1")
	}
	return nil
}

func (d *HealthDetails) Rows() [][2]string {
	return [][2]string{
		{"Niveau de couverture", d.CoverageLevel},
		{"Bénéficiaires", strconv.Itoa(d.Beneficiaries)},
		{"Antécédents médicaux", yesNo(d.PreExistingConditions)},
	}
}

// TravelDetails covers travel insurance.
type TravelDetails struct {
	Destination string `json:"destination" dynamodbav:"destination"`
	Travelers   int    `json:"travelers" dynamodbav:"travelers"`
	MultiTrip   bool   `json:"multiTrip" dynamodbav:"multi_trip"`
}

func (*TravelDetails) PolicyType() PolicyType { return PolicyTravel }
func (*TravelDetails) sealed()                {}

func (d *TravelDetails) Validate() error {
	if blank(d.Destination) {
		return invalid(PolicyTravel, "destination is required")
	}
	if d.Travelers < 1 {
		return invalid(PolicyTravel, "travelers must be at least 1")
	}
	return nil
}

func (d *TravelDetails) Rows() [][2]string {
	return [][2]string{
		{"Destination", d.Destination},
		{"Voyageurs", strconv.Itoa(d.Travelers)},
		{"Multi-voyages", yesNo(d.MultiTrip)},
	}
}

// AutoDetails covers motor insurance.
type AutoDetails struct {
	Make         string `json:"make" dynamodbav:"make"`
	Model        string `json:"model" dynamodbav:"model"`
	Year         int    `json:"year" dynamodbav:"year"`
	LicensePlate string `json:"licensePlate" dynamodbav:"license_plate"`
}

func (*AutoDetails) PolicyType() PolicyType { return PolicyAuto }
func (*AutoDetails) sealed()                {}

func (d *AutoDetails) Validate() error {
	if blank(d.Make) || blank(d.Model) {
		return invalid(PolicyAuto, "make and model are required")
	}
	if d.Year < 1900 || d.Year > 2100 {
		return invalid(PolicyAuto, "year is out of range")
	}
	if blank(d.LicensePlate) {
		return invalid(PolicyAuto, "licensePlate is required")
	}
	return nil
}

func (d *AutoDetails) Rows() [][2]string {
	return [][2]string{
		{"Véhicule", d.Make + " " + d.Model},
		{"Année", strconv.Itoa(d.Year)},
		{"Immatriculation", d.LicensePlate},
	}
}

// LiabilityDetails covers civil liability insurance.
type LiabilityDetails struct {
	CoverageLimit    float64 `json:"coverageLimit" dynamodbav:"coverage_limit"`
	HouseholdMembers int     `json:"householdMembers" dynamodbav:"household_members"`
}

func (*LiabilityDetails) PolicyType() PolicyType { return PolicyLiability }
func (*LiabilityDetails) sealed()                {}

func (d *LiabilityDetails) Validate() error {
	if d.CoverageLimit <= 0 {
		return invalid(PolicyLiability, "coverageLimit must be positive")
	}
	if d.HouseholdMembers < 0 {
		return invalid(PolicyLiability, "householdMembers cannot be negative")
	}
	return nil
}

func (d *LiabilityDetails) Rows() [][2]string {
	return [][2]string{
		{"Plafond de garantie", money(d.CoverageLimit)},
		{"Membres du foyer", strconv.Itoa(d.HouseholdMembers)},
	}
}

// HomeDetails covers home insurance.
type HomeDetails struct {
	Address      string  `json:"address" dynamodbav:"address"`
	PropertyType string  `json:"propertyType" dynamodbav:"property_type"` // apartment|house
	AreaSqm      float64 `json:"areaSqm" dynamodbav:"area_sqm"`
	Owner        bool    `json:"owner" dynamodbav:"owner"`
}

func (*HomeDetails) PolicyType() PolicyType { return PolicyHome }
func (*HomeDetails) sealed()                {}

func (d *HomeDetails) Validate() error {
	if blank(d.Address) {
		return invalid(PolicyHome, "address is required")
	}
	if d.PropertyType != "apartment" && d.PropertyType != "house" {
		return invalid(PolicyHome, "propertyType must be apartment or house")
	}
	if d.AreaSqm <= 0 {
		return invalid(PolicyHome, "areaSqm must be positive")
	}
	return nil
}

func (d *HomeDetails) Rows() [][2]string {
	return [][2]string{
		{"Adresse", d.Address},
		{"Type de bien", d.PropertyType},
		{"Surface", strconv.FormatFloat(d.AreaSqm, 'f', -1, 64) + " m²"},
		{"Propriétaire", yesNo(d.Owner)},
	}
}

// ProfessionalDetails covers professional liability insurance.
type ProfessionalDetails struct {
	CompanyName   string  `json:"companyName" dynamodbav:"company_name"`
	Profession    string  `json:"profession" dynamodbav:"profession"`
	AnnualRevenue float64 `json:"annualRevenue" dynamodbav:"annual_revenue"`
	Employees     int     `json:"employees" dynamodbav:"employees"`
}

func (*ProfessionalDetails) PolicyType() PolicyType { return PolicyProfessional }
func (*ProfessionalDetails) sealed()                {}

func (d *ProfessionalDetails) Validate() error {
	if blank(d.CompanyName) || blank(d.Profession) {
		return invalid(PolicyProfessional, "companyName and profession are required")
	}
	if d.AnnualRevenue < 0 || d.Employees < 0 {
		return invalid(PolicyProfessional, "annualRevenue and employees cannot be negative")
	}
	return nil
}

func (d *ProfessionalDetails) Rows() [][2]string {
	return [][2]string{
		{"Entreprise", d.CompanyName},
		{"Profession", d.Profession},
		{"Chiffre d'affaires", money(d.AnnualRevenue)},
		{"Salariés", strconv.Itoa(d.Employees)},
	}
}

// TransportDetails covers goods in transit.
type TransportDetails struct {
	CargoType     string  `json:"cargoType" dynamodbav:"cargo_type"`
	Origin        string  `json:"origin" dynamodbav:"origin"`
	Destination   string  `json:"destination" dynamodbav:"destination"`
	DeclaredValue float64 `json:"declaredValue" dynamodbav:"declared_value"`
}

func (*TransportDetails) PolicyType() PolicyType { return PolicyTransport }
func (*TransportDetails) sealed()                {}

func (d *TransportDetails) Validate() error {
	if blank(d.CargoType) {
		return invalid(PolicyTransport, "cargoType is required")
	}
	if d.DeclaredValue <= 0 {
		return invalid(PolicyTransport, "declaredValue must be positive")
	}
	return nil
}

func (d *TransportDetails) Rows() [][2]string {
	return [][2]string{
		{"Marchandise", d.CargoType},
		{"Trajet", d.Origin + " - " + d.Destination},
		{"Valeur déclarée", money(d.DeclaredValue)},
	}
}
