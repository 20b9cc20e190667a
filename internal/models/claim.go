package models

import "time"

// ClaimStatus represents the status of an insurance claim.
type ClaimStatus string

// Possible values for ClaimStatus
const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// ClaimStatuses lists every claim status.
var ClaimStatuses = []ClaimStatus{ClaimPending, ClaimApproved, ClaimRejected}

// Valid reports whether s is a known status.
func (s ClaimStatus) Valid() bool {
	return s == ClaimPending || s == ClaimApproved || s == ClaimRejected
}

// Claim is a request for indemnity filed against a contract.
type Claim struct {
	ID              string           `json:"id" dynamodbav:"claim_id"`
	UserID          string           `json:"userId" dynamodbav:"user_id"`
	ContractID      string           `json:"contractId" dynamodbav:"contract_id"`
	Applicant       Applicant        `json:"applicant" dynamodbav:"applicant"`
	Incident        Incident         `json:"incident" dynamodbav:"incident"`
	SupportingFiles []SupportingFile `json:"supportingFiles" dynamodbav:"supporting_files"`
	Status          ClaimStatus      `json:"status" dynamodbav:"status"`
	Comments        []Comment        `json:"comments" dynamodbav:"comments"`
	CreatedAt       time.Time        `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt       time.Time        `json:"updatedAt" dynamodbav:"updated_at"`
}

// BirthDate is kept as entered.
type BirthDate struct {
	Day   int `json:"day" dynamodbav:"day"`
	Month int `json:"month" dynamodbav:"month"`
	Year  int `json:"year" dynamodbav:"year"`
}

// Applicant holds the claimant's personal details.
type Applicant struct {
	FirstName     string    `json:"firstName" dynamodbav:"first_name"`
	LastName      string    `json:"lastName" dynamodbav:"last_name"`
	BirthDate     BirthDate `json:"birthDate" dynamodbav:"birth_date"`
	Sex           string    `json:"sexe" dynamodbav:"sex"`
	Phone         string    `json:"phone" dynamodbav:"phone"`
	Email         string    `json:"email" dynamodbav:"email"`
	Address       string    `json:"address" dynamodbav:"address"`
	PostalAddress string    `json:"postalAddress,omitempty" dynamodbav:"postal_address,omitempty"`
	City          string    `json:"city" dynamodbav:"city"`
	PostalCode    string    `json:"postalCode" dynamodbav:"postal_code"`
	StateProvince string    `json:"stateProvince,omitempty" dynamodbav:"state_province,omitempty"`
}

// Incident describes what happened.
type Incident struct {
	Type               string `json:"incidentType" dynamodbav:"type"`
	Date               string `json:"incidentDate" dynamodbav:"date"` // YYYY-MM-DD
	Time               string `json:"incidentTime,omitempty" dynamodbav:"time,omitempty"`
	Location           string `json:"incidentLocation" dynamodbav:"location"`
	Description        string `json:"incidentDescription" dynamodbav:"description"`
	Damages            string `json:"damages,omitempty" dynamodbav:"damages,omitempty"`
	ThirdPartyInvolved bool   `json:"thirdPartyInvolved" dynamodbav:"third_party_involved"`
	ThirdPartyDetails  string `json:"thirdPartyDetails,omitempty" dynamodbav:"third_party_details,omitempty"`
}

// SupportingFile references an uploaded attachment.
type SupportingFile struct {
	StorageID  string    `json:"storageId" dynamodbav:"storage_id"` // S3 key
	URL        string    `json:"url" dynamodbav:"url"`
	FileName   string    `json:"fileName" dynamodbav:"file_name"`
	FileType   string    `json:"fileType" dynamodbav:"file_type"`
	SizeBytes  int64     `json:"sizeBytes" dynamodbav:"size_bytes"`
	UploadedAt time.Time `json:"uploadedAt" dynamodbav:"uploaded_at"`
}

// Comment is a supervisor remark on a claim.
type Comment struct {
	Comment      string    `json:"comment" dynamodbav:"comment"`
	SupervisorID string    `json:"supervisorId" dynamodbav:"supervisor_id"`
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"created_at"`
}
