// Package claims handles claim submission against active contracts and the
// supervisor review workflow.
package claims

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/s3io"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
	"github.com/kylejryan/insurance-policy-portal/internal/validate"
)

// Store is the persistence the service needs.
type Store interface {
	store.Claims
	GetContract(ctx context.Context, id string) (*models.Contract, error)
}

// Uploader stores attachment bytes.
type Uploader interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (s3io.Object, error)
}

// Notifier creates in-app notifications.
type Notifier interface {
	NotifyRoleBestEffort(ctx context.Context, role models.Role, typ models.NotificationType, message, relatedID string)
	NotifyUser(ctx context.Context, userID string, typ models.NotificationType, message, relatedID string) (*models.Notification, error)
}

// Upload is one attached file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// SubmitInput is the JSON part of a claim submission.
type SubmitInput struct {
	ContractID string           `json:"contractId"`
	Applicant  models.Applicant `json:"applicant"`
	Incident   models.Incident  `json:"incident"`
}

// Service manages claims.
type Service struct {
	store  Store
	files  Uploader
	notify Notifier
	log    *zap.Logger
	now    func() time.Time
}

// New returns a claim service.
func New(st Store, files Uploader, notify Notifier, log *zap.Logger) *Service {
	return &Service{store: st, files: files, notify: notify, log: log, now: time.Now}
}

func (in SubmitInput) check() error {
	a, inc := in.Applicant, in.Incident
	return validate.All(
		func() error { return validate.ID(in.ContractID, "contract") },
		func() error { return validate.Required(a.FirstName, "applicant.firstName") },
		func() error { return validate.Required(a.LastName, "applicant.lastName") },
		func() error { return validate.Email(a.Email) },
		func() error { return validate.Required(a.Phone, "applicant.phone") },
		func() error { return validate.Required(a.Address, "applicant.address") },
		func() error { return validate.Required(a.City, "applicant.city") },
		func() error { return validate.Required(a.PostalCode, "applicant.postalCode") },
		func() error { return validate.Required(inc.Type, "incident.incidentType") },
		func() error { _, err := validate.Date(inc.Date, "incident.incidentDate"); return err },
		func() error { return validate.Required(inc.Location, "incident.incidentLocation") },
		func() error { return validate.Required(inc.Description, "incident.incidentDescription") },
	)
}

func checkFiles(files []Upload) error {
	if err := validate.FileCount(len(files)); err != nil {
		return err
	}
	for _, f := range files {
		if err := validate.Attachment(f.Filename, f.ContentType, f.Size); err != nil {
			return err
		}
	}
	return nil
}

// Submit files a claim for userID. The contract must belong to the user and
// cover the current date. Attachments are uploaded one after the other and
// any failure aborts the submission before the claim is saved.
func (s *Service) Submit(ctx context.Context, userID string, in SubmitInput, files []Upload) (*models.Claim, error) {
	if err := validate.All(
		func() error { return validate.ID(userID, "user") },
		in.check,
		func() error { return checkFiles(files) },
	); err != nil {
		return nil, err
	}
	contract, err := s.store.GetContract(ctx, in.ContractID)
	if err != nil {
		return nil, err
	}
	if !contract.OwnedBy(userID) {
		return nil, apperr.Forbidden("contract belongs to another user")
	}
	if !contract.ActiveAt(s.now()) {
		return nil, apperr.Forbidden("contract is not active")
	}

	id := models.NewID()
	log := s.log.With(zap.String("claim_id", id), zap.String("contract_id", contract.ID))
	attached := make([]models.SupportingFile, 0, len(files))
	for i, f := range files {
		sf, err := s.upload(ctx, userID, id, i+1, f)
		if err != nil {
			log.Warn("claim attachment upload failed", zap.String("file", f.Filename), zap.Error(err))
			return nil, apperr.Upstream(fmt.Sprintf("upload of %s failed", f.Filename), err)
		}
		attached = append(attached, sf)
	}

	now := models.Stamp(s.now())
	c := &models.Claim{
		ID:              id,
		UserID:          userID,
		ContractID:      contract.ID,
		Applicant:       in.Applicant,
		Incident:        in.Incident,
		SupportingFiles: attached,
		Status:          models.ClaimPending,
		Comments:        []models.Comment{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	c.Applicant.Email = models.NormalizeEmail(c.Applicant.Email)
	if err := s.store.CreateClaim(ctx, c); err != nil {
		return nil, err
	}
	log.Info("claim submitted", zap.Int("files", len(attached)))

	s.notify.NotifyRoleBestEffort(ctx, models.RoleSupervisor, models.NotifyClaimSubmitted,
		fmt.Sprintf("Nouveau sinistre déclaré par %s %s (contrat %s)", c.Applicant.FirstName, c.Applicant.LastName, contract.PolicyNumber),
		c.ID)
	return c, nil
}

func (s *Service) upload(ctx context.Context, userID, claimID string, n int, f Upload) (models.SupportingFile, error) {
	body, err := f.Open()
	if err != nil {
		return models.SupportingFile{}, err
	}
	defer body.Close()
	key := s3io.ClaimFileKey(userID, claimID, n, f.Filename)
	obj, err := s.files.Put(ctx, key, f.ContentType, body, f.Size)
	if err != nil {
		return models.SupportingFile{}, err
	}
	return models.SupportingFile{
		StorageID:  obj.Key,
		URL:        obj.URL,
		FileName:   f.Filename,
		FileType:   f.ContentType,
		SizeBytes:  obj.Size,
		UploadedAt: models.Stamp(s.now()),
	}, nil
}

// ListForUser returns the user's claims.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Claim, error) {
	if err := validate.ID(userID, "user"); err != nil {
		return nil, err
	}
	return s.store.ClaimsByUser(ctx, userID)
}

// GetForUser returns one of the user's claims. Claims of other users are
// reported as missing.
func (s *Service) GetForUser(ctx context.Context, userID, claimID string) (*models.Claim, error) {
	c, err := s.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, apperr.NotFound("claim not found")
	}
	return c, nil
}

// Get returns a claim.
func (s *Service) Get(ctx context.Context, id string) (*models.Claim, error) {
	if err := validate.ID(id, "claim"); err != nil {
		return nil, err
	}
	return s.store.GetClaim(ctx, id)
}

// List returns the claims in status, or every claim when status is empty.
func (s *Service) List(ctx context.Context, status string) ([]models.Claim, error) {
	statuses := models.ClaimStatuses
	if status != "" {
		st := models.ClaimStatus(strings.ToLower(status))
		if !st.Valid() {
			return nil, apperr.Validation("invalid status")
		}
		statuses = []models.ClaimStatus{st}
	}
	out := []models.Claim{}
	for _, st := range statuses {
		list, err := s.store.ClaimsByStatus(ctx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, list...)
	}
	return out, nil
}

var statusLabels = map[models.ClaimStatus]string{
	models.ClaimPending:  "en attente",
	models.ClaimApproved: "approuvé",
	models.ClaimRejected: "rejeté",
}

// UpdateStatus sets a claim's status, optionally with a comment, and tells
// the claimant by email and notification.
func (s *Service) UpdateStatus(ctx context.Context, supervisorID, id, status, comment string) (*models.Claim, error) {
	st := models.ClaimStatus(strings.ToLower(strings.TrimSpace(status)))
	if !st.Valid() {
		return nil, apperr.Validation("status must be pending, approved or rejected")
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := models.Stamp(s.now())
	c.Status = st
	c.UpdatedAt = now
	comment = strings.TrimSpace(comment)
	if comment != "" {
		c.Comments = append(c.Comments, models.Comment{Comment: comment, SupervisorID: supervisorID, CreatedAt: now})
	}

	ev := models.NewOutboxEvent(models.MailClaimStatus, now, map[string]string{
		"claimId": c.ID,
		"status":  statusLabels[st],
		"comment": comment,
	})
	ev.UserID = c.UserID
	if err := s.store.UpdateClaim(ctx, c, ev); err != nil {
		return nil, err
	}
	s.log.Info("claim status updated", zap.String("claim_id", c.ID), zap.String("status", string(st)), zap.String("supervisor_id", supervisorID))

	msg := fmt.Sprintf("Votre sinistre du %s est désormais %s", c.Incident.Date, statusLabels[st])
	if _, err := s.notify.NotifyUser(ctx, c.UserID, models.NotifyClaimStatus, msg, c.ID); err != nil {
		s.log.Warn("claimant not notified", zap.String("claim_id", c.ID), zap.Error(err))
	}
	return c, nil
}

// AddComment appends a supervisor comment.
func (s *Service) AddComment(ctx context.Context, supervisorID, id, text string) (*models.Claim, error) {
	if err := validate.Required(text, "comment"); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := models.Stamp(s.now())
	c.Comments = append(c.Comments, models.Comment{Comment: strings.TrimSpace(text), SupervisorID: supervisorID, CreatedAt: now})
	c.UpdatedAt = now
	if err := s.store.UpdateClaim(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a claim. Its attachments stay in the bucket.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := validate.ID(id, "claim"); err != nil {
		return err
	}
	return s.store.DeleteClaim(ctx, id)
}
