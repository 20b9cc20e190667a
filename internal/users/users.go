// Package users manages accounts: registration and login, profiles,
// administration, staff settings and the approved password reset flow.
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/authz"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/s3io"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
	"github.com/kylejryan/insurance-policy-portal/internal/validate"
)

// Store is the persistence the service needs.
type Store interface {
	store.Users
	ContractsByUser(ctx context.Context, userID string) ([]models.Contract, error)
}

// Signer issues session tokens.
type Signer interface {
	Sign(p authz.Principal) (string, time.Time, error)
}

// Uploads presigns profile picture uploads.
type Uploads interface {
	PresignPut(ctx context.Context, key, contentType string, meta map[string]string) (string, time.Duration, error)
	URL(key string) string
}

// Notifier fans notifications out to staff.
type Notifier interface {
	NotifyRoleBestEffort(ctx context.Context, role models.Role, typ models.NotificationType, message, relatedID string)
}

// Config holds the service settings.
type Config struct {
	FrontendURL string
	ResetTTL    time.Duration
	BcryptCost  int
}

// Service manages users.
type Service struct {
	store   Store
	signer  Signer
	uploads Uploads
	notify  Notifier
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
}

// New returns a user service.
func New(st Store, signer Signer, uploads Uploads, notify Notifier, cfg Config, log *zap.Logger) *Service {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{store: st, signer: signer, uploads: uploads, notify: notify, cfg: cfg, log: log, now: time.Now}
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// setPassword validates password and stores its hash on u.
func (s *Service) setPassword(u *models.User, password string) error {
	if err := validate.Password(password); err != nil {
		return err
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// RegisterInput is a self-service sign up.
type RegisterInput struct {
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in RegisterInput) check() error {
	return validate.All(
		func() error { return validate.Name(in.Name, "name") },
		func() error { return validate.Name(in.Lastname, "lastname") },
		func() error { return validate.Email(in.Email) },
		func() error { return validate.Password(in.Password) },
	)
}

// Register creates a customer account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.create(ctx, in, models.RoleUser)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role models.Role) (*models.User, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := models.Stamp(s.now())
	u := &models.User{
		ID:           models.NewID(),
		Name:         strings.TrimSpace(in.Name),
		Lastname:     strings.TrimSpace(in.Lastname),
		Email:        models.NormalizeEmail(in.Email),
		PasswordHash: hash,
		Role:         role,
		Contracts:    []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.String("user_id", u.ID), zap.String("role", string(role)))
	return u, nil
}

// Session is a successful login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

var errBadCredentials = apperr.Unauthorized("invalid email or password")

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.store.UserByEmail(ctx, models.NormalizeEmail(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, errBadCredentials
	}
	token, exp, err := s.signer.Sign(principal(u))
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func principal(u *models.User) authz.Principal {
	return authz.Principal{UserID: u.ID, Email: u.Email, Role: u.Role, FullName: u.FullName()}
}

// Get returns a user.
func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	if err := validate.ID(id, "user"); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, id)
}

// ProfileInput is a profile edit. Empty fields are left unchanged.
type ProfileInput struct {
	Name     string `json:"name"`
	Lastname string `json:"lastname"`
	Email    string `json:"email"`
}

func (in ProfileInput) apply(u *models.User) error {
	if in.Name != "" {
		if err := validate.Name(in.Name, "name"); err != nil {
			return err
		}
		u.Name = strings.TrimSpace(in.Name)
	}
	if in.Lastname != "" {
		if err := validate.Name(in.Lastname, "lastname"); err != nil {
			return err
		}
		u.Lastname = strings.TrimSpace(in.Lastname)
	}
	if in.Email != "" {
		if err := validate.Email(in.Email); err != nil {
			return err
		}
		u.Email = models.NormalizeEmail(in.Email)
	}
	return nil
}

// UpdateProfile edits the user's own name and email.
func (s *Service) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*models.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = models.Stamp(s.now())
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := validate.Password(next); err != nil {
		return err
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return apperr.Unauthorized("current password is incorrect")
	}
	if err := s.setPassword(u, next); err != nil {
		return err
	}
	u.UpdatedAt = models.Stamp(s.now())
	return s.store.UpdateUser(ctx, u)
}

// PictureUpload tells the client where and how to upload a profile picture.
type PictureUpload struct {
	UploadID      string            `json:"upload_id"`
	S3Key         string            `json:"s3_key"`
	PresignedURL  string            `json:"presigned_url"`
	ExpiresIn     int               `json:"expires_in"`
	ContentType   string            `json:"content_type"`
	UploadHeaders map[string]string `json:"upload_headers"`
}

// PresignProfilePicture returns a presigned PUT for a new profile picture.
// The picture is attached once the upload lands in the bucket.
func (s *Service) PresignProfilePicture(ctx context.Context, userID, contentType string) (*PictureUpload, error) {
	ext, err := validate.ImageType(contentType)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}
	uploadID := models.NewID()
	key := s3io.AvatarKey(userID, uploadID, ext)
	url, ttl, err := s.uploads.PresignPut(ctx, key, contentType, s3io.Metadata(userID, uploadID))
	if err != nil {
		return nil, apperr.Upstream("could not presign upload", err)
	}
	return &PictureUpload{
		UploadID:      uploadID,
		S3Key:         key,
		PresignedURL:  url,
		ExpiresIn:     int(ttl.Seconds()),
		ContentType:   contentType,
		UploadHeaders: s3io.UploadHeaders(userID, uploadID, contentType),
	}, nil
}

// AttachProfilePicture records an uploaded picture on its owner, as
// identified by the object key.
func (s *Service) AttachProfilePicture(ctx context.Context, key string) (string, error) {
	userID, ok := s3io.ParseAvatarKey(key)
	if !ok {
		return "", apperr.Validation("not a profile picture key")
	}
	if err := s.store.SetProfilePic(ctx, userID, s.uploads.URL(key), models.Stamp(s.now())); err != nil {
		return "", err
	}
	return userID, nil
}
