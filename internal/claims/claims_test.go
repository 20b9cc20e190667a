package claims

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/memstore"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/notify"
	"github.com/kylejryan/insurance-policy-portal/internal/s3io"
)

type fakeBucket struct {
	keys   []string
	failAt int // 1-based; 0 never fails
}

func (b *fakeBucket) Put(_ context.Context, key, _ string, body io.Reader, _ int64) (s3io.Object, error) {
	if b.failAt > 0 && len(b.keys)+1 == b.failAt {
		return s3io.Object{}, errors.New("s3 unavailable")
	}
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return s3io.Object{}, err
	}
	b.keys = append(b.keys, key)
	return s3io.Object{Key: key, URL: "https://bucket.example/" + key, Size: n}, nil
}

func file(name, contentType, body string) Upload {
	return Upload{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(body)),
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

type fixture struct {
	st       *memstore.Store
	bucket   *fakeBucket
	notes    *notify.Service
	svc      *Service
	user     *models.User
	super    *models.User
	contract *models.Contract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{st: memstore.New(), bucket: &fakeBucket{}}
	f.notes = notify.New(f.st, nil, zap.NewNop())
	f.svc = New(f.st, f.bucket, f.notes, zap.NewNop())
	f.svc.now = func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }

	f.user = &models.User{ID: models.NewID(), Name: "Paul", Lastname: "Martin", Email: "paul@example.fr", Role: models.RoleUser}
	f.super = &models.User{ID: models.NewID(), Name: "Sophie", Lastname: "Leroy", Email: "sophie@example.fr", Role: models.RoleSupervisor}
	require.NoError(t, f.st.CreateUser(ctx, f.user))
	require.NoError(t, f.st.CreateUser(ctx, f.super))
	f.contract = f.addContract(t, f.user.ID, models.ContractActive)
	return f
}

func (f *fixture) addContract(t *testing.T, owner string, status models.ContractStatus) *models.Contract {
	t.Helper()
	c := &models.Contract{
		ID:           models.NewID(),
		UserID:       owner,
		PolicyType:   models.PolicyAuto,
		PolicyNumber: "POL-2025-" + models.NewID()[18:],
		StartDate:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:       status,
	}
	require.NoError(t, f.st.CreateContract(context.Background(), c))
	return c
}

func input(contractID string) SubmitInput {
	return SubmitInput{
		ContractID: contractID,
		Applicant: models.Applicant{
			FirstName: "Paul", LastName: "Martin", Email: "Paul@Example.fr", Phone: "0601020304",
			Address: "3 avenue Foch", City: "Paris", PostalCode: "75016",
		},
		Incident: models.Incident{
			Type: "collision", Date: "2025-06-10", Location: "Paris",
			Description: "Accrochage sur le périphérique",
		},
	}
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	files := []Upload{
		file("constat amiable.pdf", "application/pdf", "%PDF-1.4 constat"),
		file("photo.jpg", "image/jpeg", "jpegbytes"),
	}

	c, err := f.svc.Submit(ctx, f.user.ID, input(f.contract.ID), files)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimPending, c.Status)
	assert.Equal(t, "paul@example.fr", c.Applicant.Email)
	require.Len(t, c.SupportingFiles, 2)
	assert.Equal(t, "user/"+f.user.ID+"/claims/"+c.ID+"/1-constat_amiable.pdf", c.SupportingFiles[0].StorageID)
	assert.Equal(t, int64(len("jpegbytes")), c.SupportingFiles[1].SizeBytes)

	contract, err := f.st.GetContract(ctx, f.contract.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, contract.Claims)

	notes, err := f.notes.List(ctx, f.super.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotifyClaimSubmitted, notes[0].Type)
	assert.Equal(t, c.ID, notes[0].RelatedID)

	mine, err := f.svc.ListForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestSubmit_Gate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := &models.User{ID: models.NewID(), Name: "A", Email: "a@example.fr", Role: models.RoleUser}
	require.NoError(t, f.st.CreateUser(ctx, other))
	expired := f.addContract(t, f.user.ID, models.ContractExpired)

	_, err := f.svc.Submit(ctx, other.ID, input(f.contract.ID), nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Submit(ctx, f.user.ID, input(expired.ID), nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.Submit(ctx, f.user.ID, input(models.NewID()), nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	f.svc.now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	_, err = f.svc.Submit(ctx, f.user.ID, input(f.contract.ID), nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden, "outside the validity window")

	assert.Zero(t, f.st.ClaimCount())
}

func TestSubmit_RejectsFiles(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		files []Upload
	}{
		{"executable", []Upload{file("virus.exe", "application/octet-stream", "MZ")}},
		{"extension mismatch", []Upload{file("photo.png", "application/pdf", "x")}},
		{"too many", func() []Upload {
			var out []Upload
			for i := 0; i < 11; i++ {
				out = append(out, file("note.txt", "text/plain", "x"))
			}
			return out
		}()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), f.user.ID, input(f.contract.ID), tc.files)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Empty(t, f.bucket.keys)
}

func TestSubmit_UploadFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.bucket.failAt = 2
	files := []Upload{file("a.pdf", "application/pdf", "a"), file("b.pdf", "application/pdf", "b")}

	_, err := f.svc.Submit(context.Background(), f.user.ID, input(f.contract.ID), files)
	require.Error(t, err)
	assert.Equal(t, 500, apperr.Status(err))
	assert.Len(t, f.bucket.keys, 1)
	assert.Zero(t, f.st.ClaimCount())
}

func TestSupervisorWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.Submit(ctx, f.user.ID, input(f.contract.ID), nil)
	require.NoError(t, err)

	pending, err := f.svc.List(ctx, "pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	_, err = f.svc.List(ctx, "lost")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err := f.svc.UpdateStatus(ctx, f.super.ID, c.ID, "approved", "Dossier complet")
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, updated.Status)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, f.super.ID, updated.Comments[0].SupervisorID)

	mails := f.st.Outbox()
	require.Len(t, mails, 1)
	assert.Equal(t, models.MailClaimStatus, mails[0].Template)
	assert.Equal(t, f.user.ID, mails[0].UserID)
	assert.Equal(t, "approuvé", mails[0].Data["status"])

	notes, err := f.notes.List(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotifyClaimStatus, notes[0].Type)

	_, err = f.svc.UpdateStatus(ctx, f.super.ID, c.ID, "closed", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	withComment, err := f.svc.AddComment(ctx, f.super.ID, c.ID, "Expertise reçue")
	require.NoError(t, err)
	assert.Len(t, withComment.Comments, 2)

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, f.svc.Delete(ctx, c.ID))
	_, err = f.svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c, err := f.svc.Submit(ctx, f.user.ID, input(f.contract.ID), nil)
	require.NoError(t, err)

	got, err := f.svc.GetForUser(ctx, f.user.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = f.svc.GetForUser(ctx, f.super.ID, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.GetForUser(ctx, f.user.ID, "bad")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
