package users

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/authz"
	"github.com/kylejryan/insurance-policy-portal/internal/memstore"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/notify"
)

type fakeUploads struct {
	keys []string
	meta map[string]string
}

func (f *fakeUploads) PresignPut(_ context.Context, key, _ string, meta map[string]string) (string, time.Duration, error) {
	f.keys = append(f.keys, key)
	f.meta = meta
	return "https://bucket.example/" + key + "?X-Amz-Signature=abc", 15 * time.Minute, nil
}

func (f *fakeUploads) URL(key string) string { return "https://bucket.example/" + key }

type fixture struct {
	st    *memstore.Store
	jwt   *authz.JWT
	up    *fakeUploads
	notes *notify.Service
	svc   *Service
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{st: memstore.New(), jwt: authz.NewJWT("test-secret", time.Hour), up: &fakeUploads{}, now: time.Now()}
	f.notes = notify.New(f.st, nil, zap.NewNop())
	f.svc = New(f.st, f.jwt, f.up, f.notes, Config{FrontendURL: "https://portal.example.fr", BcryptCost: bcrypt.MinCost}, zap.NewNop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) register(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{Name: "Jeanne", Lastname: "d'Arc", Email: email, Password: "orleans1429"})
	require.NoError(t, err)
	return u
}

func (f *fixture) staff(t *testing.T, role models.Role, email string) *models.User {
	t.Helper()
	u, err := f.svc.Create(context.Background(), CreateInput{
		RegisterInput: RegisterInput{Name: "Admin", Lastname: "Portail", Email: email, Password: "supersecret"},
		Role:          string(role),
	})
	require.NoError(t, err)
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, " Jeanne@Example.FR ")
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, "jeanne@example.fr", u.Email)
	assert.NotEqual(t, "orleans1429", u.PasswordHash)

	_, err := f.svc.Register(ctx, RegisterInput{Name: "X", Lastname: "Y", Email: "jeanne@example.fr", Password: "longenough"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = f.svc.Register(ctx, RegisterInput{Name: "X", Lastname: "Y", Email: "x@example.fr", Password: "short"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	sess, err := f.svc.Login(ctx, "JEANNE@example.fr", "orleans1429")
	require.NoError(t, err)
	p, err := f.jwt.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, models.RoleUser, p.Role)
	assert.Equal(t, "Jeanne d'Arc", p.FullName)

	_, err = f.svc.Login(ctx, "jeanne@example.fr", "wrong-password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Login(ctx, "nobody@example.fr", "orleans1429")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestProfileAndPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "jeanne@example.fr")
	other := f.register(t, "autre@example.fr")

	updated, err := f.svc.UpdateProfile(ctx, u.ID, ProfileInput{Lastname: "Darc"})
	require.NoError(t, err)
	assert.Equal(t, "Jeanne", updated.Name)
	assert.Equal(t, "Darc", updated.Lastname)

	_, err = f.svc.UpdateProfile(ctx, u.ID, ProfileInput{Email: other.Email})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, u.ID, "bad-current", "newpassword"), apperr.ErrUnauthorized)
	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "orleans1429", "newpassword"))
	_, err = f.svc.Login(ctx, u.Email, "newpassword")
	assert.NoError(t, err)
}

func TestProfilePicture(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "jeanne@example.fr")

	up, err := f.svc.PresignProfilePicture(ctx, u.ID, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.S3Key, "user/"+u.ID+"/avatar/"))
	assert.True(t, strings.HasSuffix(up.S3Key, ".png"))
	assert.Equal(t, 900, up.ExpiresIn)
	assert.Equal(t, u.ID, up.UploadHeaders["x-amz-meta-user_id"])
	assert.Equal(t, up.UploadID, f.up.meta["upload_id"])

	_, err = f.svc.PresignProfilePicture(ctx, u.ID, "application/pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	owner, err := f.svc.AttachProfilePicture(ctx, up.S3Key)
	require.NoError(t, err)
	assert.Equal(t, u.ID, owner)
	got, err := f.svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example/"+up.S3Key, got.ProfilePic)

	_, err = f.svc.AttachProfilePicture(ctx, "user/"+u.ID+"/claims/x/1-a.pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.staff(t, models.RoleAdmin, "admin@example.fr")
	super := f.staff(t, models.RoleSupervisor, "sup@example.fr")
	jeanne := f.register(t, "jeanne@example.fr")
	paul, err := f.svc.Register(ctx, RegisterInput{Name: "Paul", Lastname: "Verlaine", Email: "paul@example.fr", Password: "saturnien"})
	require.NoError(t, err)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3, "admins are not listed")

	found, err := f.svc.Search(ctx, "VERL")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, paul.ID, found[0].ID)
	_, err = f.svc.Search(ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, f.st.CreateContract(ctx, &models.Contract{ID: models.NewID(), UserID: jeanne.ID, PolicyType: models.PolicyTravel, Status: models.ContractActive}))
	withAll, err := f.svc.ListWithContracts(ctx)
	require.NoError(t, err)
	assert.Len(t, withAll, 2)
	only, err := f.svc.ListWithContractsOnly(ctx, "")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, jeanne.ID, only[0].ID)
	assert.Len(t, only[0].ContractList, 1)
	none, err := f.svc.ListWithContractsOnly(ctx, "auto")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.Update(ctx, admin.ID, admin.ID, AdminUpdateInput{Role: "user"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	promoted, err := f.svc.Update(ctx, admin.ID, paul.ID, AdminUpdateInput{Role: "superviseur"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupervisor, promoted.Role)
	_, err = f.svc.Update(ctx, admin.ID, paul.ID, AdminUpdateInput{Role: "king"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.ErrorIs(t, f.svc.Delete(ctx, admin.ID, admin.ID), apperr.ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, admin.ID, super.ID))
	_, err = f.svc.Get(ctx, super.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.staff(t, models.RoleAdmin, "admin@example.fr")
	customer := f.register(t, "jeanne@example.fr")

	st, err := f.svc.GetSettings(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), st)

	off := false
	st, err = f.svc.UpdateSettings(ctx, admin.ID, SettingsPatch{PushNotifications: &off})
	require.NoError(t, err)
	assert.Equal(t, models.Settings{Language: "Français", EmailNotifications: true, PushNotifications: false}, st)

	lang := "English"
	st, err = f.svc.UpdateSettings(ctx, admin.ID, SettingsPatch{Language: &lang})
	require.NoError(t, err)
	assert.Equal(t, "English", st.Language)
	assert.False(t, st.PushNotifications, "earlier changes are kept")

	_, err = f.svc.GetSettings(ctx, customer.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestPasswordResetWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.staff(t, models.RoleAdmin, "admin@example.fr")
	u := f.register(t, "jeanne@example.fr")

	assert.ErrorIs(t, f.svc.RequestReset(ctx, "ghost@example.fr"), apperr.ErrNotFound)
	require.NoError(t, f.svc.RequestReset(ctx, "jeanne@example.fr"))

	notes, err := f.notes.List(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotifyPasswordResetRequest, notes[0].Type)
	assert.Equal(t, u.ID, notes[0].RelatedID)

	pending, err := f.svc.PendingResets(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	token := pending[0].Token
	assert.Len(t, token, 64)
	assert.False(t, pending[0].Approved)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "brandnewpw"), apperr.ErrValidation, "not approved yet")
	assert.ErrorIs(t, f.svc.ApproveReset(ctx, admin.ID, "forged", u.ID), apperr.ErrValidation)
	require.NoError(t, f.svc.ApproveReset(ctx, admin.ID, token, u.ID))

	mails := f.st.Outbox()
	require.Len(t, mails, 1)
	assert.Equal(t, models.MailPasswordReset, mails[0].Template)
	assert.Equal(t, []string{"jeanne@example.fr"}, mails[0].To)
	assert.Equal(t, "https://portal.example.fr/reset-password/"+token, mails[0].Data["link"])

	require.NoError(t, f.svc.ResetPassword(ctx, token, "brandnewpw"))
	_, err = f.svc.Login(ctx, u.Email, "brandnewpw")
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Reset)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "again-and-again"), apperr.ErrValidation, "token is single use")
}

func TestResetPasswordRejectsNearMissTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.staff(t, models.RoleAdmin, "admin@example.fr")
	u := f.register(t, "jeanne@example.fr")
	require.NoError(t, f.svc.RequestReset(ctx, u.Email))
	pending, err := f.svc.PendingResets(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	token := pending[0].Token
	require.NoError(t, f.svc.ApproveReset(ctx, admin.ID, token, u.ID))

	last := "0"
	if token[len(token)-1] == '0' {
		last = "1"
	}
	for _, bad := range []string{"", token[:len(token)-1], token[:len(token)-1] + last, token + "0", strings.ToUpper(token)} {
		assert.ErrorIs(t, f.svc.ResetPassword(ctx, bad, "brandnewpw"), apperr.ErrValidation, bad)
	}
	_, err = f.svc.Login(ctx, u.Email, "brandnewpw")
	assert.Error(t, err)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "brandnewpw"))
}

func TestPasswordResetExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.staff(t, models.RoleAdmin, "admin@example.fr")
	u := f.register(t, "jeanne@example.fr")
	require.NoError(t, f.svc.RequestReset(ctx, u.Email))
	pending, err := f.svc.PendingResets(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	f.now = f.now.Add(2 * time.Hour)
	assert.ErrorIs(t, f.svc.ApproveReset(ctx, admin.ID, pending[0].Token, u.ID), apperr.ErrValidation)
	left, err := f.svc.PendingResets(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}
