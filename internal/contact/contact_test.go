package contact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/memstore"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/notify"
)

func setup(t *testing.T) (*memstore.Store, *notify.Service, *Service, []*models.User) {
	t.Helper()
	st := memstore.New()
	var supers []*models.User
	for _, email := range []string{"sophie@example.fr", "marc@example.fr"} {
		u := &models.User{ID: models.NewID(), Name: "Staff", Email: email, Role: models.RoleSupervisor}
		require.NoError(t, st.CreateUser(context.Background(), u))
		supers = append(supers, u)
	}
	notes := notify.New(st, nil, zap.NewNop())
	return st, notes, New(st, notes, zap.NewNop()), supers
}

func TestSubmit(t *testing.T) {
	st, notes, svc, supers := setup(t)
	ctx := context.Background()

	m, err := svc.Submit(ctx, SubmitInput{Name: "Léa", Email: "Lea@Example.fr", Subject: "Devis", Message: "Bonjour, je souhaite un devis."})
	require.NoError(t, err)
	assert.Equal(t, "lea@example.fr", m.Email)
	assert.False(t, m.Replied)

	mails := st.Outbox()
	require.Len(t, mails, 1)
	assert.Equal(t, models.MailContactReceived, mails[0].Template)
	assert.ElementsMatch(t, []string{"sophie@example.fr", "marc@example.fr"}, mails[0].To)
	assert.Equal(t, "Devis", mails[0].Data["subject"])

	for _, u := range supers {
		list, err := notes.List(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.NotifyContactMessage, list[0].Type)
		assert.Equal(t, m.ID, list[0].RelatedID)
	}

	_, err = svc.Submit(ctx, SubmitInput{Name: "Léa", Email: "not-an-email", Subject: "x", Message: "y"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Submit(ctx, SubmitInput{Name: "Léa", Email: "lea@example.fr", Subject: " ", Message: "y"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReply(t *testing.T) {
	st, _, svc, _ := setup(t)
	ctx := context.Background()
	m, err := svc.Submit(ctx, SubmitInput{Name: "Léa", Email: "lea@example.fr", Subject: "Devis", Message: "Bonjour"})
	require.NoError(t, err)

	got, err := svc.Reply(ctx, ReplyInput{MessageID: m.ID, To: "lea@example.fr", Subject: "Re: Devis", Text: "Voici votre devis."})
	require.NoError(t, err)
	assert.True(t, got.Replied)
	assert.Equal(t, "Voici votre devis.", got.ReplyMessage)
	require.NotNil(t, got.RepliedAt)

	mails := st.Outbox()
	require.Len(t, mails, 2)
	var reply *models.OutboxEvent
	for i := range mails {
		if mails[i].Template == models.MailContactReply {
			reply = &mails[i]
		}
	}
	require.NotNil(t, reply)
	assert.Equal(t, []string{"lea@example.fr"}, reply.To)
	assert.Equal(t, "Re: Devis", reply.Data["subject"])

	_, err = svc.Reply(ctx, ReplyInput{MessageID: models.NewID(), To: "lea@example.fr", Subject: "x", Text: "y"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Reply(ctx, ReplyInput{MessageID: "42", To: "lea@example.fr", Subject: "x", Text: "y"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
