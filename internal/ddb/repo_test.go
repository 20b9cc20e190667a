package ddb

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
)

// fakeAPI records inputs and returns canned outputs.
type fakeAPI struct {
	GetFunc      func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	QueryFunc    func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	UpdateErr    error
	TransactErr  error
	Puts         []*dynamodb.PutItemInput
	Updates      []*dynamodb.UpdateItemInput
	Transactions []*dynamodb.TransactWriteItemsInput
}

func (f *fakeAPI) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.GetFunc != nil {
		return f.GetFunc(in)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (f *fakeAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.Puts = append(f.Puts, in)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.Updates = append(f.Updates, in)
	return &dynamodb.UpdateItemOutput{}, f.UpdateErr
}

func (f *fakeAPI) DeleteItem(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeAPI) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if f.QueryFunc != nil {
		return f.QueryFunc(in)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (f *fakeAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.Transactions = append(f.Transactions, in)
	return &dynamodb.TransactWriteItemsOutput{}, f.TransactErr
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleContract() *models.Contract {
	return &models.Contract{
		ID:              models.NewID(),
		UserID:          models.NewID(),
		PolicyType:      models.PolicyAuto,
		StartDate:       day("2024-01-01"),
		EndDate:         day("2025-01-01"),
		PremiumAmount:   1000,
		Currency:        "eur",
		CoverageDetails: "tous risques",
		Details:         &models.AutoDetails{Make: "Peugeot", Model: "208", Year: 2021, LicensePlate: "AA-001-BB"},
		PaymentIntentID: "pi_123",
		Status:          models.ContractActive,
		CreatedAt:       day("2024-01-01"),
	}
}

func attrS(t *testing.T, item map[string]types.AttributeValue, k string) string {
	t.Helper()
	v, ok := item[k].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %s is not a string", k)
	return v.Value
}

func TestCreateContract_WritesOneTransaction(t *testing.T) {
	api := &fakeAPI{}
	repo := &Repo{DB: api, Table: "policies"}
	c := sampleContract()
	ev := models.NewOutboxEvent(models.MailContractConfirmation, c.CreatedAt, nil)

	require.NoError(t, repo.CreateContract(context.Background(), c, ev))

	require.Len(t, api.Transactions, 1)
	items := api.Transactions[0].TransactItems
	require.Len(t, items, 4)

	put := items[0].Put
	require.NotNil(t, put)
	assert.Equal(t, "CONTRACT#"+c.ID, attrS(t, put.Item, "PK"))
	assert.Equal(t, "USER#"+c.UserID, attrS(t, put.Item, "GSI1PK"))
	assert.Equal(t, "CSTATUS#active", attrS(t, put.Item, "GSI2PK"))
	assert.Equal(t, "2025-01-01T00:00:00Z", attrS(t, put.Item, "GSI2SK"))
	assert.IsType(t, &types.AttributeValueMemberM{}, put.Item["policy_details"])
	assert.NotNil(t, put.ConditionExpression)

	assert.Equal(t, "PAYINTENT#pi_123", attrS(t, items[1].Put.Item, "PK"))
	require.NotNil(t, items[2].Update)
	assert.Equal(t, "USER#"+c.UserID, attrS(t, items[2].Update.Key, "PK"))
	assert.Equal(t, "OUTBOX#"+ev.ID, attrS(t, items[3].Put.Item, "PK"))
	assert.Equal(t, "OUTBOX#pending", attrS(t, items[3].Put.Item, "GSI2PK"))
}

func TestCreateContract_MapsCancellationReasons(t *testing.T) {
	cancelled := func(failing int) error {
		reasons := make([]types.CancellationReason, 3)
		for i := range reasons {
			reasons[i].Code = aws.String("None")
		}
		reasons[failing].Code = aws.String("ConditionalCheckFailed")
		return &types.TransactionCanceledException{Message: aws.String("cancelled"), CancellationReasons: reasons}
	}

	api := &fakeAPI{TransactErr: cancelled(1)}
	repo := &Repo{DB: api, Table: "policies"}
	err := repo.CreateContract(context.Background(), sampleContract())
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "payment intent already used", apperr.Message(err))

	api.TransactErr = cancelled(2)
	err = repo.CreateContract(context.Background(), sampleContract())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetContract_DecodesPolicyVariant(t *testing.T) {
	c := sampleContract()
	item, err := contractItem(c)
	require.NoError(t, err)
	api := &fakeAPI{GetFunc: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		assert.Equal(t, "CONTRACT#"+c.ID, in.Key["PK"].(*types.AttributeValueMemberS).Value)
		return &dynamodb.GetItemOutput{Item: item}, nil
	}}
	repo := &Repo{DB: api, Table: "policies"}

	got, err := repo.GetContract(context.Background(), c.ID)
	require.NoError(t, err)
	auto, ok := got.Details.(*models.AutoDetails)
	require.True(t, ok)
	assert.Equal(t, "208", auto.Model)
	assert.True(t, got.EndDate.Equal(c.EndDate))
	assert.Equal(t, []string{}, got.Claims)

	api.GetFunc = nil
	_, err = repo.GetContract(context.Background(), c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTransitionContract_ConditionFailureIsNoop(t *testing.T) {
	api := &fakeAPI{UpdateErr: &types.ConditionalCheckFailedException{Message: aws.String("no")}}
	repo := &Repo{DB: api, Table: "policies"}

	ok, err := repo.TransitionContract(context.Background(), store.Transition{
		ID:   "c1",
		From: []models.ContractStatus{models.ContractActive, models.ContractPendingPayment},
		To:   models.ContractExpired,
		At:   day("2025-01-02"),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	require.Len(t, api.Updates, 1)
	in := api.Updates[0]
	assert.Contains(t, *in.UpdateExpression, "SET")
	assert.Contains(t, mapValues(in.ExpressionAttributeNames), "GSI2PK")

	api.UpdateErr = nil
	ok, err = repo.TransitionContract(context.Background(), store.Transition{
		ID: "c1", From: []models.ContractStatus{models.ContractActive}, To: models.ContractExpired, At: day("2025-01-02"),
		Events: []models.OutboxEvent{models.NewOutboxEvent(models.MailContractExpired, day("2025-01-02"), nil)},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, api.Transactions, 1, "events force a transaction")
	assert.Len(t, api.Transactions[0].TransactItems, 2)
}

func TestClaimRenewalOffer_LoserGetsConflict(t *testing.T) {
	api := &fakeAPI{UpdateErr: &types.ConditionalCheckFailedException{Message: aws.String("no")}}
	repo := &Repo{DB: api, Table: "policies"}

	err := repo.ClaimRenewalOffer(context.Background(), "c1", 3)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	require.Len(t, api.Updates, 1)
	assert.Contains(t, *api.Updates[0].ConditionExpression, "AND")
}

func TestContractsByStatus_QueriesStatusIndex(t *testing.T) {
	early, late := sampleContract(), sampleContract()
	early.EndDate = day("2024-06-01")
	late.EndDate = day("2025-06-01")
	i1, err := contractItem(early)
	require.NoError(t, err)
	i2, err := contractItem(late)
	require.NoError(t, err)

	var seen *dynamodb.QueryInput
	api := &fakeAPI{QueryFunc: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
		seen = in
		return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{i1, i2}}, nil
	}}
	repo := &Repo{DB: api, Table: "policies"}

	got, err := repo.ContractsByStatus(context.Background(), models.ContractActive, store.EndRange{From: day("2025-01-01")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, late.ID, got[0].ID)
	assert.Equal(t, "GSI2", aws.ToString(seen.IndexName))
}

func TestFromStreamImage_DecodesOutboxEvent(t *testing.T) {
	img := map[string]events.DynamoDBAttributeValue{
		"PK":       events.NewStringAttribute("OUTBOX#01J0000000000000000000000A"),
		"event_id": events.NewStringAttribute("01J0000000000000000000000A"),
		"template": events.NewStringAttribute(models.MailContractExpired),
		"user_id":  events.NewStringAttribute("u1"),
		"state":    events.NewStringAttribute("pending"),
		"attempts": events.NewNumberAttribute("0"),
		"data": events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"policyNumber": events.NewStringAttribute("POL-2025-ABCDEFGH"),
		}),
		"to": events.NewListAttribute([]events.DynamoDBAttributeValue{events.NewStringAttribute("a@b.c")}),
	}

	item := FromStreamImage(img)
	assert.True(t, IsOutboxKey(attrS(t, item, "PK")))
	ev, err := DecodeOutboxEvent(item)
	require.NoError(t, err)
	assert.Equal(t, models.MailContractExpired, ev.Template)
	assert.Equal(t, "POL-2025-ABCDEFGH", ev.Data["policyNumber"])
	assert.Equal(t, []string{"a@b.c"}, ev.To)
	assert.Equal(t, models.OutboxPending, ev.State)
}

func mapValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func TestUpdateTask_MissingTaskIsNotFound(t *testing.T) {
	api := &fakeAPI{TransactErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("ConditionalCheckFailed")}},
	}}
	repo := &Repo{DB: api, Table: "policies"}
	task := &models.Task{ID: models.NewID(), Title: "Audit", Description: "Sinistres", Status: models.TaskPending}

	err := repo.UpdateTask(context.Background(), task)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.Len(t, api.Transactions, 1)
	put := api.Transactions[0].TransactItems[0].Put
	assert.Equal(t, "TASK#"+task.ID, attrS(t, put.Item, "PK"))
	assert.Equal(t, "TASKS", attrS(t, put.Item, "GSI1PK"))
	assert.Equal(t, "pending", attrS(t, put.Item, "status"))
}
