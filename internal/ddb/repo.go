// Package ddb is the single-table DynamoDB repository behind store.Store.
//
// Table layout (PK/SK plus two overloaded indexes):
//
//	Contract      CONTRACT#<id>   CONTRACT   GSI1 USER#<uid>/CONTRACT#<id>   GSI2 CSTATUS#<status>/<end>
//	Payment ref   PAYINTENT#<pi>  PAYINTENT
//	User          USER#<id>       PROFILE    GSI1 ROLE#<role>/USER#<id>
//	Email ref     EMAIL#<email>   EMAIL
//	Claim         CLAIM#<id>      CLAIM      GSI1 USER#<uid>/CLAIM#<id>      GSI2 CLSTATUS#<status>/CLAIM#<id>
//	Notification  USER#<uid>      NOTIF#<id>
//	Contact       CONTACT#<id>    CONTACT    GSI1 CONTACTS/CONTACT#<id>
//	Outbox        OUTBOX#<id>     OUTBOX                                    GSI2 OUTBOX#<state>/OUTBOX#<id>
//	Task          TASK#<id>       TASK       GSI1 TASKS/TASK#<id>
package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
)

var _ store.Store = (*Repo)(nil)

// API is the subset of the DynamoDB client the repository uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Repo wraps a DynamoDB client and table name.
type Repo struct {
	DB    API
	Table string
}

const (
	attrPK     = "PK"
	attrSK     = "SK"
	attrGSI1PK = "GSI1PK"
	attrGSI1SK = "GSI1SK"
	attrGSI2PK = "GSI2PK"
	attrGSI2SK = "GSI2SK"

	indexGSI1 = "GSI1"
	indexGSI2 = "GSI2"

	pfxContract       = "CONTRACT#"
	pfxPayIntent      = "PAYINTENT#"
	pfxUser           = "USER#"
	pfxEmail          = "EMAIL#"
	pfxRole           = "ROLE#"
	pfxClaim          = "CLAIM#"
	pfxNotif          = "NOTIF#"
	pfxContact        = "CONTACT#"
	pfxOutbox         = "OUTBOX#"
	pfxTask           = "TASK#"
	pfxContractStatus = "CSTATUS#"
	pfxClaimStatus    = "CLSTATUS#"

	skContract  = "CONTRACT"
	skPayIntent = "PAYINTENT"
	skProfile   = "PROFILE"
	skEmail     = "EMAIL"
	skClaim     = "CLAIM"
	skContact   = "CONTACT"
	skOutbox    = "OUTBOX"
	skTask      = "TASK"

	pkContacts = "CONTACTS"
	pkTasks    = "TASKS"

	codeConditionFailed = "ConditionalCheckFailed"
)

// errNotApplied marks a failed condition the caller treats as a no-op.
var errNotApplied = errors.New("condition not met")

// awsStr is a helper to get a pointer to a string literal.
func awsStr(s string) *string { return &s }

func str(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

// iso formats t the way every timestamp is persisted, so that string order
// on sort keys is chronological.
func iso(t time.Time) string { return models.Stamp(t).Format(time.RFC3339) }

// MakeKeys constructs the primary key of an item.
func MakeKeys(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrPK: str(pk), attrSK: str(sk)}
}

// marshalItem encodes v and adds the key attributes.
func marshalItem(v any, keys map[string]string) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, err
	}
	for k, s := range keys {
		item[k] = str(s)
	}
	return item, nil
}

// txn accumulates items for one TransactWriteItems call. onFail holds, per
// item, the error to report when that item's condition fails.
type txn struct {
	items  []types.TransactWriteItem
	onFail []error
}

func (t *txn) add(item types.TransactWriteItem, onFail error) {
	t.items = append(t.items, item)
	t.onFail = append(t.onFail, onFail)
}

func (r *Repo) put(item map[string]types.AttributeValue, cond *expression.ConditionBuilder) (*types.Put, error) {
	p := &types.Put{TableName: awsStr(r.Table), Item: item}
	if cond == nil {
		return p, nil
	}
	expr, err := expression.NewBuilder().WithCondition(*cond).Build()
	if err != nil {
		return nil, err
	}
	p.ConditionExpression = expr.Condition()
	p.ExpressionAttributeNames = expr.Names()
	p.ExpressionAttributeValues = expr.Values()
	return p, nil
}

func (r *Repo) update(key map[string]types.AttributeValue, upd expression.UpdateBuilder, cond *expression.ConditionBuilder) (*types.Update, error) {
	b := expression.NewBuilder().WithUpdate(upd)
	if cond != nil {
		b = b.WithCondition(*cond)
	}
	expr, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &types.Update{
		TableName:                 awsStr(r.Table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// commit writes t atomically, translating a failed condition into the
// matching onFail error.
func (r *Repo) commit(ctx context.Context, t *txn) error {
	_, err := r.DB.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: t.items})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for i, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == codeConditionFailed && i < len(t.onFail) && t.onFail[i] != nil {
				return t.onFail[i]
			}
		}
	}
	return fmt.Errorf("ddb transact: %w", err)
}

// updateItem runs a single conditional update; a failed condition returns
// onFail.
func (r *Repo) updateItem(ctx context.Context, u *types.Update, onFail error) error {
	_, err := r.DB.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 u.TableName,
		Key:                       u.Key,
		UpdateExpression:          u.UpdateExpression,
		ConditionExpression:       u.ConditionExpression,
		ExpressionAttributeNames:  u.ExpressionAttributeNames,
		ExpressionAttributeValues: u.ExpressionAttributeValues,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return onFail
	}
	if err != nil {
		return fmt.Errorf("ddb update: %w", err)
	}
	return nil
}

func (r *Repo) getItem(ctx context.Context, key map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	out, err := r.DB.GetItem(ctx, &dynamodb.GetItemInput{TableName: awsStr(r.Table), Key: key, ConsistentRead: aws.Bool(true)})
	if err != nil {
		return nil, fmt.Errorf("ddb get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// query builds a Query on index ("" for the table) with kc.
func (r *Repo) query(index string, kc expression.KeyConditionBuilder, forward bool) (*dynamodb.QueryInput, error) {
	expr, err := expression.NewBuilder().WithKeyCondition(kc).Build()
	if err != nil {
		return nil, err
	}
	in := &dynamodb.QueryInput{
		TableName:                 awsStr(r.Table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(forward),
	}
	if index != "" {
		in.IndexName = awsStr(index)
	}
	return in, nil
}

// queryAll follows pagination until exhausted or limit items (0 = no limit).
func (r *Repo) queryAll(ctx context.Context, in *dynamodb.QueryInput, limit int) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := r.DB.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("ddb query: %w", err)
		}
		items = append(items, out.Items...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func beginsWith(pkAttr, pk, skAttr, prefix string) expression.KeyConditionBuilder {
	return expression.Key(pkAttr).Equal(expression.Value(pk)).
		And(expression.Key(skAttr).BeginsWith(prefix))
}

func exists() *expression.ConditionBuilder {
	c := expression.AttributeExists(expression.Name(attrPK))
	return &c
}

func notExists() *expression.ConditionBuilder {
	c := expression.AttributeNotExists(expression.Name(attrPK))
	return &c
}

// outboxPut is the transaction item writing a pending outbox event.
func (r *Repo) outboxPut(e models.OutboxEvent) (types.TransactWriteItem, error) {
	item, err := outboxItem(&e)
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	p, err := r.put(item, notExists())
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: p}, nil
}

func (r *Repo) addEvents(t *txn, events []models.OutboxEvent) error {
	for _, e := range events {
		item, err := r.outboxPut(e)
		if err != nil {
			return err
		}
		t.add(item, nil)
	}
	return nil
}
