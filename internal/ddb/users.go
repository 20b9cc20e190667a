package ddb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

func userKey(id string) map[string]types.AttributeValue {
	return MakeKeys(pfxUser+id, skProfile)
}

func emailKey(email string) map[string]types.AttributeValue {
	return MakeKeys(pfxEmail+models.NormalizeEmail(email), skEmail)
}

func decodeUser(item map[string]types.AttributeValue) (*models.User, error) {
	var u models.User
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

func (r *Repo) emailRefPut(email, userID string) (types.TransactWriteItem, error) {
	item := emailKey(email)
	item["user_id"] = str(userID)
	p, err := r.put(item, notExists())
	if err != nil {
		return types.TransactWriteItem{}, err
	}
	return types.TransactWriteItem{Put: p}, nil
}

// CreateUser writes the user and reserves the email in one transaction.
func (r *Repo) CreateUser(ctx context.Context, u *models.User) error {
	cp := *u
	if cp.Contracts == nil {
		cp.Contracts = []string{}
	}
	item, err := marshalItem(cp, map[string]string{
		attrPK:     pfxUser + u.ID,
		attrSK:     skProfile,
		attrGSI1PK: pfxRole + string(u.Role),
		attrGSI1SK: pfxUser + u.ID,
	})
	if err != nil {
		return err
	}
	p, err := r.put(item, notExists())
	if err != nil {
		return err
	}
	ref, err := r.emailRefPut(u.Email, u.ID)
	if err != nil {
		return err
	}

	t := &txn{}
	t.add(types.TransactWriteItem{Put: p}, apperr.Conflict("user already exists"))
	t.add(ref, apperr.Conflict("email already in use"))
	return r.commit(ctx, t)
}

// GetUser returns the user with id.
func (r *Repo) GetUser(ctx context.Context, id string) (*models.User, error) {
	item, err := r.getItem(ctx, userKey(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("user not found")
	}
	return decodeUser(item)
}

// UserByEmail follows the email reservation item.
func (r *Repo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	ref, err := r.getItem(ctx, emailKey(email))
	if err != nil {
		return nil, err
	}
	id, ok := ref["user_id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return r.GetUser(ctx, id.Value)
}

// UsersByRole lists users holding role, oldest first.
func (r *Repo) UsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	in, err := r.query(indexGSI1, beginsWith(attrGSI1PK, pfxRole+string(role), attrGSI1SK, pfxUser), true)
	if err != nil {
		return nil, err
	}
	items, err := r.queryAll(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(items))
	for _, it := range items {
		u, err := decodeUser(it)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

// UpdateUser writes the editable profile fields. The contract list is left
// alone so concurrent subscriptions are not lost.
func (r *Repo) UpdateUser(ctx context.Context, u *models.User, events ...models.OutboxEvent) error {
	prev, err := r.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}

	upd := expression.Set(expression.Name("name"), expression.Value(u.Name)).
		Set(expression.Name("lastname"), expression.Value(u.Lastname)).
		Set(expression.Name("email"), expression.Value(u.Email)).
		Set(expression.Name("password_hash"), expression.Value(u.PasswordHash)).
		Set(expression.Name("role"), expression.Value(u.Role)).
		Set(expression.Name(attrGSI1PK), expression.Value(pfxRole+string(u.Role))).
		Set(expression.Name("profile_pic"), expression.Value(u.ProfilePic)).
		Set(expression.Name("updated_at"), expression.Value(u.UpdatedAt))
	if u.Settings != nil {
		upd = upd.Set(expression.Name("settings"), expression.Value(*u.Settings))
	} else {
		upd = upd.Remove(expression.Name("settings"))
	}
	if u.Reset != nil {
		upd = upd.Set(expression.Name("reset"), expression.Value(*u.Reset))
	} else {
		upd = upd.Remove(expression.Name("reset"))
	}
	up, err := r.update(userKey(u.ID), upd, exists())
	if err != nil {
		return err
	}

	t := &txn{}
	t.add(types.TransactWriteItem{Update: up}, apperr.NotFound("user not found"))
	if models.NormalizeEmail(prev.Email) != models.NormalizeEmail(u.Email) {
		t.add(types.TransactWriteItem{Delete: &types.Delete{TableName: awsStr(r.Table), Key: emailKey(prev.Email)}}, nil)
		ref, err := r.emailRefPut(u.Email, u.ID)
		if err != nil {
			return err
		}
		t.add(ref, apperr.Conflict("email already in use"))
	}
	if err := r.addEvents(t, events); err != nil {
		return err
	}
	return r.commit(ctx, t)
}

// SetProfilePic records the user's picture URL.
func (r *Repo) SetProfilePic(ctx context.Context, userID, url string, at time.Time) error {
	upd := expression.Set(expression.Name("profile_pic"), expression.Value(url)).
		Set(expression.Name("updated_at"), expression.Value(at))
	u, err := r.update(userKey(userID), upd, exists())
	if err != nil {
		return err
	}
	return r.updateItem(ctx, u, apperr.NotFound("user not found"))
}

// DeleteUser removes the user and frees the email. Contracts and claims stay.
func (r *Repo) DeleteUser(ctx context.Context, id string) error {
	u, err := r.GetUser(ctx, id)
	if err != nil {
		return err
	}
	cond, err := expression.NewBuilder().WithCondition(*exists()).Build()
	if err != nil {
		return err
	}
	t := &txn{}
	t.add(types.TransactWriteItem{Delete: &types.Delete{
		TableName:                 awsStr(r.Table),
		Key:                       userKey(id),
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	}}, apperr.NotFound("user not found"))
	t.add(types.TransactWriteItem{Delete: &types.Delete{TableName: awsStr(r.Table), Key: emailKey(u.Email)}}, nil)
	return r.commit(ctx, t)
}

// deleteItem removes one item, reporting notFound when it does not exist.
func (r *Repo) deleteItem(ctx context.Context, key map[string]types.AttributeValue, notFound error) error {
	cond, err := expression.NewBuilder().WithCondition(*exists()).Build()
	if err != nil {
		return err
	}
	_, err = r.DB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 awsStr(r.Table),
		Key:                       key,
		ConditionExpression:       cond.Condition(),
		ExpressionAttributeNames:  cond.Names(),
		ExpressionAttributeValues: cond.Values(),
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("ddb delete: %w", err)
	}
	return nil
}
