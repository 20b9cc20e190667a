package ddb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
)

const attrPolicyDetails = "policy_details"

func contractKey(id string) map[string]types.AttributeValue {
	return MakeKeys(pfxContract+id, skContract)
}

func contractItem(c *models.Contract) (map[string]types.AttributeValue, error) {
	cp := *c
	if cp.Claims == nil {
		cp.Claims = []string{}
	}
	item, err := marshalItem(cp, map[string]string{
		attrPK:     pfxContract + c.ID,
		attrSK:     skContract,
		attrGSI1PK: pfxUser + c.UserID,
		attrGSI1SK: pfxContract + c.ID,
		attrGSI2PK: pfxContractStatus + string(c.Status),
		attrGSI2SK: iso(c.EndDate),
	})
	if err != nil {
		return nil, err
	}
	if c.Details != nil {
		dm, err := attributevalue.MarshalMap(c.Details)
		if err != nil {
			return nil, err
		}
		item[attrPolicyDetails] = &types.AttributeValueMemberM{Value: dm}
	}
	return item, nil
}

func decodeContract(item map[string]types.AttributeValue) (*models.Contract, error) {
	var c models.Contract
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, fmt.Errorf("decode contract: %w", err)
	}
	if m, ok := item[attrPolicyDetails].(*types.AttributeValueMemberM); ok {
		d, err := models.NewPolicyDetails(c.PolicyType)
		if err != nil {
			return nil, err
		}
		if err := attributevalue.UnmarshalMap(m.Value, d); err != nil {
			return nil, fmt.Errorf("decode policy details: %w", err)
		}
		c.Details = d
	}
	return &c, nil
}

func decodeContracts(items []map[string]types.AttributeValue) ([]models.Contract, error) {
	out := make([]models.Contract, 0, len(items))
	for _, it := range items {
		c, err := decodeContract(it)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// addContract appends the writes creating c: the contract, its payment
// reference and the owner's back-reference.
func (r *Repo) addContract(t *txn, c *models.Contract) error {
	item, err := contractItem(c)
	if err != nil {
		return err
	}
	p, err := r.put(item, notExists())
	if err != nil {
		return err
	}
	t.add(types.TransactWriteItem{Put: p}, apperr.Conflict("contract already exists"))

	if c.PaymentIntentID != "" {
		ref, err := r.put(map[string]types.AttributeValue{
			attrPK:        str(pfxPayIntent + c.PaymentIntentID),
			attrSK:        str(skPayIntent),
			"contract_id": str(c.ID),
		}, notExists())
		if err != nil {
			return err
		}
		t.add(types.TransactWriteItem{Put: ref}, apperr.Conflict("payment intent already used"))
	}

	upd := expression.Set(expression.Name("contracts"),
		expression.ListAppend(
			expression.IfNotExists(expression.Name("contracts"), expression.Value([]string{})),
			expression.Value([]string{c.ID}),
		)).
		Set(expression.Name("updated_at"), expression.Value(c.CreatedAt))
	u, err := r.update(userKey(c.UserID), upd, exists())
	if err != nil {
		return err
	}
	t.add(types.TransactWriteItem{Update: u}, apperr.NotFound("user not found"))
	return nil
}

// CreateContract writes c, its payment reference, the owner's contract list
// entry and events in one transaction.
func (r *Repo) CreateContract(ctx context.Context, c *models.Contract, events ...models.OutboxEvent) error {
	t := &txn{}
	if err := r.addContract(t, c); err != nil {
		return err
	}
	if err := r.addEvents(t, events); err != nil {
		return err
	}
	return r.commit(ctx, t)
}

// GetContract returns the contract with id.
func (r *Repo) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	item, err := r.getItem(ctx, contractKey(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("contract not found")
	}
	return decodeContract(item)
}

// ContractByPaymentIntent follows the payment reference item.
func (r *Repo) ContractByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Contract, error) {
	ref, err := r.getItem(ctx, MakeKeys(pfxPayIntent+paymentIntentID, skPayIntent))
	if err != nil {
		return nil, err
	}
	id, ok := ref["contract_id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, apperr.NotFound("contract not found")
	}
	return r.GetContract(ctx, id.Value)
}

// ContractsByUser lists a user's contracts oldest first.
func (r *Repo) ContractsByUser(ctx context.Context, userID string) ([]models.Contract, error) {
	in, err := r.query(indexGSI1, beginsWith(attrGSI1PK, pfxUser+userID, attrGSI1SK, pfxContract), true)
	if err != nil {
		return nil, err
	}
	items, err := r.queryAll(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	return decodeContracts(items)
}

// ContractsByStatus lists contracts in status with an end date in rng,
// ordered by end date.
func (r *Repo) ContractsByStatus(ctx context.Context, status models.ContractStatus, rng store.EndRange) ([]models.Contract, error) {
	kc := expression.Key(attrGSI2PK).Equal(expression.Value(pfxContractStatus + string(status)))
	switch {
	case !rng.Before.IsZero() && !rng.From.IsZero():
		kc = kc.And(expression.Key(attrGSI2SK).Between(expression.Value(iso(rng.From)), expression.Value(iso(rng.Before))))
	case !rng.Before.IsZero():
		kc = kc.And(expression.Key(attrGSI2SK).LessThan(expression.Value(iso(rng.Before))))
	case !rng.From.IsZero():
		kc = kc.And(expression.Key(attrGSI2SK).GreaterThanEqual(expression.Value(iso(rng.From))))
	}
	in, err := r.query(indexGSI2, kc, true)
	if err != nil {
		return nil, err
	}
	items, err := r.queryAll(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	all, err := decodeContracts(items)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if rng.Match(c.EndDate) {
			out = append(out, c)
		}
	}
	return out, nil
}

func statusIn(from []models.ContractStatus) expression.ConditionBuilder {
	rest := make([]expression.OperandBuilder, 0, len(from))
	for _, s := range from[1:] {
		rest = append(rest, expression.Value(s))
	}
	return expression.Name("status").In(expression.Value(from[0]), rest...)
}

// TransitionContract moves the contract to t.To when its current status is
// one of t.From. It reports false, without error, when the status did not
// match.
func (r *Repo) TransitionContract(ctx context.Context, tr store.Transition) (bool, error) {
	if len(tr.From) == 0 {
		return false, fmt.Errorf("transition %s: no source status", tr.ID)
	}
	cond := expression.AttributeExists(expression.Name(attrPK)).And(statusIn(tr.From))
	upd := expression.Set(expression.Name("status"), expression.Value(tr.To)).
		Set(expression.Name(attrGSI2PK), expression.Value(pfxContractStatus+string(tr.To))).
		Set(expression.Name("status_updated_at"), expression.Value(tr.At)).
		Set(expression.Name("updated_at"), expression.Value(tr.At))
	u, err := r.update(contractKey(tr.ID), upd, &cond)
	if err != nil {
		return false, err
	}

	if len(tr.Events) == 0 {
		err = r.updateItem(ctx, u, errNotApplied)
	} else {
		t := &txn{}
		t.add(types.TransactWriteItem{Update: u}, errNotApplied)
		if err := r.addEvents(t, tr.Events); err != nil {
			return false, err
		}
		err = r.commit(ctx, t)
	}
	if err == errNotApplied {
		return false, nil
	}
	return err == nil, err
}

// SaveRenewalOffer overwrites the staged renewal offer while the contract is
// in one of allowed.
func (r *Repo) SaveRenewalOffer(ctx context.Context, id string, offer models.RenewalData, allowed []models.ContractStatus) error {
	cond := expression.AttributeExists(expression.Name(attrPK)).And(statusIn(allowed))
	upd := expression.Set(expression.Name("renewal_data"), expression.Value(offer)).
		Set(expression.Name("updated_at"), expression.Value(offer.OfferedAt))
	u, err := r.update(contractKey(id), upd, &cond)
	if err != nil {
		return err
	}
	err = r.updateItem(ctx, u, errNotApplied)
	if err != errNotApplied {
		return err
	}
	if _, gerr := r.GetContract(ctx, id); gerr != nil {
		return gerr
	}
	return apperr.Conflict("contract status changed")
}

// ClaimRenewalOffer flips renewal_offered to false if the offer is still at
// version. A concurrent caller that already claimed it gets a conflict.
func (r *Repo) ClaimRenewalOffer(ctx context.Context, id string, version int) error {
	cond := expression.Name("renewal_data.renewal_offered").Equal(expression.Value(true)).
		And(expression.Name("renewal_data.version").Equal(expression.Value(version)))
	upd := expression.Set(expression.Name("renewal_data.renewal_offered"), expression.Value(false)).
		Set(expression.Name("renewal_data.version"), expression.Value(version+1))
	u, err := r.update(contractKey(id), upd, &cond)
	if err != nil {
		return err
	}
	return r.updateItem(ctx, u, apperr.Conflict("renewal offer is no longer available"))
}

// ReleaseRenewalOffer puts back an offer claimed at version.
func (r *Repo) ReleaseRenewalOffer(ctx context.Context, id string, version int) error {
	cond := expression.Name("renewal_data.renewal_offered").Equal(expression.Value(false)).
		And(expression.Name("renewal_data.version").Equal(expression.Value(version + 1)))
	upd := expression.Set(expression.Name("renewal_data.renewal_offered"), expression.Value(true)).
		Set(expression.Name("renewal_data.version"), expression.Value(version+2))
	u, err := r.update(contractKey(id), upd, &cond)
	if err != nil {
		return err
	}
	return r.updateItem(ctx, u, apperr.Conflict("renewal offer changed"))
}

// CommitRenewal creates next and archives prev in one transaction, so the
// original is archived only if the replacement exists.
func (r *Repo) CommitRenewal(ctx context.Context, next *models.Contract, prev store.Archive, events ...models.OutboxEvent) error {
	t := &txn{}
	if err := r.addContract(t, next); err != nil {
		return err
	}

	cond := expression.AttributeExists(expression.Name(attrPK)).
		And(expression.Name("status").NotEqual(expression.Value(models.ContractArchived))).
		And(expression.Name("renewal_data.version").Equal(expression.Value(prev.OfferVersion)))
	upd := expression.Set(expression.Name("status"), expression.Value(models.ContractArchived)).
		Set(expression.Name(attrGSI2PK), expression.Value(pfxContractStatus+string(models.ContractArchived))).
		Set(expression.Name("status_updated_at"), expression.Value(prev.At)).
		Set(expression.Name("archived_at"), expression.Value(prev.At)).
		Set(expression.Name("replaced_by"), expression.Value(prev.ReplacedBy)).
		Set(expression.Name("archive_reason"), expression.Value(prev.Reason)).
		Set(expression.Name("updated_at"), expression.Value(prev.At)).
		Remove(expression.Name("renewal_data"))
	u, err := r.update(contractKey(prev.ID), upd, &cond)
	if err != nil {
		return err
	}
	t.add(types.TransactWriteItem{Update: u}, apperr.Conflict("contract was renewed concurrently"))

	if err := r.addEvents(t, events); err != nil {
		return err
	}
	return r.commit(ctx, t)
}
