package ddb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

func claimKey(id string) map[string]types.AttributeValue {
	return MakeKeys(pfxClaim+id, skClaim)
}

func claimItem(c *models.Claim) (map[string]types.AttributeValue, error) {
	cp := *c
	if cp.SupportingFiles == nil {
		cp.SupportingFiles = []models.SupportingFile{}
	}
	if cp.Comments == nil {
		cp.Comments = []models.Comment{}
	}
	return marshalItem(cp, map[string]string{
		attrPK:     pfxClaim + c.ID,
		attrSK:     skClaim,
		attrGSI1PK: pfxUser + c.UserID,
		attrGSI1SK: pfxClaim + c.ID,
		attrGSI2PK: pfxClaimStatus + string(c.Status),
		attrGSI2SK: pfxClaim + c.ID,
	})
}

func decodeClaims(items []map[string]types.AttributeValue) ([]models.Claim, error) {
	out := make([]models.Claim, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	return out, nil
}

// CreateClaim writes the claim and appends it to the contract's claim list
// in one transaction.
func (r *Repo) CreateClaim(ctx context.Context, c *models.Claim) error {
	item, err := claimItem(c)
	if err != nil {
		return err
	}
	p, err := r.put(item, notExists())
	if err != nil {
		return err
	}
	upd := expression.Set(expression.Name("claims"),
		expression.ListAppend(
			expression.IfNotExists(expression.Name("claims"), expression.Value([]string{})),
			expression.Value([]string{c.ID}),
		)).
		Set(expression.Name("updated_at"), expression.Value(c.CreatedAt))
	u, err := r.update(contractKey(c.ContractID), upd, exists())
	if err != nil {
		return err
	}

	t := &txn{}
	t.add(types.TransactWriteItem{Put: p}, apperr.Conflict("claim already exists"))
	t.add(types.TransactWriteItem{Update: u}, apperr.NotFound("contract not found"))
	return r.commit(ctx, t)
}

// GetClaim returns the claim with id.
func (r *Repo) GetClaim(ctx context.Context, id string) (*models.Claim, error) {
	item, err := r.getItem(ctx, claimKey(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("claim not found")
	}
	var c models.Claim
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, fmt.Errorf("decode claim: %w", err)
	}
	return &c, nil
}

// ClaimsByUser lists a user's claims oldest first.
func (r *Repo) ClaimsByUser(ctx context.Context, userID string) ([]models.Claim, error) {
	in, err := r.query(indexGSI1, beginsWith(attrGSI1PK, pfxUser+userID, attrGSI1SK, pfxClaim), true)
	if err != nil {
		return nil, err
	}
	items, err := r.queryAll(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	return decodeClaims(items)
}

// ClaimsByStatus lists claims in status oldest first.
func (r *Repo) ClaimsByStatus(ctx context.Context, status models.ClaimStatus) ([]models.Claim, error) {
	in, err := r.query(indexGSI2, beginsWith(attrGSI2PK, pfxClaimStatus+string(status), attrGSI2SK, pfxClaim), true)
	if err != nil {
		return nil, err
	}
	items, err := r.queryAll(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	return decodeClaims(items)
}

// UpdateClaim replaces an existing claim and queues events with it.
func (r *Repo) UpdateClaim(ctx context.Context, c *models.Claim, events ...models.OutboxEvent) error {
	item, err := claimItem(c)
	if err != nil {
		return err
	}
	p, err := r.put(item, exists())
	if err != nil {
		return err
	}
	t := &txn{}
	t.add(types.TransactWriteItem{Put: p}, apperr.NotFound("claim not found"))
	if err := r.addEvents(t, events); err != nil {
		return err
	}
	return r.commit(ctx, t)
}

// DeleteClaim removes a claim. The contract keeps its reference.
func (r *Repo) DeleteClaim(ctx context.Context, id string) error {
	return r.deleteItem(ctx, claimKey(id), apperr.NotFound("claim not found"))
}
