package ddb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

func taskKey(id string) map[string]types.AttributeValue {
	return MakeKeys(pfxTask+id, skTask)
}

func taskItem(t *models.Task) (map[string]types.AttributeValue, error) {
	return marshalItem(t, map[string]string{
		attrPK:     pfxTask + t.ID,
		attrSK:     skTask,
		attrGSI1PK: pkTasks,
		attrGSI1SK: pfxTask + t.ID,
	})
}

func (r *Repo) putTask(ctx context.Context, t *models.Task, onFail error, mustExist bool) error {
	item, err := taskItem(t)
	if err != nil {
		return err
	}
	cond := notExists()
	if mustExist {
		cond = exists()
	}
	p, err := r.put(item, cond)
	if err != nil {
		return err
	}
	tx := &txn{}
	tx.add(types.TransactWriteItem{Put: p}, onFail)
	return r.commit(ctx, tx)
}

// CreateTask stores a new task.
func (r *Repo) CreateTask(ctx context.Context, t *models.Task) error {
	return r.putTask(ctx, t, apperr.Conflict("task already exists"), false)
}

// UpdateTask replaces an existing task.
func (r *Repo) UpdateTask(ctx context.Context, t *models.Task) error {
	return r.putTask(ctx, t, apperr.NotFound("task not found"), true)
}

// GetTask returns the task with id.
func (r *Repo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	item, err := r.getItem(ctx, taskKey(id))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("task not found")
	}
	var t models.Task
	if err := attributevalue.UnmarshalMap(item, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

// Tasks lists every task oldest first.
func (r *Repo) Tasks(ctx context.Context) ([]models.Task, error) {
	in, err := r.query(indexGSI1, beginsWith(attrGSI1PK, pkTasks, attrGSI1SK, pfxTask), true)
	if err != nil {
		return nil, err
	}
	items, err := r.queryAll(ctx, in, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.Task, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return out, nil
}

// DeleteTask removes a task.
func (r *Repo) DeleteTask(ctx context.Context, id string) error {
	return r.deleteItem(ctx, taskKey(id), apperr.NotFound("task not found"))
}
