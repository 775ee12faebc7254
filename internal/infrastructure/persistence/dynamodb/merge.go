package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"flock-backend/internal/domain/shared"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/repository"
)

// maxTransactItems is the TransactWriteItems item limit.
const maxTransactItems = 100

// CommitMerge writes the batch. In transactional mode the whole batch
// succeeds or fails together. Otherwise ops are applied in order and the
// first failure stops the batch with earlier ops left in place.
func (s *Store) CommitMerge(ctx context.Context, batch *repository.MergeBatch) error {
	if batch.Len() == 0 {
		return nil
	}
	if s.transactional {
		return s.commitTransaction(ctx, batch)
	}
	return s.commitSequential(ctx, batch)
}

func (s *Store) commitSequential(ctx context.Context, batch *repository.MergeBatch) error {
	for i, op := range batch.Ops() {
		if err := s.applyOp(ctx, op); err != nil {
			s.logger.Warn("Merge batch stopped",
				zap.Int("op", i),
				zap.Stringer("failed", op),
				zap.Int("remaining", batch.Len()-i-1),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

func (s *Store) applyOp(ctx context.Context, op repository.Op) error {
	switch op.Type {
	case repository.OpCreateTopic, repository.OpUpdateTopic:
		in, err := s.topicPut(op)
		if err != nil {
			return err
		}
		in.ReturnValuesOnConditionCheckFailure = types.ReturnValuesOnConditionCheckFailureAllOld
		_, err = s.client.PutItem(ctx, in)
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return topicConditionError(op, len(ccf.Item) > 0)
		}
		if err != nil {
			return classify(op.String(), err)
		}
		return nil

	case repository.OpLinkPrayer:
		in, err := s.linkUpdate(op.AuthorID, op.Target.ID, op.TopicRefs, false)
		if err != nil {
			return err
		}
		_, err = s.client.UpdateItem(ctx, in)
		if isConditionFailed(err) {
			return apperrors.NewNotFound("prayer", op.Target.ID)
		}
		if err != nil {
			return classify(op.String(), err)
		}
		return nil

	case repository.OpRemoveVector:
		return s.RemoveVector(ctx, op.AuthorID, op.Target)

	default:
		return apperrors.NewInternal("unknown merge op " + string(op.Type))
	}
}

// topicConditionError explains a failed topic condition. exists reports
// whether the item was present when the condition was evaluated.
func topicConditionError(op repository.Op, exists bool) error {
	switch {
	case op.Type == repository.OpCreateTopic:
		return apperrors.NewConflict("topic " + op.Topic.ID + " already exists")
	case !exists:
		return apperrors.NewNotFound("topic", op.Topic.ID)
	default:
		return apperrors.NewConflict("topic " + op.Topic.ID + " was modified concurrently").
			WithCode(apperrors.CodeVersionConflict)
	}
}

func (s *Store) topicPut(op repository.Op) (*dynamodb.PutItemInput, error) {
	version := int64(1)
	cond := expression.AttributeNotExists(expression.Name("PK"))
	if op.Type == repository.OpUpdateTopic {
		version = op.ExpectedVersion + 1
		cond = expression.Name("Version").Equal(expression.Value(op.ExpectedVersion))
	}
	item, err := marshalTopic(op.Topic, version)
	if err != nil {
		return nil, apperrors.NewInternal("failed to marshal topic").WithCause(err)
	}
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return nil, apperrors.NewInternal("failed to build expression").WithCause(err)
	}
	return &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// linkUpdate sets a prayer's topic refs, optionally dropping its vector in
// the same write.
func (s *Store) linkUpdate(authorID, prayerID string, refs []shared.TopicRef, removeVector bool) (*dynamodb.UpdateItemInput, error) {
	update := expression.Set(expression.Name("TopicRefs"), expression.Value(refs))
	if removeVector {
		update = update.Remove(expression.Name("Vector"))
	}
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return nil, apperrors.NewInternal("failed to build expression").WithCause(err)
	}
	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(authorID, shared.EntityRef{Kind: shared.KindPrayer, ID: prayerID}),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

// txWrite is one item of a transaction. A transaction may touch each item
// only once, so ops on the same item are folded together.
type txWrite struct {
	ref          shared.EntityRef
	authorID     string
	topicOp      *repository.Op
	refs         []shared.TopicRef
	link         bool
	removeVector bool
}

func foldOps(ops []repository.Op) []*txWrite {
	index := make(map[string]*txWrite)
	var order []*txWrite
	get := func(authorID string, ref shared.EntityRef) *txWrite {
		key := authorID + "|" + ref.String()
		w, ok := index[key]
		if !ok {
			w = &txWrite{ref: ref, authorID: authorID}
			index[key] = w
			order = append(order, w)
		}
		return w
	}
	for i := range ops {
		op := ops[i]
		switch op.Type {
		case repository.OpCreateTopic, repository.OpUpdateTopic:
			w := get(op.AuthorID, shared.EntityRef{Kind: shared.KindTopic, ID: op.Topic.ID})
			w.topicOp = &op
		case repository.OpLinkPrayer:
			w := get(op.AuthorID, op.Target)
			w.refs = op.TopicRefs
			w.link = true
		case repository.OpRemoveVector:
			get(op.AuthorID, op.Target).removeVector = true
		}
	}
	return order
}

func (s *Store) buildTransactItem(w *txWrite) (types.TransactWriteItem, error) {
	switch {
	case w.topicOp != nil:
		op := *w.topicOp
		if w.removeVector {
			t := op.Topic.Clone()
			t.Vector = nil
			op.Topic = t
		}
		in, err := s.topicPut(op)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                           in.TableName,
			Item:                                in.Item,
			ConditionExpression:                 in.ConditionExpression,
			ExpressionAttributeNames:            in.ExpressionAttributeNames,
			ExpressionAttributeValues:           in.ExpressionAttributeValues,
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		}}, nil

	case w.link:
		in, err := s.linkUpdate(w.authorID, w.ref.ID, w.refs, w.removeVector)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Update: updateFromInput(in)}, nil

	default:
		in, err := s.removeVectorInput(w.authorID, w.ref)
		if err != nil {
			return types.TransactWriteItem{}, err
		}
		return types.TransactWriteItem{Update: updateFromInput(in)}, nil
	}
}

func updateFromInput(in *dynamodb.UpdateItemInput) *types.Update {
	return &types.Update{
		TableName:                 in.TableName,
		Key:                       in.Key,
		UpdateExpression:          in.UpdateExpression,
		ConditionExpression:       in.ConditionExpression,
		ExpressionAttributeNames:  in.ExpressionAttributeNames,
		ExpressionAttributeValues: in.ExpressionAttributeValues,
	}
}

func (s *Store) commitTransaction(ctx context.Context, batch *repository.MergeBatch) error {
	writes := foldOps(batch.Ops())
	if len(writes) > maxTransactItems {
		return apperrors.NewInternal(fmt.Sprintf("merge touches %d items, transaction limit is %d", len(writes), maxTransactItems))
	}

	items := make([]types.TransactWriteItem, 0, len(writes))
	for _, w := range writes {
		item, err := s.buildTransactItem(w)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: aws.String(shared.NewID()),
	})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for i, reason := range tce.CancellationReasons {
			if i >= len(writes) || aws.ToString(reason.Code) != "ConditionalCheckFailed" {
				continue
			}
			w := writes[i]
			if w.topicOp != nil {
				return topicConditionError(*w.topicOp, len(reason.Item) > 0)
			}
			return apperrors.NewNotFound(string(w.ref.Kind), w.ref.ID)
		}
	}
	return classify("commit merge", err)
}
