package dynamodb

import (
	"context"
	"errors"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"flock-backend/internal/domain/prayer"
	"flock-backend/internal/domain/shared"
	"flock-backend/internal/domain/topic"
	apperrors "flock-backend/internal/errors"
	"flock-backend/internal/repository"
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store implements repository.Store on one table.
type Store struct {
	client        API
	tableName     string
	transactional bool
	logger        *zap.Logger
}

var _ repository.Store = (*Store)(nil)

// NewStore creates a new Store. With transactional set, merge batches are
// committed in one TransactWriteItems call; otherwise op by op.
func NewStore(client API, tableName string, transactional bool, logger *zap.Logger) *Store {
	return &Store{
		client:        client,
		tableName:     tableName,
		transactional: transactional,
		logger:        logger,
	}
}

// ============================================================================
// PRAYERS
// ============================================================================

func (s *Store) SavePrayer(ctx context.Context, p *prayer.Prayer) error {
	item, err := marshalPrayer(p)
	if err != nil {
		return apperrors.NewInternal("failed to marshal prayer").WithCause(err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return classify("save prayer", err)
	}
	return nil
}

func (s *Store) GetPrayer(ctx context.Context, authorID, id string) (*prayer.Prayer, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(authorID, shared.EntityRef{Kind: shared.KindPrayer, ID: id}),
	})
	if err != nil {
		return nil, classifyRead("get prayer", err)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFound("prayer", id)
	}
	p, err := unmarshalPrayer(out.Item)
	if err != nil {
		return nil, apperrors.NewStorageReadError("decode prayer", err)
	}
	return p, nil
}

func (s *Store) ListPrayers(ctx context.Context, authorID string) ([]*prayer.Prayer, error) {
	items, err := s.queryPrefix(ctx, authorID, "PRAYER#")
	if err != nil {
		return nil, classifyRead("list prayers", err)
	}
	out := make([]*prayer.Prayer, 0, len(items))
	for _, item := range items {
		p, err := unmarshalPrayer(item)
		if err != nil {
			s.logger.Warn("Failed to parse prayer", zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeletePrayer(ctx context.Context, authorID, id string) error {
	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return apperrors.NewInternal("failed to build expression").WithCause(err)
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(authorID, shared.EntityRef{Kind: shared.KindPrayer, ID: id}),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if isConditionFailed(err) {
		return apperrors.NewNotFound("prayer", id)
	}
	if err != nil {
		return classify("delete prayer", err)
	}
	return nil
}

func (s *Store) SetPrayerVector(ctx context.Context, authorID, id string, v shared.Vector) error {
	cond := expression.AttributeExists(expression.Name("PK")).And(expression.Or(
		expression.AttributeNotExists(expression.Name("TopicRefs")),
		expression.Name("TopicRefs").Size().Equal(expression.Value(0)),
	))
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Set(expression.Name("Vector"), expression.Value([]float32(v)))).
		WithCondition(cond).
		Build()
	if err != nil {
		return apperrors.NewInternal("failed to build expression").WithCause(err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.tableName),
		Key:                                 itemKey(authorID, shared.EntityRef{Kind: shared.KindPrayer, ID: id}),
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return apperrors.NewNotFound("prayer", id)
		}
		return apperrors.NewConflict("prayer joined a topic before its vector was stored")
	}
	if err != nil {
		return classify("set prayer vector", err)
	}
	return nil
}

// ============================================================================
// TOPICS
// ============================================================================

func (s *Store) GetTopic(ctx context.Context, authorID, id string) (*topic.Topic, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       itemKey(authorID, shared.EntityRef{Kind: shared.KindTopic, ID: id}),
	})
	if err != nil {
		return nil, classifyRead("get topic", err)
	}
	if out.Item == nil {
		return nil, apperrors.NewNotFound("topic", id)
	}
	t, err := unmarshalTopic(out.Item)
	if err != nil {
		return nil, apperrors.NewStorageReadError("decode topic", err)
	}
	return t, nil
}

func (s *Store) ListTopics(ctx context.Context, authorID string) ([]*topic.Topic, error) {
	items, err := s.queryPrefix(ctx, authorID, "TOPIC#")
	if err != nil {
		return nil, classifyRead("list topics", err)
	}
	out := make([]*topic.Topic, 0, len(items))
	for _, item := range items {
		t, err := unmarshalTopic(item)
		if err != nil {
			s.logger.Warn("Failed to parse topic", zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// RemoveVector clears the Vector attribute. The item must exist.
func (s *Store) RemoveVector(ctx context.Context, authorID string, ref shared.EntityRef) error {
	if !ref.Kind.Valid() {
		return apperrors.NewInvalidArgument("invalid-kind", "unknown entity kind "+string(ref.Kind))
	}
	in, err := s.removeVectorInput(authorID, ref)
	if err != nil {
		return err
	}
	_, err = s.client.UpdateItem(ctx, in)
	if isConditionFailed(err) {
		return apperrors.NewNotFound(string(ref.Kind), ref.ID)
	}
	if err != nil {
		return classify("remove vector", err)
	}
	return nil
}

func (s *Store) removeVectorInput(authorID string, ref shared.EntityRef) (*dynamodb.UpdateItemInput, error) {
	expr, err := expression.NewBuilder().
		WithUpdate(expression.Remove(expression.Name("Vector"))).
		WithCondition(expression.AttributeExists(expression.Name("PK"))).
		Build()
	if err != nil {
		return nil, apperrors.NewInternal("failed to build expression").WithCause(err)
	}
	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       itemKey(authorID, ref),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, nil
}

func (s *Store) queryPrefix(ctx context.Context, authorID, prefix string) ([]map[string]types.AttributeValue, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(BuildUserPK(authorID))).
		And(expression.Key("SK").BeginsWith(prefix))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// ============================================================================
// ERRORS
// ============================================================================

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// classify maps a write failure to the error taxonomy.
func classify(op string, err error) error {
	if isConditionFailed(err) {
		return apperrors.NewConflict(op + ": condition check failed")
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		appErr := apperrors.NewStorageError(op, err)
		appErr.Details = map[string]interface{}{
			"awsCode": apiErr.ErrorCode(),
			"fault":   apiErr.ErrorFault().String(),
		}
		return appErr
	}
	return apperrors.NewStorageError(op, err)
}

func classifyRead(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		appErr := apperrors.NewStorageReadError(op, err)
		appErr.Details = map[string]interface{}{"awsCode": apiErr.ErrorCode()}
		return appErr
	}
	return apperrors.NewStorageReadError(op, err)
}
