package dynamo

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wardenhq/warden/pkg/store"
)

// EntityBackend implements store.EntityBackend on a DynamoDB table.
type EntityBackend struct {
	client API
	table  string
}

// NewEntityBackend creates an entity backend on the given table.
func NewEntityBackend(client API, table string) *EntityBackend {
	return &EntityBackend{client: client, table: table}
}

type entityRecord struct {
	PK          string    `dynamodbav:"pk"`
	SK          string    `dynamodbav:"sk"`
	Tenant      string    `dynamodbav:"tenant"`
	Kind        string    `dynamodbav:"kind"`
	Name        string    `dynamodbav:"name"`
	Description string    `dynamodbav:"description"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

func entityPartition(tenant string, kind store.EntityKind) string {
	return "TENANT#" + tenant + "#KIND#" + string(kind)
}

func entityItem(e store.Entity) (map[string]types.AttributeValue, error) {
	rec := entityRecord{
		PK:          entityPartition(e.Tenant, e.Kind),
		SK:          e.Name,
		Tenant:      e.Tenant,
		Kind:        string(e.Kind),
		Name:        e.Name,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	return item, nil
}

func entityFromItem(item map[string]types.AttributeValue) (*store.Entity, error) {
	var rec entityRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	return &store.Entity{
		Tenant:      rec.Tenant,
		Kind:        store.EntityKind(rec.Kind),
		Name:        rec.Name,
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func entityKey(tenant string, kind store.EntityKind, name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: entityPartition(tenant, kind)},
		"sk": &types.AttributeValueMemberS{Value: name},
	}
}

// Insert writes e conditionally on the key being absent.
func (b *EntityBackend) Insert(ctx context.Context, e store.Entity) error {
	item, err := entityItem(e)
	if err != nil {
		return err
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(b.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		if conditionFailed(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert entity: %w", err)
	}
	return nil
}

// Get fetches one entity by key.
func (b *EntityBackend) Get(ctx context.Context, tenant string, kind store.EntityKind, name string) (*store.Entity, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key:       entityKey(tenant, kind, name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, store.ErrNotFound
	}
	return entityFromItem(out.Item)
}

// List queries one partition page by page. The continuation token encodes
// the last returned name.
func (b *EntityBackend) List(ctx context.Context, tenant string, kind store.EntityKind, opts store.ListOptions) (*store.EntityPage, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(b.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: entityPartition(tenant, kind)},
		},
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(int32(opts.Limit))
	}
	if opts.Token != "" {
		name, err := decodeToken(opts.Token)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = entityKey(tenant, kind, name)
	}

	out, err := b.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	page := &store.EntityPage{Items: make([]store.Entity, 0, len(out.Items))}
	for _, item := range out.Items {
		e, err := entityFromItem(item)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *e)
	}
	if out.LastEvaluatedKey != nil {
		if sk, ok := out.LastEvaluatedKey["sk"].(*types.AttributeValueMemberS); ok {
			page.NextToken = encodeToken(sk.Value)
		}
	}
	return page, nil
}

// Update overwrites e conditionally on the key being present.
func (b *EntityBackend) Update(ctx context.Context, e store.Entity) error {
	item, err := entityItem(e)
	if err != nil {
		return err
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(b.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		if conditionFailed(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to update entity: %w", err)
	}
	return nil
}

// Delete removes the key conditionally on it being present.
func (b *EntityBackend) Delete(ctx context.Context, tenant string, kind store.EntityKind, name string) error {
	_, err := b.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(b.table),
		Key:                 entityKey(tenant, kind, name),
		ConditionExpression: aws.String("attribute_exists(pk)"),
	})
	if err != nil {
		if conditionFailed(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	return nil
}

func encodeToken(name string) string {
	return base64.URLEncoding.EncodeToString([]byte(name))
}

func decodeToken(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("invalid continuation token: %w", err)
	}
	return string(raw), nil
}
