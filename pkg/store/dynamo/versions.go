package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wardenhq/warden/pkg/policy"
	"github.com/wardenhq/warden/pkg/store"
)

// VersionBackend implements policy.VersionBackend on a DynamoDB table.
//
// A policy's history is one partition, sorted by version number. The active
// row carries a sparse active_tenant attribute; the GSI over it answers
// tenant-wide active policy queries without touching history.
type VersionBackend struct {
	client      API
	table       string
	activeIndex string
}

// NewVersionBackend creates a version backend on the given table and GSI.
func NewVersionBackend(client API, table, activeIndex string) *VersionBackend {
	return &VersionBackend{client: client, table: table, activeIndex: activeIndex}
}

type versionRecord struct {
	PK           string            `dynamodbav:"pk"`
	SK           int               `dynamodbav:"sk"`
	Tenant       string            `dynamodbav:"tenant"`
	ID           string            `dynamodbav:"id"`
	Version      int               `dynamodbav:"version"`
	Name         string            `dynamodbav:"name"`
	Definition   string            `dynamodbav:"definition"`
	Language     string            `dynamodbav:"language"`
	Description  string            `dynamodbav:"description"`
	Metadata     map[string]string `dynamodbav:"metadata,omitempty"`
	Active       bool              `dynamodbav:"active"`
	ActiveTenant string            `dynamodbav:"active_tenant,omitempty"`
	CreatedAt    time.Time         `dynamodbav:"created_at"`
}

func versionPartition(tenant, id string) string {
	return "TENANT#" + tenant + "#POLICY#" + id
}

func versionKey(tenant, id string, version int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: versionPartition(tenant, id)},
		"sk": &types.AttributeValueMemberN{Value: strconv.Itoa(version)},
	}
}

func versionItem(v policy.Version) (map[string]types.AttributeValue, error) {
	rec := versionRecord{
		PK:          versionPartition(v.Tenant, v.ID),
		SK:          v.Version,
		Tenant:      v.Tenant,
		ID:          v.ID,
		Version:     v.Version,
		Name:        v.Name,
		Definition:  v.Definition,
		Language:    v.Language,
		Description: v.Description,
		Metadata:    v.Metadata,
		Active:      v.Active,
		CreatedAt:   v.CreatedAt,
	}
	if v.Active {
		rec.ActiveTenant = v.Tenant
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal version: %w", err)
	}
	return item, nil
}

func versionFromItem(item map[string]types.AttributeValue) (*policy.Version, error) {
	var rec versionRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal version: %w", err)
	}
	return &policy.Version{
		Tenant:      rec.Tenant,
		ID:          rec.ID,
		Version:     rec.Version,
		Name:        rec.Name,
		Definition:  rec.Definition,
		Language:    rec.Language,
		Description: rec.Description,
		Metadata:    rec.Metadata,
		Active:      rec.Active,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// Append writes v conditionally on its version number being unused. When
// priorActive > 0 the prior row is flipped inactive in the same transaction,
// conditional on it still being active. Either failed condition surfaces as
// store.ErrConflict with no partial write.
func (b *VersionBackend) Append(ctx context.Context, v policy.Version, priorActive int) error {
	item, err := versionItem(v)
	if err != nil {
		return err
	}

	if priorActive <= 0 {
		_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(b.table),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		})
		if err != nil {
			if conditionFailed(err) {
				return store.ErrConflict
			}
			return fmt.Errorf("failed to append version: %w", err)
		}
		return nil
	}

	_, err = b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(b.table),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			}},
			{Update: &types.Update{
				TableName:           aws.String(b.table),
				Key:                 versionKey(v.Tenant, v.ID, priorActive),
				UpdateExpression:    aws.String("SET active = :false REMOVE active_tenant"),
				ConditionExpression: aws.String("active = :true"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":false": &types.AttributeValueMemberBOOL{Value: false},
					":true":  &types.AttributeValueMemberBOOL{Value: true},
				},
			}},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to append version: %w", err)
	}
	return nil
}

// Get fetches one version row.
func (b *VersionBackend) Get(ctx context.Context, tenant, id string, version int) (*policy.Version, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.table),
		Key:       versionKey(tenant, id, version),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, store.ErrNotFound
	}
	return versionFromItem(out.Item)
}

// List returns the full history in ascending version order.
func (b *VersionBackend) List(ctx context.Context, tenant, id string) ([]policy.Version, error) {
	var versions []policy.Version
	var startKey map[string]types.AttributeValue

	for {
		out, err := b.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(b.table),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: versionPartition(tenant, id)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list versions: %w", err)
		}
		for _, item := range out.Items {
			v, err := versionFromItem(item)
			if err != nil {
				return nil, err
			}
			versions = append(versions, *v)
		}
		if out.LastEvaluatedKey == nil {
			return versions, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// Active returns the currently active version, or store.ErrNotFound.
func (b *VersionBackend) Active(ctx context.Context, tenant, id string) (*policy.Version, error) {
	var startKey map[string]types.AttributeValue

	// Filtered partition query; history partitions stay small enough that
	// this never fans out far.
	for {
		out, err := b.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(b.table),
			KeyConditionExpression: aws.String("pk = :pk"),
			FilterExpression:       aws.String("active = :true"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":   &types.AttributeValueMemberS{Value: versionPartition(tenant, id)},
				":true": &types.AttributeValueMemberBOOL{Value: true},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query active version: %w", err)
		}
		if len(out.Items) > 0 {
			return versionFromItem(out.Items[0])
		}
		if out.LastEvaluatedKey == nil {
			return nil, store.ErrNotFound
		}
		startKey = out.LastEvaluatedKey
	}
}

// Deactivate flips the version inactive, conditional on it still being
// active.
func (b *VersionBackend) Deactivate(ctx context.Context, tenant, id string, version int) error {
	_, err := b.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(b.table),
		Key:                 versionKey(tenant, id, version),
		UpdateExpression:    aws.String("SET active = :false REMOVE active_tenant"),
		ConditionExpression: aws.String("active = :true"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":false": &types.AttributeValueMemberBOOL{Value: false},
			":true":  &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		if conditionFailed(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to deactivate version: %w", err)
	}
	return nil
}

// ActiveForTenant queries the sparse GSI for every active version in the
// tenant.
func (b *VersionBackend) ActiveForTenant(ctx context.Context, tenant string) ([]policy.Version, error) {
	var versions []policy.Version
	var startKey map[string]types.AttributeValue

	for {
		out, err := b.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(b.table),
			IndexName:              aws.String(b.activeIndex),
			KeyConditionExpression: aws.String("active_tenant = :tenant"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":tenant": &types.AttributeValueMemberS{Value: tenant},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query active versions: %w", err)
		}
		for _, item := range out.Items {
			v, err := versionFromItem(item)
			if err != nil {
				return nil, err
			}
			versions = append(versions, *v)
		}
		if out.LastEvaluatedKey == nil {
			return versions, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
