package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wardenhq/warden/pkg/assignments"
)

// EdgeBackend implements assignments.EdgeBackend on a DynamoDB table.
//
// Each edge pair occupies two items: the forward record under the parent's
// partition and the inverse record under the child's. Writes go through
// TransactWriteItems so both sides commit or neither does.
type EdgeBackend struct {
	client API
	table  string
}

// NewEdgeBackend creates an edge backend on the given table.
func NewEdgeBackend(client API, table string) *EdgeBackend {
	return &EdgeBackend{client: client, table: table}
}

func forwardPartition(tenant string, kind assignments.Kind, parent string) string {
	return "TENANT#" + tenant + "#EDGE#" + string(kind) + "#P#" + parent
}

func inversePartition(tenant string, kind assignments.Kind, child string) string {
	return "TENANT#" + tenant + "#EDGE#" + string(kind) + "#C#" + child
}

func edgeItems(e assignments.Edge) (forward, inverse map[string]types.AttributeValue) {
	forward = map[string]types.AttributeValue{
		"pk":     &types.AttributeValueMemberS{Value: forwardPartition(e.Tenant, e.Kind, e.Parent)},
		"sk":     &types.AttributeValueMemberS{Value: e.Child},
		"tenant": &types.AttributeValueMemberS{Value: e.Tenant},
		"kind":   &types.AttributeValueMemberS{Value: string(e.Kind)},
		"parent": &types.AttributeValueMemberS{Value: e.Parent},
		"child":  &types.AttributeValueMemberS{Value: e.Child},
	}
	inverse = map[string]types.AttributeValue{
		"pk":     &types.AttributeValueMemberS{Value: inversePartition(e.Tenant, e.Kind, e.Child)},
		"sk":     &types.AttributeValueMemberS{Value: e.Parent},
		"tenant": &types.AttributeValueMemberS{Value: e.Tenant},
		"kind":   &types.AttributeValueMemberS{Value: string(e.Kind)},
		"parent": &types.AttributeValueMemberS{Value: e.Parent},
		"child":  &types.AttributeValueMemberS{Value: e.Child},
	}
	return forward, inverse
}

// PutPair writes the forward and inverse records in one transaction.
// Overwriting an existing pair is a no-op, so re-assignment is idempotent.
func (b *EdgeBackend) PutPair(ctx context.Context, e assignments.Edge) error {
	forward, inverse := edgeItems(e)

	_, err := b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{TableName: aws.String(b.table), Item: forward}},
			{Put: &types.Put{TableName: aws.String(b.table), Item: inverse}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put edge pair: %w", err)
	}
	return nil
}

// DeletePair removes the forward and inverse records in one transaction.
// Deleting an absent pair is a no-op.
func (b *EdgeBackend) DeletePair(ctx context.Context, e assignments.Edge) error {
	_, err := b.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName: aws.String(b.table),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: forwardPartition(e.Tenant, e.Kind, e.Parent)},
					"sk": &types.AttributeValueMemberS{Value: e.Child},
				},
			}},
			{Delete: &types.Delete{
				TableName: aws.String(b.table),
				Key: map[string]types.AttributeValue{
					"pk": &types.AttributeValueMemberS{Value: inversePartition(e.Tenant, e.Kind, e.Child)},
					"sk": &types.AttributeValueMemberS{Value: e.Parent},
				},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete edge pair: %w", err)
	}
	return nil
}

// Forward returns every child under parent's partition.
func (b *EdgeBackend) Forward(ctx context.Context, tenant string, kind assignments.Kind, parent string) ([]string, error) {
	return b.queryPartition(ctx, forwardPartition(tenant, kind, parent))
}

// Inverse returns every parent under child's partition.
func (b *EdgeBackend) Inverse(ctx context.Context, tenant string, kind assignments.Kind, child string) ([]string, error) {
	return b.queryPartition(ctx, inversePartition(tenant, kind, child))
}

func (b *EdgeBackend) queryPartition(ctx context.Context, pk string) ([]string, error) {
	var members []string
	var startKey map[string]types.AttributeValue

	for {
		out, err := b.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(b.table),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query edges: %w", err)
		}
		for _, item := range out.Items {
			if sk, ok := item["sk"].(*types.AttributeValueMemberS); ok {
				members = append(members, sk.Value)
			}
		}
		if out.LastEvaluatedKey == nil {
			return members, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
