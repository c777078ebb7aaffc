// Package store provides DynamoDB-backed repositories for executions,
// templates, notification history and recipient contacts. Every repository
// accepts the narrow DynamoAPI interface so tests can substitute a fake.
package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client the repositories use.
type DynamoAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// Cursor is an opaque pagination position (a LastEvaluatedKey). Nil means
// start from the beginning, or no further pages when returned.
type Cursor = map[string]ddbtypes.AttributeValue

func stringValue(s string) ddbtypes.AttributeValue {
	return &ddbtypes.AttributeValueMemberS{Value: s}
}

// TableDescriber is the subset of *dynamodb.Client used by TableProbe.
type TableDescriber interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// TableProbe reports a table healthy while it is ACTIVE or UPDATING.
type TableProbe struct {
	client TableDescriber
	table  string
}

func NewTableProbe(client TableDescriber, table string) *TableProbe {
	return &TableProbe{client: client, table: table}
}

func (p *TableProbe) Name() string { return "dynamodb:" + p.table }

func (p *TableProbe) Check(ctx context.Context) error {
	out, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &p.table})
	if err != nil {
		return fmt.Errorf("describe table %s: %w", p.table, err)
	}
	if out.Table == nil {
		return fmt.Errorf("table %s: empty description", p.table)
	}
	switch out.Table.TableStatus {
	case ddbtypes.TableStatusActive, ddbtypes.TableStatusUpdating:
		return nil
	default:
		return fmt.Errorf("table %s is %s", p.table, out.Table.TableStatus)
	}
}
