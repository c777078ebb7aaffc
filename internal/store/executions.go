package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"testpulse/internal/types"
)

// ExecutionRepository reads test executions through the two secondary
// indexes failure detection depends on.
type ExecutionRepository struct {
	client        DynamoAPI
	table         string
	suiteIndex    string
	testCaseIndex string
}

func NewExecutionRepository(client DynamoAPI, table, suiteIndex, testCaseIndex string) *ExecutionRepository {
	return &ExecutionRepository{
		client:        client,
		table:         table,
		suiteIndex:    suiteIndex,
		testCaseIndex: testCaseIndex,
	}
}

// QuerySuitePage returns one page of executions belonging to a suite run,
// plus the cursor for the next page (nil once exhausted).
func (r *ExecutionRepository) QuerySuitePage(ctx context.Context, suiteExecutionID string, cursor Cursor) ([]types.Execution, Cursor, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(r.suiteIndex),
		KeyConditionExpression: aws.String("suiteExecutionId = :sid"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":sid": stringValue(suiteExecutionID),
		},
		ExclusiveStartKey: cursor,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("querying %s for suite execution %s: %w", r.suiteIndex, suiteExecutionID, err)
	}

	var execs []types.Execution
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &execs); err != nil {
		return nil, nil, fmt.Errorf("decoding suite executions: %w", err)
	}
	if len(out.LastEvaluatedKey) == 0 {
		return execs, nil, nil
	}
	return execs, out.LastEvaluatedKey, nil
}

// RecentByTestCase returns up to limit executions of a test case, newest first.
func (r *ExecutionRepository) RecentByTestCase(ctx context.Context, testCaseID string, limit int) ([]types.Execution, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(r.testCaseIndex),
		KeyConditionExpression: aws.String("testCaseId = :tid"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":tid": stringValue(testCaseID),
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s for test case %s: %w", r.testCaseIndex, testCaseID, err)
	}

	var execs []types.Execution
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &execs); err != nil {
		return nil, fmt.Errorf("decoding test case executions: %w", err)
	}
	return execs, nil
}
