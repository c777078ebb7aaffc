package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testpulse/internal/types"
)

// fakeDynamo serves Query pages in order and records every call.
type fakeDynamo struct {
	pages    []*dynamodb.QueryOutput
	queries  []*dynamodb.QueryInput
	getItem  map[string]ddbtypes.AttributeValue
	puts     []*dynamodb.PutItemInput
	deletes  []*dynamodb.DeleteItemInput
	queryErr error
	putErr   error
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	idx := len(f.queries) - 1
	if idx >= len(f.pages) {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.pages[idx], nil
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	return &dynamodb.DeleteItemOutput{}, nil
}

func mustItems(t *testing.T, v any) []map[string]ddbtypes.AttributeValue {
	t.Helper()
	items, err := attributevalue.MarshalList(v)
	require.NoError(t, err)
	out := make([]map[string]ddbtypes.AttributeValue, 0, len(items))
	for _, it := range items {
		out = append(out, it.(*ddbtypes.AttributeValueMemberM).Value)
	}
	return out
}

func TestExecutionRepository_QuerySuitePage_Cursor(t *testing.T) {
	next := Cursor{"executionId": stringValue("e2")}
	fake := &fakeDynamo{pages: []*dynamodb.QueryOutput{
		{
			Items:            mustItems(t, []types.Execution{{ExecutionID: "e1", TestCaseID: "tc1", Result: types.ResultFail}}),
			LastEvaluatedKey: next,
		},
		{
			Items: mustItems(t, []types.Execution{{ExecutionID: "e2", TestCaseID: "tc2", Result: types.ResultPass}}),
		},
	}}
	repo := NewExecutionRepository(fake, "TestExecutions", "SuiteExecutionIndex", "TestCaseTimeIndex")

	page, cursor, err := repo.QuerySuitePage(context.Background(), "suite-1", nil)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "e1", page[0].ExecutionID)
	assert.Equal(t, types.ResultFail, page[0].Result)
	require.NotNil(t, cursor)

	page, cursor, err = repo.QuerySuitePage(context.Background(), "suite-1", cursor)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Nil(t, cursor)

	assert.Equal(t, "SuiteExecutionIndex", *fake.queries[0].IndexName)
	assert.Nil(t, fake.queries[0].ExclusiveStartKey)
	assert.Equal(t, next, fake.queries[1].ExclusiveStartKey)
}

func TestExecutionRepository_RecentByTestCase_NewestFirst(t *testing.T) {
	fake := &fakeDynamo{}
	repo := NewExecutionRepository(fake, "TestExecutions", "SuiteExecutionIndex", "TestCaseTimeIndex")

	_, err := repo.RecentByTestCase(context.Background(), "tc-1", 3)
	require.NoError(t, err)

	q := fake.queries[0]
	assert.Equal(t, "TestCaseTimeIndex", *q.IndexName)
	assert.False(t, *q.ScanIndexForward)
	assert.EqualValues(t, 3, *q.Limit)
}

func TestExecutionRepository_QueryErrorWrapped(t *testing.T) {
	boom := errors.New("throttled")
	repo := NewExecutionRepository(&fakeDynamo{queryErr: boom}, "t", "s", "c")

	_, _, err := repo.QuerySuitePage(context.Background(), "suite-1", nil)
	assert.ErrorIs(t, err, boom)
}

func TestTemplateRepository_FindByEventTypeChannel(t *testing.T) {
	fake := &fakeDynamo{pages: []*dynamodb.QueryOutput{{
		Items: mustItems(t, []types.NotificationTemplate{{
			TemplateID: "tpl-1",
			EventType:  types.EventTestFailure,
			Channel:    types.ChannelEmail,
			Format:     types.FormatHTML,
			Body:       "<p>{{testName}}</p>",
		}}),
	}}}
	repo := NewTemplateRepository(fake, "NotificationTemplates", "EventTypeChannelIndex")

	tmpl, err := repo.FindByEventTypeChannel(context.Background(), types.EventTestFailure, types.ChannelEmail)
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, "tpl-1", tmpl.TemplateID)
	assert.EqualValues(t, 1, *fake.queries[0].Limit)

	tmpl, err = repo.FindByEventTypeChannel(context.Background(), types.EventTestFailure, types.ChannelSMS)
	require.NoError(t, err)
	assert.Nil(t, tmpl)
}

func TestTemplateRepository_CreateConflict(t *testing.T) {
	fake := &fakeDynamo{putErr: &ddbtypes.ConditionalCheckFailedException{}}
	repo := NewTemplateRepository(fake, "NotificationTemplates", "EventTypeChannelIndex")

	err := repo.Create(context.Background(), &types.NotificationTemplate{TemplateID: "tpl-1"})
	assert.ErrorIs(t, err, ErrTemplateExists)

	err = repo.Replace(context.Background(), &types.NotificationTemplate{TemplateID: "tpl-1"})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundTemplate, appErr.Code)
}

func TestHistoryRepository_RecordCompressesAndSetsTTL(t *testing.T) {
	fake := &fakeDynamo{}
	repo := NewHistoryRepository(fake, "NotificationHistory")
	sent := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := repo.Record(context.Background(), types.NotificationHistory{
		NotificationID: "n-1",
		UserID:         "u-1",
		EventType:      types.EventTestFailure,
		Channel:        types.ChannelEmail,
		Success:        true,
		Body:           CompressBody("Test login failed"),
		SentAt:         sent,
	})
	require.NoError(t, err)
	require.Len(t, fake.puts, 1)

	var stored types.NotificationHistory
	require.NoError(t, attributevalue.UnmarshalMap(fake.puts[0].Item, &stored))
	assert.Equal(t, sent.Add(types.HistoryRetention).Unix(), stored.TTL)

	body, err := DecompressBody(stored.Body)
	require.NoError(t, err)
	assert.Equal(t, "Test login failed", body)
}

func TestDecompressBody_Empty(t *testing.T) {
	body, err := DecompressBody(nil)
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.Nil(t, CompressBody(""))
}

func TestRecipientRepository_GetRecipient(t *testing.T) {
	item, err := attributevalue.MarshalMap(types.Recipient{UserID: "u-1", Email: "dev@example.com"})
	require.NoError(t, err)

	repo := NewRecipientRepository(&fakeDynamo{getItem: item}, "Users")
	rcpt, err := repo.GetRecipient(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", rcpt.Email)

	repo = NewRecipientRepository(&fakeDynamo{}, "Users")
	_, err = repo.GetRecipient(context.Background(), "missing")
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundRecipient, appErr.Code)
}

type fakeDescriber struct {
	status ddbtypes.TableStatus
	err    error
}

func (f fakeDescriber) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.DescribeTableOutput{Table: &ddbtypes.TableDescription{TableName: in.TableName, TableStatus: f.status}}, nil
}

func TestTableProbe(t *testing.T) {
	tests := []struct {
		name    string
		client  fakeDescriber
		wantErr bool
	}{
		{"active", fakeDescriber{status: ddbtypes.TableStatusActive}, false},
		{"updating", fakeDescriber{status: ddbtypes.TableStatusUpdating}, false},
		{"deleting", fakeDescriber{status: ddbtypes.TableStatusDeleting}, true},
		{"describe fails", fakeDescriber{err: errors.New("access denied")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewTableProbe(tt.client, "NotificationTemplates")
			assert.Equal(t, "dynamodb:NotificationTemplates", p.Name())
			err := p.Check(context.Background())
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}
