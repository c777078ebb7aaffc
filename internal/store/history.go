package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/klauspost/compress/zstd"

	"testpulse/internal/types"
)

const (
	historyUserIndex      = "UserIndex"
	historyEventTypeIndex = "EventTypeIndex"
)

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	bodyEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	bodyDecoder, _ = zstd.NewReader(nil)
)

// CompressBody zstd-compresses a rendered message for storage.
func CompressBody(body string) []byte {
	if body == "" {
		return nil
	}
	return bodyEncoder.EncodeAll([]byte(body), nil)
}

// DecompressBody reverses CompressBody.
func DecompressBody(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	out, err := bodyDecoder.DecodeAll(data, nil)
	if err != nil {
		return "", fmt.Errorf("decompressing history body: %w", err)
	}
	return string(out), nil
}

// HistoryRepository appends delivery records. Items expire through the
// table's TTL attribute.
type HistoryRepository struct {
	client DynamoAPI
	table  string
}

func NewHistoryRepository(client DynamoAPI, table string) *HistoryRepository {
	return &HistoryRepository{client: client, table: table}
}

// Record writes one history item. The TTL is derived from SentAt when unset.
func (r *HistoryRepository) Record(ctx context.Context, h types.NotificationHistory) error {
	if h.TTL == 0 {
		h.TTL = types.HistoryExpiry(h.SentAt)
	}
	item, err := attributevalue.MarshalMap(h)
	if err != nil {
		return fmt.Errorf("encoding history record: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write notification history", err)
	}
	return nil
}

// ListByUser returns the most recent records for a user.
func (r *HistoryRepository) ListByUser(ctx context.Context, userID string, limit int) ([]types.NotificationHistory, error) {
	return r.list(ctx, historyUserIndex, "userId", userID, limit)
}

// ListByEventType returns the most recent records of one event type.
func (r *HistoryRepository) ListByEventType(ctx context.Context, eventType types.EventType, limit int) ([]types.NotificationHistory, error) {
	return r.list(ctx, historyEventTypeIndex, "eventType", string(eventType), limit)
}

func (r *HistoryRepository) list(ctx context.Context, index, attr, value string, limit int) ([]types.NotificationHistory, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                aws.String(r.table),
		IndexName:                aws.String(index),
		KeyConditionExpression:   aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{"#k": attr},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":v": stringValue(value),
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query notification history", err)
	}
	var records []types.NotificationHistory
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
		return nil, fmt.Errorf("decoding history records: %w", err)
	}
	return records, nil
}
