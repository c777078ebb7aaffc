package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"testpulse/internal/types"
)

// ErrTemplateExists is returned by Create when the template ID is taken.
var ErrTemplateExists = errors.New("template already exists")

// TemplateRepository persists NotificationTemplates. Lookups by
// (eventType, channel) go through the EventTypeChannelIndex.
type TemplateRepository struct {
	client DynamoAPI
	table  string
	index  string
}

func NewTemplateRepository(client DynamoAPI, table, index string) *TemplateRepository {
	return &TemplateRepository{client: client, table: table, index: index}
}

// FindByEventTypeChannel returns the first template indexed under the pair,
// or nil when none exists.
func (r *TemplateRepository) FindByEventTypeChannel(ctx context.Context, eventType types.EventType, channel types.ChannelType) (*types.NotificationTemplate, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.table),
		IndexName:              aws.String(r.index),
		KeyConditionExpression: aws.String("eventType = :et AND #ch = :ch"),
		ExpressionAttributeNames: map[string]string{
			"#ch": "channel",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":et": stringValue(string(eventType)),
			":ch": stringValue(string(channel)),
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query templates", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}

	var tmpl types.NotificationTemplate
	if err := attributevalue.UnmarshalMap(out.Items[0], &tmpl); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode template", err)
	}
	return &tmpl, nil
}

// Get returns the template with the given ID, or nil when absent.
func (r *TemplateRepository) Get(ctx context.Context, templateID string) (*types.NotificationTemplate, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key:       map[string]ddbtypes.AttributeValue{"templateId": stringValue(templateID)},
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get template", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var tmpl types.NotificationTemplate
	if err := attributevalue.UnmarshalMap(out.Item, &tmpl); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode template", err)
	}
	return &tmpl, nil
}

// Create writes a new template and fails if the ID already exists.
func (r *TemplateRepository) Create(ctx context.Context, tmpl *types.NotificationTemplate) error {
	return r.put(ctx, tmpl, "attribute_not_exists(templateId)")
}

// Replace overwrites an existing template and fails if it was deleted meanwhile.
func (r *TemplateRepository) Replace(ctx context.Context, tmpl *types.NotificationTemplate) error {
	return r.put(ctx, tmpl, "attribute_exists(templateId)")
}

func (r *TemplateRepository) put(ctx context.Context, tmpl *types.NotificationTemplate, condition string) error {
	item, err := attributevalue.MarshalMap(tmpl)
	if err != nil {
		return fmt.Errorf("encoding template: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String(condition),
	})
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if condition == "attribute_exists(templateId)" {
				return types.NewAppError(types.ErrCodeNotFoundTemplate, "template not found", err)
			}
			return fmt.Errorf("template %s: %w", tmpl.TemplateID, ErrTemplateExists)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to write template", err)
	}
	return nil
}

// Delete removes the template. Deleting a missing template is not an error.
func (r *TemplateRepository) Delete(ctx context.Context, templateID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key:       map[string]ddbtypes.AttributeValue{"templateId": stringValue(templateID)},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete template", err)
	}
	return nil
}
