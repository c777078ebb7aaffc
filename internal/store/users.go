package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"testpulse/internal/types"
)

// RecipientRepository reads contact fields from the users table. User
// management itself lives in a separate service.
type RecipientRepository struct {
	client DynamoAPI
	table  string
}

func NewRecipientRepository(client DynamoAPI, table string) *RecipientRepository {
	return &RecipientRepository{client: client, table: table}
}

// GetRecipient returns the contact record for userID.
func (r *RecipientRepository) GetRecipient(ctx context.Context, userID string) (*types.Recipient, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(r.table),
		Key:                  map[string]ddbtypes.AttributeValue{"userId": stringValue(userID)},
		ProjectionExpression: aws.String("userId, email, phoneNumber"),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load recipient", err)
	}
	if len(out.Item) == 0 {
		return nil, types.NewAppError(types.ErrCodeNotFoundRecipient, "recipient not found", nil)
	}
	var rcpt types.Recipient
	if err := attributevalue.UnmarshalMap(out.Item, &rcpt); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode recipient", err)
	}
	return &rcpt, nil
}
