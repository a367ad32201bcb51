package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jorat/landing/internal/models"
	"github.com/sirupsen/logrus"
)

// DynamoDBAPI is the subset of the DynamoDB client used by LeadRepository.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// LeadRepository records verified mobile numbers in a DynamoDB table.
type LeadRepository struct {
	client    DynamoDBAPI
	tableName string
	logger    *logrus.Logger
}

func NewLeadRepository(client DynamoDBAPI, tableName string, logger *logrus.Logger) *LeadRepository {
	return &LeadRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// RecordVerification upserts the lead for mobile, keeping the first
// verification time and bumping the counter.
func (r *LeadRepository) RecordVerification(ctx context.Context, mobile string, at time.Time) (*models.Lead, error) {
	lead := &models.Lead{Mobile: mobile}
	now := at.UTC().Format(time.RFC3339)

	result, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lead.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: lead.GetSK()},
		},
		UpdateExpression: aws.String("SET mobile = :mobile, first_verified = if_not_exists(first_verified, :now), last_verified = :now ADD verifications :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":mobile": &types.AttributeValueMemberS{Value: mobile},
			":now":    &types.AttributeValueMemberS{Value: now},
			":one":    &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to record lead in DynamoDB")
		return nil, fmt.Errorf("failed to record lead: %w", err)
	}

	if err := attributevalue.UnmarshalMap(result.Attributes, lead); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead: %w", err)
	}

	return lead, nil
}

// GetByMobile returns the lead for mobile, or nil when it was never verified.
func (r *LeadRepository) GetByMobile(ctx context.Context, mobile string) (*models.Lead, error) {
	lead := &models.Lead{Mobile: mobile}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lead.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: lead.GetSK()},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get lead from DynamoDB")
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	if err := attributevalue.UnmarshalMap(result.Item, lead); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lead: %w", err)
	}

	return lead, nil
}
