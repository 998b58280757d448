package repository

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
)

// DynamoDBAPI is the part of the DynamoDB client the mirror calls, so tests
// can supply an in-memory table.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error)
	Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error)
}

// DynamoMirror keeps orders in a table keyed by order_id with a global
// secondary index on user_id.
type DynamoMirror struct {
	client      DynamoDBAPI
	table       string
	userIDIndex string
}

func NewDynamoMirror(ctx context.Context, cfg *config.DynamoDBConfig) (*DynamoMirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	client := dyn.NewFromConfig(awsCfg, func(o *dyn.Options) {
		if endpoint != "" {
			o.BaseEndpoint = sdkaws.String(endpoint)
		}
	})
	return NewDynamoMirrorWith(client, cfg.Table, cfg.UserIDIndex), nil
}

func NewDynamoMirrorWith(client DynamoDBAPI, table, userIDIndex string) *DynamoMirror {
	return &DynamoMirror{client: client, table: table, userIDIndex: userIDIndex}
}

// CreateOrder puts the order unless one with the same id already exists.
func (d *DynamoMirror) CreateOrder(ctx context.Context, order models.Order) error {
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &d.table,
		Item:                item,
		ConditionExpression: sdkaws.String("attribute_not_exists(order_id)"),
	})
	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("put order %s: %w", order.ID, err)
	}
	return nil
}

func (d *DynamoMirror) GetOrders(ctx context.Context, userID string) ([]models.Order, error) {
	input := &dyn.QueryInput{
		TableName:              &d.table,
		IndexName:              &d.userIDIndex,
		KeyConditionExpression: sdkaws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	}

	orders := []models.Order{}
	paginator := dyn.NewQueryPaginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		var batch []models.Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		orders = append(orders, batch...)
	}
	return orders, nil
}

func (d *DynamoMirror) Close(context.Context) error { return nil }
