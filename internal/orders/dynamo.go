package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/imrishuroy/orderflow-reconciler/internal/aws"
	"github.com/imrishuroy/orderflow-reconciler/internal/remote"
)

const serviceDynamo = "dynamodb"

// dynamoTimeLayout is fixed width, so lexical order of stored timestamps is time order.
// Fractional seconds in RFC3339Nano vary in width and do not sort.
const dynamoTimeLayout = "2006-01-02T15:04:05.000000000Z"

func dynamoTime(t time.Time) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(dynamoTimeLayout)}
}

// marshalOrder encodes o with its timestamps in dynamoTimeLayout.
func marshalOrder(o Order) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return nil, err
	}
	item["date_created"] = dynamoTime(o.DateCreated)
	if o.DateDelivered != nil {
		item["date_delivered"] = dynamoTime(*o.DateDelivered)
	}
	return item, nil
}

// DynamoTables names the three tables backing a DynamoStore.
type DynamoTables struct {
	Orders          string
	Products        string
	TransactionLogs string
}

// DynamoStore implements Store on DynamoDB tables keyed by order_id, product_id and log_id.
type DynamoStore struct {
	client  aws.DynamoDBAPI
	tables  DynamoTables
	nowFunc func() time.Time
	newID   func() string
}

// NewDynamoStore creates a new DynamoDB-backed Store.
func NewDynamoStore(client aws.DynamoDBAPI, tables DynamoTables) *DynamoStore {
	return &DynamoStore{
		client:  client,
		tables:  tables,
		nowFunc: time.Now,
		newID:   uuid.NewString,
	}
}

// List scans the orders table with a filter expression built from f.
// date_created is stored in dynamoTimeLayout, so "<" compares chronologically.
func (s *DynamoStore) List(ctx context.Context, f Filter) ([]Order, error) {
	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	if f.Status != nil {
		conds = append(conds, "#s = :s")
		names["#s"] = "status"
		values[":s"] = &types.AttributeValueMemberS{Value: string(*f.Status)}
	}
	if f.TransactionStatus != nil {
		conds = append(conds, "#ts = :ts")
		names["#ts"] = "transaction_status"
		values[":ts"] = &types.AttributeValueMemberS{Value: string(*f.TransactionStatus)}
	}
	if f.ProductIsDelivered != nil {
		conds = append(conds, "#pd = :pd")
		names["#pd"] = "product_is_delivered"
		values[":pd"] = &types.AttributeValueMemberBOOL{Value: *f.ProductIsDelivered}
	}
	if f.CreatedBefore != nil {
		conds = append(conds, "#dc < :dc")
		names["#dc"] = "date_created"
		values[":dc"] = dynamoTime(*f.CreatedBefore)
	}

	input := &dyn.ScanInput{TableName: &s.tables.Orders}
	if len(conds) > 0 {
		input.FilterExpression = awsString(strings.Join(conds, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var result []Order
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, dynamoError("list_orders", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, remote.DataError(serviceDynamo, "list_orders", "unmarshal orders", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return result, nil
}

// GetProduct fetches a product by product_id.
func (s *DynamoStore) GetProduct(ctx context.Context, productID string) (*Product, error) {
	const op = "get_product"
	if productID == "" {
		return nil, remote.DataError(serviceDynamo, op, "order has no linked product", remote.ErrNotFound)
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tables.Products,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		return nil, dynamoError(op, err)
	}
	if len(out.Item) == 0 {
		return nil, remote.DataError(serviceDynamo, op, "product "+productID, remote.ErrNotFound)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, remote.DataError(serviceDynamo, op, "unmarshal product", err)
	}
	return &p, nil
}

// UpdateOrder SETs the patched attributes and returns the stored order.
// The only condition is that the order exists; concurrent writers are not detected.
func (s *DynamoStore) UpdateOrder(ctx context.Context, orderID string, p Patch) (*Order, error) {
	const op = "update_order"
	if p.Empty() {
		return nil, remote.DataError(serviceDynamo, op, "empty patch", nil)
	}

	var sets []string
	names := map[string]string{"#pk": "order_id"}
	values := map[string]types.AttributeValue{}
	add := func(placeholder, attr string, v types.AttributeValue) {
		sets = append(sets, fmt.Sprintf("#%s = :%s", placeholder, placeholder))
		names["#"+placeholder] = attr
		values[":"+placeholder] = v
	}
	if p.Status != nil {
		add("s", "status", &types.AttributeValueMemberS{Value: string(*p.Status)})
	}
	if p.TransactionStatus != nil {
		add("ts", "transaction_status", &types.AttributeValueMemberS{Value: string(*p.TransactionStatus)})
	}
	if p.ProductIsDelivered != nil {
		add("pd", "product_is_delivered", &types.AttributeValueMemberBOOL{Value: *p.ProductIsDelivered})
	}
	if p.DateDelivered != nil {
		add("dd", "date_delivered", dynamoTime(*p.DateDelivered))
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tables.Orders,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       awsString("attribute_exists(#pk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return nil, remote.DataError(serviceDynamo, op, "order "+orderID, remote.ErrNotFound)
		}
		return nil, dynamoError(op, err)
	}

	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, remote.DataError(serviceDynamo, op, "unmarshal order", err)
	}
	return &o, nil
}

// CreateTransactionLog puts a new log item with a generated log_id.
func (s *DynamoStore) CreateTransactionLog(ctx context.Context, entry TransactionLog) error {
	if entry.LogID == "" {
		entry.LogID = s.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.nowFunc().UTC()
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return remote.DataError(serviceDynamo, "create_transaction_log", "marshal log", err)
	}
	item["created_at"] = dynamoTime(entry.CreatedAt)
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tables.TransactionLogs,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(log_id)"),
	})
	if err != nil {
		return dynamoError("create_transaction_log", err)
	}
	return nil
}

// dynamoError maps SDK errors onto the remote taxonomy: service-side API errors are Remote,
// everything else (network, credentials, cancellation) is Transport.
func dynamoError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		status := 0
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			status = respErr.HTTPStatusCode()
		}
		e := remote.RemoteError(serviceDynamo, op, status, apiErr.ErrorCode()+": "+apiErr.ErrorMessage())
		e.Err = err
		return e
	}
	return remote.TransportError(serviceDynamo, op, err)
}

func awsString(s string) *string { return &s }
