package orders

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo stores items per table in a nested map: table -> pkValue -> item map.
// It understands just enough expression syntax for DynamoStore:
// "#a = :a AND #b < :b" filters and "SET #a = :a, #b = :b" updates.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
	// pageSize > 0 makes Scan paginate.
	pageSize int
	scanErr  error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

var pkNames = []string{"order_id", "product_id", "log_id"}

func pkOf(item map[string]types.AttributeValue) (string, string, bool) {
	for _, name := range pkNames {
		if v, ok := item[name].(*types.AttributeValueMemberS); ok {
			return name, v.Value, true
		}
	}
	return "", "", false
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable(*params.TableName)
	_, pk, ok := pkOf(params.Key)
	if !ok {
		return nil, errors.New("no key attribute")
	}
	item, ok := m.tables[*params.TableName][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	_, pk, ok := pkOf(params.Item)
	if !ok {
		return nil, errors.New("no primary key in put item")
	}
	if params.ConditionExpression != nil && strings.HasPrefix(*params.ConditionExpression, "attribute_not_exists") {
		if _, exists := m.tables[table][pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.tables[table][pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	_, pk, ok := pkOf(params.Key)
	if !ok {
		return nil, errors.New("no key attribute")
	}
	item, exists := m.tables[table][pk]
	if !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	expr := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, assignment := range strings.Split(expr, ", ") {
		parts := strings.SplitN(assignment, " = ", 2)
		if len(parts) != 2 {
			return nil, errors.New("unsupported update expression")
		}
		item[params.ExpressionAttributeNames[parts[0]]] = params.ExpressionAttributeValues[parts[1]]
	}
	m.tables[table][pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	table := *params.TableName
	m.ensureTable(table)

	var matched []map[string]types.AttributeValue
	for _, item := range m.tables[table] {
		if params.FilterExpression == nil || matches(item, *params.FilterExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues) {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		_, a, _ := pkOf(matched[i])
		_, b, _ := pkOf(matched[j])
		return a < b
	})
	if m.pageSize <= 0 {
		return &dyn.ScanOutput{Items: matched}, nil
	}

	start := 0
	if params.ExclusiveStartKey != nil {
		start, _ = strconv.Atoi(params.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN).Value)
	}
	end := start + m.pageSize
	out := &dyn.ScanOutput{}
	if end < len(matched) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)},
		}
	} else {
		end = len(matched)
	}
	out.Items = matched[start:end]
	return out, nil
}

func matches(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	for _, cond := range strings.Split(expr, " AND ") {
		fields := strings.Fields(cond)
		if len(fields) != 3 {
			return false
		}
		got := item[names[fields[0]]]
		want := values[fields[2]]
		switch fields[1] {
		case "=":
			if !equalAV(got, want) {
				return false
			}
		case "<":
			g, ok1 := got.(*types.AttributeValueMemberS)
			w, ok2 := want.(*types.AttributeValueMemberS)
			if !ok1 || !ok2 || !(g.Value < w.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func equalAV(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}
