// ABOUTME: DynamoDB implementation of the Store interface using aws-sdk-go-v2
// ABOUTME: Conditional writes are UpdateItem calls guarded by a ConditionExpression

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Table schema
const (
	attrStoreID = "store_id" // partition key (S)
	attrKey     = "key"      // sort key (S)
	attrValue   = "value"    // B, absent on tombstones
	attrVersion = "version"  // N
	attrDeleted = "deleted"  // BOOL
	attrCreated = "created"  // S, RFC3339Nano
	attrUpdated = "updated"  // S, RFC3339Nano
)

// dynamoAPI is the subset of *dynamodb.Client the store uses
type dynamoAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoConfig selects the table and endpoint
type DynamoConfig struct {
	Table       string
	Region      string
	Endpoint    string // optional, e.g. DynamoDB Local
	CreateTable bool
}

// DynamoStore implements the Store interface on a DynamoDB table keyed by
// (store_id, key).
type DynamoStore struct {
	client dynamoAPI
	table  string
	logger *slog.Logger
}

// NewDynamoStore builds a client from the default AWS credential chain.
func NewDynamoStore(ctx context.Context, cfg DynamoConfig, logger *slog.Logger) (*DynamoStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	s := newDynamoStore(client, cfg.Table, logger)
	if cfg.CreateTable {
		if err := s.EnsureTable(ctx); err != nil {
			return nil, err
		}
	}

	s.logger.Info("DynamoDB store initialized", "table", cfg.Table, "region", awsCfg.Region)
	return s, nil
}

func newDynamoStore(client dynamoAPI, table string, logger *slog.Logger) *DynamoStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoStore{
		client: client,
		table:  table,
		logger: logger.With("component", "store", "backend", "dynamodb"),
	}
}

// EnsureTable creates the table if it does not exist and waits for it.
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var rnfe *ddbtypes.ResourceNotFoundException
	if !errors.As(err, &rnfe) {
		return unavailable(fmt.Sprintf("describing table %s", s.table), err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(s.table),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(attrStoreID), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrKey), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(attrStoreID), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(attrKey), KeyType: ddbtypes.KeyTypeRange},
		},
	})
	if err != nil {
		return unavailable(fmt.Sprintf("creating table %s", s.table), err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, 2*time.Minute); err != nil {
		return unavailable(fmt.Sprintf("waiting for table %s", s.table), err)
	}
	s.logger.Info("created table", "table", s.table)
	return nil
}

func (s *DynamoStore) primaryKey(storeID, key string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		attrStoreID: &ddbtypes.AttributeValueMemberS{Value: storeID},
		attrKey:     &ddbtypes.AttributeValueMemberS{Value: key},
	}
}

// updateInput builds the guarded UpdateItem for w
func (s *DynamoStore) updateInput(w Write) *dynamodb.UpdateItemInput {
	now := nowUTC().Format(time.RFC3339Nano)

	cond := "attribute_not_exists(#ver) OR #ver < :ver"
	if w.Version == SentinelVersion {
		cond = "attribute_not_exists(#ver) OR #ver <= :ver"
	}

	names := map[string]string{
		"#ver": attrVersion,
		"#del": attrDeleted,
		"#val": attrValue,
		"#cre": attrCreated,
		"#upd": attrUpdated,
	}
	values := map[string]ddbtypes.AttributeValue{
		":ver": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(w.Version, 10)},
		":del": &ddbtypes.AttributeValueMemberBOOL{Value: w.Delete},
		":now": &ddbtypes.AttributeValueMemberS{Value: now},
	}

	update := "SET #ver = :ver, #del = :del, #upd = :now, #cre = if_not_exists(#cre, :now)"
	if w.Delete {
		update += " REMOVE #val"
	} else {
		update += ", #val = :val"
		val := w.Value
		if val == nil {
			val = []byte{}
		}
		values[":val"] = &ddbtypes.AttributeValueMemberB{Value: val}
	}

	return &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.primaryKey(w.StoreID, w.Key),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
}

// ConditionalWrite applies w with a single conditional UpdateItem.
func (s *DynamoStore) ConditionalWrite(ctx context.Context, w Write) error {
	_, err := s.client.UpdateItem(ctx, s.updateInput(w))
	if err != nil {
		var ccf *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			s.logger.Debug("write rejected", "store_id", w.StoreID, "key", w.Key, "version", w.Version)
			return ErrVersionConflict
		}
		return unavailable("updating item", err)
	}
	return nil
}

// ApplyBatch applies writes one at a time. DynamoDB has no cheap multi-item
// conditional transaction at this size, so a failed batch may be partially
// applied; replaying it is safe because applied rows are then skipped.
func (s *DynamoStore) ApplyBatch(ctx context.Context, writes []Write) (BatchResult, error) {
	var res BatchResult
	for _, w := range writes {
		err := s.ConditionalWrite(ctx, w)
		switch {
		case err == nil:
			res.Applied++
		case errors.Is(err, ErrVersionConflict):
			res.Skipped++
		default:
			return res, err
		}
	}
	return res, nil
}

// GetItem reads one item with strong consistency.
func (s *DynamoStore) GetItem(ctx context.Context, storeID, key string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.primaryKey(storeID, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable("getting item", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	item, err := decodeDynamoItem(out.Item)
	if err != nil {
		return nil, unavailable("decoding item", err)
	}
	return item, nil
}

// ListKeyVersions queries the store partition. DynamoDB sorts string sort
// keys by UTF-8 bytes, matching the other backends.
func (s *DynamoStore) ListKeyVersions(ctx context.Context, params ListParams) (*KeyVersionPage, error) {
	after, err := DecodePageToken(params.PageToken)
	if err != nil {
		return nil, err
	}
	pageSize := normalizePageSize(params.PageSize)

	names := map[string]string{
		"#sid": attrStoreID,
		"#k":   attrKey,
		"#ver": attrVersion,
		"#del": attrDeleted,
	}
	values := map[string]ddbtypes.AttributeValue{
		":sid": &ddbtypes.AttributeValueMemberS{Value: params.StoreID},
	}
	keyCond := "#sid = :sid"
	if params.Prefix != "" {
		keyCond += " AND begins_with(#k, :prefix)"
		values[":prefix"] = &ddbtypes.AttributeValueMemberS{Value: params.Prefix}
	}

	input := &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String(keyCond),
		ProjectionExpression:     aws.String("#k, #ver, #del"),
		ExpressionAttributeNames: names,
		ConsistentRead:           aws.Bool(true),
		Limit:                    aws.Int32(int32(pageSize + 1)),
	}
	if !params.IncludeDeleted {
		input.FilterExpression = aws.String("attribute_not_exists(#del) OR #del = :false")
		values[":false"] = &ddbtypes.AttributeValueMemberBOOL{Value: false}
	}
	input.ExpressionAttributeValues = values

	// A start key outside the prefix range is rejected by DynamoDB
	if after != "" {
		switch {
		case strings.HasPrefix(after, params.Prefix):
			input.ExclusiveStartKey = s.primaryKey(params.StoreID, after)
		case after > params.Prefix:
			return &KeyVersionPage{KeyVersions: []KeyVersion{}}, nil
		}
	}

	// Limit applies before the filter, so keep querying until a full page
	// plus one extra row is collected or the partition is exhausted.
	var collected []KeyVersion
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, unavailable("querying keys", err)
		}
		for _, raw := range out.Items {
			item, err := decodeDynamoItem(raw)
			if err != nil {
				return nil, unavailable("decoding key version", err)
			}
			collected = append(collected, KeyVersion{Key: item.Key, Version: item.Version})
		}
		if len(collected) > pageSize || len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	page := &KeyVersionPage{KeyVersions: make([]KeyVersion, 0, min(len(collected), pageSize))}
	if len(collected) > pageSize {
		page.KeyVersions = append(page.KeyVersions, collected[:pageSize]...)
		page.NextPageToken = EncodePageToken(collected[pageSize-1].Key)
	} else {
		page.KeyVersions = append(page.KeyVersions, collected...)
	}
	return page, nil
}

// Ping describes the table
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return unavailable("describing table", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing
func (s *DynamoStore) Close() error {
	return nil
}

// decodeDynamoItem converts a DynamoDB attribute map into an Item.
// Attributes missing from a projection are left zero.
func decodeDynamoItem(av map[string]ddbtypes.AttributeValue) (*Item, error) {
	item := &Item{}
	for name, v := range av {
		switch name {
		case attrStoreID:
			if s, ok := v.(*ddbtypes.AttributeValueMemberS); ok {
				item.StoreID = s.Value
			}
		case attrKey:
			if s, ok := v.(*ddbtypes.AttributeValueMemberS); ok {
				item.Key = s.Value
			}
		case attrValue:
			if b, ok := v.(*ddbtypes.AttributeValueMemberB); ok {
				item.Value = b.Value
			}
		case attrVersion:
			n, ok := v.(*ddbtypes.AttributeValueMemberN)
			if !ok {
				return nil, fmt.Errorf("version attribute has type %T", v)
			}
			ver, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing version: %w", err)
			}
			item.Version = ver
		case attrDeleted:
			if b, ok := v.(*ddbtypes.AttributeValueMemberBOOL); ok {
				item.Deleted = b.Value
			}
		case attrCreated, attrUpdated:
			s, ok := v.(*ddbtypes.AttributeValueMemberS)
			if !ok {
				continue
			}
			ts, err := time.Parse(time.RFC3339Nano, s.Value)
			if err != nil {
				return nil, fmt.Errorf("parsing %s: %w", name, err)
			}
			if name == attrCreated {
				item.CreatedAt = ts
			} else {
				item.UpdatedAt = ts
			}
		}
	}
	if item.Deleted {
		item.Value = nil
	} else if item.Value == nil {
		item.Value = []byte{}
	}
	return item, nil
}
