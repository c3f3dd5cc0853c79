// Package dynamodb provides an Amazon DynamoDB implementation of
// gocredits.SessionStore.
//
// Table requirements:
//   - PK: session_id (string)
//   - TTL attribute (optional): expires_at (number, unix seconds)
//
// MarkProcessed is a conditional PutItem, so of two concurrent inserts only
// one passes the condition. DynamoDB TTL deletion is lazy, so expired items
// are treated as absent here too.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	defaultTableName  = "processed_sessions"
	defaultSessionTTL = 30 * 24 * time.Hour
)

// API is the subset of the DynamoDB client used by Storage. *dynamodb.Client satisfies it.
type API interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
}

// Config holds DynamoDB storage configuration
type Config struct {
	// TableName is the DynamoDB table for processed sessions (default: "processed_sessions")
	TableName string

	// SessionTTL is how long a processed-session marker is retained (default: 30 days)
	SessionTTL time.Duration
}

type sessionItem struct {
	SessionID   string `dynamodbav:"session_id"`
	ProcessedAt string `dynamodbav:"processed_at"`
	ExpiresAt   int64  `dynamodbav:"expires_at"`
}

// Storage implements gocredits.SessionStore using DynamoDB
type Storage struct {
	client    API
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// New creates a new DynamoDB storage adapter
func New(client API, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamodb client is required")
	}

	// Set defaults
	if config.TableName == "" {
		config.TableName = defaultTableName
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaultSessionTTL
	}

	return &Storage{
		client:    client,
		tableName: config.TableName,
		ttl:       config.SessionTTL,
		now:       time.Now,
	}, nil
}

// Contains implements gocredits.SessionStore
func (s *Storage) Contains(ctx context.Context, sessionID string) (bool, error) {
	out, err := s.client.GetItem(ctx, &ddb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("failed to get session: %w", err)
	}
	if len(out.Item) == 0 {
		return false, nil
	}

	var it sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return false, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return it.ExpiresAt > s.now().Unix(), nil
}

// MarkProcessed implements gocredits.SessionStore
func (s *Storage) MarkProcessed(ctx context.Context, sessionID string) (bool, error) {
	now := s.now().UTC()
	av, err := attributevalue.MarshalMap(sessionItem{
		SessionID:   sessionID,
		ProcessedAt: now.Format(time.RFC3339Nano),
		ExpiresAt:   now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.client.PutItem(ctx, &ddb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#id) OR #exp <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#id":  "session_id",
			"#exp": "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to mark session processed: %w", err)
	}
	return true, nil
}
