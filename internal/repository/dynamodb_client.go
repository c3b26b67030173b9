package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"campus-assistant/internal/domain"
)

const (
	skProfile    = "PROFILE"
	skPrefixMsg  = "MSG#"
	skPrefixTask = "TASK#"
	ttlDuration  = 90 * 24 * time.Hour // messages expire after 90 days
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client stores user profiles, conversation messages and agent tasks in a
// single DynamoDB table keyed by user.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func userPK(userID string) string {
	return "USER#" + userID
}

// msgSK orders messages by time; the random suffix keeps two messages stored
// in the same instant from colliding.
func msgSK(ts time.Time) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano) + "#" + uuid.NewString()[:8]
}

func taskSK(taskID string) string {
	return skPrefixTask + taskID
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// GetUserProfile returns the stored profile, or nil when none exists.
func (c *Client) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("repository: GetUserProfile: user id is required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skProfile},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserProfile get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	profile, err := itemToProfile(out.Item)
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserProfile decode: %w", err)
	}
	return &profile, nil
}

// UpdateUserProfile writes the given profile fields, replacing any stored
// profile for the user.
func (c *Client) UpdateUserProfile(ctx context.Context, userID string, profile domain.UserProfile) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: UpdateUserProfile: user id is required")
	}
	profile.UserID = userID
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      profileItem(profile),
	})
	if err != nil {
		return fmt.Errorf("repository: UpdateUserProfile: %w", err)
	}
	return nil
}

// StoreMessage appends a message to the user's conversation history.
func (c *Client) StoreMessage(ctx context.Context, userID, role, content string, metadata domain.MessageMetadata) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("repository: StoreMessage: user id is required")
	}
	if role == "" {
		return errors.New("repository: StoreMessage: role is required")
	}

	msg := domain.StoredMessage{UserID: userID, Role: role, Content: content, Metadata: metadata}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                c.messageItem(msg),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: StoreMessage: %w", err)
	}
	return nil
}

// GetHistory queries the most recent messages for a user ordered chronologically.
func (c *Client) GetHistory(ctx context.Context, userID string, limit int) ([]domain.StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: GetHistory query: %w", err)
	}

	msgs := make([]domain.StoredMessage, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetHistory unmarshal: %w", err)
		}
		msg.UserID = userID
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CreateTask persists a new agent task. Task ids are never reused.
func (c *Client) CreateTask(ctx context.Context, task domain.Task) error {
	if task.UserID == "" || task.ID == "" {
		return errors.New("repository: CreateTask: user id and task id are required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                taskItem(task),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: CreateTask: %w", err)
	}
	return nil
}

func itemToProfile(item map[string]types.AttributeValue) (domain.UserProfile, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.UserProfile{}, err
	}
	email, _ := strAttr(item, "email")
	role, _ := strAttr(item, "role")
	fullName, _ := strAttr(item, "fullName")
	createdAt, _ := strAttr(item, "createdAt")
	return domain.UserProfile{
		UserID:    userID,
		Email:     email,
		Role:      role,
		FullName:  fullName,
		CreatedAt: createdAt,
	}, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.StoredMessage, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.StoredMessage{}, err
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.StoredMessage{}, err
	}
	timestamp, _ := strAttr(item, "timestamp")
	metadataRole, _ := strAttr(item, "metadataRole")
	ragUsed, _ := boolAttr(item, "ragUsed")

	return domain.StoredMessage{
		Role:    role,
		Content: content,
		Metadata: domain.MessageMetadata{
			Timestamp: timestamp,
			Role:      metadataRole,
			RAGUsed:   ragUsed,
		},
	}, nil
}

func profileItem(p domain.UserProfile) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: userPK(p.UserID)},
		"SK":        &types.AttributeValueMemberS{Value: skProfile},
		"userId":    &types.AttributeValueMemberS{Value: p.UserID},
		"email":     &types.AttributeValueMemberS{Value: p.Email},
		"role":      &types.AttributeValueMemberS{Value: p.Role},
		"fullName":  &types.AttributeValueMemberS{Value: p.FullName},
		"createdAt": &types.AttributeValueMemberS{Value: p.CreatedAt},
	}
}

func (c *Client) messageItem(msg domain.StoredMessage) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: userPK(msg.UserID)},
		"SK":           &types.AttributeValueMemberS{Value: msgSK(c.now())},
		"role":         &types.AttributeValueMemberS{Value: msg.Role},
		"content":      &types.AttributeValueMemberS{Value: msg.Content},
		"timestamp":    &types.AttributeValueMemberS{Value: msg.Metadata.Timestamp},
		"metadataRole": &types.AttributeValueMemberS{Value: msg.Metadata.Role},
		"ragUsed":      &types.AttributeValueMemberBOOL{Value: msg.Metadata.RAGUsed},
		"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(c.ttlValue(), 10)},
	}
}

func taskItem(t domain.Task) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: userPK(t.UserID)},
		"SK":            &types.AttributeValueMemberS{Value: taskSK(t.ID)},
		"taskId":        &types.AttributeValueMemberS{Value: t.ID},
		"title":         &types.AttributeValueMemberS{Value: t.Title},
		"description":   &types.AttributeValueMemberS{Value: t.Description},
		"status":        &types.AttributeValueMemberS{Value: t.Status},
		"requestedRole": &types.AttributeValueMemberS{Value: t.RequestedRole},
		"createdAt":     &types.AttributeValueMemberS{Value: t.CreatedAt},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) (bool, error) {
	v, ok := item[key]
	if !ok {
		return false, fmt.Errorf("repository: missing attribute %q", key)
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return b.Value, nil
}
