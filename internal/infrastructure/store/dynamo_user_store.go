package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	dynamoUserPrefix  = "user#"
	dynamoEmailPrefix = "email#"
)

// dynamoUser is a user item. Each user also owns an email claim item
// (pk "email#<lowercased email>") that makes the address unique.
type dynamoUser struct {
	PK           string `dynamodbav:"pk"`
	ID           string `dynamodbav:"id"`
	Email        string `dynamodbav:"email"`
	Name         string `dynamodbav:"name"`
	PasswordHash string `dynamodbav:"password_hash"`
	CreatedAt    string `dynamodbav:"created_at"`
}

type dynamoEmailClaim struct {
	PK     string `dynamodbav:"pk"`
	UserID string `dynamodbav:"user_id"`
}

// DynamoUserStore stores registered users in a DynamoDB table with the
// string partition key pk.
type DynamoUserStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoUserStore(client DynamoAPI, tableName string) *DynamoUserStore {
	return &DynamoUserStore{
		client:    client,
		tableName: tableName,
	}
}

// CreateUser claims the email first, then writes the user. The claim is
// removed again when the user write fails.
func (us *DynamoUserStore) CreateUser(ctx context.Context, user *User) error {
	email := strings.ToLower(user.Email)
	claim, err := attributevalue.MarshalMap(dynamoEmailClaim{PK: dynamoEmailPrefix + email, UserID: user.ID})
	if err != nil {
		return fmt.Errorf("failed to marshal email claim: %w", err)
	}
	item, err := attributevalue.MarshalMap(dynamoUser{
		PK:           dynamoUserPrefix + user.ID,
		ID:           user.ID,
		Email:        email,
		Name:         user.Name,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := us.putNew(ctx, claim); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
		}
		return fmt.Errorf("failed to claim email: %w", err)
	}
	if err := us.putNew(ctx, item); err != nil {
		_, _ = us.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(us.tableName),
			Key:       map[string]types.AttributeValue{"pk": claim["pk"]},
		})
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

func (us *DynamoUserStore) putNew(ctx context.Context, item map[string]types.AttributeValue) error {
	_, err := us.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(us.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	return err
}

func (us *DynamoUserStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	item, err := us.get(ctx, dynamoUserPrefix+id)
	if err != nil {
		return nil, err
	}
	var du dynamoUser
	if err := attributevalue.UnmarshalMap(item, &du); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, du.CreatedAt)
	return &User{
		ID:           du.ID,
		Email:        du.Email,
		Name:         du.Name,
		PasswordHash: du.PasswordHash,
		CreatedAt:    createdAt,
	}, nil
}

func (us *DynamoUserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	item, err := us.get(ctx, dynamoEmailPrefix+strings.ToLower(email))
	if err != nil {
		return nil, err
	}
	var claim dynamoEmailClaim
	if err := attributevalue.UnmarshalMap(item, &claim); err != nil {
		return nil, fmt.Errorf("failed to unmarshal email claim: %w", err)
	}
	return us.GetUserByID(ctx, claim.UserID)
}

func (us *DynamoUserStore) get(ctx context.Context, pk string) (map[string]types.AttributeValue, error) {
	result, err := us.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(us.tableName),
		Key:            map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: pk}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if result.Item == nil {
		return nil, ErrUserNotFound
	}
	return result.Item, nil
}

// DynamoAccountNumberStore reserves account numbers in a DynamoDB table with
// the string partition key account_number.
type DynamoAccountNumberStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoAccountNumberStore(client DynamoAPI, tableName string) *DynamoAccountNumberStore {
	return &DynamoAccountNumberStore{
		client:    client,
		tableName: tableName,
	}
}

func (ns *DynamoAccountNumberStore) ReserveAccountNumber(ctx context.Context, number, aggregateID string) error {
	_, err := ns.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ns.tableName),
		Item: map[string]types.AttributeValue{
			"account_number": &types.AttributeValueMemberS{Value: number},
			"aggregate_id":   &types.AttributeValueMemberS{Value: aggregateID},
		},
		ConditionExpression: aws.String("attribute_not_exists(account_number) OR aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrDuplicateAccountNumber, number)
		}
		return fmt.Errorf("failed to reserve account number: %w", err)
	}
	return nil
}

func (ns *DynamoAccountNumberStore) ReleaseAccountNumber(ctx context.Context, number, aggregateID string) error {
	_, err := ns.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(ns.tableName),
		Key: map[string]types.AttributeValue{
			"account_number": &types.AttributeValueMemberS{Value: number},
		},
		ConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil // held by another aggregate, or already gone
		}
		return fmt.Errorf("failed to release account number: %w", err)
	}
	return nil
}
