package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ignite/podmatch/internal/domain"
)

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// AWSStorage keeps run records in S3 and a per-profile index in DynamoDB.
type AWSStorage struct {
	dynamoDB      DynamoAPI
	s3Client      S3API
	tableName     string
	bucket        string
	retentionDays int
}

// runIndexItem is one row of the per-profile run index. The partition key
// is the profile, the sort key orders runs by start time.
type runIndexItem struct {
	Profile   string `dynamodbav:"PK"`
	Run       string `dynamodbav:"SK"`
	Summary   string `dynamodbav:"Data"`
	WrittenAt string `dynamodbav:"Timestamp"`
	ExpiresAt int64  `dynamodbav:"TTL,omitempty"`
}

func profileKey(profileID string) string { return "PROFILE#" + profileID }

// NewAWSStorage loads the default credential chain, pinned to profile when
// one is set.
func NewAWSStorage(ctx context.Context, tableName, bucket, region, profile string, retentionDays int) (*AWSStorage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("run archive: aws config: %w", err)
	}
	return NewAWSStorageWithClients(dynamodb.NewFromConfig(cfg), s3.NewFromConfig(cfg), tableName, bucket, retentionDays), nil
}

// NewAWSStorageWithClients wires pre-built clients. Index rows expire after
// retentionDays (90 when unset); S3 objects follow the bucket lifecycle.
func NewAWSStorageWithClients(ddb DynamoAPI, s3c S3API, tableName, bucket string, retentionDays int) *AWSStorage {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &AWSStorage{dynamoDB: ddb, s3Client: s3c, tableName: tableName, bucket: bucket, retentionDays: retentionDays}
}

func runKey(runID string) string {
	return fmt.Sprintf("runs/%s.json", runID)
}

// SaveRun writes the full record to S3, then indexes its summary. A record
// without an index row is invisible to ListRuns but still readable by id.
func (s *AWSStorage) SaveRun(ctx context.Context, rec RunRecord) error {
	if err := s.putRecord(ctx, rec); err != nil {
		return err
	}

	sum, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("run archive: encode summary: %w", err)
	}
	started := rec.Summary.StartedAt.UTC()
	av, err := attributevalue.MarshalMap(runIndexItem{
		Profile:   profileKey(rec.Summary.ProfileID),
		Run:       fmt.Sprintf("RUN#%s#%s", started.Format("2006-01-02T15:04:05Z"), rec.Summary.RunID),
		Summary:   string(sum),
		WrittenAt: time.Now().UTC().Format(time.RFC3339),
		ExpiresAt: started.AddDate(0, 0, s.retentionDays).Unix(),
	})
	if err != nil {
		return fmt.Errorf("run archive: encode index row: %w", err)
	}
	if _, err := s.dynamoDB.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(s.tableName), Item: av}); err != nil {
		return fmt.Errorf("run archive: index %s: %w", rec.Summary.RunID, err)
	}
	return nil
}

// ListRuns returns up to limit summaries for a profile, newest first.
// Rows that fail to decode are skipped.
func (s *AWSStorage) ListRuns(ctx context.Context, profileID string, limit int) ([]domain.BackfillSummary, error) {
	out, err := s.dynamoDB.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :run)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: profileKey(profileID)},
			":run": &types.AttributeValueMemberS{Value: "RUN#"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("run archive: list %s: %w", profileID, err)
	}

	runs := make([]domain.BackfillSummary, 0, len(out.Items))
	for _, av := range out.Items {
		var row runIndexItem
		var sum domain.BackfillSummary
		if attributevalue.UnmarshalMap(av, &row) != nil || json.Unmarshal([]byte(row.Summary), &sum) != nil {
			continue
		}
		runs = append(runs, sum)
	}
	return runs, nil
}

// GetRun reads a full record from S3.
func (s *AWSStorage) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	obj, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(runKey(runID)),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("run archive: get %s: %w", runID, err)
	}
	defer obj.Body.Close()

	var rec RunRecord
	if err := json.NewDecoder(obj.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("run archive: decode %s: %w", runID, err)
	}
	return &rec, nil
}

func (s *AWSStorage) putRecord(ctx context.Context, rec RunRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("run archive: encode %s: %w", rec.Summary.RunID, err)
	}
	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(runKey(rec.Summary.RunID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("run archive: put %s: %w", rec.Summary.RunID, err)
	}
	return nil
}
