package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "SESSION#"
	skMeta   = "META"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoArchive.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// archiveRecord is the stored item. The session JSON is zstd-compressed so
// large stage outputs stay well under the 400 KB item limit.
type archiveRecord struct {
	SessionID    string `dynamodbav:"sessionId"`
	SealedAt     string `dynamodbav:"sealedAt"`
	FallbackUsed bool   `dynamodbav:"fallbackUsed"`
	Payload      []byte `dynamodbav:"payload"`
}

// DynamoArchive archives sealed sessions to DynamoDB.
type DynamoArchive struct {
	client    DynamoAPI
	tableName string
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	now       func() time.Time
}

// Compile-time interface check.
var _ Archive = (*DynamoArchive)(nil)

// NewDynamoArchive creates an archive for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoArchive(client DynamoAPI, tableName string) (*DynamoArchive, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &DynamoArchive{
		client:    client,
		tableName: tableName,
		encoder:   enc,
		decoder:   dec,
		now:       time.Now,
	}, nil
}

// sessionPK returns the partition key for a session.
func sessionPK(sessionID string) string {
	return pkPrefix + sessionID
}

// Archive writes a sealed session with PK, SK, and TTL.
func (a *DynamoArchive) Archive(ctx context.Context, s *ProcessingSession) error {
	if !s.Sealed {
		return fmt.Errorf("archive session %s: session is not sealed", s.SessionID)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	rec := archiveRecord{
		SessionID:    s.SessionID,
		FallbackUsed: s.FallbackUsed,
		Payload:      a.encoder.EncodeAll(raw, nil),
	}
	if s.EndTime != nil {
		rec.SealedAt = s.EndTime.UTC().Format(time.RFC3339Nano)
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	pk := sessionPK(s.SessionID)
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(a.now().Add(SessionTTL).Unix(), 10)}

	_, err = a.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &a.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, skMeta, err)
	}
	log.Debug().
		Str("session_id", s.SessionID).
		Int("raw_bytes", len(raw)).
		Int("stored_bytes", len(rec.Payload)).
		Msg("Session archived")
	return nil
}

// Load reads an archived session. Returns nil, nil if not found.
func (a *DynamoArchive) Load(ctx context.Context, sessionID string) (*ProcessingSession, error) {
	pk := sessionPK(sessionID)
	result, err := a.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &a.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, skMeta, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec archiveRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, skMeta, err)
	}
	raw, err := a.decoder.DecodeAll(rec.Payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress session %s: %w", sessionID, err)
	}
	var s ProcessingSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &s, nil
}
