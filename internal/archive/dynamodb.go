package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skArchive   = "ARCHIVE#"
	ttlDuration = 90 * 24 * time.Hour
)

// dynamodbAPI is the subset of the DynamoDB client the archive needs.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Dynamo stores one item per session keyed by SESSION#<id> / ARCHIVE#.
// Turns and report are stored as JSON strings.
type Dynamo struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamo creates a DynamoDB-backed archive.
func NewDynamo(api dynamodbAPI, tableName string) (*Dynamo, error) {
	if api == nil {
		return nil, errors.New("archive: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("archive: table name must not be empty")
	}
	return &Dynamo{api: api, tableName: tableName}, nil
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// Save writes or replaces the archive item for rec.SessionID.
func (d *Dynamo) Save(ctx context.Context, rec Record) error {
	if rec.SessionID == "" {
		return errors.New("archive: session id must not be empty")
	}

	turns, err := json.Marshal(rec.Turns)
	if err != nil {
		return fmt.Errorf("archive: marshal turns: %w", err)
	}
	report, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("archive: marshal report: %w", err)
	}

	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: sessionPK(rec.SessionID)},
			"SK":        &types.AttributeValueMemberS{Value: skArchive},
			"sessionId": &types.AttributeValueMemberS{Value: rec.SessionID},
			"closedAt":  &types.AttributeValueMemberS{Value: rec.ClosedAt.UTC().Format(time.RFC3339Nano)},
			"turnCount": &types.AttributeValueMemberN{Value: strconv.Itoa(len(rec.Turns))},
			"degraded":  &types.AttributeValueMemberBOOL{Value: rec.Report.Degraded},
			"turns":     &types.AttributeValueMemberS{Value: string(turns)},
			"report":    &types.AttributeValueMemberS{Value: string(report)},
			"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Add(ttlDuration).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("archive: Save: %w", err)
	}
	return nil
}

// Load reads the archive item for sessionID.
func (d *Dynamo) Load(ctx context.Context, sessionID string) (Record, error) {
	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skArchive},
		},
	})
	if err != nil {
		return Record{}, fmt.Errorf("archive: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return Record{}, ErrNotFound
	}

	rec := Record{SessionID: sessionID}
	if raw, err := strAttr(out.Item, "turns"); err != nil {
		return Record{}, err
	} else if err := json.Unmarshal([]byte(raw), &rec.Turns); err != nil {
		return Record{}, fmt.Errorf("archive: decode turns: %w", err)
	}
	if raw, err := strAttr(out.Item, "report"); err != nil {
		return Record{}, err
	} else if err := json.Unmarshal([]byte(raw), &rec.Report); err != nil {
		return Record{}, fmt.Errorf("archive: decode report: %w", err)
	}
	if raw, err := strAttr(out.Item, "closedAt"); err == nil {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.ClosedAt = ts
		}
	}
	return rec, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("archive: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("archive: attribute %q is not a string", key)
	}
	return s.Value, nil
}
