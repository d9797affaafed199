package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/moodline/backend/internal/model/conversation"
)

type fakeDynamo struct {
	items        map[string]map[string]types.AttributeValue
	getErr       error
	putErr       error
	lastPutInput *dynamodb.PutItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(item map[string]types.AttributeValue) string {
	return item["PK"].(*types.AttributeValueMemberS).Value + "|" + item["SK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func sampleRecord() Record {
	sentiment := conversation.SentimentResult{Label: conversation.Negative, Score: 0.92, Compound: -0.9}
	closedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Record{
		SessionID: "abc",
		Turns: []conversation.Turn{
			{Index: 0, Role: conversation.RoleUser, Text: "I am furious", Sentiment: &sentiment, CreatedAt: closedAt},
			{Index: 1, Role: conversation.RoleAssistant, Text: "I'm sorry.", CreatedAt: closedAt},
		},
		Report: conversation.DiagnosticReport{
			SessionID:       "abc",
			Summary:         "User was upset.",
			Trend:           []conversation.TrendPoint{{TurnIndex: 0, Label: conversation.Negative, Score: 0.92}},
			Recommendations: []string{"Apologize sooner."},
			GeneratedAt:     closedAt,
		},
		ClosedAt: closedAt,
	}
}

func TestMemoryArchive(t *testing.T) {
	m := NewMemory()
	_, err := m.Load(context.Background(), "abc")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Save(context.Background(), sampleRecord()))
	rec, err := m.Load(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "User was upset.", rec.Report.Summary)

	require.Error(t, m.Save(context.Background(), Record{}))
}

func TestNewDynamoValidates(t *testing.T) {
	_, err := NewDynamo(nil, "table")
	require.Error(t, err)
	_, err = NewDynamo(newFakeDynamo(), " ")
	require.Error(t, err)
}

func TestDynamoSaveAndLoad(t *testing.T) {
	db := newFakeDynamo()
	d, err := NewDynamo(db, "moodline-archive")
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, d.Save(context.Background(), rec))

	require.Equal(t, "moodline-archive", aws.ToString(db.lastPutInput.TableName))
	require.Equal(t, "SESSION#abc", db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "2", db.lastPutInput.Item["turnCount"].(*types.AttributeValueMemberN).Value)

	loaded, err := d.Load(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, rec.SessionID, loaded.SessionID)
	require.Equal(t, rec.Report.Summary, loaded.Report.Summary)
	require.Equal(t, rec.Report.Trend, loaded.Report.Trend)
	require.Len(t, loaded.Turns, 2)
	require.Equal(t, conversation.Negative, loaded.Turns[0].Sentiment.Label)
	require.True(t, rec.ClosedAt.Equal(loaded.ClosedAt))
}

func TestDynamoLoadMissing(t *testing.T) {
	d, err := NewDynamo(newFakeDynamo(), "t")
	require.NoError(t, err)
	_, err = d.Load(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoErrorsAreWrapped(t *testing.T) {
	db := newFakeDynamo()
	db.putErr = errors.New("throttled")
	db.getErr = errors.New("throttled")
	d, err := NewDynamo(db, "t")
	require.NoError(t, err)

	require.ErrorContains(t, d.Save(context.Background(), sampleRecord()), "throttled")
	_, err = d.Load(context.Background(), "abc")
	require.ErrorContains(t, err, "throttled")
}
