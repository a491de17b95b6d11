package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	m := NewMemoryStore(WithClock(clock.Now))

	s, err := m.Create(ctx, "a lighthouse")
	require.NoError(t, err)
	assert.NotEmpty(t, s.SessionID)

	require.NoError(t, s.AddStage(domain.StageRecord{Name: "Image Generation", Status: domain.StageCompleted}))
	require.NoError(t, s.AddOptimizations("quality raised to high"))

	inFlight, err := m.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Nil(t, inFlight)

	clock.Advance(2 * time.Second)
	require.NoError(t, m.Seal(ctx, s))
	assert.True(t, s.Sealed)
	assert.Equal(t, 2*time.Second, s.TotalProcessingTime)

	got, err := m.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.True(t, got.Sealed)
	assert.Len(t, got.Stages, 1)
	assert.Equal(t, []string{"quality raised to high"}, got.AppliedOptimizations)

	assert.ErrorIs(t, s.AddNote("late"), ErrSealed)
	assert.ErrorIs(t, s.MarkFallback(), ErrSealed)
	assert.ErrorIs(t, m.Seal(ctx, s), ErrSealed)

	// Mutating the returned copy must not leak into the store.
	got.Stages[0].Name = "changed"
	again, _ := m.Get(ctx, s.SessionID)
	assert.Equal(t, "Image Generation", again.Stages[0].Name)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s, err := NewMemoryStore().Get(context.Background(), "sess-missing")
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestMemoryStore_EvictOlderThan(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryStore(WithClock(clock.Now))

	old, _ := m.Create(ctx, "old")
	require.NoError(t, m.Seal(ctx, old))
	clock.Advance(time.Hour)
	inFlight, _ := m.Create(ctx, "running")
	fresh, _ := m.Create(ctx, "fresh")
	require.NoError(t, m.Seal(ctx, fresh))

	n, err := m.EvictOlderThan(ctx, clock.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := m.Get(ctx, old.SessionID)
	assert.Nil(t, got)
	got, _ = m.Get(ctx, inFlight.SessionID)
	assert.Nil(t, got)
	assert.Len(t, m.List(ctx), 2)
}

type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func key(item map[string]types.AttributeValue) string {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.items == nil {
		f.items = make(map[string]map[string]types.AttributeValue)
	}
	f.items[key(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[key(in.Key)]}, nil
}

func TestDynamoArchive_RoundTripAfterEviction(t *testing.T) {
	ctx := context.Background()
	db := &fakeDynamo{}
	archive, err := NewDynamoArchive(db, "sessions")
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryStore(WithArchive(archive), WithClock(clock.Now))

	s, _ := m.Create(ctx, "a harbour at dawn")
	require.NoError(t, s.MarkFallback())
	require.NoError(t, s.AddNote("slow"))
	clock.Advance(time.Second)
	require.NoError(t, m.Seal(ctx, s))

	item := db.items[pkPrefix+s.SessionID+"|"+skMeta]
	require.NotNil(t, item)
	assert.Contains(t, item, "expiresAt")

	_, err = m.EvictOlderThan(ctx, clock.Now().Add(time.Minute))
	require.NoError(t, err)

	got, err := m.Get(ctx, s.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a harbour at dawn", got.OriginalPrompt)
	assert.True(t, got.FallbackUsed)
	assert.True(t, got.Sealed)
	assert.Equal(t, []string{"slow"}, got.Notes)
}

func TestDynamoArchive_FailureDoesNotFailSeal(t *testing.T) {
	ctx := context.Background()
	archive, err := NewDynamoArchive(&fakeDynamo{err: errors.New("throttled")}, "sessions")
	require.NoError(t, err)
	m := NewMemoryStore(WithArchive(archive))

	s, _ := m.Create(ctx, "prompt")
	assert.NoError(t, m.Seal(ctx, s))
}

func TestDynamoArchive_RejectsUnsealed(t *testing.T) {
	archive, err := NewDynamoArchive(&fakeDynamo{}, "sessions")
	require.NoError(t, err)
	assert.Error(t, archive.Archive(context.Background(), &ProcessingSession{SessionID: "sess-1"}))
}

func TestDynamoArchive_LoadMissing(t *testing.T) {
	archive, err := NewDynamoArchive(&fakeDynamo{}, "sessions")
	require.NoError(t, err)
	s, err := archive.Load(context.Background(), "sess-none")
	assert.NoError(t, err)
	assert.Nil(t, s)
}
