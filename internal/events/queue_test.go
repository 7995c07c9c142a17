package events_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altinn-access/go-core/internal/events"
	"github.com/altinn-access/go-core/pkg/types"
)

func testChange() *types.DelegationChange {
	return &types.DelegationChange{
		DelegationChangeID:    7,
		Type:                  types.DelegationChangeGrant,
		AltinnAppID:           "skd/taxreport",
		OfferedByPartyID:      50001,
		CoveredByUserID:       20002,
		PerformedByUserID:     20001,
		BlobStoragePolicyPath: "skd/taxreport/50001/u20002/delegationpolicy.xml",
		BlobStorageVersionID:  "v1",
	}
}

func TestRedisQueuePush(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		// miniredis does not speak CLIENT SETINFO.
		DisableIndentity: true,
	})

	queue := events.NewRedisQueueWithClient(client, events.RedisQueueConfig{
		Stream: "delegationevents",
		MaxLen: 100,
	}, nil)
	defer queue.Close()

	ctx := context.Background()
	require.NoError(t, queue.Push(ctx, testChange()))

	entries, err := client.XRange(ctx, "delegationevents", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "7", entries[0].Values["changeId"])
	assert.Equal(t, "Grant", entries[0].Values["changeType"])

	var change types.DelegationChange
	payload, ok := entries[0].Values["payload"].(string)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(payload), &change))
	assert.Equal(t, "skd/taxreport", change.AltinnAppID)
}

func TestRedisQueuePushFailure(t *testing.T) {
	client, mock := redismock.NewClientMock()
	queue := events.NewRedisQueueWithClient(client, events.RedisQueueConfig{
		Stream: "delegationevents",
		MaxLen: 100,
	}, nil)

	mock.CustomMatch(func(expected, actual []interface{}) error {
		return nil
	}).ExpectXAdd(&redis.XAddArgs{
		Stream: "delegationevents",
		Values: map[string]interface{}{},
	}).SetErr(errors.New("stream unavailable"))

	err := queue.Push(context.Background(), testChange())
	assert.Error(t, err)
}

func TestFileJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events", "journal.log")

	journal, err := events.NewFileJournal(path, 10, 1, 1)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, journal.Push(ctx, testChange()))
	second := testChange()
	second.DelegationChangeID = 8
	second.Type = types.DelegationChangeRevoke
	require.NoError(t, journal.Push(ctx, second))
	require.NoError(t, journal.Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []struct {
		EventID string                  `json:"eventId"`
		Change  *types.DelegationChange `json:"change"`
	}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record struct {
			EventID string                  `json:"eventId"`
			Change  *types.DelegationChange `json:"change"`
		}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, records, 2)
	assert.NotEmpty(t, records[0].EventID)
	assert.NotEqual(t, records[0].EventID, records[1].EventID)
	assert.Equal(t, 7, records[0].Change.DelegationChangeID)
	assert.Equal(t, types.DelegationChangeRevoke, records[1].Change.Type)
}

func TestNoopQueue(t *testing.T) {
	queue := events.NoopQueue{}
	assert.NoError(t, queue.Push(context.Background(), testChange()))
	assert.NoError(t, queue.Close())
}
