package index

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfeedhq/chainfeed/internal/store/storetest"
	"github.com/chainfeedhq/chainfeed/pkg/model"
)

type recordingScheduler struct {
	backfills []string
}

func (r *recordingScheduler) ScheduleBackfill(ctx context.Context, index string) error {
	r.backfills = append(r.backfills, index)
	return nil
}

// aliasedFake layers alias bookkeeping on the fake store so back-to-back
// InitIndex calls see the generation the first call created.
func aliasedFake() *storetest.Fake {
	fake := &storetest.Fake{}
	fake.ResolveAliasFunc = func(ctx context.Context, alias string) (string, error) {
		for _, c := range fake.CreateCalls {
			if c.Alias == alias {
				return c.Index, nil
			}
		}
		return "", model.ErrIndexNotFound
	}
	return fake
}

func TestInitIndex_CreatesGenerationAndSchedulesBackfill(t *testing.T) {
	fake := aliasedFake()
	sched := &recordingScheduler{}
	lc := NewLifecycle(fake, DefaultConfig(), sched, nil)
	lc.now = func() time.Time { return time.UnixMilli(1700000000000) }

	require.NoError(t, lc.InitIndex(context.Background()))

	require.Len(t, fake.CreateCalls, 1)
	created := fake.CreateCalls[0]
	assert.Equal(t, "activities", created.Alias)
	assert.Equal(t, "activities-1700000000000", created.Index)

	// Generation name is <logical>-<creation-epoch-ms>.
	suffix := strings.TrimPrefix(created.Index, "activities-")
	_, err := strconv.ParseInt(suffix, 10, 64)
	assert.NoError(t, err)

	assert.Equal(t, []string{"activities"}, sched.backfills)
}

func TestInitIndex_Idempotent(t *testing.T) {
	fake := aliasedFake()
	sched := &recordingScheduler{}
	lc := NewLifecycle(fake, DefaultConfig(), sched, nil)

	require.NoError(t, lc.InitIndex(context.Background()))
	require.NoError(t, lc.InitIndex(context.Background()))

	// Exactly one physical generation, one backfill, no mapping updates.
	assert.Len(t, fake.CreateCalls, 1)
	assert.Len(t, sched.backfills, 1)
	assert.Empty(t, fake.MappingCalls)
}

func TestInitIndex_MappingUpdateOnExistingGeneration(t *testing.T) {
	fake := aliasedFake()
	cfg := DefaultConfig()
	cfg.EnableMappingUpdate = true
	lc := NewLifecycle(fake, cfg, nil, nil)

	require.NoError(t, lc.InitIndex(context.Background()))
	require.NoError(t, lc.InitIndex(context.Background()))

	// Second call resolved the alias and applied the mapping in place.
	require.Len(t, fake.MappingCalls, 1)
	assert.Equal(t, fake.CreateCalls[0].Index, fake.MappingCalls[0])
}

func TestInitIndex_UnknownMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MappingName = "nope"
	lc := NewLifecycle(&storetest.Fake{}, cfg, nil, nil)

	assert.Error(t, lc.InitIndex(context.Background()))
}

func TestMappings_AreValidJSON(t *testing.T) {
	for _, name := range MappingNames() {
		mapping, ok := Mapping(name)
		require.True(t, ok)

		var parsed struct {
			Properties map[string]json.RawMessage `json:"properties"`
		}
		require.NoError(t, json.Unmarshal(mapping, &parsed), "mapping %s", name)
		assert.Contains(t, parsed.Properties, "id")
		assert.Contains(t, parsed.Properties, "timestamp")
	}
}
