package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The stdout envelope is parsed by downstream tooling, so the field names are
// load-bearing. These tests pin the contract.
func TestOutcome_SuccessContract(t *testing.T) {
	out := Outcome{
		Success:    true,
		UserID:     "ur195879360",
		Hash:       "f31b8a2a7ae7d0f3a223f2f05b54a9f6f520f00a4c0eebba49514e3efe7a4a5d",
		Operation:  "WatchListPage",
		RequestURL: "https://api.graphql.imdb.com/?operationName=WatchListPage",
		Timestamp:  time.Date(2025, 11, 21, 12, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(out)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Equal(t, true, fields["success"])
	assert.Equal(t, out.UserID, fields["user_id"])
	assert.Equal(t, out.Hash, fields["hash"])
	assert.Equal(t, out.Operation, fields["operation"])
	assert.Equal(t, out.RequestURL, fields["request_url"])
	assert.Contains(t, fields, "timestamp")
	assert.NotContains(t, fields, "error")
}

func TestOutcome_FailureOmitsResultFields(t *testing.T) {
	out := Outcome{
		Success:   false,
		UserID:    "ur195879360",
		Error:     "no network requests captured",
		Timestamp: time.Now().UTC(),
	}

	raw, err := json.Marshal(out)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))

	assert.Equal(t, false, fields["success"])
	assert.Equal(t, out.Error, fields["error"])
	assert.NotContains(t, fields, "hash")
	assert.NotContains(t, fields, "operation")
	assert.NotContains(t, fields, "request_url")
}
