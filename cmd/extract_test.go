package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/gqlharvest/api/schemas"
)

func TestWriteOutcome_NDJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeOutcome(&buf, successOutcome(&schemas.ExtractionResult{
		UserID:     "ur195879360",
		Hash:       "abc123",
		Operation:  "WatchListPage",
		RequestURL: "https://api.graphql.imdb.com/?operationName=WatchListPage",
	})))
	require.NoError(t, writeOutcome(&buf, failureOutcome("ur000000001", errors.New("no network requests captured"))))

	scanner := bufio.NewScanner(&buf)

	require.True(t, scanner.Scan())
	var first schemas.Outcome
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &first))
	assert.True(t, first.Success)
	assert.Equal(t, "ur195879360", first.UserID)
	assert.Equal(t, "abc123", first.Hash)
	assert.Equal(t, "WatchListPage", first.Operation)
	assert.False(t, first.Timestamp.IsZero())

	require.True(t, scanner.Scan())
	var second schemas.Outcome
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &second))
	assert.False(t, second.Success)
	assert.Equal(t, "ur000000001", second.UserID)
	assert.Equal(t, "no network requests captured", second.Error)
	assert.Empty(t, second.Hash)

	assert.False(t, scanner.Scan(), "expected exactly one line per outcome")
}

func TestEmitFatal_ReportsEveryTargetAndReturnsCause(t *testing.T) {
	var buf bytes.Buffer
	cause := errors.New("browser failed to start or respond")

	err := emitFatal(&buf, []string{"ur1", "ur2"}, cause)
	assert.ErrorIs(t, err, cause)

	scanner := bufio.NewScanner(&buf)
	for _, want := range []string{"ur1", "ur2"} {
		require.True(t, scanner.Scan())
		var outcome schemas.Outcome
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &outcome))
		assert.False(t, outcome.Success)
		assert.Equal(t, want, outcome.UserID)
		assert.Equal(t, cause.Error(), outcome.Error)
	}
}

func TestNewExtractCmd_Flags(t *testing.T) {
	extractCmd := newExtractCmd()

	for _, name := range []string{
		"url-template", "timeout", "quiet-period", "rate",
		"operation", "headless", "remote", "constants-file", "concurrency",
	} {
		assert.NotNil(t, extractCmd.Flags().Lookup(name), "missing flag %q", name)
	}

	assert.Equal(t, "extract [user-ids...]", extractCmd.Use)
}
