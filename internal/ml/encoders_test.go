package ml

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocabulary = []string{"Forest", "Non-Forest", "Cloud", "Shadow", "Water"}

func TestFitDateEncoder(t *testing.T) {
	t.Parallel()

	enc, err := FitDateEncoder([]string{"2023-06", "2022-01", "2023-01", "2022-01"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"2022": 0, "2023": 1}, enc.YearCodes)
	assert.Equal(t, map[int]int{1: 0, 6: 1}, enc.MonthCodes)
	assert.Equal(t, []string{"2022-01", "2023-01", "2023-06"}, enc.SeenDates)
}

func TestDateEncoderEncodeSeenDate(t *testing.T) {
	t.Parallel()

	enc, err := FitDateEncoder([]string{"2022-01", "2023-06"})
	require.NoError(t, err)

	yearCode, monthCode, err := enc.Encode("2023-06")
	require.NoError(t, err)
	assert.Equal(t, 1, yearCode)
	assert.Equal(t, 1, monthCode)
}

func TestDateEncoderNearestFallback(t *testing.T) {
	t.Parallel()

	enc, err := FitDateEncoder([]string{"2022-01", "2023-06"})
	require.NoError(t, err)

	// 2023-08 was never seen; nearest by YYYYMM distance is 2023-06.
	yearCode, monthCode, err := enc.Encode("2023-08")
	require.NoError(t, err)
	assert.Equal(t, enc.YearCodes["2023"], yearCode)
	assert.Equal(t, enc.MonthCodes[6], monthCode)

	// 2021-12 is closer to 2022-01 than to 2023-06.
	yearCode, monthCode, err = enc.Encode("2021-12")
	require.NoError(t, err)
	assert.Equal(t, enc.YearCodes["2022"], yearCode)
	assert.Equal(t, enc.MonthCodes[1], monthCode)
}

func TestDateEncoderRejectsMalformedDates(t *testing.T) {
	t.Parallel()

	_, err := FitDateEncoder([]string{"2023/06"})
	require.Error(t, err)

	enc, err := FitDateEncoder([]string{"2023-06"})
	require.NoError(t, err)
	_, _, err = enc.Encode("not-a-date")
	assert.Error(t, err)
	_, _, err = enc.Encode("2023-13")
	assert.Error(t, err)
}

func TestDateEncoderSurvivesSerialization(t *testing.T) {
	t.Parallel()

	enc, err := FitDateEncoder([]string{"2022-01", "2023-06"})
	require.NoError(t, err)

	data, err := json.Marshal(enc)
	require.NoError(t, err)

	var restored DateEncoder
	require.NoError(t, json.Unmarshal(data, &restored))

	yearCode, monthCode, err := restored.Encode("2022-01")
	require.NoError(t, err)
	assert.Equal(t, 0, yearCode)
	assert.Equal(t, 0, monthCode)

	year, month, ok := restored.Decode(yearCode, monthCode)
	require.True(t, ok)
	assert.Equal(t, "2022", year)
	assert.Equal(t, 1, month)
}

func TestBuildClassMap(t *testing.T) {
	t.Parallel()

	labels := []string{"Water", "Forest", "Forest", "Cloud"}
	cm, err := BuildClassMap(labels, vocabulary)
	require.NoError(t, err)

	// Present classes keep the vocabulary's canonical order.
	assert.Equal(t, []string{"Forest", "Cloud", "Water"}, cm.Present)
	assert.Equal(t, []int{0, 2, 4}, cm.CompactToGlobal)

	compact, ok := cm.CompactIndex("Water")
	require.True(t, ok)
	assert.Equal(t, 2, compact)

	global, ok := cm.GlobalIndex(compact)
	require.True(t, ok)
	assert.Equal(t, 4, global)
}

func TestBuildClassMapRejectsUnknownLabel(t *testing.T) {
	t.Parallel()

	_, err := BuildClassMap([]string{"Forest", "Swamp"}, vocabulary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Swamp")
}

func TestLabelEncoder(t *testing.T) {
	t.Parallel()

	enc := &LabelEncoder{Classes: vocabulary}

	idx, ok := enc.Index("Shadow")
	require.True(t, ok)
	assert.Equal(t, 3, idx)

	label, ok := enc.Label(3)
	require.True(t, ok)
	assert.Equal(t, "Shadow", label)

	_, ok = enc.Index("Swamp")
	assert.False(t, ok)
	_, ok = enc.Label(99)
	assert.False(t, ok)
}
