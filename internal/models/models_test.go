package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentHistoryScanArray(t *testing.T) {
	var h EnrollmentHistory
	require.NoError(t, h.Scan([]byte(`[{"term":"2023-1","cname":"Robotics","cid":"C1"},{"term":"2023-2","cname":"IoT","cid":"C2"}]`)))
	require.Len(t, h, 2)
	assert.Equal(t, []string{"C1", "C2"}, h.ClassIDs())
	assert.Equal(t, "Robotics", h[0].ClassName)
}

func TestEnrollmentHistoryScanLegacyEnvelope(t *testing.T) {
	var h EnrollmentHistory
	raw := `{"data":["{\"term\":\"2022-2\",\"cname\":\"A\",\"cid\":\"C0\"}","{\"term\":\"2023-1\",\"cname\":\"B\",\"cid\":\"C1\"}"]}`
	require.NoError(t, h.Scan(raw))
	assert.Equal(t, []string{"C0", "C1"}, h.ClassIDs())
}

func TestEnrollmentHistoryScanRejectsMissingClassID(t *testing.T) {
	var h EnrollmentHistory
	require.Error(t, h.Scan(`[{"term":"2023-1"}]`))
	require.Error(t, h.Scan(42))
}

func TestEnrollmentHistoryScanEmpty(t *testing.T) {
	h := EnrollmentHistory{{ClassID: "x"}}
	require.NoError(t, h.Scan(nil))
	assert.Empty(t, h)
	require.NoError(t, h.Scan(""))
	assert.Empty(t, h)
}

func TestEnrollmentHistoryValue(t *testing.T) {
	v, err := EnrollmentHistory(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = EnrollmentHistory{{Term: "t", ClassName: "n", ClassID: "C1"}}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"term":"t","cname":"n","cid":"C1"}]`, v.(string))
}

func TestClassScope(t *testing.T) {
	profile := StudentProfile{PrevClasses: EnrollmentHistory{{ClassID: "C0"}, {ClassID: "C1"}}}

	assert.True(t, ClassScope("").IsAll())
	assert.True(t, ClassScope("ALL").IsAll())
	assert.False(t, ClassScope("C1").IsAll())
	assert.Equal(t, []string{"C0", "C1"}, ScopeAll.ClassIDs(profile))
	assert.Equal(t, []string{"C9"}, ClassScope(" C9 ").ClassIDs(profile))
}

func TestExportJobParamsRoundTrip(t *testing.T) {
	params := ExportJobParams{ClassID: "C1"}
	v, err := params.Value()
	require.NoError(t, err)

	var scanned ExportJobParams
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, params, scanned)
}

func TestExportFailuresScan(t *testing.T) {
	var f ExportFailures
	require.NoError(t, f.Scan(`[{"school_id":"1","name":"a","error":"disk full"}]`))
	require.Len(t, f, 1)
	assert.Equal(t, "disk full", f[0].Error)

	require.NoError(t, f.Scan(nil))
	assert.Nil(t, f)
	require.Error(t, f.Scan(3.14))
}
