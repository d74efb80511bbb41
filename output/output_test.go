package output

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/jobscrape/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{"empty", "", Noise},
		{"plain log", "status: init", Noise},
		{"status object", `{"status":"scraping"}`, Status},
		{"status with message", `{"status":"init","message":"starting"}`, Status},
		{"blank status", `{"status":""}`, Noise},
		{"non-string status", `{"status":3}`, Noise},
		{"result object", `{"success":true,"data":[],"count":0}`, Result},
		{"failed result object", `{"success":false,"message":"login expired"}`, Result},
		{"success wins over status", `{"success":true,"status":"done"}`, Result},
		{"legacy array", `[{"title":"A"}]`, Result},
		{"broken json", `{"status":`, Noise},
		{"json scalar", `42`, Noise},
		{"surrounding whitespace", "  {\"status\":\"x\"}\r", Status},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.line).Kind)
		})
	}
}

func TestParseStatus_KeepsPlatformFields(t *testing.T) {
	msg, ok := ParseStatus(`{"status":"progress","message":"page 2","page":2}`)
	require.True(t, ok)
	assert.Equal(t, "progress", msg.Status)
	assert.Equal(t, "page 2", msg.Message)

	b, err := msg.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"progress","message":"page 2","page":2}`, string(b))
}

func TestParseResult_EmptyObject(t *testing.T) {
	res, err := ParseResult(`{"success":true,"data":[],"count":0}`)
	require.NoError(t, err)

	assert.Equal(t, models.ResultObject, res.Kind)
	assert.True(t, res.Success)
	assert.Empty(t, res.Data)
	require.NotNil(t, res.Count)
	assert.Equal(t, 0, *res.Count)
	assert.JSONEq(t, `{"success":true,"data":[],"count":0}`, string(res.Raw))
}

func TestParseResult_InterleavedNoise(t *testing.T) {
	final := `{"success":true,"data":[{"title":"A","company":"B","date":"2025-01-01","status":"viewed"}],"count":1}`
	stdout := "status: init\n{\"status\":\"scraping\"}\n" + final

	res, err := ParseResult(stdout)
	require.NoError(t, err)

	want := []models.Record{{"title": "A", "company": "B", "date": "2025-01-01", "status": "viewed"}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, res.Len())

	// Extra noise before the final line must not change anything.
	noisy, err := ParseResult("DevTools listening\nwebdriver-manager ok\n" + stdout + "\n\n")
	require.NoError(t, err)
	assert.Equal(t, res.Raw, noisy.Raw)
	assert.Equal(t, res.Data, noisy.Data)
}

func TestParseResult_Legacy(t *testing.T) {
	res, err := ParseResult(`[{"title":"Real Frontend Developer","company":"RealTech Inc."}]` + "\n")
	require.NoError(t, err)

	assert.Equal(t, models.ResultLegacy, res.Kind)
	assert.True(t, res.Success)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "RealTech Inc.", res.Data[0].Field("company"))
}

func TestParseResult_Failures(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		target error
	}{
		{"empty", "", ErrEmptyOutput},
		{"whitespace only", " \n\t\n", ErrEmptyOutput},
		{"last line noise", `{"success":true}` + "\nbye", ErrNoResult},
		{"last line status", `{"status":"waiting_verification"}`, ErrNoResult},
		{"object without success", `{"status":"init"}` + "\n" + `{"error":"login failed"}`, ErrNoResult},
		{"truncated", `{"success":true,"data":[`, ErrNoResult},
		{"array of scalars", `[1,2,3]`, nil},
		{"success not bool", `{"success":"yes"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResult(tt.stdout)
			require.Error(t, err)
			assert.Nil(t, res)

			var se *models.ScrapeError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, models.ErrCodeParseFailed, se.Code)
			assert.Contains(t, se.Message, "invalid worker output")
			assert.Equal(t, tt.stdout, se.Details)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "", LastLine(""))
	assert.Equal(t, "b", LastLine("a\nb"))
	assert.Equal(t, "b", LastLine("a\r\nb\r\n\r\n"))
	assert.Equal(t, "only", LastLine("  only  "))
}
