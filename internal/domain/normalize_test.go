package domain

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var weatherVariables = []string{"temperature_2m", "relative_humidity_2m", "precipitation", "wind_speed_10m", "wind_direction_10m"}

func decodeWeather(t *testing.T, nullAt int) (RawPayload, *time.Location) {
	t.Helper()
	bangkok := mustLoadLocation(t, "Asia/Bangkok")
	p, err := DecodePayload(KindWeather, hourlyPayload(t, "2025-10-05", weatherVariables, nullAt), bangkok)
	require.NoError(t, err)
	return p, bangkok
}

func TestNormalize_HourWindow(t *testing.T) {
	p, loc := decodeWeather(t, -1)
	target := PartitionKey{Date: "2025-10-05", Hour: 14}

	accepted, rejected := Normalize(p, target, loc)
	require.Len(t, accepted, 1)
	assert.Empty(t, rejected)

	obs := accepted[0]
	assert.True(t, obs.EventHour.Equal(time.Date(2025, 10, 5, 14, 0, 0, 0, loc)))
	assert.Equal(t, KindWeather, obs.Kind)
	assert.Equal(t, SourceOpenMeteo, obs.Source)
	assert.Equal(t, 13.75, obs.Latitude)
	assert.Equal(t, 100.5, obs.Longitude)
	assert.Equal(t, time.Date(2025, 10, 5, 14, 2, 12, 0, time.UTC), obs.IngestedAt)
	require.NotNil(t, obs.Variables["temperature_2m"])
	assert.Equal(t, 14.0, *obs.Variables["temperature_2m"])
	assert.Equal(t, 114.0, *obs.Variables["relative_humidity_2m"])
	assert.Len(t, obs.Variables, len(weatherVariables))
}

func TestNormalize_HourWindowOutsidePayload(t *testing.T) {
	p, loc := decodeWeather(t, -1)
	accepted, rejected := Normalize(p, PartitionKey{Date: "2025-10-06", Hour: 0}, loc)
	assert.Empty(t, accepted)
	assert.Empty(t, rejected)
}

func TestNormalizeWindow_DayRejectsNullPrimary(t *testing.T) {
	p, loc := decodeWeather(t, 5)
	target := PartitionKey{Date: "2025-10-05", Hour: 14}

	accepted, rejected := NormalizeWindow(p, DayWindow(target, loc))
	assert.Len(t, accepted, 23)
	require.Len(t, rejected, 1)

	rec := rejected[0]
	assert.Equal(t, ReasonMissingRequiredField, rec.Reason)
	assert.Equal(t, KindWeather, rec.Kind)
	assert.Equal(t, target, rec.Partition)
	assert.Equal(t, "date=2025-10-05/hour=14", rec.PartitionName)
	assert.Contains(t, rec.Detail, "temperature_2m")
	assert.Contains(t, string(rec.PayloadFragment), `"event_hour"`)
	assert.True(t, rec.DetectedAt.IsZero())

	for _, obs := range accepted {
		assert.NotNil(t, obs.Variables["temperature_2m"])
		assert.NotEqual(t, 5, obs.EventHour.Hour())
	}
}

func TestNormalizeWindow_ArrayLengthMismatch(t *testing.T) {
	p, loc := decodeWeather(t, -1)
	p.Variables["precipitation"] = p.Variables["precipitation"][:23]

	accepted, rejected := NormalizeWindow(p, DayWindow(PartitionKey{Date: "2025-10-05", Hour: 0}, loc))
	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonArrayLengthMismatch, rejected[0].Reason)
	assert.Contains(t, rejected[0].Detail, "precipitation has 23 values, want 24")
}

func TestNormalizeWindow_MissingOptionalVariableIsNull(t *testing.T) {
	bangkok := mustLoadLocation(t, "Asia/Bangkok")
	p, err := DecodePayload(KindAirQuality, hourlyPayload(t, "2025-10-05", []string{"pm2_5"}, -1), bangkok)
	require.NoError(t, err)

	accepted, _ := Normalize(p, PartitionKey{Date: "2025-10-05", Hour: 3}, bangkok)
	require.Len(t, accepted, 1)
	assert.Nil(t, accepted[0].Variables["us_aqi"])
	assert.Contains(t, accepted[0].Variables, "us_aqi")
}

func TestNormalizeWindow_Deterministic(t *testing.T) {
	p, loc := decodeWeather(t, 7)
	w := DayWindow(PartitionKey{Date: "2025-10-05", Hour: 0}, loc)

	acc1, rej1 := NormalizeWindow(p, w)
	acc2, rej2 := NormalizeWindow(p, w)
	if diff := cmp.Diff(acc1, acc2); diff != "" {
		t.Errorf("accepted differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(rej1, rej2); diff != "" {
		t.Errorf("rejected differs (-first +second):\n%s", diff)
	}
}

func TestNormalizeWindow_DoesNotAliasPayload(t *testing.T) {
	p, loc := decodeWeather(t, -1)
	accepted, _ := Normalize(p, PartitionKey{Date: "2025-10-05", Hour: 2}, loc)
	require.Len(t, accepted, 1)

	*p.Variables["temperature_2m"][2] = -99
	assert.Equal(t, 2.0, *accepted[0].Variables["temperature_2m"])
}

func TestNormalizeWindow_UnknownKind(t *testing.T) {
	p := RawPayload{Kind: "pollen"}
	accepted, rejected := NormalizeWindow(p, HourWindow(PartitionKey{Date: "2025-10-05", Hour: 0}, time.UTC))
	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonMalformedPayload, rejected[0].Reason)
}

func TestWindow_Contains(t *testing.T) {
	bangkok := mustLoadLocation(t, "Asia/Bangkok")
	k := PartitionKey{Date: "2025-10-05", Hour: 14}
	inHour := time.Date(2025, 10, 5, 14, 0, 0, 0, bangkok)
	sameDay := time.Date(2025, 10, 5, 2, 0, 0, 0, bangkok)
	nextDay := time.Date(2025, 10, 6, 14, 0, 0, 0, bangkok)

	hour := HourWindow(k, bangkok)
	assert.True(t, hour.Contains(inHour))
	assert.False(t, hour.Contains(sameDay))

	day := NewWindow(k, ScopeDay, bangkok)
	assert.True(t, day.Contains(sameDay))
	assert.False(t, day.Contains(nextDay))
}

func TestParseWindowScope(t *testing.T) {
	s, err := ParseWindowScope("day")
	require.NoError(t, err)
	assert.Equal(t, ScopeDay, s)

	_, err = ParseWindowScope("week")
	require.Error(t, err)
}

func TestNormalizeWindow_QuarantinesOutOfRangeInteger(t *testing.T) {
	bangkok := mustLoadLocation(t, "Asia/Bangkok")
	p, err := DecodePayload(KindAirQuality, hourlyPayload(t, "2025-10-05", []string{"pm2_5", "us_aqi"}, -1), bangkok)
	require.NoError(t, err)
	huge := 3e9
	p.Variables["us_aqi"][9] = &huge

	accepted, rejected := NormalizeWindow(p, DayWindow(PartitionKey{Date: "2025-10-05", Hour: 0}, bangkok))
	assert.Len(t, accepted, 23)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonValueOutOfRange, rejected[0].Reason)
	assert.Contains(t, rejected[0].Detail, "us_aqi")
	for _, obs := range accepted {
		assert.NotEqual(t, 9, obs.EventHour.Hour())
	}
}

func TestVariable_Fits(t *testing.T) {
	integer := Variable{Name: "us_aqi", Integer: true}
	double := Variable{Name: "ozone"}
	tests := []struct {
		name string
		v    Variable
		x    float64
		want bool
	}{
		{"integer in range", integer, 152.4, true},
		{"integer max", integer, math.MaxInt32, true},
		{"integer rounds past max", integer, math.MaxInt32 + 0.5, false},
		{"integer below min", integer, math.MinInt32 - 1, false},
		{"integer nan", integer, math.NaN(), false},
		{"double large", double, 3e9, true},
		{"double inf", double, math.Inf(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Fits(tt.x))
		})
	}
}
