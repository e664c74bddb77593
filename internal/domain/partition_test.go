package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoadLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestPartitionKey_String(t *testing.T) {
	k := PartitionKey{Date: "2025-10-05", Hour: 4}
	assert.Equal(t, "date=2025-10-05/hour=04", k.String())
	assert.Equal(t, "date=2025-10-05/hour=04/", k.Prefix())
}

func TestNewPartitionKey(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		k, err := NewPartitionKey("2025-10-05", 23)
		require.NoError(t, err)
		assert.Equal(t, PartitionKey{Date: "2025-10-05", Hour: 23}, k)
	})

	t.Run("hour out of range", func(t *testing.T) {
		_, err := NewPartitionKey("2025-10-05", 24)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "0..23")
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := NewPartitionKey("2025-13-01", 0)
		require.Error(t, err)
	})
}

func TestParsePartitionKey(t *testing.T) {
	t.Run("object name", func(t *testing.T) {
		k, err := ParsePartitionKey("raw/date=2025-10-05/hour=14/weather_20251005T140212Z.json")
		require.NoError(t, err)
		assert.Equal(t, PartitionKey{Date: "2025-10-05", Hour: 14}, k)
	})

	t.Run("no segment", func(t *testing.T) {
		_, err := ParsePartitionKey("weather.json")
		require.Error(t, err)
	})

	t.Run("round trip every hour", func(t *testing.T) {
		for h := 0; h < 24; h++ {
			k := PartitionKey{Date: "2024-02-29", Hour: h}
			got, err := ParsePartitionKey(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, got)
		}
	})
}

func TestPartitionKey_Compare(t *testing.T) {
	a := PartitionKey{Date: "2025-10-05", Hour: 23}
	b := PartitionKey{Date: "2025-10-06", Hour: 0}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, PartitionKey{Date: "2025-10-05", Hour: 1}.Compare(PartitionKey{Date: "2025-10-05", Hour: 2}))
}

func TestPartitionResolver_Resolve(t *testing.T) {
	bangkok := mustLoadLocation(t, "Asia/Bangkok")
	r := NewPartitionResolver(bangkok)

	t.Run("local hour", func(t *testing.T) {
		k := r.Resolve(time.Date(2025, 10, 5, 7, 30, 0, 0, time.UTC))
		assert.Equal(t, "date=2025-10-05/hour=14", k.String())
	})

	t.Run("utc date differs from local date", func(t *testing.T) {
		k := r.Resolve(time.Date(2025, 10, 5, 18, 0, 0, 0, time.UTC))
		assert.Equal(t, "date=2025-10-06/hour=01", k.String())
	})

	t.Run("offset crosses midnight", func(t *testing.T) {
		now := time.Date(2025, 10, 6, 0, 10, 0, 0, bangkok)
		k := r.ResolveOffset(now, -1)
		assert.Equal(t, PartitionKey{Date: "2025-10-05", Hour: 23}, k)
	})

	t.Run("zero value resolves in UTC", func(t *testing.T) {
		var zero PartitionResolver
		k := zero.Resolve(time.Date(2025, 10, 5, 7, 30, 0, 0, time.UTC))
		assert.Equal(t, PartitionKey{Date: "2025-10-05", Hour: 7}, k)
	})
}

func TestPartitionKey_Start(t *testing.T) {
	bangkok := mustLoadLocation(t, "Asia/Bangkok")
	k := PartitionKey{Date: "2025-10-05", Hour: 14}
	start := k.Start(bangkok)
	assert.True(t, start.Equal(time.Date(2025, 10, 5, 7, 0, 0, 0, time.UTC)))
	assert.Equal(t, k, NewPartitionResolver(bangkok).Resolve(start))
}

func TestTruncateHour_FractionalOffset(t *testing.T) {
	kolkata := mustLoadLocation(t, "Asia/Kolkata")
	// 10:00Z is 15:30 IST; the local hour starts at 15:00 IST (09:30Z).
	got := TruncateHour(time.Date(2025, 10, 5, 10, 0, 0, 0, time.UTC), kolkata)
	assert.True(t, got.Equal(time.Date(2025, 10, 5, 9, 30, 0, 0, time.UTC)))
}

func TestKindFromArtifactName(t *testing.T) {
	tests := []struct {
		name string
		want Kind
		ok   bool
	}{
		{"date=2025-10-05/hour=14/weather_20251005T140212Z.json", KindWeather, true},
		{"date=2025-10-05/hour=14/aqi_20251005T140213Z.json", KindAirQuality, true},
		{"air_quality_20251005T140213Z.json", KindAirQuality, true},
		{"date=2025-10-05/hour=14/_SUCCESS", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KindFromArtifactName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
