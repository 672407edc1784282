package location

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogue(t *testing.T) {
	c := Default()
	require.Greater(t, c.Len(), 5)

	city, ok := c.Lookup("Bengaluru")
	require.True(t, ok)
	assert.InDelta(t, 12.972, city.Latitude, 1e-9)
	assert.InDelta(t, 77.594, city.Longitude, 1e-9)

	loc, err := city.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())

	list := c.List()
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Key, list[i].Key)
	}
}

func TestParseRejectsBadCities(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad latitude", "cities:\n  - {key: x, latitude: 91, longitude: 0, timezone: UTC}\n"},
		{"bad timezone", "cities:\n  - {key: x, latitude: 0, longitude: 0, timezone: Mars/Olympus}\n"},
		{"missing key", "cities:\n  - {latitude: 0, longitude: 0, timezone: UTC}\n"},
		{"duplicate", "cities:\n  - {key: x, latitude: 0, longitude: 0, timezone: UTC}\n  - {key: X, latitude: 1, longitude: 1, timezone: UTC}\n"},
		{"not yaml", "cities: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	data := "cities:\n  - key: Tirupati\n    name: Tirupati\n    latitude: 13.6288\n    longitude: 79.4192\n    timezone: Asia/Kolkata\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	city, ok := c.Lookup("tirupati")
	require.True(t, ok)
	assert.Equal(t, "tirupati", city.Key)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), c.Len())
}
