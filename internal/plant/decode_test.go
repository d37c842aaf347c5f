package plant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	one, err := Decode(".json", []byte(`{"name":"Monstera deliciosa","height_min":100,"height_max":300}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Monstera deliciosa", one[0].Name)
	require.NotNil(t, one[0].HeightMax)
	assert.Equal(t, 300.0, *one[0].HeightMax)
	assert.Nil(t, one[0].SpreadMin)

	many, err := Decode(".json", []byte(` [{"name":"A"},{"name":"B","sunlight":["full sun"]}]`))
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.Equal(t, []string{"full sun"}, many[1].Sunlight)

	empty, err := Decode(".json", []byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = Decode(".json", []byte(`{"name":`))
	assert.Error(t, err)
}

func TestDecodeYAML(t *testing.T) {
	one, err := Decode(".yaml", []byte("name: Fern\ncommon_names: [Boston fern]\n"))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, []string{"Boston fern"}, one[0].CommonNames)

	many, err := Decode(".YML", []byte("- name: A\n- name: B\n  temperature_min: -2\n"))
	require.NoError(t, err)
	require.Len(t, many, 2)
	require.NotNil(t, many[1].TemperatureMin)
	assert.Equal(t, -2.0, *many[1].TemperatureMin)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- name: Monstera deliciosa\n  description: A climbing tropical plant\n"), 0o644))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Chunks(), 2)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
