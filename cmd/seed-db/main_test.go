package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSeed = `{
  "categories": [{"name": "Coffee", "products": [{"name": "Espresso", "price": "9.50"}]}],
  "users": [{"username": "sam", "groups": ["seller"], "api_keys": [{"id": "k1", "key": "${SEED_TEST_KEY}"}]}]
}`

func TestReadSeedFile(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(plain, []byte(sampleSeed), 0o600))

	gz := filepath.Join(dir, "seed.json.gz")
	f, err := os.Create(gz)
	require.NoError(t, err)
	zw := pgzip.NewWriter(f)
	_, err = zw.Write([]byte(sampleSeed))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, gz} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			data, err := readSeedFile(path)
			require.NoError(t, err)

			require.Len(t, data.Categories, 1)
			assert.Equal(t, "Coffee", data.Categories[0].Name)
			require.Len(t, data.Categories[0].Products, 1)
			assert.Equal(t, "9.5", data.Categories[0].Products[0].Price.String())
			require.Len(t, data.Users, 1)
			assert.Equal(t, []string{"seller"}, data.Users[0].Groups)
			assert.Equal(t, "${SEED_TEST_KEY}", data.Users[0].APIKeys[0].Key)
		})
	}
}

func TestReadSeedFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"categories": [`), 0o600))

	_, err := readSeedFile(path)
	assert.Error(t, err)

	_, err = readSeedFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
