package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeReadFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "ok.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	data, err := safeReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	_, err = safeReadFile("")
	assert.Error(t, err)

	_, err = safeReadFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	yaml := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yaml, []byte("a: 1"), 0o600))
	_, err = safeReadFile(yaml)
	assert.Error(t, err, "non-JSON files are rejected")

	_, err = safeReadFile(dir + "/sub.json")
	assert.Error(t, err)

	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat(" ", maxConfigSize+1)), 0o600))
	_, err = safeReadFile(big)
	assert.Error(t, err, "oversized files are rejected")
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a":{"b":[1,2,{"c":3}]}}`)))
	assert.NoError(t, validateJSONDepth([]byte(`{"s":"brackets in strings {{{ do not count"}`)))
	assert.NoError(t, validateJSONDepth([]byte(`{"s":"escaped \" quote { inside"}`)))

	deep := strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)
	assert.Error(t, validateJSONDepth([]byte(deep)))

	assert.Error(t, validateJSONDepth([]byte(`{"a":1`)), "unclosed bracket")
	assert.Error(t, validateJSONDepth([]byte(`}`)), "unbalanced bracket")
}

func TestValidateEnvVar(t *testing.T) {
	assert.NoError(t, validateEnvVar("K", "value"))
	assert.NoError(t, validateEnvVar("K", ""))
	assert.Error(t, validateEnvVar("K", "bad\x00value"))
	assert.Error(t, validateEnvVar("K", strings.Repeat("x", maxEnvVarLen+1)))
}
