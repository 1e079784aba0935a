package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_KebabToSnakeCase(t *testing.T) {
	assert.Equal(t, "bundler_rpc_url", KebabToSnakeCase("bundler.rpc-url"))
	assert.Equal(t, "debug", KebabToSnakeCase("debug"))
	assert.Equal(t, "datadog_statsd_enabled", KebabToSnakeCase("datadog.statsd.enabled"))
}

func Test_ParseListEnvVar(t *testing.T) {
	t.Run("Should split and trim a comma separated list", func(t *testing.T) {
		parsed := ParseListEnvVar("0xaaa, 0xbbb ,0xccc")
		assert.Equal(t, []string{"0xaaa", "0xbbb", "0xccc"}, parsed)
	})

	t.Run("Should return an empty list for an empty value", func(t *testing.T) {
		assert.Empty(t, ParseListEnvVar(""))
	})

	t.Run("Should drop empty entries", func(t *testing.T) {
		parsed := ParseListEnvVar("0xaaa,,0xbbb,")
		assert.Equal(t, []string{"0xaaa", "0xbbb"}, parsed)
	})
}

func Test_BundlerConfig(t *testing.T) {
	t.Run("BaseUrl should prefer pimlico when selected", func(t *testing.T) {
		cfg := BundlerConfig{
			RpcUrl:        "http://primary:4337",
			PimlicoRpcUrl: "http://pimlico:4337",
			Provider:      "pimlico",
		}
		assert.Equal(t, "http://pimlico:4337", cfg.BaseUrl())
	})

	t.Run("BaseUrl should fall back to the primary endpoint", func(t *testing.T) {
		cfg := BundlerConfig{
			RpcUrl:   "http://primary:4337",
			Provider: "pimlico",
		}
		assert.Equal(t, "http://primary:4337", cfg.BaseUrl())
	})

	t.Run("ResolvedEntryPoint should default to the canonical v0.7 deployment", func(t *testing.T) {
		cfg := &Config{}
		assert.Equal(t, EntryPointV07, cfg.ResolvedEntryPoint())

		cfg.BundlerConfig.EntryPoint = "0x1234"
		assert.Equal(t, "0x1234", cfg.ResolvedEntryPoint())
	})
}
