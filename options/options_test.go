package options

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robbyt/go-replkit/engines/gowasm/runner"
	"github.com/robbyt/go-replkit/engines/gowasm/toolchain"
	"github.com/robbyt/go-replkit/platform/script/loader"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.NotNil(t, cfg.GetHandler())
	assert.Equal(t, toolchain.DefaultBinary, cfg.GetGoBinary())
	assert.Equal(t, DefaultTimeout, cfg.GetTimeout())
	assert.Equal(t, os.Stdout, cfg.GetOutput())
	assert.Equal(t, loader.DefaultCacheSize, cfg.GetFetchCacheSize())
	assert.NotNil(t, cfg.GetHTTPOptions())
	assert.Nil(t, cfg.GetS3Options())
	assert.Nil(t, cfg.GetToolchain())
	assert.Nil(t, cfg.GetRunner())
	assert.Empty(t, cfg.GetWorkDir())
}

func TestWithOptions(t *testing.T) {
	t.Parallel()

	handler := slog.NewTextHandler(os.Stdout, nil)
	tc := &toolchain.MockToolchain{}
	rn := &runner.MockRunner{}
	var out bytes.Buffer
	httpOpts := loader.DefaultHTTPOptions()
	s3Opts := &loader.S3Options{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}

	cfg, err := New(
		WithLogHandler(handler),
		WithToolchain(tc),
		WithRunner(rn),
		WithGoBinary("/opt/go/bin/go"),
		WithWorkDir("/var/tmp"),
		WithTimeout(5*time.Second),
		WithOutput(&out),
		WithClasspath("/lib/a"),
		WithClasspath("/lib/b"),
		WithPrelude(`import "fmt"`),
		WithHTTPOptions(httpOpts),
		WithS3Options(s3Opts),
		WithFetchCacheSize(4),
	)
	require.NoError(t, err)

	assert.Equal(t, handler, cfg.GetHandler())
	assert.Equal(t, tc, cfg.GetToolchain())
	assert.Equal(t, rn, cfg.GetRunner())
	assert.Equal(t, "/opt/go/bin/go", cfg.GetGoBinary())
	assert.Equal(t, "/var/tmp", cfg.GetWorkDir())
	assert.Equal(t, 5*time.Second, cfg.GetTimeout())
	assert.Same(t, &out, cfg.GetOutput())
	assert.Equal(t, []string{"/lib/a", "/lib/b"}, cfg.GetClasspath())
	assert.Equal(t, []string{`import "fmt"`}, cfg.GetPrelude())
	assert.Equal(t, 4, cfg.GetFetchCacheSize())

	t.Run("options are copied", func(t *testing.T) {
		assert.NotSame(t, httpOpts, cfg.GetHTTPOptions())
		assert.NotSame(t, s3Opts, cfg.GetS3Options())
		assert.Equal(t, *s3Opts, *cfg.GetS3Options())

		cp := cfg.GetClasspath()
		cp[0] = "changed"
		assert.Equal(t, "/lib/a", cfg.GetClasspath()[0])
	})

	t.Run("sources", func(t *testing.T) {
		src := cfg.Sources()
		assert.Equal(t, cfg.GetS3Options(), src.S3)
		require.NotNil(t, src.HTTP)
		assert.NotSame(t, cfg.GetHTTPOptions(), src.HTTP)
	})
}

func TestNilOptionsAreRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opt  Option
	}{
		{"log handler", WithLogHandler(nil)},
		{"toolchain", WithToolchain(nil)},
		{"runner", WithRunner(nil)},
		{"output", WithOutput(nil)},
		{"http options", WithHTTPOptions(nil)},
		{"s3 options", WithS3Options(nil)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opt)
			require.Error(t, err)
		})
	}
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := New(WithTimeout(-time.Second))
	require.ErrorIs(t, err, ErrInvalidTimeout)

	_, err = New(WithFetchCacheSize(-1))
	require.ErrorIs(t, err, ErrInvalidCacheSize)

	cfg := &Config{fetchCacheSize: 1}
	require.ErrorIs(t, cfg.Validate(), ErrNoGoBinary)

	cfg.toolchain = &toolchain.MockToolchain{}
	require.NoError(t, cfg.Validate(), "an injected toolchain needs no go binary")
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	require.NoError(t, WithDefaults()(cfg))
	assert.NotNil(t, cfg.GetHandler())
	assert.Equal(t, toolchain.DefaultBinary, cfg.GetGoBinary())
	assert.NotNil(t, cfg.GetOutput())
	assert.NotNil(t, cfg.GetHTTPOptions())
	assert.Equal(t, loader.DefaultCacheSize, cfg.GetFetchCacheSize())
	assert.Zero(t, cfg.GetTimeout(), "a zero timeout stays disabled")
}
