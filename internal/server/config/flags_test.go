package config

import (
	"flag"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd",
			"-a", "127.0.0.1:9090", "-d", "db", "-l", "debug", "-m", "/srv/media", "-v", "/srv/vision", "-x", "s3",
			"-u", "user", "-p", "password", "-b", "bucket", "-g", "us-west-1", "-e", "http://endpoint",
			"-H", "broker", "-P", "8883", "-B", "lab/caixa", "-r", "rockpi-09", "-k", "exec",
		}, expectPanic: false,
			expected: &Config{
				HTTPAddr:       "127.0.0.1:9090",
				DatabaseDSN:    "db",
				LogLevel:       "debug",
				MediaRoot:      "/srv/media",
				VisionDir:      "/srv/vision",
				EvidenceDriver: "s3",
				S3RootUser:     "user",
				S3RootPassword: "password",
				S3Bucket:       "bucket",
				S3Region:       "us-west-1",
				S3BaseEndpoint: "http://endpoint",
				MQTTHost:       "broker",
				MQTTPort:       8883,
				MQTTBase:       "lab/caixa",
				ReaderID:       "rockpi-09",
				AnalyzerMode:   "exec",
			}},
		{name: "Unrelated flags are ignored", args: []string{"cmd", "-c", "cfg.json", "-z", "1"},
			expected: &Config{}},
		{name: "Bad port panics", args: []string{"cmd", "-P", "notaport"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)

			origArgs := os.Args
			t.Cleanup(func() { os.Args = origArgs })
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
