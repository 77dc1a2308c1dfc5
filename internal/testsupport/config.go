package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"ffexec/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Engine.WasmCacheDir = filepath.Join(base, "wasm")
	cfgVal.Engine.LoadTimeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return builder.cfg
}

// WithWasmModule switches the test config to the wasm engine.
func WithWasmModule(ref string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.Kind = config.EngineWasm
		b.cfg.Engine.WasmModule = ref
	}
}

// WithNtfyTopic points notifications at url.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
	}
}

// WithHistoryDisabled turns off the job history database.
func WithHistoryDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// stubFFmpeg copies the file after -i to the last positional argument. Setting
// FFEXEC_STUB_FAIL makes it exit 1 with a message on stderr.
const stubFFmpeg = `#!/bin/sh
if [ "$1" = "-version" ]; then
	echo "ffmpeg version stub"
	exit 0
fi
if [ -n "$FFEXEC_STUB_FAIL" ]; then
	echo "Invalid data found when processing input" >&2
	exit 1
fi
in=""
out=""
while [ $# -gt 0 ]; do
	case "$1" in
	-i)
		shift
		in="$1"
		;;
	-*) ;;
	*) out="$1" ;;
	esac
	shift
done
cp "$in" "$out"
`

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, a stub ffmpeg that copies its
// input to its output is installed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		if len(names) == 0 {
			target := filepath.Join(binDir, "ffmpeg")
			if err := os.WriteFile(target, []byte(stubFFmpeg), 0o755); err != nil {
				b.t.Fatalf("write ffmpeg stub: %v", err)
			}
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ScratchDir)
}
