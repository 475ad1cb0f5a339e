package eval

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

// FilePlaceholder in a runner command is replaced with the test file path,
// relative to the workspace.
const FilePlaceholder = "{file}"

// Defaults for CommandRunner.
const (
	DefaultTestTimeout   = 60 * time.Second
	DefaultParallelism   = 4
	DefaultTestDir       = "autoheal_tests"
	DefaultTestExtension = ".test.js"
	maxFailureOutput     = 4000
)

// CommandConfig configures a CommandRunner.
type CommandConfig struct {
	// Command is the argv run once per test case, e.g.
	// ["node", "--test", "{file}"].
	Command     []string      `koanf:"command" yaml:"command" validate:"required,min=1"`
	Timeout     time.Duration `koanf:"timeout" yaml:"timeout" validate:"gte=0"`
	Parallelism int           `koanf:"parallelism" yaml:"parallelism" validate:"gte=0"`
	Env         []string      `koanf:"env" yaml:"env,omitempty"`

	// Extension is appended to generated test file names when a test case
	// has no filePath.
	Extension string `koanf:"extension" yaml:"extension"`
}

// CommandRunner materializes the patched files into a temporary workspace
// and runs one command per test case. A non-zero exit fails the test.
type CommandRunner struct {
	cfg    CommandConfig
	logger *log.Logger
}

var _ TestRunner = (*CommandRunner)(nil)

// NewCommandRunner creates a CommandRunner.
func NewCommandRunner(cfg CommandConfig, logger *log.Logger) (*CommandRunner, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("test command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTestTimeout
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.Extension == "" {
		cfg.Extension = DefaultTestExtension
	}
	return &CommandRunner{cfg: cfg, logger: log.OrDefault(logger).WithComponent("eval")}, nil
}

// Run writes files and tests under a fresh temp dir and executes every test.
func (r *CommandRunner) Run(ctx context.Context, tests []fixgen.TestCase, files patch.Files) (*ValidationResult, error) {
	dir, err := os.MkdirTemp("", "autoheal-validate-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	for _, path := range files.Paths() {
		if err := writeFile(dir, path, files[path]); err != nil {
			return nil, err
		}
	}

	testPaths := make([]string, len(tests))
	for i, tc := range tests {
		rel := tc.FilePath
		if rel == "" {
			rel = filepath.Join(DefaultTestDir, fmt.Sprintf("%02d_%s%s", i+1, slug(tc.Name), r.cfg.Extension))
		}
		if err := writeFile(dir, rel, tc.Code); err != nil {
			return nil, err
		}
		testPaths[i] = rel
	}

	errs := make([]string, len(tests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i := range tests {
		g.Go(func() error {
			errs[i] = r.runOne(gctx, dir, testPaths[i])
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ValidationResult{TotalTests: len(tests)}
	for i, tc := range tests {
		if errs[i] == "" {
			result.PassedTests++
			continue
		}
		result.FailedTests++
		result.Failures = append(result.Failures, TestFailure{TestName: tc.Name, Error: errs[i]})
	}
	result.Passed = result.FailedTests == 0
	return result, nil
}

// runOne returns "" on success and the failure detail otherwise.
func (r *CommandRunner) runOne(ctx context.Context, dir, testPath string) string {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	argv := make([]string, len(r.cfg.Command))
	for i, arg := range r.cfg.Command {
		argv[i] = strings.ReplaceAll(arg, FilePlaceholder, testPath)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("test executed", "file", testPath, "duration", time.Since(start), "error", err)
	if err == nil {
		return ""
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("timed out after %s", r.cfg.Timeout)
	}
	output := strings.TrimSpace(stdout.String() + stderr.String())
	if len(output) > maxFailureOutput {
		output = output[len(output)-maxFailureOutput:]
	}
	if output == "" {
		return err.Error()
	}
	return fmt.Sprintf("%v\n%s", err, output)
}

func writeFile(root, rel, content string) error {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes the workspace", rel)
	}
	full := filepath.Join(root, clean)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" {
		return "test"
	}
	return s
}
