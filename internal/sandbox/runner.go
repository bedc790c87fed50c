package sandbox

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/testcontainers/testcontainers-go"

	"github.com/capsuleforge/core/internal/config"
)

// containerRunner runs one request in a fresh, one-shot container per
// execution, via testcontainers-go. The container is always terminated
// before Run returns, success, failure, or timeout alike.
type containerRunner struct {
	images  map[string]string
	harness map[string]languageHarness
}

// languageHarness names the file a code string is written to and the
// command that runs it inside that language's image. Request.Inputs are
// not passed to the command.
type languageHarness struct {
	entrypointFile string
	command        func(entrypointFile string) []string
}

var defaultHarnesses = map[string]languageHarness{
	"python": {
		entrypointFile: "main.py",
		command:        func(f string) []string { return []string{"python", "/" + f} },
	},
	"javascript": {
		entrypointFile: "main.js",
		command:        func(f string) []string { return []string{"node", "/" + f} },
	},
	"typescript": {
		entrypointFile: "main.ts",
		command:        func(f string) []string { return []string{"npx", "ts-node", "/" + f} },
	},
	"go": {
		entrypointFile: "main.go",
		command:        func(f string) []string { return []string{"go", "run", "/" + f} },
	},
}

// NewContainerRunner builds the production Runner backing the Pool.
func NewContainerRunner(cfg config.SandboxConfig) Runner {
	return &containerRunner{images: cfg.Images, harness: defaultHarnesses}
}

func (r *containerRunner) Run(ctx context.Context, req Request, limits Limits) (Result, error) {
	image, ok := r.images[req.Language]
	if !ok {
		return Result{}, &ErrUnsupportedLanguage{Language: req.Language}
	}
	h, ok := r.harness[req.Language]
	if !ok {
		return Result{}, &ErrUnsupportedLanguage{Language: req.Language}
	}

	networkMode := container.NetworkMode("bridge")
	if limits.NetworkOff == nil || *limits.NetworkOff {
		networkMode = container.NetworkMode("none")
	}

	genericReq := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:      image,
			Cmd:        []string{"sleep", "infinity"},
			WaitingFor: nil,
			HostConfigModifier: func(hc *container.HostConfig) {
				hc.NetworkMode = networkMode
				hc.Resources = container.Resources{
					Memory:   limits.MemoryLimitMB * 1024 * 1024,
					NanoCPUs: int64(limits.CPULimit * 1e9),
				}
			},
		},
		Started: true,
	}

	c, err := testcontainers.GenericContainer(ctx, genericReq)
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: start container: %w", err)
	}
	defer func() { _ = c.Terminate(context.WithoutCancel(ctx)) }()

	if err := writeFile(ctx, c, h.entrypointFile, req.Code); err != nil {
		return Result{}, err
	}

	exitCode, stdout, stderr, err := execIn(ctx, c, h.command(h.entrypointFile))
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: exec: %w", err)
	}

	status := StatusSuccess
	if exitCode != 0 {
		status = StatusFailure
	}
	return Result{
		Status:   status,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
	}, nil
}

func writeFile(ctx context.Context, c testcontainers.Container, name, content string) error {
	if err := c.CopyToContainer(ctx, []byte(content), "/"+name, 0644); err != nil {
		return fmt.Errorf("sandbox: write entrypoint: %w", err)
	}
	return nil
}

func execIn(ctx context.Context, c testcontainers.Container, cmd []string) (int, string, string, error) {
	exitCode, reader, err := c.Exec(ctx, cmd)
	if err != nil {
		return 0, "", "", err
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return exitCode, "", "", err
	}
	return exitCode, string(out), "", nil
}
