// Package sandbox implements the hardened executor (C6): run an artifact
// as a program in a containerd-managed OCI container under strict
// containment, streaming it in over stdin rather than a bind mount.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
)

// Sandbox implements interfaces.Sandbox against containerd.
type Sandbox struct {
	client    *containerd.Client
	namespace string
	cfg       *common.SandboxConfig
	logger    *common.Logger
	seccomp   *specs.LinuxSeccomp
}

// New connects to containerd and loads the configured seccomp profile.
func New(cfg *common.SandboxConfig, logger *common.Logger) (*Sandbox, error) {
	client, err := containerd.New(cfg.ContainerdSocket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	seccomp, err := loadSeccompProfile(cfg.SeccompProfilePath)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to load seccomp profile: %w", err)
	}

	return &Sandbox{
		client:    client,
		namespace: cfg.Namespace,
		cfg:       cfg,
		logger:    logger,
		seccomp:   seccomp,
	}, nil
}

func loadSeccompProfile(path string) (*specs.LinuxSeccomp, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var profile specs.LinuxSeccomp
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("invalid seccomp profile %s: %w", path, err)
	}
	return &profile, nil
}

// Run executes source as a program in a fresh container and returns its
// merged stdout/stderr, or a diagnostic string. Never returns an error for
// execution-time failures; only for sandbox infrastructure failures the
// caller cannot recover from (image pull, containerd unavailable).
func (s *Sandbox) Run(ctx context.Context, source []byte) (string, error) {
	ctx = namespaces.WithNamespace(ctx, s.namespace)

	image, err := s.client.GetImage(ctx, s.cfg.ImageRef)
	if err != nil {
		image, err = s.client.Pull(ctx, s.cfg.ImageRef, containerd.WithPullUnpack)
		if err != nil {
			return "", fmt.Errorf("failed to obtain sandbox image %s: %w", s.cfg.ImageRef, err)
		}
	}

	id := fmt.Sprintf("rce-run-%d", time.Now().UnixNano())

	opts := s.specOpts()
	container, err := s.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create sandbox container: %w", err)
	}
	defer container.Delete(context.Background(), containerd.WithSnapshotCleanup)

	stdin := bytes.NewReader(source)
	var stdout, stderr bytes.Buffer

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(stdin, &stdout, &stderr)))
	if err != nil {
		return "", fmt.Errorf("failed to create sandbox task: %w", err)
	}
	defer task.Delete(context.Background())

	exitCh, err := task.Wait(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to wait on sandbox task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		return "", fmt.Errorf("failed to start sandbox task: %w", err)
	}

	timeout := s.cfg.Timeout()
	select {
	case status := <-exitCh:
		if err := status.Error(); err != nil {
			return fmt.Sprintf("System Error: %s", err), nil
		}
		if status.ExitCode() != 0 {
			return fmt.Sprintf("Error (Exit Code %d): %s", status.ExitCode(), stderr.String()), nil
		}
		return mergeOutput(stdout.String(), stderr.String()), nil

	case <-time.After(timeout):
		task.Kill(context.Background(), 9) // SIGKILL
		<-exitCh
		return "Error: Execution timed out.", nil
	}
}

// mergeOutput concatenates stdout and stderr in that order, as the merged
// standard output the contract promises.
func mergeOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout == "" {
		return stderr
	}
	return stdout + stderr
}

// specOpts builds the OCI spec options enforcing the mandatory containment
// policy: no network, read-only rootfs, dropped capabilities, resource
// caps, and (when configured) the loaded seccomp profile.
func (s *Sandbox) specOpts() []oci.SpecOpts {
	opts := []oci.SpecOpts{
		oci.WithProcessArgs(s.interpreterArgs()...),
		oci.WithRootFSReadonly(),
		oci.WithNoNewPrivileges,
		oci.WithCapabilities(nil),
		oci.WithLinuxNamespace(specs.LinuxNamespace{Type: specs.NetworkNamespace}),
	}

	if s.cfg.CPUShares > 0 {
		opts = append(opts, oci.WithCPUShares(s.cfg.CPUShares))
	}
	if s.cfg.CPUQuotaUS > 0 && s.cfg.CPUPeriodUS > 0 {
		opts = append(opts, oci.WithCPUCFS(s.cfg.CPUQuotaUS, s.cfg.CPUPeriodUS))
	}
	if s.cfg.MemoryLimitBytes > 0 {
		opts = append(opts, oci.WithMemoryLimit(uint64(s.cfg.MemoryLimitBytes)))
	}
	if s.cfg.PidsLimit > 0 {
		opts = append(opts, oci.WithPidsLimit(s.cfg.PidsLimit))
	}
	if s.seccomp != nil {
		opts = append(opts, oci.WithSeccompProfile(s.seccomp))
	}

	return opts
}

// interpreterArgs runs the target language interpreter reading the program
// from stdin, never from a path on disk.
func (s *Sandbox) interpreterArgs() []string {
	return []string{"python3", "-"}
}

// Close releases the containerd client connection.
func (s *Sandbox) Close() error {
	return s.client.Close()
}

var _ interfaces.Sandbox = (*Sandbox)(nil)
