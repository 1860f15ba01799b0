package providers

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mrrustybutter/orchestrator/internal/models"
)

// CodingAgent spawns an external coding assistant process per task and
// tracks running instances so callers can await completion separately.
type CodingAgent struct {
	timeout   time.Duration
	instances sync.Map // instanceID (string) -> *codingInstance
}

type codingInstance struct {
	id     string
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer
	done   chan struct{}
	err    error
	cancel context.CancelFunc
}

// NewCodingAgent creates a coding agent backend with a per-run timeout
func NewCodingAgent(timeout time.Duration) *CodingAgent {
	return &CodingAgent{timeout: timeout}
}

// Spawn starts a coding-agent process for the given role and prompt and
// returns an instance id. The process runs until it exits on its own or the
// timeout elapses; use WaitForCompletion to collect its output.
func (a *CodingAgent) Spawn(ctx context.Context, provider models.Provider, role, prompt string, requiredTools []string) (string, error) {
	if provider.Type != models.ProviderTypeCoding {
		return "", fmt.Errorf("provider %s is not a coding backend", provider.Name)
	}
	if provider.Command == "" {
		return "", fmt.Errorf("provider %s has no coding-agent command configured", provider.Name)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)

	args := append([]string{}, provider.Args...)
	if role != "" {
		args = append(args, "--role", role)
	}
	if len(requiredTools) > 0 {
		args = append(args, "--tools", strings.Join(requiredTools, ","))
	}
	args = append(args, "-p", prompt)

	inst := &codingInstance{
		id:     uuid.New().String(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	inst.cmd = exec.CommandContext(runCtx, provider.Command, args...)
	inst.cmd.Stdout = &inst.stdout
	inst.cmd.Stderr = &inst.stderr

	if err := inst.cmd.Start(); err != nil {
		cancel()
		return "", fmt.Errorf("failed to start coding agent: %w", err)
	}

	a.instances.Store(inst.id, inst)
	log.Printf("🛠️ [CODING] Spawned %s instance %s (pid %d)", provider.Name, inst.id, inst.cmd.Process.Pid)

	go func() {
		defer cancel()
		inst.err = inst.cmd.Wait()
		close(inst.done)
	}()

	return inst.id, nil
}

// WaitForCompletion blocks until the instance's process exits or ctx is
// cancelled, then returns the accumulated stdout. The instance is removed
// from tracking once collected.
func (a *CodingAgent) WaitForCompletion(ctx context.Context, instanceID string) (string, error) {
	val, ok := a.instances.Load(instanceID)
	if !ok {
		return "", fmt.Errorf("coding instance not found: %s", instanceID)
	}
	inst := val.(*codingInstance)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-inst.done:
	}

	a.instances.Delete(instanceID)

	output := strings.TrimSpace(inst.stdout.String())
	if inst.err != nil {
		detail := strings.TrimSpace(inst.stderr.String())
		if detail == "" {
			detail = output
		}
		return "", fmt.Errorf("coding agent failed: %w (%s)", inst.err, truncate(detail, 300))
	}

	return output, nil
}

// Run is the common path: spawn and wait in one call
func (a *CodingAgent) Run(ctx context.Context, provider models.Provider, role, prompt string, requiredTools []string) (string, error) {
	instanceID, err := a.Spawn(ctx, provider, role, prompt, requiredTools)
	if err != nil {
		return "", err
	}
	return a.WaitForCompletion(ctx, instanceID)
}

// ActiveCount returns the number of instances still running
func (a *CodingAgent) ActiveCount() int {
	count := 0
	a.instances.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// CancelAll stops every running instance. Used on shutdown.
func (a *CodingAgent) CancelAll() {
	a.instances.Range(func(key, val any) bool {
		inst := val.(*codingInstance)
		inst.cancel()
		a.instances.Delete(key)
		return true
	})
}
