package procctl

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/servhub/internal/events"
	"github.com/loykin/servhub/internal/logger"
)

const defaultEntrypoint = "run.sh"

// ExecController runs server instances as local child processes. Output
// goes through a rotating writer to the per-run log file; process exit is
// published to the run's event channel.
type ExecController struct {
	broker  *events.Broker
	logCfg  logger.Config
	logger  *slog.Logger
	stopTO  time.Duration
	mu      sync.Mutex
	running map[string]*exec.Cmd
}

func NewExecController(broker *events.Broker, logCfg logger.Config, lg *slog.Logger) *ExecController {
	if lg == nil {
		lg = slog.Default()
	}
	return &ExecController{
		broker:  broker,
		logCfg:  logCfg,
		logger:  lg,
		stopTO:  10 * time.Second,
		running: make(map[string]*exec.Cmd),
	}
}

func runKey(d Descriptor) string { return d.Name + "@" + d.Version }

// Start spawns the instance's entrypoint. The call acknowledges the spawn;
// the exit outcome is delivered on d.ChannelID.
func (c *ExecController) Start(_ context.Context, d Descriptor) error {
	cmd := c.buildCommand(d)
	cmd.Dir = d.Path
	cmd.Env = settingEnv(d)

	w := c.logCfg.ProcessWriter(d.LogFile)
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to start server %s: %w", runKey(d), err)
	}

	c.mu.Lock()
	c.running[runKey(d)] = cmd
	c.mu.Unlock()

	go func() {
		err := cmd.Wait()
		_ = w.Close()
		c.mu.Lock()
		delete(c.running, runKey(d))
		c.mu.Unlock()

		if d.ChannelID == "" {
			return
		}
		if err != nil {
			c.broker.Publish(d.ChannelID, events.Message{Type: events.TypeError, Data: err.Error()})
		} else {
			c.broker.Publish(d.ChannelID, events.Message{Type: events.TypeSuccess})
		}
	}()
	return nil
}

// Stop signals the process with SIGTERM and escalates to SIGKILL after the
// stop timeout. The terminal state is reported through the event channel by
// the exit watcher attached in Start.
func (c *ExecController) Stop(_ context.Context, d Descriptor) error {
	c.mu.Lock()
	cmd := c.running[runKey(d)]
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("server %s is not running", runKey(d))
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal server %s: %w", runKey(d), err)
	}
	go func(p *exec.Cmd) {
		time.Sleep(c.stopTO)
		c.mu.Lock()
		still := c.running[runKey(d)] == p
		c.mu.Unlock()
		if still && p.Process != nil {
			c.logger.Warn("server did not exit in time, killing", "server", runKey(d))
			_ = p.Process.Kill()
		}
	}(cmd)
	return nil
}

// Ping answers whether the server is healthy. When the instance declares a
// port in its settings, health is an HTTP GET to its health endpoint;
// otherwise a live child process counts as healthy.
func (c *ExecController) Ping(ctx context.Context, d Descriptor) (bool, error) {
	if url := healthURL(d); url != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, err
		}
		_ = resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
	}

	c.mu.Lock()
	cmd := c.running[runKey(d)]
	c.mu.Unlock()
	return cmd != nil && cmd.Process != nil, nil
}

// buildCommand prefers a "command" setting (shell string) over the
// conventional entrypoint script in the instance directory.
func (c *ExecController) buildCommand(d Descriptor) *exec.Cmd {
	if raw, ok := d.Setting["command"].(string); ok && strings.TrimSpace(raw) != "" {
		cmdStr := strings.TrimSpace(raw)
		if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
			// #nosec G204
			return exec.Command("/bin/sh", "-c", cmdStr)
		}
		parts := strings.Fields(cmdStr)
		// #nosec G204
		return exec.Command(parts[0], parts[1:]...)
	}
	// #nosec G204
	return exec.Command("/bin/sh", filepath.Join(d.Path, defaultEntrypoint))
}

// settingEnv exposes scalar setting values to the child process as
// SERVHUB_SETTING_<KEY> variables, on top of the inherited environment so
// entrypoint scripts keep PATH and friends.
func settingEnv(d Descriptor) []string {
	env := append(os.Environ(),
		"SERVHUB_NAME="+d.Name,
		"SERVHUB_VERSION="+d.Version,
	)
	for k, v := range d.Setting {
		switch v.(type) {
		case string, float64, int, bool:
			env = append(env, fmt.Sprintf("SERVHUB_SETTING_%s=%v", strings.ToUpper(k), v))
		}
	}
	return env
}

func healthURL(d Descriptor) string {
	port, ok := d.Setting["port"]
	if !ok {
		return ""
	}
	path := "/health"
	if p, ok := d.Setting["health_path"].(string); ok && p != "" {
		path = p
	}
	return fmt.Sprintf("http://127.0.0.1:%v%s", port, path)
}
