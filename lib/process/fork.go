// Package process spawns and supervises the provider subprocess.
package process

import (
	"os"
	"os/exec"

	"github.com/cockroachdb/errors"
)

// Options describe how to launch the provider.
type Options struct {
	// Path is the provider executable.
	Path string
	// ConfigDir is passed through as --config-dir.
	ConfigDir string
	// Plugins are the plugin references, one -p argument each.
	Plugins []string
	// SocketPath is handed to the connect-to directive; the provider
	// listens there and the host dials it.
	SocketPath string
	// Stdin is the launching session's captured standard input, written
	// to the child so plugins that read it behave as if run in-process.
	Stdin []byte
	// Env is the child's environment. Nil inherits the host's.
	Env []string
}

// Provider is a running provider subprocess.
type Provider struct {
	cmd *exec.Cmd
}

// Spawn starts the provider. The child's stderr is passed through so its
// logs interleave with the host's.
func Spawn(opts Options) (*Provider, error) {
	args := []string{"--config-dir", opts.ConfigDir}
	for _, p := range opts.Plugins {
		args = append(args, "-p", p)
	}
	args = append(args, "connect-to", opts.SocketPath)

	cmd := exec.Command(opts.Path, args...)
	cmd.Env = opts.Env
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open provider stdin")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start provider %s", opts.Path)
	}

	// Replay the captured stdin and signal EOF so line-oriented plugins
	// finish their initial read.
	go func() {
		if len(opts.Stdin) > 0 {
			_, _ = stdin.Write(opts.Stdin)
		}
		_ = stdin.Close()
	}()

	return &Provider{cmd: cmd}, nil
}

// Wait blocks until the provider exits, reaping the child.
func (p *Provider) Wait() error {
	if err := p.cmd.Wait(); err != nil {
		return errors.Wrap(err, "provider exited with error")
	}
	return nil
}

// Kill force-terminates the provider. Used when the session ends before
// the provider acknowledged Quit.
func (p *Provider) Kill() error {
	if err := p.cmd.Process.Kill(); err != nil {
		return errors.Wrap(err, "failed to kill provider")
	}
	return nil
}
