package orchestration

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/models"
)

// EnvironmentPreparer performs the post-create setup step against a freshly
// reachable host. Providers whose images ship ready-to-run use nopPreparer.
type EnvironmentPreparer interface {
	Prepare(ctx context.Context, host *models.Host, profile *models.PlatformProfile) error
}

type nopPreparer struct{}

func (nopPreparer) Prepare(context.Context, *models.Host, *models.PlatformProfile) error {
	return nil
}

const (
	sshPort           = "22"
	sshConnectTimeout = 15 * time.Second
	sshSetupTimeout   = 5 * time.Minute
)

// sshPreparer installs the session runtime over SSH. Marketplace instances
// boot from a bare image, so the agent and app image are pulled here.
type sshPreparer struct {
	user    string
	keyPath string
}

func newSSHPreparer(cfg config.TensorDockConfig) EnvironmentPreparer {
	if cfg.SSHPrivateKeyPath == "" {
		return nopPreparer{}
	}
	return &sshPreparer{user: cfg.SSHUser, keyPath: cfg.SSHPrivateKeyPath}
}

func (p *sshPreparer) Prepare(ctx context.Context, host *models.Host, profile *models.PlatformProfile) error {
	key, err := os.ReadFile(p.keyPath)
	if err != nil {
		return fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("parse ssh key: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            p.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshConnectTimeout,
	}

	ctx, cancel := context.WithTimeout(ctx, sshSetupTimeout)
	defer cancel()

	addr := net.JoinHostPort(host.Address, sshPort)
	dialer := net.Dialer{Timeout: sshConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(clientConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	cmd := fmt.Sprintf("sudo playmesh-agent install --image %q --port %d", profile.AppImage, host.AgentPort)
	if output, err := session.CombinedOutput(cmd); err != nil {
		return fmt.Errorf("agent install failed: %w: %s", err, tailBytes(output, 1024))
	}
	return nil
}

func tailBytes(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[len(b)-max:])
}
