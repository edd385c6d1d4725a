package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/eniac111/hostprep/internal/inventory"
)

// SSHRunner executes commands on a remote host over an SSH connection.
type SSHRunner struct {
	client *ssh.Client
	host   string
}

// DialSSH opens an SSH connection using user/password or user/key auth.
func DialSSH(host inventory.Host) (*SSHRunner, error) {
	var authMethods []ssh.AuthMethod

	if host.Password != "" {
		authMethods = append(authMethods, ssh.Password(host.Password))
	}

	if host.KeyPath != "" {
		key, err := os.ReadFile(host.KeyPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read SSH key")
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse SSH key")
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	// Always try to use the default SSH key if no key path is provided
	if host.KeyPath == "" {
		usr, err := user.Current()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get current user")
		}
		defaultKeyPath := filepath.Join(usr.HomeDir, ".ssh", "id_rsa")
		key, err := os.ReadFile(defaultKeyPath)
		if err == nil {
			signer, err := ssh.ParsePrivateKey(key)
			if err == nil {
				authMethods = append(authMethods, ssh.PublicKeys(signer))
				log.WithField("key", defaultKeyPath).Debug("using default SSH key")
			} else {
				log.WithError(err).Debug("failed to parse default SSH key")
			}
		} else {
			log.WithError(err).Debug("failed to read default SSH key")
		}
	}

	// Always try to use the SSH agent
	if sshAgent, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK")); err == nil {
		authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(sshAgent).Signers))
		log.Debug("using SSH agent")
	} else {
		log.WithError(err).Debug("failed to connect to SSH agent")
	}

	if len(authMethods) == 0 {
		return nil, errors.New("no authentication methods available")
	}

	sshUser := host.User
	if sshUser == "" {
		sshUser = "root"
	}

	config := &ssh.ClientConfig{
		User:            sshUser,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // DO NOT USE IN PRODUCTION
	}

	port := host.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", host.Name, port)

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial SSH")
	}
	return &SSHRunner{client: client, host: host.Name}, nil
}

// Run executes a command on the remote host via SSH.
func (r *SSHRunner) Run(ctx context.Context, cmd string) (string, string, error) {
	return r.RunInput(ctx, cmd, nil)
}

// RunInput executes a command with data supplied on its stdin.
func (r *SSHRunner) RunInput(ctx context.Context, cmd string, stdin []byte) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	session, err := r.client.NewSession()
	if err != nil {
		return "", "", errors.Wrap(err, "failed to open session")
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf
	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	if err := session.Run(cmd); err != nil {
		return outBuf.String(), errBuf.String(), err
	}
	return outBuf.String(), errBuf.String(), nil
}

// ReadFile fetches a remote file over SFTP.
func (r *SSHRunner) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(r.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SFTP session")
	}
	defer sftpClient.Close()

	f, err := sftpClient.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(fs.ErrNotExist, "open %s", path)
		}
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return data, nil
}

// WriteFile replaces a remote file's contents over SFTP.
func (r *SSHRunner) WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(r.client)
	if err != nil {
		return errors.Wrap(err, "failed to open SFTP session")
	}
	defer sftpClient.Close()

	f, err := sftpClient.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}
	return errors.Wrapf(sftpClient.Chmod(path, mode), "failed to chmod %s", path)
}

func (r *SSHRunner) Close() error {
	return r.client.Close()
}
