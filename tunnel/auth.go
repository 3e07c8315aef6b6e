package tunnel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// defaultKeyFiles are tried under ~/.ssh when nothing is configured.
var defaultKeyFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// BuildAuthMethods returns the credentials offered to the gateway, in
// order: key file, agent, password.  With none configured it falls back
// to the agent and the usual key files.  Any prompt happens here, once.
func BuildAuthMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.KeyPath != "" {
		m, err := keyFileAuth(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", cfg.KeyPath, err)
		}
		methods = append(methods, m)
	}

	if cfg.UseAgent {
		m, err := agentAuth()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		methods = append(methods, m)
	}

	pass := cfg.Password
	if pass == "" && cfg.PromptPass {
		p, err := promptSecret(fmt.Sprintf("%s@%s's password: ", cfg.User, cfg.Host))
		if err != nil {
			return nil, err
		}
		pass = string(p)
	}
	if pass != "" {
		// Many sshd setups only offer password login as
		// keyboard-interactive, so answer both.
		methods = append(methods, ssh.Password(pass), answerWith(pass))
	}

	if len(methods) == 0 {
		methods = discoverAuthMethods()
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH credentials for %s: use --ssh-key, --ssh-password or --ssh-agent",
			cfg.Addr())
	}
	return methods, nil
}

// answerWith replies pass to every hidden keyboard-interactive prompt.
func answerWith(pass string) ssh.AuthMethod {
	return ssh.KeyboardInteractive(func(_, _ string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			if !echos[i] {
				answers[i] = pass
			}
		}
		return answers, nil
	})
}

func keyFileAuth(path string) (ssh.AuthMethod, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		var phrase []byte
		if phrase, err = promptSecret("Enter passphrase for " + path + ": "); err != nil {
			return nil, err
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, phrase)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}

func agentAuth() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("agent at %s: %w", sock, err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// discoverAuthMethods collects whatever works without configuration.
// Encrypted keys are skipped rather than prompted for.
func discoverAuthMethods() []ssh.AuthMethod {
	var found []ssh.AuthMethod
	if m, err := agentAuth(); err == nil {
		found = append(found, m)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return found
	}
	for _, name := range defaultKeyFiles {
		pem, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if signer, err := ssh.ParsePrivateKey(pem); err == nil {
			found = append(found, ssh.PublicKeys(signer))
		}
	}
	return found
}

// promptSecret reads a line from the terminal without echo.
func promptSecret(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%sstdin is not a terminal", prompt)
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	return secret, nil
}

// hostKeyCallback verifies the gateway against known_hosts when strict
// checking is on, and accepts any key otherwise.
func hostKeyCallback(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}
	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts %s: %w", path, err)
	}
	return cb, nil
}
