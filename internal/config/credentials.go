package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/sentryai/internal/errors"
	"github.com/rohankatakam/sentryai/internal/models"
)

// CredentialManager resolves default credentials with priority chain
// Environment / config file → Keychain → credentials.yaml
type CredentialManager struct {
	keyring *KeyringManager
	path    string

	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

// NewCredentialManager creates a manager backed by ~/.sentryai/credentials.yaml
func NewCredentialManager() *CredentialManager {
	return NewCredentialManagerAt(filepath.Join(HomeDir(), "credentials.yaml"))
}

// NewCredentialManagerAt uses an explicit credentials file path
func NewCredentialManagerAt(path string) *CredentialManager {
	return &CredentialManager{
		keyring: NewKeyringManager(),
		path:    path,
		in:      os.Stdin,
		out:     os.Stdout,
	}
}

// WithIO replaces stdin/stdout for prompts
func (cm *CredentialManager) WithIO(in io.Reader, out io.Writer) *CredentialManager {
	cm.in = in
	cm.out = out
	cm.reader = nil
	return cm
}

// Path returns the credentials file path
func (cm *CredentialManager) Path() string {
	return cm.path
}

// ResolveDefaults fills the process-level credentials. Values already set on cfg
// (config file or environment) win over the keychain, which wins over credentials.yaml.
func (cm *CredentialManager) ResolveDefaults(cfg *Config) models.WorkspaceCredentials {
	creds := cfg.DefaultCredentials()

	if (creds.OpenAIKey == "" || creds.SentryToken == "") && cm.keyring.IsAvailable() {
		if creds.OpenAIKey == "" {
			creds.OpenAIKey, _ = cm.keyring.Get(KeyringOpenAIKeyItem)
		}
		if creds.SentryToken == "" {
			creds.SentryToken, _ = cm.keyring.Get(KeyringSentryTokenItem)
		}
	}

	if file, err := cm.loadFile(); err == nil {
		creds = creds.Merge(*file)
	}
	return creds
}

// Save stores secrets in the keychain when available and everything else in
// credentials.yaml. Returns where the secrets ended up.
func (cm *CredentialManager) Save(creds models.WorkspaceCredentials) (string, error) {
	file := creds
	location := cm.path

	if cm.keyring.IsAvailable() {
		if creds.OpenAIKey != "" {
			if err := cm.keyring.Set(KeyringOpenAIKeyItem, creds.OpenAIKey); err != nil {
				return "", errors.Wrap(err, errors.KindConfiguration, "failed to save OpenAI API key to keychain")
			}
		}
		if creds.SentryToken != "" {
			if err := cm.keyring.Set(KeyringSentryTokenItem, creds.SentryToken); err != nil {
				return "", errors.Wrap(err, errors.KindConfiguration, "failed to save Sentry token to keychain")
			}
		}
		file.OpenAIKey = ""
		file.SentryToken = ""
		location = "keychain"
	}

	if err := cm.saveFile(file); err != nil {
		return "", errors.Wrap(err, errors.KindConfiguration, "failed to write credentials file")
	}
	return location, nil
}

func (cm *CredentialManager) loadFile() (*models.WorkspaceCredentials, error) {
	data, err := os.ReadFile(cm.path)
	if err != nil {
		return nil, err
	}

	var creds models.WorkspaceCredentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func (cm *CredentialManager) saveFile(creds models.WorkspaceCredentials) error {
	if err := os.MkdirAll(filepath.Dir(cm.path), 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	// user-only read/write
	return os.WriteFile(cm.path, data, 0600)
}

// Prompt asks for a visible value, returning def on empty input
func (cm *CredentialManager) Prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(cm.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(cm.out, "%s: ", label)
	}

	line, err := cm.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// PromptSecret asks for a value without echoing it when attached to a terminal
func (cm *CredentialManager) PromptSecret(label string) (string, error) {
	fmt.Fprintf(cm.out, "%s: ", label)

	if f, ok := cm.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cm.out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return cm.readLine()
}

func (cm *CredentialManager) readLine() (string, error) {
	if cm.reader == nil {
		cm.reader = bufio.NewReader(cm.in)
	}
	line, err := cm.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		if err == io.EOF {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
