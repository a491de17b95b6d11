// Package auth resolves and validates the Gemini API key.
package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Environment variables consulted by GetAPIKey.
const (
	APIKeyEnv          = "GEMINI_API_KEY"
	CredentialsFileEnv = "IMAGEGEN_CREDENTIALS_FILE"
	PassphraseFileEnv  = "IMAGEGEN_GPG_PASSPHRASE_FILE"
)

const credentialFile = "credentials.gpg"

// GetAPIKey retrieves the Gemini API key from available sources.
// Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. GPG-encrypted file at IMAGEGEN_CREDENTIALS_FILE or ~/.config/imagegen/credentials.gpg
func GetAPIKey() (string, error) {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		log.Debug().Msg("Using API key from environment variable")
		return key, nil
	}

	key, err := getFromGPG()
	if err == nil && key != "" {
		log.Debug().Msg("Using API key from GPG encrypted file")
		return key, nil
	}

	log.Debug().Err(err).Msg("No API key source available")
	return "", &ValidationError{
		Type:    ErrTypeNoKey,
		Message: "API key not found; set " + APIKeyEnv + " or create " + credentialFile,
		Err:     err,
	}
}

// getFromGPG decrypts the API key from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	credPath, err := credentialPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(credPath); err != nil {
		return "", fmt.Errorf("GPG credentials file not available at %s: %w", credPath, err)
	}

	args := []string{"--decrypt", "--quiet"}
	if pass, ok := passphraseFile(); ok {
		args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", pass)
	}
	args = append(args, credPath)

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	var stderr bytes.Buffer
	cmd := exec.Command("gpg", args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// credentialPath returns the credentials file location.
func credentialPath() (string, error) {
	if p := os.Getenv(CredentialsFileEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "imagegen", credentialFile), nil
}

// passphraseFile returns the configured passphrase file when it exists and is
// readable by its owner only.
func passphraseFile() (string, bool) {
	p := os.Getenv(PassphraseFileEnv)
	if p == "" {
		return "", false
	}
	fi, err := os.Stat(p)
	if err != nil {
		return "", false
	}
	if mode := fi.Mode().Perm(); mode&0o077 != 0 {
		log.Warn().
			Str("passphrase_file", p).
			Str("permissions", fmt.Sprintf("%04o", mode)).
			Msg("Passphrase file has insecure permissions (should be 0600); skipping")
		return "", false
	}
	return p, true
}
