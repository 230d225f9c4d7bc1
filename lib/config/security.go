package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-i2p/logger"
)

// SecureFilePermissions for files containing secret keys
const SecureFilePermissions = 0o600

// SecureDirPermissions for directories containing secret keys
const SecureDirPermissions = 0o700

// CreateSecureDirectory creates a directory readable only by the current user.
func CreateSecureDirectory(path string) error {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(cleanPath, SecureDirPermissions); err != nil {
		return fmt.Errorf("failed to create secure directory %q: %w", cleanPath, err)
	}

	// MkdirAll leaves existing directories untouched
	if err := os.Chmod(cleanPath, SecureDirPermissions); err != nil {
		log.WithFields(logger.Fields{
			"at":     "CreateSecureDirectory",
			"reason": "chmod_failed",
			"path":   cleanPath,
			"error":  err.Error(),
		}).Warn("could not set secure permissions on directory")
	}
	return nil
}

// WriteSecureFile writes data with owner-only permissions, creating the parent
// directory if needed. Used for generated secret keys.
func WriteSecureFile(path string, data []byte) error {
	cleanPath := filepath.Clean(path)
	if err := CreateSecureDirectory(filepath.Dir(cleanPath)); err != nil {
		return err
	}
	if err := os.WriteFile(cleanPath, data, SecureFilePermissions); err != nil {
		return fmt.Errorf("failed to write secure file %q: %w", cleanPath, err)
	}
	if err := os.Chmod(cleanPath, SecureFilePermissions); err != nil {
		log.WithFields(logger.Fields{
			"at":     "WriteSecureFile",
			"reason": "chmod_failed",
			"path":   cleanPath,
			"error":  err.Error(),
		}).Warn("could not set secure permissions on file")
	}
	log.WithFields(logger.Fields{
		"at":   "WriteSecureFile",
		"path": cleanPath,
		"mode": fmt.Sprintf("%04o", SecureFilePermissions),
	}).Debug("wrote secure file")
	return nil
}
