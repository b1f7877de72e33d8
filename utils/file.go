package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SanitizeFileName replaces every character outside [A-Za-z0-9-_.] with '_'.
func SanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, name)
}

// TimestampedName turns report.pdf into report_<unix>.pdf.
func TimestampedName(fileName string, at time.Time) string {
	base := filepath.Base(fileName)
	ext := filepath.Ext(base)
	return SanitizeFileName(fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), at.Unix(), ext))
}

// SaveWithTimestamp writes content into uploadDir under a timestamped name
// and returns the destination path.
func SaveWithTimestamp(content []byte, fileName, uploadDir string) (string, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	destPath := filepath.Join(uploadDir, TimestampedName(fileName, time.Now()))
	if err := os.WriteFile(destPath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write archived file: %w", err)
	}
	return destPath, nil
}

// CopyFileWithTimestamp copies a file to the destination directory with a timestamp suffix
// Returns the destination path and error if any
func CopyFileWithTimestamp(sourcePath, uploadDir string) (string, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	destPath := filepath.Join(uploadDir, TimestampedName(sourcePath, time.Now()))
	destFile, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}
	return destPath, nil
}
