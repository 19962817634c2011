package security

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"

	"github.com/omakh-hive/queen/internal/config"
)

// allowedImageFormats mirrors image_scanner.py's ALLOWED_FORMATS.
var allowedImageFormats = map[string]bool{
	"png": true, "jpeg": true, "jpg": true, "gif": true, "bmp": true, "webp": true,
}

// imageSuspiciousPatterns mirrors image_scanner.py's
// SUSPICIOUS_PATTERNS, run over any OCR-extracted text.
var imageSuspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)ignore\s+(previous\s+)?instructions?`),
	regexp.MustCompile(`(?i)\bsystem\s*:`),
	regexp.MustCompile(`\[SYSTEM\]`),
	regexp.MustCompile(`\[ADMIN\]`),
	regexp.MustCompile(`(?i)\bsubprocess\b`),
	regexp.MustCompile(`(?i)os\.system`),
	regexp.MustCompile(`__import__`),
	regexp.MustCompile(`(?i)\bapi[_-]?key\b`),
	regexp.MustCompile(`(?i)\bpassword\b`),
	regexp.MustCompile(`(?i)\bsecret\b`),
	regexp.MustCompile(`(?i)\btoken\b`),
	regexp.MustCompile(`(?i)\bbearer\b`),
}

// OCRFunc extracts any text rendered inside image bytes. The scanner
// treats a nil OCRFunc as "no OCR available" and skips that check
// rather than failing the scan — OCR is a best-effort signal here,
// not a hard dependency.
type OCRFunc func(data []byte) (string, error)

// ImageScanner implements the image sub-gate of the security
// pipeline: format/size validation, hashing, best-effort OCR, and a
// suspicious-pattern rescan of any extracted text.
type ImageScanner struct {
	cfg *config.SecurityConfig
	ocr OCRFunc
}

// NewImageScanner builds an ImageScanner. ocr may be nil.
func NewImageScanner(cfg *config.SecurityConfig, ocr OCRFunc) *ImageScanner {
	return &ImageScanner{cfg: cfg, ocr: ocr}
}

// ScanRaw scans raw image bytes.
func (s *ImageScanner) ScanRaw(data []byte) ImageScanResult {
	result := ImageScanResult{IsSafe: true, FileSize: int64(len(data))}

	sum := sha256.Sum256(data)
	result.FileHash = hex.EncodeToString(sum[:])

	if result.FileSize > s.cfg.Image.MaxBytes {
		result.RiskScore = 100
		result.Issues = append(result.Issues, fmt.Sprintf("file size %d exceeds maximum %d bytes", result.FileSize, s.cfg.Image.MaxBytes))
		result.IsSafe = false
		return result
	}

	format := sniffFormat(data)
	result.Format = format
	if !allowedImageFormats[format] {
		result.RiskScore += 50
		result.Issues = append(result.Issues, fmt.Sprintf("format %q is not in the allowed format list", format))
	}

	if s.ocr != nil {
		text, err := s.ocr(data)
		if err == nil && text != "" {
			result.ExtractedText = text
			for _, p := range imageSuspiciousPatterns {
				if p.MatchString(text) {
					result.RiskScore += 25
					result.Issues = append(result.Issues, "suspicious pattern detected in extracted text")
				}
			}
		}
	}

	if result.RiskScore > 100 {
		result.RiskScore = 100
	}
	result.IsSafe = result.RiskScore < 50 && len(result.Issues) == 0
	return result
}

// ScanBase64 decodes a base64-encoded image and scans it, mirroring
// image_scanner.py's validate_base64_image entry point.
func (s *ImageScanner) ScanBase64(encoded string) (ImageScanResult, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ImageScanResult{}, fmt.Errorf("security: decode base64 image: %w", err)
	}
	return s.ScanRaw(data), nil
}

func sniffFormat(data []byte) string {
	ct := http.DetectContentType(data)
	switch ct {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpeg"
	case "image/gif":
		return "gif"
	case "image/bmp":
		return "bmp"
	case "image/webp":
		return "webp"
	default:
		return "unknown"
	}
}
