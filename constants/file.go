package constants

import "strings"

// Document formats stored in the format column of extract_job.
const (
	PDF  = "PDF"
	DOCX = "DOCX"
)

// FileTypes holds the allowed values for the format field in ExtractJob.
var FileTypes = []string{PDF, DOCX}

// AllowedExtensions holds the file extensions accepted for SoF extraction.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns PDF or DOCX for a supported extension, "" otherwise.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "docx":
		return DOCX
	default:
		return ""
	}
}

// AllowedExt reports whether ext (with or without the dot) can be extracted.
func AllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
