// Package record provides the dataset record registry: metadata for
// registered genomic files, anchored on the ledger by content hash. The
// file bytes themselves live in the external content store and are opaque
// to this core.
package record

import (
	"time"
)

// File kinds accepted at registration.
const (
	KindVCF   = "vcf"
	KindBAM   = "bam"
	KindFASTQ = "fastq"
)

// ValidKind reports whether the file kind is one of the accepted values.
func ValidKind(kind string) bool {
	switch kind {
	case KindVCF, KindBAM, KindFASTQ:
		return true
	}
	return false
}

// Record is metadata for one registered genomic file. Immutable after
// creation except for the integrity-verification annotation.
type Record struct {
	ID            string    `json:"id"` // sequential, human-readable (GR-001)
	Patient       string    `json:"patient"`
	Lab           string    `json:"lab"`
	ContentHash   string    `json:"content_hash"`
	Locator       string    `json:"locator"` // opaque content-store locator
	FileKind      string    `json:"file_kind"`
	ReferenceToken string   `json:"reference_token"`
	Verified      bool      `json:"verified"` // integrity annotation, set by VerifyIntegrity
	CreatedAt     time.Time `json:"created_at"`
}
