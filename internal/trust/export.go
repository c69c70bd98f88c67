package trust

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EvidencePackage bundles the audit chain, compliance report, and chain
// verification result into one exportable JSON document for auditors.
type EvidencePackage struct {
	ExportedAt       time.Time         `json:"exported_at"`
	GatewayID        string            `json:"gateway_id"`
	ChainLength      int64             `json:"chain_length"`
	ChainValid       bool              `json:"chain_valid"`
	ChainBrokenAt    int64             `json:"chain_broken_at,omitempty"`
	AuditEntries     []ChainEntry      `json:"audit_entries"`
	ComplianceReport *ComplianceReport `json:"compliance_report"`
	RecordCount      int64             `json:"record_count"`
	TimeRange        TimeRange         `json:"time_range"`
	Attestation      string            `json:"attestation"` // HMAC over package contents
}

// TimeRange captures the earliest and latest timestamps in the audit chain.
type TimeRange struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// GenerateEvidencePackage builds a signed evidence package from the current
// audit chain and compliance report. The package itself carries an
// HMAC-SHA256 attestation so auditors can verify the export is untouched.
func GenerateEvidencePackage(chain *AuditChain, compliance *ComplianceReport, gatewayID string, secret string) *EvidencePackage {
	entries := chain.Entries()
	chainLen := chain.Len()
	valid, brokenAt, _ := chain.Verify()

	tr := TimeRange{}
	if len(entries) > 0 {
		tr.Earliest = entries[0].Timestamp
		tr.Latest = entries[len(entries)-1].Timestamp
	}

	pkg := &EvidencePackage{
		ExportedAt:       time.Now().UTC(),
		GatewayID:        gatewayID,
		ChainLength:      chainLen,
		ChainValid:       valid,
		ChainBrokenAt:    brokenAt,
		AuditEntries:     entries,
		ComplianceReport: compliance,
		RecordCount:      chainLen,
		TimeRange:        tr,
	}

	// The attestation field stays empty while signing.
	pkg.Attestation = signPackage(pkg, secret)
	return pkg
}

// VerifyAttestation checks the attestation signature against the package
// contents.
func VerifyAttestation(pkg *EvidencePackage, secret string) bool {
	saved := pkg.Attestation
	pkg.Attestation = ""
	expected := signPackage(pkg, secret)
	pkg.Attestation = saved
	return saved == expected
}

func signPackage(pkg *EvidencePackage, secret string) string {
	data, _ := json.Marshal(pkg)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}
