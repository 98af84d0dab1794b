package verify

import (
	"encoding/asn1"
	"fmt"

	"github.com/evidensys/padessign/cms"
)

// runChecklist evaluates the PAdES-B baseline rule set against the gathered
// facts. Every rule is reported, satisfied or not.
func runChecklist(st *state) []ComplianceCheck {
	var checks []ComplianceCheck
	add := func(requirement string, satisfied bool, level CheckLevel, details string) {
		checks = append(checks, ComplianceCheck{
			Requirement: requirement,
			Satisfied:   satisfied,
			Level:       level,
			Details:     details,
		})
	}

	add("Cryptographic signature verifies", st.sigValid, CheckMandatory, "")
	add("messageDigest equals the ByteRange digest", st.digestMatches, CheckMandatory, "")

	chainOK := st.chainResult != nil && st.chainResult.Valid
	chainDetails := ""
	if st.chainResult != nil && len(st.chainResult.Reasons) > 0 {
		chainDetails = st.chainResult.Reasons[0]
	}
	add("Certificate chain is valid", chainOK, CheckMandatory, chainDetails)

	add("SignedData version is 1", st.hasCMS && st.signedDataVersion == 1, CheckMandatory,
		versionDetails("SignedData", st.hasCMS, st.signedDataVersion))
	add("SignerInfo version is 1", st.hasCMS && st.signerInfoVersion == 1, CheckMandatory,
		versionDetails("SignerInfo", st.hasCMS, st.signerInfoVersion))

	add("Signature is detached (eContent absent)", st.hasCMS && st.detached, CheckMandatory, "")
	add("eContentType is id-data", st.hasCMS && st.eContentIsData, CheckMandatory, "")

	add("contentType signed attribute present and equals id-data", st.contentTypeOK, CheckMandatory, "")
	add("messageDigest signed attribute present", st.messageDigestPresent, CheckMandatory, "")
	add("signingTime signed attribute absent", st.signingTimeAbsent, CheckMandatory,
		"PAdES baseline forbids the CMS signingTime attribute")

	add("Signer certificate allows digitalSignature or nonRepudiation", st.keyUsageOK, CheckMandatory, "")
	add("Signer certificate valid at verification time", st.certValidAtUse, CheckMandatory, "")

	if st.timestamped {
		add("Signature time-stamp token parses as CMS SignedData", st.tokenValid, CheckMandatory,
			"required for the claimed B-T level")
	}

	add("signingCertificateV2 signed attribute present", st.signingCertV2Present, CheckRecommended, "")
	add("Digest algorithm is SHA-256 or stronger", isStrongDigest(st.digestAlgorithm), CheckRecommended,
		oidDetails(st.digestAlgorithm))
	add("Signature algorithm is RSA with SHA-256 or stronger", isStrongSignature(st.signatureAlgorithm), CheckRecommended,
		oidDetails(st.signatureAlgorithm))

	return checks
}

func versionDetails(what string, hasCMS bool, version int) string {
	if !hasCMS {
		return "no CMS container"
	}
	return fmt.Sprintf("%s version is %d", what, version)
}

func oidDetails(oid asn1.ObjectIdentifier) string {
	if len(oid) == 0 {
		return "no algorithm"
	}
	return "algorithm " + oid.String()
}

func isStrongDigest(oid asn1.ObjectIdentifier) bool {
	return oid.Equal(cms.OIDDigestAlgorithmSHA256) ||
		oid.Equal(cms.OIDDigestAlgorithmSHA384) ||
		oid.Equal(cms.OIDDigestAlgorithmSHA512)
}

func isStrongSignature(oid asn1.ObjectIdentifier) bool {
	// rsaEncryption is accepted: the digest algorithm then qualifies the
	// strength, which the digest rule already covers.
	return oid.Equal(cms.OIDSignatureSHA256WithRSA) ||
		oid.Equal(cms.OIDSignatureSHA384WithRSA) ||
		oid.Equal(cms.OIDSignatureSHA512WithRSA) ||
		oid.Equal(cms.OIDSignatureRSA)
}
