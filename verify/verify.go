// Package verify re-checks PAdES signatures end to end: ByteRange digest,
// RSA signature over the reconstructed signed attributes, certificate chain
// and the PAdES baseline compliance checklist. A pass never aborts on the
// first failing rule; every rule contributes to the report.
package verify

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"

	"github.com/evidensys/padessign/chain"
	"github.com/evidensys/padessign/cms"
	"github.com/evidensys/padessign/locate"
	"github.com/evidensys/padessign/sign"
)

// state gathers the facts the compliance checker evaluates.
type state struct {
	hasCMS        bool
	digestMatches bool
	sigValid      bool

	signedDataVersion int
	signerInfoVersion int
	detached          bool
	eContentIsData    bool

	contentTypeOK        bool
	messageDigestPresent bool
	signingTimeAbsent    bool
	signingCertV2Present bool

	signerCert     *x509.Certificate
	keyUsageOK     bool
	certValidAtUse bool
	chainResult    *chain.Result

	timestamped bool
	tokenValid  bool
	tokenTime   time.Time

	digestAlgorithm    asn1.ObjectIdentifier
	signatureAlgorithm asn1.ObjectIdentifier
}

// Verify runs the full pipeline over a signed document.
func Verify(data []byte, opts Options) (*Report, error) {
	report := &Report{Reasons: []string{}, Level: LevelUnknown}
	st := &state{signingTimeAbsent: true}

	fieldName := opts.FieldName
	if fieldName == "" {
		fieldName = sign.DefaultFieldName
	}

	report.Document = readDocumentInfo(data)

	areas, err := locate.LocateSignatureAreas(data, fieldName)
	if err != nil {
		report.addReason("No CMS signature found in the document")
		report.Checks = runChecklist(st)
		return report, nil
	}

	report.Signature = extractMeta(data, areas)

	cmsDER := decodeContents(data[areas.ContentsSlot.Start:areas.ContentsSlot.End])
	sd, err := cms.ParseSignedData(cmsDER)
	if err != nil || len(sd.SignerInfos) == 0 {
		report.addReason("No CMS signature found in the document")
		report.Checks = runChecklist(st)
		return report, nil
	}

	st.hasCMS = true
	st.signedDataVersion = sd.Version
	st.detached = sd.IsDetached()
	st.eContentIsData = sd.EncapContentInfo.EContentType.Equal(cms.OIDData)

	si := sd.SignerInfos[0]
	st.signerInfoVersion = si.Version
	st.digestAlgorithm = si.DigestAlgorithm.Algorithm
	st.signatureAlgorithm = si.SignatureAlgorithm.Algorithm

	reconstructed, digestErr := locate.ByteRangeDigest(data, areas.ByteRange)
	if digestErr != nil {
		report.addReason("ByteRange does not address the document: " + digestErr.Error())
	}

	checkSignedAttributes(si, reconstructed, st, report)
	verifySignature(sd, si, st, report)
	checkTimestamp(si, st, report)
	validateChain(sd, st, opts, report)

	report.CryptographicallyValid = st.sigValid && st.digestMatches
	report.Timestamped = st.timestamped
	if st.timestamped {
		report.SignatureTime = &st.tokenTime
	}

	report.Checks = runChecklist(st)
	report.PAdESCompliant = true
	for _, check := range report.Checks {
		if check.Level == CheckMandatory && !check.Satisfied {
			report.PAdESCompliant = false
		}
	}

	switch {
	case !report.CryptographicallyValid:
		report.Level = LevelUnknown
	case st.timestamped:
		report.Level = LevelBT
	default:
		report.Level = LevelBB
	}

	return report, nil
}

// checkSignedAttributes compares the messageDigest attribute against the
// recomputed ByteRange digest and records which attributes are present.
func checkSignedAttributes(si cms.SignerInfo, reconstructed []byte, st *state, report *Report) {
	attrs, err := si.SignedAttributes()
	if err != nil {
		report.addReason("Signed attributes do not parse: " + err.Error())
		return
	}

	if ct := cms.FindAttribute(attrs, cms.OIDAttributeContentType); ct != nil {
		if value, err := ct.SingleValue(); err == nil {
			var oid asn1.ObjectIdentifier
			if _, err := asn1.Unmarshal(value.FullBytes, &oid); err == nil {
				st.contentTypeOK = oid.Equal(cms.OIDData)
			}
		}
	}

	if md := cms.FindAttribute(attrs, cms.OIDAttributeMessageDigest); md != nil {
		st.messageDigestPresent = true
		if value, err := md.SingleValue(); err == nil {
			if reconstructed != nil && bytes.Equal(value.Bytes, reconstructed) {
				st.digestMatches = true
			}
		}
	}
	if !st.digestMatches {
		report.addReason("PDF content has been modified")
	}

	st.signingTimeAbsent = cms.FindAttribute(attrs, cms.OIDAttributeSigningTime) == nil
	if !st.signingTimeAbsent {
		report.addReason("signingTime attribute is forbidden in PAdES baseline signatures")
	}

	st.signingCertV2Present = cms.FindAttribute(attrs, cms.OIDAttributeSigningCertificateV2) != nil
}

// verifySignature reconstructs the signed SET OF Attribute through the
// canonical encoder and checks the RSA PKCS#1 v1.5 signature over it.
func verifySignature(sd *cms.SignedData, si cms.SignerInfo, st *state, report *Report) {
	raw, err := si.SignedAttrsForVerification()
	if err != nil {
		report.addReason("Signature has no signed attributes")
		return
	}
	signed, err := cms.ReencodeSignedAttributes(raw)
	if err != nil {
		report.addReason("Signed attributes cannot be re-encoded: " + err.Error())
		return
	}

	certs, err := sd.X509Certificates()
	if err != nil || len(certs) == 0 {
		report.addReason("Signer certificate is not present in the container")
		return
	}

	signerCert := si.FindCertificate(certs)
	if signerCert == nil {
		signerCert = certs[0]
	}
	st.signerCert = signerCert

	pub, ok := signerCert.PublicKey.(*rsa.PublicKey)
	if !ok {
		report.addReason("Signer certificate does not carry an RSA key")
		return
	}

	digest := sha256.Sum256(signed)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], si.Signature); err != nil {
		report.addReason("Cryptographic signature verification failed")
		return
	}
	st.sigValid = true
}

// checkTimestamp looks for the signature time-stamp token and validates that
// it parses as CMS SignedData whose imprint matches the signature value.
func checkTimestamp(si cms.SignerInfo, st *state, report *Report) {
	attrs, err := si.UnsignedAttributes()
	if err != nil {
		report.addReason("Unsigned attributes do not parse: " + err.Error())
		return
	}
	attr := cms.FindAttribute(attrs, cms.OIDAttributeTimeStampToken)
	if attr == nil {
		return
	}
	st.timestamped = true

	token, err := attr.SingleValue()
	if err != nil {
		report.addReason("Timestamp token attribute is malformed")
		return
	}
	if _, err := pkcs7.Parse(token.FullBytes); err != nil {
		report.addReason("Timestamp token is not a CMS SignedData")
		return
	}

	ts, err := timestamp.Parse(token.FullBytes)
	if err != nil {
		report.addReason("Timestamp token does not parse: " + err.Error())
		return
	}
	st.tokenTime = ts.Time

	imprint := sha256.Sum256(si.Signature)
	if !bytes.Equal(imprint[:], ts.HashedMessage) {
		report.addReason("Timestamp token does not cover the signature value")
		return
	}
	st.tokenValid = true
}

// validateChain orders and validates the embedded certificates.
func validateChain(sd *cms.SignedData, st *state, opts Options, report *Report) {
	if st.signerCert == nil {
		return
	}
	certs, err := sd.X509Certificates()
	if err != nil {
		return
	}

	at := opts.At
	if at.IsZero() {
		if st.tokenValid {
			at = st.tokenTime
		} else {
			at = time.Now()
		}
	}

	st.certValidAtUse = !at.Before(st.signerCert.NotBefore) && !at.After(st.signerCert.NotAfter)
	st.keyUsageOK = st.signerCert.KeyUsage&(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment) != 0

	st.chainResult = chain.Validate(certs, st.signerCert, chain.ValidateOptions{
		At:           at,
		TrustedRoots: opts.TrustedRoots,
	})
	if !st.chainResult.Valid {
		report.Reasons = append(report.Reasons, st.chainResult.Reasons...)
	}
}

// decodeContents turns the /Contents hex slot into DER. The slot is padded
// with '0' on the right, and a DER container may itself end in zero bytes, so
// the element length is read from the DER header instead of trimming.
func decodeContents(slot []byte) []byte {
	out := make([]byte, hex.DecodedLen(len(slot)))
	n, err := hex.Decode(out, slot)
	if err != nil || n == 0 {
		return nil
	}
	out = out[:n]
	if out[0] != 0x30 {
		return nil
	}
	total := derElementLength(out)
	if total <= 0 || total > len(out) {
		return nil
	}
	return out[:total]
}

// derElementLength returns the full encoded length of the DER element at the
// start of b, or -1.
func derElementLength(b []byte) int {
	if len(b) < 2 {
		return -1
	}
	l := int(b[1])
	if l < 0x80 {
		return 2 + l
	}
	n := l & 0x7f
	if n == 0 || n > 4 || len(b) < 2+n {
		return -1
	}
	total := 0
	for i := 0; i < n; i++ {
		total = total<<8 | int(b[2+i])
	}
	return 2 + n + total
}

// extractMeta reads the human-facing entries of the signature dictionary.
func extractMeta(data []byte, areas *locate.Areas) SignatureMeta {
	dict, err := locate.EnclosingDictionary(data, areas.ByteRangeSlot.Start)
	if err != nil {
		return SignatureMeta{}
	}
	body := data[dict.Start:dict.End]
	return SignatureMeta{
		Name:        scanLiteralString(body, "/Name"),
		Reason:      scanLiteralString(body, "/Reason"),
		Location:    scanLiteralString(body, "/Location"),
		ContactInfo: scanLiteralString(body, "/ContactInfo"),
	}
}

// scanLiteralString reads the literal string value following a key, good
// enough for the ASCII metadata the preparer writes.
func scanLiteralString(body []byte, key string) string {
	idx := bytes.Index(body, []byte(key+" ("))
	if idx < 0 {
		return ""
	}
	start := idx + len(key) + 2
	var out []byte
	for i := start; i < len(body); i++ {
		switch body[i] {
		case '\\':
			if i+1 < len(body) {
				i++
				switch body[i] {
				case 'r':
					out = append(out, '\r')
				default:
					out = append(out, body[i])
				}
			}
		case ')':
			return string(out)
		default:
			out = append(out, body[i])
		}
	}
	return ""
}
