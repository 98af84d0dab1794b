// Package padessign drives a three-call remote-signing workflow producing
// PAdES-B-B and PAdES-B-T detached signatures: Prepare reserves the signature
// slots and derives the bytes to digest, PreSign builds the signed-attribute
// DER an external signer signs, Finalize assembles the CMS container around
// the returned signature and embeds it. Verify re-checks the result against
// the PAdES baseline.
package padessign

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/asn1"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/evidensys/padessign/chain"
	"github.com/evidensys/padessign/cms"
	"github.com/evidensys/padessign/config"
	"github.com/evidensys/padessign/locate"
	"github.com/evidensys/padessign/sign"
	"github.com/evidensys/padessign/tsa"
	"github.com/evidensys/padessign/verify"
)

// Workflow wires the signing components together. All methods are safe for
// concurrent use: no call mutates Workflow state.
type Workflow struct {
	Config config.Config

	// TSA and Chains are the injectable network collaborators; New fills
	// them from the configuration, tests substitute fakes.
	TSA    cms.Timestamper
	Chains cms.ChainResolver

	Logger *zap.Logger
}

// New builds a workflow with the HTTP-backed TSA and AIA collaborators.
func New(cfg config.Config, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		Config: cfg,
		TSA: &tsa.Client{
			URL:      cfg.TSA.URL,
			Username: cfg.TSA.Username,
			Password: cfg.TSA.Password,
			Timeout:  time.Duration(cfg.TSA.TimeoutSeconds) * time.Second,
			Logger:   logger,
		},
		Chains: &chain.Builder{
			Timeout:        time.Duration(cfg.Chain.TimeoutSeconds) * time.Second,
			MaxChainLength: cfg.Chain.MaxChainLength,
			Logger:         logger,
		},
		Logger: logger,
	}
}

func (w *Workflow) logger() *zap.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return zap.NewNop()
}

// Prepare emits a signable copy of the document with the reserved /Contents
// and /ByteRange slots and returns the message digest to hand to the signer.
func (w *Workflow) Prepare(input []byte) (*sign.PreparedPdf, error) {
	return sign.Prepare(input, sign.PrepareData{
		Info: sign.SignatureInfo{
			Name:        w.Config.Info.SignerName,
			Location:    w.Config.Info.Location,
			Reason:      w.Config.Info.Reason,
			ContactInfo: w.Config.Info.ContactInfo,
		},
		FieldName:          w.Config.PDF.FieldName,
		PlaceholderHexSize: w.Config.PDF.PlaceholderHexSize,
		Visible:            true,
		Rect:               [4]float64{400, 50, 550, 100},
	})
}

// PreSign builds the canonical signed-attribute SET for the given digest and
// signer certificate. The returned bytes are exactly what the external
// signer must sign.
func (w *Workflow) PreSign(messageDigest []byte, signerCertPEM []byte) ([]byte, error) {
	cert, err := cms.ParseCertificatePEM(signerCertPEM)
	if err != nil {
		return nil, err
	}
	return cms.BuildSignedAttributes(cert, messageDigest)
}

// FinalizeInput carries the artifacts of the previous workflow steps plus
// the externally produced signature.
type FinalizeInput struct {
	PreparedPDF    []byte
	SignedAttrsDER []byte
	Signature      []byte
	SignerCertPEM  []byte
	ChainPEM       []byte

	// SignatureAlgorithm defaults to sha256WithRSAEncryption.
	SignatureAlgorithm asn1.ObjectIdentifier

	// WithTimestamp requests a B-T signature. nil follows the configured
	// signature level.
	WithTimestamp *bool
}

// FinalizeResult is the signed document plus the timestamp outcome.
type FinalizeResult struct {
	SignedPDF   []byte
	Timestamped bool
	Timestamp   *cms.TimestampToken
}

// Finalize assembles the CMS container and embeds it into the prepared
// document. Before assembling it re-verifies the workflow contract: the
// supplied signed attributes must re-encode byte-identically through the
// canonical path, and their messageDigest must equal the digest of the
// supplied prepared document.
func (w *Workflow) Finalize(ctx context.Context, in FinalizeInput) (*FinalizeResult, error) {
	cert, err := cms.ParseCertificatePEM(in.SignerCertPEM)
	if err != nil {
		return nil, err
	}

	reencoded, err := cms.ReencodeSignedAttributes(in.SignedAttrsDER)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(reencoded, in.SignedAttrsDER) {
		return nil, &WorkflowError{
			CodeString: "input_malformed",
			Reason:     "signed attributes are not in canonical pre-sign form",
		}
	}

	digest, err := w.preparedDigest(in.PreparedPDF)
	if err != nil {
		return nil, err
	}
	if err := w.checkDigestAttribute(in.SignedAttrsDER, digest); err != nil {
		return nil, err
	}

	var chainCerts []*x509.Certificate
	if len(in.ChainPEM) > 0 {
		chainCerts, err = cms.ParseCertificatesPEM(in.ChainPEM)
		if err != nil {
			return nil, err
		}
	}

	withTimestamp := w.Config.PDF.SignatureLevel == config.LevelBT
	if in.WithTimestamp != nil {
		withTimestamp = *in.WithTimestamp
	}

	assembler := &cms.Assembler{
		TSA:       w.TSA,
		Chains:    w.Chains,
		ChainHint: ChainHintFromPatterns(w.Config.Chain.HintPatterns),
		Logger:    w.logger(),
	}

	assembled, err := assembler.Assemble(ctx, cms.AssembleInput{
		SignedAttrsDER:     in.SignedAttrsDER,
		Signature:          in.Signature,
		SignerCert:         cert,
		Chain:              chainCerts,
		SignatureAlgorithm: in.SignatureAlgorithm,
		WithTimestamp:      withTimestamp,
	})
	if err != nil {
		return nil, err
	}

	signed, err := locate.EmbedCMS(in.PreparedPDF, w.Config.PDF.FieldName, assembled.CMSDER, digest)
	if err != nil {
		return nil, err
	}

	return &FinalizeResult{
		SignedPDF:   signed,
		Timestamped: assembled.Timestamped,
		Timestamp:   assembled.Timestamp,
	}, nil
}

// Verify re-checks a signed document.
func (w *Workflow) Verify(data []byte) (*verify.Report, error) {
	return verify.Verify(data, verify.Options{
		FieldName:    w.Config.PDF.FieldName,
		TrustedRoots: w.Config.Chain.TrustedRoots,
	})
}

func (w *Workflow) preparedDigest(prepared []byte) ([]byte, error) {
	areas, err := locate.LocateSignatureAreas(prepared, w.Config.PDF.FieldName)
	if err != nil {
		return nil, err
	}
	return locate.ByteRangeDigest(prepared, areas.ByteRange)
}

// checkDigestAttribute ensures the messageDigest attribute matches the
// digest of the prepared document the caller supplied.
func (w *Workflow) checkDigestAttribute(signedAttrsDER, digest []byte) error {
	attrs, err := cms.ParseSignedAttributes(signedAttrsDER)
	if err != nil {
		return err
	}
	attr := cms.FindAttribute(attrs, cms.OIDAttributeMessageDigest)
	if attr == nil {
		return &WorkflowError{CodeString: "input_malformed", Reason: "signed attributes carry no messageDigest"}
	}
	value, err := attr.SingleValue()
	if err != nil {
		return err
	}
	if !bytes.Equal(value.Bytes, digest) {
		return &WorkflowError{
			CodeString: "input_malformed",
			Reason:     "messageDigest attribute does not match the prepared document",
		}
	}
	return nil
}

// ChainHintFromPatterns builds the predicate deciding whether an empty chain
// should be completed through AIA. The default patterns identify French
// health-sector (CPS) certificates; the trigger is configurable but the
// behavior is deliberately not extended beyond substring matching.
func ChainHintFromPatterns(patterns []string) func(*x509.Certificate) bool {
	if len(patterns) == 0 {
		return nil
	}
	return func(cert *x509.Certificate) bool {
		subject := cert.Subject.String()
		issuer := cert.Issuer.String()
		for _, pattern := range patterns {
			if strings.Contains(subject, pattern) || strings.Contains(issuer, pattern) {
				return true
			}
		}
		return false
	}
}
