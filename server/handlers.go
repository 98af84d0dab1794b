package server

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/evidensys/padessign"
)

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func fail(c echo.Context, status int, err error) error {
	return c.JSON(status, errorResponse{Code: padessign.ErrorCode(err), Error: err.Error()})
}

func statusFor(err error) int {
	switch padessign.ErrorCode(err) {
	case "internal":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

type prepareRequest struct {
	PDFBase64 string `json:"pdfBase64"`
}

type prepareResponse struct {
	PreparedPDFBase64 string   `json:"preparedPdfBase64"`
	ByteRange         [4]int64 `json:"byteRange"`
	MessageDigestB64  string   `json:"messageDigestB64"`
}

// Prepare handles POST /pdf/prepare.
func (s *Server) Prepare(c echo.Context) error {
	var req prepareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	input, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}

	prepared, err := s.workflow.Prepare(input)
	if err != nil {
		return fail(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, prepareResponse{
		PreparedPDFBase64: base64.StdEncoding.EncodeToString(prepared.Bytes),
		ByteRange:         prepared.ByteRange,
		MessageDigestB64:  base64.StdEncoding.EncodeToString(prepared.MessageDigest),
	})
}

type presignRequest struct {
	MessageDigestB64 string `json:"messageDigestB64"`
	SignerCertPEM    string `json:"signerCertPem"`
}

type presignResponse struct {
	SignedAttrsDERB64 string `json:"signedAttrsDerB64"`
}

// PreSign handles POST /pdf/presign.
func (s *Server) PreSign(c echo.Context) error {
	var req presignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	digest, err := base64.StdEncoding.DecodeString(req.MessageDigestB64)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}

	attrs, err := s.workflow.PreSign(digest, []byte(req.SignerCertPEM))
	if err != nil {
		return fail(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, presignResponse{
		SignedAttrsDERB64: base64.StdEncoding.EncodeToString(attrs),
	})
}

type finalizeRequest struct {
	PreparedPDFBase64   string `json:"preparedPdfBase64"`
	SignedAttrsDERB64   string `json:"signedAttrsDerB64"`
	SignatureB64        string `json:"signatureB64"`
	SignerCertPEM       string `json:"signerCertPem"`
	CertificateChainPEM string `json:"certificateChainPem,omitempty"`
	WithTimestamp       *bool  `json:"withTimestamp,omitempty"`
}

type finalizeResponse struct {
	SignedPDFBase64 string `json:"signedPdfBase64"`
	Timestamped     bool   `json:"timestamped"`
}

// Finalize handles POST /pdf/finalize.
func (s *Server) Finalize(c echo.Context) error {
	var req finalizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	prepared, err := base64.StdEncoding.DecodeString(req.PreparedPDFBase64)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	attrs, err := base64.StdEncoding.DecodeString(req.SignedAttrsDERB64)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	signature, err := base64.StdEncoding.DecodeString(req.SignatureB64)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}

	result, err := s.workflow.Finalize(c.Request().Context(), padessign.FinalizeInput{
		PreparedPDF:    prepared,
		SignedAttrsDER: attrs,
		Signature:      signature,
		SignerCertPEM:  []byte(req.SignerCertPEM),
		ChainPEM:       []byte(req.CertificateChainPEM),
		WithTimestamp:  req.WithTimestamp,
	})
	if err != nil {
		return fail(c, statusFor(err), err)
	}

	return c.JSON(http.StatusOK, finalizeResponse{
		SignedPDFBase64: base64.StdEncoding.EncodeToString(result.SignedPDF),
		Timestamped:     result.Timestamped,
	})
}

type verifyRequest struct {
	PDFBase64 string `json:"pdfBase64"`
}

// Verify handles POST /pdf/verify.
func (s *Server) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	input, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		return fail(c, http.StatusBadRequest, err)
	}

	report, err := s.workflow.Verify(input)
	if err != nil {
		return fail(c, statusFor(err), err)
	}
	return c.JSON(http.StatusOK, report)
}
