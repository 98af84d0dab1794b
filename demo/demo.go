// Package demo writes a minimal one-page PDF with a classic cross-reference
// table. The CLI demo flow and the round-trip tests sign these documents; the
// layout deliberately avoids object streams so every dictionary stays
// byte-addressable.
package demo

import (
	"bytes"
	"fmt"
	"strings"
)

// Options controls the text printed on the demo page.
type Options struct {
	Title      string
	SignerName string
	Location   string
	Reason     string
}

// Generate renders the document.
func Generate(opts Options) []byte {
	if opts.Title == "" {
		opts.Title = "Demo document"
	}

	lines := []string{opts.Title}
	if opts.SignerName != "" {
		lines = append(lines, "Signer: "+opts.SignerName)
	}
	if opts.Location != "" {
		lines = append(lines, "Location: "+opts.Location)
	}
	if opts.Reason != "" {
		lines = append(lines, "Reason: "+opts.Reason)
	}

	var content bytes.Buffer
	content.WriteString("BT\n/F1 14 Tf\n72 760 Td\n16 TL\n")
	for i, line := range lines {
		if i > 0 {
			content.WriteString("T*\n")
		}
		content.WriteString("(" + escapeText(line) + ") Tj\n")
	}
	content.WriteString("ET\n")

	var pdfBuffer bytes.Buffer
	xrefOffsets := make(map[int]int)

	pdfBuffer.WriteString("%PDF-1.7\n")
	pdfBuffer.WriteString("%\xe2\xe3\xcf\xd3\n")

	xrefOffsets[1] = pdfBuffer.Len()
	pdfBuffer.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	xrefOffsets[2] = pdfBuffer.Len()
	pdfBuffer.WriteString("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")

	xrefOffsets[3] = pdfBuffer.Len()
	pdfBuffer.WriteString("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] " +
		"/Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>\nendobj\n")

	xrefOffsets[4] = pdfBuffer.Len()
	pdfBuffer.WriteString("4 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	xrefOffsets[5] = pdfBuffer.Len()
	pdfBuffer.WriteString(fmt.Sprintf("5 0 obj\n<< /Length %d >>\nstream\n", content.Len()))
	pdfBuffer.Write(content.Bytes())
	pdfBuffer.WriteString("endstream\nendobj\n")

	xrefOffsets[6] = pdfBuffer.Len()
	pdfBuffer.WriteString("6 0 obj\n<< /Title (" + escapeText(opts.Title) + ")")
	if opts.SignerName != "" {
		pdfBuffer.WriteString(" /Author (" + escapeText(opts.SignerName) + ")")
	}
	pdfBuffer.WriteString(" /Producer (padessign demo) >>\nendobj\n")

	xrefStart := pdfBuffer.Len()
	pdfBuffer.WriteString("xref\n0 7\n")
	pdfBuffer.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 6; i++ {
		pdfBuffer.WriteString(fmt.Sprintf("%010d 00000 n \n", xrefOffsets[i]))
	}
	pdfBuffer.WriteString("trailer\n<< /Size 7 /Root 1 0 R /Info 6 0 R >>\n")
	pdfBuffer.WriteString(fmt.Sprintf("startxref\n%d\n", xrefStart))
	pdfBuffer.WriteString("%%EOF\n")

	return pdfBuffer.Bytes()
}

func escapeText(text string) string {
	text = strings.Replace(text, "\\", "\\\\", -1)
	text = strings.Replace(text, "(", "\\(", -1)
	text = strings.Replace(text, ")", "\\)", -1)
	return text
}
