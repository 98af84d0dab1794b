package sign

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/evidensys/padessign/locate"
)

// byteRangeInnerWidth is the fixed width reserved between the brackets of
// /ByteRange. Four offsets of up to eleven digits each, with separators, fit.
const byteRangeInnerWidth = 48

func byteRangePlaceholder() string {
	inner := "0 0 0 0" + strings.Repeat(" ", byteRangeInnerWidth-len("0 0 0 0"))
	return "/ByteRange [" + inner + "]"
}

// createSignaturePlaceholder emits the signature dictionary with a
// fixed-width /ByteRange slot and a zero-filled /Contents hex slot. Every
// byte written here except the hex slot content ends up inside the signed
// range, so widths never change after this point.
func (context *prepareContext) createSignaturePlaceholder() []byte {
	var signature_buffer bytes.Buffer

	signature_buffer.WriteString("<<\n")
	signature_buffer.WriteString(" /Type /Sig\n")
	signature_buffer.WriteString(" /Filter /Adobe.PPKLite\n")
	signature_buffer.WriteString(" /SubFilter /ETSI.CAdES.detached\n")

	signature_buffer.WriteString(" " + byteRangePlaceholder() + "\n")

	signature_buffer.WriteString(" /Contents <")
	signature_buffer.Write(bytes.Repeat([]byte("0"), context.PrepareData.PlaceholderHexSize))
	signature_buffer.WriteString(">\n")

	info := context.PrepareData.Info
	if info.Name != "" {
		signature_buffer.WriteString(" /Name " + pdfString(info.Name) + "\n")
	}
	if info.Location != "" {
		signature_buffer.WriteString(" /Location " + pdfString(info.Location) + "\n")
	}
	if info.Reason != "" {
		signature_buffer.WriteString(" /Reason " + pdfString(info.Reason) + "\n")
	}
	if info.ContactInfo != "" {
		signature_buffer.WriteString(" /ContactInfo " + pdfString(info.ContactInfo) + "\n")
	}

	signature_buffer.WriteString(" /M " + pdfDateTime(info.Date) + "\n")
	signature_buffer.WriteString(">>\n")

	return signature_buffer.Bytes()
}

// rewriteByteRangeSlot writes the final four offsets into the placeholder
// slot, padded with trailing spaces to the original width.
func rewriteByteRangeSlot(out []byte, slot locate.Span, byteRange [4]int64) error {
	formatted := fmt.Sprintf("/ByteRange [%d %d %d %d", byteRange[0], byteRange[1], byteRange[2], byteRange[3])
	width := int(slot.Len()) - 1 // keep the closing bracket
	if len(formatted) > width {
		return &PrepareError{Reason: fmt.Sprintf("byte range %v does not fit its %d byte slot", byteRange, width)}
	}
	formatted += strings.Repeat(" ", width-len(formatted))
	copy(out[slot.Start:], formatted)
	return nil
}
