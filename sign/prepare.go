// Package sign prepares PDF documents for detached PAdES signing. Prepare
// appends one incremental update containing the signature dictionary with its
// reserved /Contents and /ByteRange slots, a widget annotation, the updated
// page and catalog, a classic cross-reference table and trailer, then derives
// the final ByteRange and message digest. The private-key operation itself
// happens elsewhere; the emitted document is completed later by embedding a
// CMS container into the reserved slot.
package sign

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"

	"github.com/evidensys/padessign/locate"
)

// Prepare emits a signable copy of the document. The returned tuple is
// self-consistent: the digest covers every byte except the /Contents hex
// slot.
func Prepare(input []byte, data PrepareData) (*PreparedPdf, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(input), int64(len(input)))
	if err != nil {
		return nil, &PrepareError{Reason: "input is not a readable PDF", Err: err}
	}

	context := &prepareContext{
		PDFReader:   rdr,
		InputFile:   bytes.NewReader(input),
		PrepareData: data,
	}
	context.applyDefaults()

	if err := context.preparePDF(); err != nil {
		return nil, err
	}

	return context.finalizeByteRange()
}

func (context *prepareContext) applyDefaults() {
	if context.PrepareData.FieldName == "" {
		context.PrepareData.FieldName = DefaultFieldName
	}
	if context.PrepareData.PlaceholderHexSize <= 0 {
		context.PrepareData.PlaceholderHexSize = DefaultPlaceholderHexSize
	}
	if context.PrepareData.Page == 0 {
		context.PrepareData.Page = 1
	}
	if context.PrepareData.Info.Date.IsZero() {
		context.PrepareData.Info.Date = time.Now()
	}
	context.lastXrefID = uint32(context.PDFReader.XrefInformation.ItemCount) - 1
}

func (context *prepareContext) preparePDF() error {
	context.OutputBuffer = filebuffer.New([]byte{})

	if err := context.copyInputToOutput(); err != nil {
		return err
	}

	if err := context.fetchExistingFields(); err != nil {
		return err
	}

	// Signature dictionary with both placeholder slots.
	sigObjectId, err := context.addObject(context.createSignaturePlaceholder())
	if err != nil {
		return fmt.Errorf("failed to add signature object: %w", err)
	}
	context.sigObjectId = sigObjectId

	if err := context.handleWidget(); err != nil {
		return err
	}

	if err := context.addCatalog(); err != nil {
		return err
	}

	xrefStart := context.position()
	if err := context.writeIncrXrefTable(); err != nil {
		return fmt.Errorf("failed to write xref table: %w", err)
	}

	if err := context.writeTrailer(xrefStart); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}

	return nil
}

func (context *prepareContext) copyInputToOutput() error {
	if _, err := context.InputFile.Seek(0, 0); err != nil {
		return err
	}
	if _, err := io.Copy(context.OutputBuffer, context.InputFile); err != nil {
		return err
	}
	// File always needs an empty line after %%EOF.
	if _, err := context.OutputBuffer.Write([]byte("\n")); err != nil {
		return err
	}
	return nil
}

// fetchExistingFields collects the object ids of form fields already present
// so the new AcroForm keeps them.
func (context *prepareContext) fetchExistingFields() error {
	acroForm := context.PDFReader.Trailer().Key("Root").Key("AcroForm")
	if acroForm.IsNull() {
		return nil
	}
	fields := acroForm.Key("Fields")
	for i := 0; i < fields.Len(); i++ {
		ptr := fields.Index(i).GetPtr()
		context.existingFields = append(context.existingFields, uint32(ptr.GetID()))
	}
	return nil
}

func (context *prepareContext) handleWidget() error {
	widget, err := context.createWidget()
	if err != nil {
		return fmt.Errorf("failed to create signature widget: %w", err)
	}

	context.VisualSignData.objectId, err = context.addObject(widget)
	if err != nil {
		return fmt.Errorf("failed to add widget object: %w", err)
	}

	pageUpdate, err := context.createIncPageUpdate(context.PrepareData.Page, context.VisualSignData.objectId)
	if err != nil {
		return fmt.Errorf("failed to create page update: %w", err)
	}
	if err := context.updateObject(context.VisualSignData.pageObjectId, pageUpdate); err != nil {
		return fmt.Errorf("failed to update page object: %w", err)
	}
	return nil
}

func (context *prepareContext) addCatalog() error {
	catalog, err := context.createCatalog()
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}
	context.CatalogData.ObjectId, err = context.addObject(catalog)
	if err != nil {
		return fmt.Errorf("failed to add catalog object: %w", err)
	}
	return nil
}

// finalizeByteRange locates the emitted slots, rewrites the /ByteRange
// placeholder with the real offsets and computes the message digest.
func (context *prepareContext) finalizeByteRange() (*PreparedPdf, error) {
	out := context.OutputBuffer.Buff.Bytes()

	areas, err := locate.LocateSignatureAreas(out, context.PrepareData.FieldName)
	if err != nil {
		return nil, fmt.Errorf("prepared document lost its signature dictionary: %w", err)
	}

	b := areas.ContentsSlot.Start - 1 // offset of '<'
	c := areas.ContentsSlot.End + 1   // first byte after '>'
	byteRange := [4]int64{0, b, c, int64(len(out)) - c}

	if err := rewriteByteRangeSlot(out, areas.ByteRangeSlot, byteRange); err != nil {
		return nil, err
	}

	digest, err := locate.ByteRangeDigest(out, byteRange)
	if err != nil {
		return nil, err
	}

	return &PreparedPdf{
		Bytes:         out,
		ByteRange:     byteRange,
		MessageDigest: digest,
		FieldName:     context.PrepareData.FieldName,
	}, nil
}

func (context *prepareContext) position() int64 {
	return int64(context.OutputBuffer.Buff.Len())
}
