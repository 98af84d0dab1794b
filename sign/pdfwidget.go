package sign

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/digitorus/pdf"
)

// Annotation flag bits used on the signature widget.
const (
	annotationFlagPrint  = 1 << 2
	annotationFlagLocked = 1 << 7
)

// createWidget emits the widget annotation that doubles as the signature
// form field: /T names the field, /V points at the signature dictionary.
func (context *prepareContext) createWidget() ([]byte, error) {
	var widget bytes.Buffer

	widget.WriteString("<<\n")
	widget.WriteString("  /Type /Annot\n")
	widget.WriteString("  /Subtype /Widget\n")

	if context.PrepareData.Visible {
		rect := context.PrepareData.Rect
		widget.WriteString(fmt.Sprintf("  /Rect [%.2f %.2f %.2f %.2f]\n", rect[0], rect[1], rect[2], rect[3]))

		appearance, err := context.createAppearance(rect)
		if err != nil {
			return nil, fmt.Errorf("failed to create appearance: %w", err)
		}
		appearanceObjectId, err := context.addObject(appearance)
		if err != nil {
			return nil, fmt.Errorf("failed to add appearance object: %w", err)
		}
		widget.WriteString(fmt.Sprintf("  /AP << /N %d 0 R >>\n", appearanceObjectId))
	} else {
		widget.WriteString("  /Rect [0 0 0 0]\n")
	}

	root := context.PDFReader.Trailer().Key("Root")
	rootPtr := root.GetPtr()
	context.CatalogData.RootString = strconv.Itoa(int(rootPtr.GetID())) + " " + strconv.Itoa(int(rootPtr.GetGen())) + " R"

	page, err := findPageByNumber(root.Key("Pages"), context.PrepareData.Page)
	if err != nil {
		return nil, err
	}
	pagePtr := page.GetPtr()
	context.VisualSignData.pageObjectId = pagePtr.GetID()
	widget.WriteString("  /P " + strconv.Itoa(int(pagePtr.GetID())) + " " + strconv.Itoa(int(pagePtr.GetGen())) + " R\n")

	widget.WriteString(fmt.Sprintf("  /F %d\n", annotationFlagPrint|annotationFlagLocked))
	widget.WriteString("  /FT /Sig\n")
	widget.WriteString("  /T " + pdfString(context.PrepareData.FieldName) + "\n")
	widget.WriteString(fmt.Sprintf("  /V %d 0 R\n", context.sigObjectId))
	widget.WriteString(">>\n")

	return widget.Bytes(), nil
}

// createAppearance emits a self-contained form XObject: bordered box with the
// signer name in Helvetica. Self-contained resources keep it independent of
// whatever fonts the document carries.
func (context *prepareContext) createAppearance(rect [4]float64) ([]byte, error) {
	width := rect[2] - rect[0]
	height := rect[3] - rect[1]
	if width <= 0 || height <= 0 {
		return nil, &PrepareError{Reason: fmt.Sprintf("widget rectangle %v has no area", rect)}
	}

	var stream bytes.Buffer
	stream.WriteString("q\n")
	stream.WriteString(fmt.Sprintf("0.5 w 0 0 %.2f %.2f re S\n", width, height))
	if name := context.PrepareData.Info.Name; name != "" {
		fontSize := height / 3
		stream.WriteString("BT\n")
		stream.WriteString(fmt.Sprintf("/Helv %.2f Tf\n", fontSize))
		stream.WriteString(fmt.Sprintf("%.2f %.2f Td\n", 2.0, height/2))
		stream.WriteString(pdfString(name) + " Tj\n")
		stream.WriteString("ET\n")
	}
	stream.WriteString("Q\n")

	var appearance bytes.Buffer
	appearance.WriteString("<<\n")
	appearance.WriteString("  /Type /XObject\n")
	appearance.WriteString("  /Subtype /Form\n")
	appearance.WriteString(fmt.Sprintf("  /BBox [0 0 %.2f %.2f]\n", width, height))
	appearance.WriteString("  /Resources << /Font << /Helv << /Type /Font /Subtype /Type1 /BaseFont /Helvetica >> >> >>\n")
	appearance.WriteString(fmt.Sprintf("  /Length %d\n", stream.Len()))
	appearance.WriteString(">>\nstream\n")
	appearance.Write(stream.Bytes())
	appearance.WriteString("endstream")

	return appearance.Bytes(), nil
}

// createIncPageUpdate re-emits the page dictionary with the widget appended
// to /Annots, preserving every other entry by reference.
func (context *prepareContext) createIncPageUpdate(pageNumber, annot uint32) ([]byte, error) {
	root := context.PDFReader.Trailer().Key("Root")
	page, err := findPageByNumber(root.Key("Pages"), pageNumber)
	if err != nil {
		return nil, err
	}

	var page_buffer bytes.Buffer
	page_buffer.WriteString("<<\n")

	for _, key := range page.Keys() {
		switch key {
		case "Parent":
			ptr := page.Key(key).GetPtr()
			page_buffer.WriteString(fmt.Sprintf("  /%s %d 0 R\n", key, ptr.GetID()))
		case "Contents":
			contentsValue := page.Key(key)
			if contentsValue.Kind() == pdf.Array {
				page_buffer.WriteString("  /Contents [")
				for i := 0; i < contentsValue.Len(); i++ {
					ptr := contentsValue.Index(i).GetPtr()
					page_buffer.WriteString(fmt.Sprintf(" %d 0 R", ptr.GetID()))
				}
				page_buffer.WriteString(" ]\n")
			} else {
				ptr := contentsValue.GetPtr()
				page_buffer.WriteString(fmt.Sprintf("  /%s %d 0 R\n", key, ptr.GetID()))
			}
		case "Annots":
			page_buffer.WriteString("  /Annots [\n")
			for i := 0; i < page.Key("Annots").Len(); i++ {
				ptr := page.Key(key).Index(i).GetPtr()
				page_buffer.WriteString(fmt.Sprintf("    %d 0 R\n", ptr.GetID()))
			}
			page_buffer.WriteString(fmt.Sprintf("    %d 0 R\n", annot))
			page_buffer.WriteString("  ]\n")
		default:
			page_buffer.WriteString(fmt.Sprintf("  /%s %s\n", key, page.Key(key).String()))
		}
	}

	if page.Key("Annots").IsNull() {
		page_buffer.WriteString(fmt.Sprintf("  /Annots [%d 0 R]\n", annot))
	}

	page_buffer.WriteString(">>\n")
	return page_buffer.Bytes(), nil
}

// findPageByNumber resolves a 1-based page number through the page tree.
func findPageByNumber(pages pdf.Value, pageNumber uint32) (pdf.Value, error) {
	page, remaining, err := findPageByNumberRec(pages, pageNumber)
	if err != nil {
		return pdf.Value{}, err
	}
	if remaining != 0 {
		return pdf.Value{}, fmt.Errorf("page number %d not found", pageNumber)
	}
	return page, nil
}

func findPageByNumberRec(pages pdf.Value, pageNumber uint32) (pdf.Value, uint32, error) {
	switch pages.Key("Type").Name() {
	case "Pages":
		kids := pages.Key("Kids")
		for i := 0; i < kids.Len(); i++ {
			page, remaining, err := findPageByNumberRec(kids.Index(i), pageNumber)
			if err == nil && remaining == 0 {
				return page, 0, nil
			}
			pageNumber = remaining
		}
		return pdf.Value{}, pageNumber, fmt.Errorf("page number %d not found", pageNumber)
	case "Page":
		if pageNumber == 1 {
			return pages, 0, nil
		}
		return pdf.Value{}, pageNumber - 1, nil
	}
	return pdf.Value{}, pageNumber, fmt.Errorf("page number %d not found", pageNumber)
}
