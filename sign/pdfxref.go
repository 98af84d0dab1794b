package sign

import (
	"fmt"
)

// writeIncrXrefTable appends a classic cross-reference table covering the
// updated page object and the new objects. A table is written even when the
// input document uses a cross-reference stream: the appended section must
// stay byte-addressable, object streams are never emitted.
func (context *prepareContext) writeIncrXrefTable() error {
	if _, err := context.OutputBuffer.Write([]byte("xref\n")); err != nil {
		return fmt.Errorf("failed to write xref header: %w", err)
	}

	// Updated entries, one subsection each.
	for _, entry := range context.updatedXrefEntries {
		subsection := fmt.Sprintf("%d 1\n%010d 00000 n\r\n", entry.ID, entry.Offset)
		if _, err := context.OutputBuffer.Write([]byte(subsection)); err != nil {
			return fmt.Errorf("failed to write updated xref entry: %w", err)
		}
	}

	// New entries as one contiguous subsection.
	header := fmt.Sprintf("%d %d\n", context.lastXrefID+1, len(context.newXrefEntries))
	if _, err := context.OutputBuffer.Write([]byte(header)); err != nil {
		return fmt.Errorf("failed to write xref subsection header: %w", err)
	}
	for _, entry := range context.newXrefEntries {
		xrefLine := fmt.Sprintf("%010d 00000 n\r\n", entry.Offset)
		if _, err := context.OutputBuffer.Write([]byte(xrefLine)); err != nil {
			return fmt.Errorf("failed to write xref entry: %w", err)
		}
	}

	return nil
}
