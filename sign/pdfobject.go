package sign

import (
	"fmt"
)

// addObject appends a new indirect object and returns its id.
func (context *prepareContext) addObject(object []byte) (uint32, error) {
	objectID := context.lastXrefID + 1 + uint32(len(context.newXrefEntries))
	offset := context.position()

	if err := context.writeObject(objectID, object); err != nil {
		return 0, err
	}

	context.newXrefEntries = append(context.newXrefEntries, xrefEntry{ID: objectID, Offset: offset})
	return objectID, nil
}

// updateObject rewrites an existing object (same id, new offset) as part of
// the incremental update.
func (context *prepareContext) updateObject(id uint32, object []byte) error {
	offset := context.position()

	if err := context.writeObject(id, object); err != nil {
		return err
	}

	context.updatedXrefEntries = append(context.updatedXrefEntries, xrefEntry{ID: id, Offset: offset})
	return nil
}

func (context *prepareContext) writeObject(id uint32, object []byte) error {
	if _, err := fmt.Fprintf(context.OutputBuffer, "%d 0 obj\n", id); err != nil {
		return fmt.Errorf("failed to write object header: %w", err)
	}
	if _, err := context.OutputBuffer.Write(object); err != nil {
		return fmt.Errorf("failed to write object body: %w", err)
	}
	if _, err := context.OutputBuffer.Write([]byte("\nendobj\n")); err != nil {
		return fmt.Errorf("failed to write object footer: %w", err)
	}
	return nil
}
