package locate

import "fmt"

// SignatureDictionaryNotFoundError means no dictionary carrying both
// /ByteRange and /Contents could be located.
type SignatureDictionaryNotFoundError struct {
	FieldName string
}

func (e *SignatureDictionaryNotFoundError) Error() string {
	if e.FieldName != "" {
		return fmt.Sprintf("locate: no signature dictionary found for field %q", e.FieldName)
	}
	return "locate: no signature dictionary found"
}

func (e *SignatureDictionaryNotFoundError) Code() string { return "signature_dictionary_not_found" }

// UnbalancedDictionaryError means a << had no matching >> before the end of
// the file.
type UnbalancedDictionaryError struct {
	Offset int64
}

func (e *UnbalancedDictionaryError) Error() string {
	return fmt.Sprintf("locate: unbalanced dictionary starting at offset %d", e.Offset)
}

func (e *UnbalancedDictionaryError) Code() string { return "unbalanced_dictionary" }

// PlaceholderTooSmallError means the CMS does not fit the reserved /Contents
// hex slot. Recoverable by preparing again with a larger placeholder.
type PlaceholderTooSmallError struct {
	Needed    int
	Available int
}

func (e *PlaceholderTooSmallError) Error() string {
	return fmt.Sprintf("locate: CMS needs %d hex characters but the /Contents placeholder holds %d", e.Needed, e.Available)
}

func (e *PlaceholderTooSmallError) Code() string { return "placeholder_too_small" }

// DigestDriftError means embedding the CMS changed a signed byte.
type DigestDriftError struct{}

func (e *DigestDriftError) Error() string {
	return "locate: byte range digest changed while embedding the CMS"
}

func (e *DigestDriftError) Code() string { return "digest_drift" }

// MalformedError reports inputs the locator cannot interpret (bad byte range
// integers, missing hex delimiters).
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "locate: " + e.Reason }

func (e *MalformedError) Code() string { return "input_malformed" }
