package cfdi

import "fmt"

// MalformedDocumentError reports input that is not well-formed XML. It is
// fatal for the affected document only.
type MalformedDocumentError struct {
	Err error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed CFDI document: %v", e.Err)
}

func (e *MalformedDocumentError) Unwrap() error {
	return e.Err
}
