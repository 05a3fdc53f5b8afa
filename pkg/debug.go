package pkg

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrettyPrint writes v as indented JSON followed by a newline.
func PrettyPrint(w io.Writer, v any) error {
	message, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(message))
	return err
}
