package digest

import "fmt"

type invalidLengthError int

func errInvalidLength(got int) error {
	return invalidLengthError(got)
}

func (e invalidLengthError) Error() string {
	return fmt.Sprintf("digest must be %d bytes, got %d", Size, int(e))
}
