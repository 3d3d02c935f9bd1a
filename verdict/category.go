package verdict

import "fmt"

// Category is the classification of a run
type Category int

// Categories, ordered as in the classification priority where it applies
const (
	Accepted Category = iota
	WrongOutput
	TimeLimitExceeded
	MemoryLimitExceeded
	OutputLimitExceeded
	RestrictedOperation
	RuntimeError
	SystemError
)

var categoryString = []string{
	"Accepted",
	"WrongOutput",
	"TimeLimitExceeded",
	"MemoryLimitExceeded",
	"OutputLimitExceeded",
	"RestrictedOperation",
	"RuntimeError",
	"SystemError",
}

func (c Category) String() string {
	if c >= 0 && int(c) < len(categoryString) {
		return categoryString[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// MarshalText encodes the category name
func (c Category) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(categoryString) {
		return nil, fmt.Errorf("verdict: invalid category %d", int(c))
	}
	return []byte(categoryString[c]), nil
}

// UnmarshalText decodes a category name
func (c *Category) UnmarshalText(b []byte) error {
	for i, s := range categoryString {
		if s == string(b) {
			*c = Category(i)
			return nil
		}
	}
	return fmt.Errorf("verdict: unknown category %q", b)
}
