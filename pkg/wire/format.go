// Package wire holds the Format tag shared by the openai and anthropic
// wire-format packages; each of those packages defines its own error
// envelope.
package wire

// Format identifies which wire protocol a request/response pair is
// speaking. The gateway never emits a third format: outbound wire format
// always matches inbound wire format for a given transaction.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatAnthropic Format = "anthropic"
)

// String implements fmt.Stringer.
func (f Format) String() string { return string(f) }

// Valid reports whether f is one of the two supported formats.
func (f Format) Valid() bool {
	return f == FormatOpenAI || f == FormatAnthropic
}
