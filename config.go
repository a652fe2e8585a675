package csvexporter

import (
	"github.com/baldanca/csv-exporter/encode"
	"github.com/baldanca/csv-exporter/writer"
)

// Config controls one CSV rendition: layout, headers and value strategies.
type Config struct {
	// Delimiter separates fields within a row. Zero selects the comma.
	Delimiter rune

	// CRLF terminates rows with \r\n instead of \n.
	CRLF bool

	// ForceQuotes wraps every field in quotes, not only the ones that need
	// escaping.
	ForceQuotes bool

	// Headers fixes the column set and order. Field names resolve against
	// it; values addressing other names fail the encode.
	Headers []string

	// AutoHeaders derives Headers from the first record's struct type when
	// none were given. Records without column names (slices, primitives,
	// self-marshaling values) stay headerless.
	AutoHeaders bool

	// Float decides what to do with NaN and the infinities. Nil rejects
	// them.
	Float encode.FloatStrategy

	// Date renders time.Time values. Nil renders ISO 8601.
	Date encode.DateStrategy

	// Data renders []byte values. Nil renders base64.
	Data encode.DataStrategy

	// Decimal renders apd.Decimal values. Nil renders the plain dotted
	// form.
	Decimal encode.DecimalStrategy
}

// DefaultConfig renders comma-separated rows under a derived header.
var DefaultConfig = Config{Delimiter: ',', AutoHeaders: true}

// Validate rejects layouts the writer cannot serialize.
func (c Config) Validate() error {
	return c.writerOptions().Validate()
}

func (c Config) writerOptions() writer.Options {
	return writer.Options{Delimiter: c.Delimiter, CRLF: c.CRLF, ForceQuotes: c.ForceQuotes}
}

func (c Config) encodeConfig() encode.Config {
	return encode.Config{Float: c.Float, Date: c.Date, Data: c.Data, Decimal: c.Decimal}
}
