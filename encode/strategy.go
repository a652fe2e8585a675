package encode

import (
	"encoding/base64"
	"math"
	"time"

	"github.com/cockroachdb/apd/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FloatStrategy renders the floating-point values that have no plain decimal
// text: NaN and the infinities. Finite values never reach it.
type FloatStrategy func(f float64) (string, error)

// FloatThrow rejects non-conforming values; the encode fails with
// ErrInvalidFloat. This is the default when Config.Float is nil.
func FloatThrow() FloatStrategy {
	return func(f float64) (string, error) {
		return "", ErrInvalidFloat
	}
}

// FloatSubstitute replaces non-conforming values with fixed texts.
func FloatSubstitute(posInf, negInf, nan string) FloatStrategy {
	return func(f float64) (string, error) {
		switch {
		case math.IsNaN(f):
			return nan, nil
		case f > 0:
			return posInf, nil
		default:
			return negInf, nil
		}
	}
}

// DateStrategy renders time values. The function owns the output: it may
// write text, re-enter the encoder with a primitive, or hand the value back
// to generic encoding.
type DateStrategy func(e *Encoder, t time.Time) error

// DateISO8601 renders RFC 3339 text. This is the default when Config.Date
// is nil.
func DateISO8601() DateStrategy {
	return func(e *Encoder, t time.Time) error {
		return e.EncodeString(t.Format(time.RFC3339))
	}
}

// DateSecondsSinceEpoch renders the seconds elapsed since the Unix epoch.
// The count goes through the floating-point rules, so the configured float
// strategy applies to it.
func DateSecondsSinceEpoch() DateStrategy {
	return func(e *Encoder, t time.Time) error {
		return e.EncodeFloat64(epochSeconds(t))
	}
}

// DateMillisecondsSinceEpoch is DateSecondsSinceEpoch scaled to milliseconds.
func DateMillisecondsSinceEpoch() DateStrategy {
	return func(e *Encoder, t time.Time) error {
		return e.EncodeFloat64(epochSeconds(t) * 1000)
	}
}

// DateFormat renders with a fixed time layout.
func DateFormat(layout string) DateStrategy {
	return func(e *Encoder, t time.Time) error {
		return e.EncodeString(t.Format(layout))
	}
}

// DateDeferred hands the value back to generic encoding; time.Time then
// renders through its own text marshaling.
func DateDeferred() DateStrategy {
	return func(e *Encoder, t time.Time) error {
		return e.encodeOpaque(t)
	}
}

func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// DataStrategy renders binary blobs.
type DataStrategy func(e *Encoder, data []byte) error

// DataBase64 renders standard base64 text. This is the default when
// Config.Data is nil.
func DataBase64() DataStrategy {
	return func(e *Encoder, data []byte) error {
		return e.EncodeString(base64.StdEncoding.EncodeToString(data))
	}
}

// DataDeferred hands the bytes back to generic encoding, which treats them
// as an ordinary sequence of unsigned integers.
func DataDeferred() DataStrategy {
	return func(e *Encoder, data []byte) error {
		return e.encodeOpaque(data)
	}
}

// DecimalStrategy renders arbitrary-precision decimals.
type DecimalStrategy func(e *Encoder, d *apd.Decimal) error

// DecimalLocale renders decimals under the conventions of a BCP 47 or POSIX
// locale (decimal separator, digit grouping), keeping the value's own scale.
// The empty locale renders the plain dotted form and is the default when
// Config.Decimal is nil.
func DecimalLocale(locale string) DecimalStrategy {
	if locale == "" {
		return func(e *Encoder, d *apd.Decimal) error {
			return e.EncodeString(d.Text('f'))
		}
	}
	p := message.NewPrinter(language.Make(locale))
	return func(e *Encoder, d *apd.Decimal) error {
		return e.EncodeString(localeDecimalText(p, d))
	}
}

func localeDecimalText(p *message.Printer, d *apd.Decimal) string {
	scale := 0
	if d.Exponent < 0 {
		scale = int(-d.Exponent)
	}
	// Localized rendering goes through float64. Values that would lose
	// precision on the way fall back to the plain form.
	if d.Form != apd.Finite || d.NumDigits() > 15 || scale > 30 {
		return d.Text('f')
	}
	f, err := d.Float64()
	if err != nil {
		return d.Text('f')
	}
	return p.Sprint(number.Decimal(f, number.Scale(scale)))
}
