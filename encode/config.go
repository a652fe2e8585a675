package encode

// Config carries the value strategies for one encode session. The zero value
// selects the defaults: throwing floats, ISO 8601 dates, base64 data and
// plain decimals.
type Config struct {
	Float   FloatStrategy
	Date    DateStrategy
	Data    DataStrategy
	Decimal DecimalStrategy
}

// normalize fills nil slots with the defaults so the hot path never
// nil-checks a strategy.
func (c Config) normalize() Config {
	if c.Float == nil {
		c.Float = FloatThrow()
	}
	if c.Date == nil {
		c.Date = DateISO8601()
	}
	if c.Data == nil {
		c.Data = DataBase64()
	}
	if c.Decimal == nil {
		c.Decimal = DecimalLocale("")
	}
	return c
}
