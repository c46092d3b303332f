package telemetry

// Field is a measurement name from the closed sensor vocabulary.
type Field string

const (
	FieldWeight        Field = "weight"
	FieldYield         Field = "yield"
	FieldTemperature   Field = "temperature"
	FieldBrood         Field = "brood"
	FieldHumidity      Field = "humidity"
	FieldRain          Field = "rain"
	FieldWindSpeed     Field = "wind_speed"
	FieldWindDirection Field = "wind_direction"
)

// Output keys that are not measurements.
const (
	KeyEntityID = "entity_id"
	KeyTime     = "time"
)

var fields = []Field{
	FieldWeight,
	FieldYield,
	FieldTemperature,
	FieldBrood,
	FieldHumidity,
	FieldRain,
	FieldWindSpeed,
	FieldWindDirection,
}

// Fields returns the vocabulary in storage column order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// IsField reports whether name belongs to the vocabulary.
func IsField(name string) bool {
	for _, f := range fields {
		if string(f) == name {
			return true
		}
	}
	return false
}

// reservedKeys never become measurement values.
var reservedKeys = map[string]struct{}{
	KeyTime:     {},
	KeyEntityID: {},
	"scale":     {},
	"scale_id":  {},
	"_id":       {},
	"id":        {},
}
