package domain

// Bucket is a named AQI severity range. Lower is exclusive except for the
// first bucket, Upper is inclusive.
type Bucket struct {
	Label string
	Lower float64
	Upper float64
}

// Buckets lists the severity ranges in ascending order.
var Buckets = []Bucket{
	{Label: "Good", Lower: 0, Upper: 50},
	{Label: "Satisfactory", Lower: 50, Upper: 100},
	{Label: "Moderate", Lower: 100, Upper: 200},
	{Label: "Poor", Lower: 200, Upper: 300},
	{Label: "Very Poor/Hazardous", Lower: 300, Upper: MaxSeverity},
}

// ClassifySeverity returns the bucket holding v. Missing values and values
// outside [0, 500] are unclassified.
func ClassifySeverity(v float64) (Bucket, bool) {
	if IsMissing(v) {
		return Bucket{}, false
	}
	for i, b := range Buckets {
		if v > b.Lower && v <= b.Upper {
			return b, true
		}
		if i == 0 && v == b.Lower {
			return b, true
		}
	}
	return Bucket{}, false
}
