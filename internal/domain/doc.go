// Package domain models daily city air-quality measurements and their
// per-(city, year) aggregate.
//
// # Data Source
//
// The input is a daily measurement table, one row per city and day, in the
// layout of the public "city_day" air-quality datasets:
//
//	City,Date,PM2.5,PM10,NO,NO2,NOx,NH3,CO,SO2,O3,Benzene,Toluene,Xylene,AQI,AQI_Bucket
//	Ahmedabad,2015-01-01,,,0.92,18.22,17.15,,0.92,27.64,133.36,0,0.02,0,,
//
// Column names may carry stray whitespace and are trimmed. Extra columns are
// ignored. Any reading may be empty or unparsable.
//
// # Normalization
//
// Date column:
//
//	The first column whose name contains "date" (case-insensitive) is parsed.
//	Unparsable values are invalid; rows with an invalid date or an empty city
//	are dropped without repair. Year is the calendar year of the date.
//
// Missing readings:
//
//	Missing or unparsable readings are represented as NaN and are excluded
//	from every mean. Use [IsMissing] to test for them.
//
// Severity index (AQI):
//
//	When the AQI column is absent or holds no valid value and PM2.5 exists,
//	AQI is estimated per row as PM2.5 / max(PM2.5) * 500 (a missing PM2.5
//	counts as 0). Without PM2.5 the AQI column is kept but entirely missing.
//
// Pollutants:
//
//	Only the fixed vocabulary in [Vocabulary] is recognized, and detected
//	pollutants are always reported in vocabulary order.
//
// # Severity Buckets
//
//	Good                [0, 50]
//	Satisfactory        (50, 100]
//	Moderate            (100, 200]
//	Poor                (200, 300]
//	Very Poor/Hazardous (300, 500]
//
// Values outside [0, 500] belong to no bucket.
package domain
