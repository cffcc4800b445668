// Package domain turns raw weather-station telemetry into the hourly and
// daily records used for forecast verification.
//
// # Data Sources
//
// Station telemetry comes from the MesoWest / Synoptic timeseries API. A
// response carries a variable catalog (SENSOR_VARIABLES) and one column per
// sensor set (OBSERVATIONS), e.g. "air_temp_set_1". Units are requested as
// Fahrenheit, inches and knots. [MapColumns] resolves set columns back to
// variable names.
//
// Daily wind also comes from two climate sources:
//
//	CF6 bulletins: monthly NWS climate summaries, one row per day.
//	  Column 12 (index 11) is the max 2-minute wind in mph. "M" is missing.
//	GHCN-Daily archive: element WSF2 in tenths of m/s, lagging 1-2 weeks.
//
// # Hourly Observations
//
// Stations report routine observations at a fixed minute past the hour and
// specials in between. The most common minute is taken as the routine one
// (ties go to the later minute) and everything else is dropped, since
// specials carry partial rain accumulations.
//
// Cloud layer codes carry coverage in their last digit:
//
//	1 clear 0% | 2 scattered 50% | 3 broken 75% | 4 overcast 100% | 6 few 25%
//
// The three layers are summed and capped at 100.
//
// # 6Z Days
//
// A verification day runs 06:00 UTC to 06:00 UTC and is labeled by the date
// of its start, so 2018-01-02T05:59Z belongs to 2018-01-01. Aggregation
// subtracts [DayBoundaryOffset] before grouping into hours, then days.
//
// Six-hour max/min temperature and six-hour rain are preferred when the
// station advertises them. Rain is summed per day from the largest
// accumulation seen each hour; a day with no rain reports is 0.00, not null.
//
// Rounding is half away from zero: temperatures and wind to whole units,
// rain to hundredths.
//
// # Wind Reconciliation
//
// Station anemometers and climate products disagree. Bulletin values override
// archive values, and the merged value replaces the observed daily peak unless
// the observation exceeds it by [DefaultWindDiscrepancy] knots or more.
package domain
