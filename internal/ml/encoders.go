package ml

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DateEncoder turns a basemap date ("YYYY-MM") into the two categorical
// feature codes used at training time: one code per distinct year seen and
// one per distinct calendar month seen. The mapping tables are plain data
// so the encoder survives serialization without any language native object
// graph.
type DateEncoder struct {
	Version    int            `json:"version"`
	YearCodes  map[string]int `json:"year_codes"`
	MonthCodes map[int]int    `json:"month_codes"`
	SeenDates  []string       `json:"seen_dates"`
}

const dateEncoderVersion = 1

func splitBasemapDate(date string) (string, int, error) {
	parts := strings.Split(date, "-")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid basemap date %q, expected YYYY-MM", date)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return "", 0, fmt.Errorf("invalid month in basemap date %q", date)
	}
	return parts[0], month, nil
}

func dateToNumeric(date string) (int, error) {
	year, month, err := splitBasemapDate(date)
	if err != nil {
		return 0, err
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return 0, fmt.Errorf("invalid year in basemap date %q", date)
	}
	return y*100 + month, nil
}

// FitDateEncoder builds the year and month code tables from the dates seen
// in training. Codes are assigned in sorted order so refitting the same
// dataset reproduces the same tables.
func FitDateEncoder(dates []string) (*DateEncoder, error) {
	yearSet := map[string]bool{}
	monthSet := map[int]bool{}
	dateSet := map[string]bool{}
	for _, d := range dates {
		year, month, err := splitBasemapDate(d)
		if err != nil {
			return nil, err
		}
		yearSet[year] = true
		monthSet[month] = true
		dateSet[d] = true
	}
	if len(dateSet) == 0 {
		return nil, fmt.Errorf("no basemap dates to encode")
	}

	years := make([]string, 0, len(yearSet))
	for y := range yearSet {
		years = append(years, y)
	}
	sort.Strings(years)

	months := make([]int, 0, len(monthSet))
	for m := range monthSet {
		months = append(months, m)
	}
	sort.Ints(months)

	seen := make([]string, 0, len(dateSet))
	for d := range dateSet {
		seen = append(seen, d)
	}
	sort.Strings(seen)

	enc := &DateEncoder{
		Version:    dateEncoderVersion,
		YearCodes:  make(map[string]int, len(years)),
		MonthCodes: make(map[int]int, len(months)),
		SeenDates:  seen,
	}
	for i, y := range years {
		enc.YearCodes[y] = i
	}
	for i, m := range months {
		enc.MonthCodes[m] = i
	}
	return enc, nil
}

// Encode returns the (date, month) feature codes for a basemap date. A date
// never seen in training falls back to the nearest seen date by numeric
// proximity of its YYYYMM value, with a logged warning, rather than failing.
func (e *DateEncoder) Encode(date string) (int, int, error) {
	year, month, err := splitBasemapDate(date)
	if err != nil {
		return 0, 0, err
	}

	yearCode, yearOK := e.YearCodes[year]
	monthCode, monthOK := e.MonthCodes[month]
	if yearOK && monthOK {
		return yearCode, monthCode, nil
	}

	nearest, err := e.nearestSeenDate(date)
	if err != nil {
		return 0, 0, err
	}
	log.Warn().
		Str("requested", date).
		Str("using", nearest).
		Msg("basemap date not seen in training, falling back to nearest seen date")

	nYear, nMonth, _ := splitBasemapDate(nearest)
	return e.YearCodes[nYear], e.MonthCodes[nMonth], nil
}

func (e *DateEncoder) nearestSeenDate(date string) (string, error) {
	target, err := dateToNumeric(date)
	if err != nil {
		return "", err
	}
	best := ""
	bestDist := -1
	for _, seen := range e.SeenDates {
		v, err := dateToNumeric(seen)
		if err != nil {
			continue
		}
		dist := v - target
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = seen
			bestDist = dist
		}
	}
	if best == "" {
		return "", fmt.Errorf("date encoder has no seen dates")
	}
	return best, nil
}

// Decode recovers the (year, month) a pair of codes was produced from.
func (e *DateEncoder) Decode(yearCode, monthCode int) (string, int, bool) {
	year, yearOK := "", false
	for y, c := range e.YearCodes {
		if c == yearCode {
			year, yearOK = y, true
			break
		}
	}
	month, monthOK := 0, false
	for m, c := range e.MonthCodes {
		if c == monthCode {
			month, monthOK = m, true
			break
		}
	}
	return year, month, yearOK && monthOK
}

// LabelEncoder pins the project's global class vocabulary: the index of a
// class name in Classes is its global class index for every raster the
// project ever produces.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

func (e *LabelEncoder) Index(label string) (int, bool) {
	for i, c := range e.Classes {
		if c == label {
			return i, true
		}
	}
	return 0, false
}

func (e *LabelEncoder) Label(index int) (string, bool) {
	if index < 0 || index >= len(e.Classes) {
		return "", false
	}
	return e.Classes[index], true
}

// ClassMap relates the dense 0..k-1 encoding required by the classifier to
// the global vocabulary indices. Persisted with every model; prediction
// output is meaningless without it.
type ClassMap struct {
	Present         []string `json:"present"`
	CompactToGlobal []int    `json:"compact_to_global"`
}

// BuildClassMap derives the compact encoding from the classes observed in
// the labels, kept in the vocabulary's canonical order.
func BuildClassMap(labels []string, vocabulary []string) (*ClassMap, error) {
	observed := map[string]bool{}
	for _, l := range labels {
		observed[l] = true
	}

	cm := &ClassMap{}
	for globalIdx, class := range vocabulary {
		if observed[class] {
			cm.Present = append(cm.Present, class)
			cm.CompactToGlobal = append(cm.CompactToGlobal, globalIdx)
		}
		delete(observed, class)
	}
	for class := range observed {
		return nil, fmt.Errorf("label %q is not part of the project class vocabulary", class)
	}
	if len(cm.Present) == 0 {
		return nil, fmt.Errorf("no classes observed in labels")
	}
	return cm, nil
}

// CompactIndex returns the dense class id for a label.
func (cm *ClassMap) CompactIndex(label string) (int, bool) {
	for i, c := range cm.Present {
		if c == label {
			return i, true
		}
	}
	return 0, false
}

// GlobalIndex maps a dense class id back to its global vocabulary index.
func (cm *ClassMap) GlobalIndex(compact int) (int, bool) {
	if compact < 0 || compact >= len(cm.CompactToGlobal) {
		return 0, false
	}
	return cm.CompactToGlobal[compact], true
}
