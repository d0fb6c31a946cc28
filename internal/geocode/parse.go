package geocode

import (
	"regexp"
	"strconv"
	"strings"
)

// fallbackSpan is the half-width in degrees of the box drawn around a point
// when the map server reports no bounding box.
const fallbackSpan = 0.01

const number = `(-?\d+(?:\.\d+)?)`

var (
	entryPattern       = regexp.MustCompile(`^\s*\d+\.\s+(.+?)\s*$`)
	coordinatesPattern = regexp.MustCompile(`Coordinates:\s*` + number + `\s*,\s*` + number)
	bboxPattern        = regexp.MustCompile(`Bounding box:\s*W:\s*` + number + `\s*,\s*S:\s*` + number +
		`\s*,\s*E:\s*` + number + `\s*,\s*N:\s*` + number)
)

// parseResults extracts the first usable result from the text items of a
// tool response. Non-text items are skipped.
func parseResults(contents []Content, query string) (Result, bool) {
	for _, item := range contents {
		if item.Type != "text" || strings.TrimSpace(item.Text) == "" {
			continue
		}
		if result, ok := parseText(item.Text, query); ok {
			return result, true
		}
	}
	return Result{}, false
}

// parseText reads the first numbered entry of a geocode listing:
//
//	1. Tesco Extra, Isleworth, London
//	   Coordinates: 51.459007, -0.337418
//	   Bounding box: W:-0.3384, S:51.4585, E:-0.3367, N:51.4597
//
// The label defaults to the query when the text has no numbered entry.
// Out-of-range coordinates reject the whole result.
func parseText(text, query string) (Result, bool) {
	var (
		label   string
		started bool
		coords  []string
		bbox    []string
	)
	for _, line := range strings.Split(text, "\n") {
		if m := entryPattern.FindStringSubmatch(line); m != nil {
			if started {
				break
			}
			started = true
			label = m[1]
			continue
		}
		if coords == nil {
			coords = coordinatesPattern.FindStringSubmatch(line)
		}
		if bbox == nil {
			bbox = bboxPattern.FindStringSubmatch(line)
		}
	}
	if coords == nil {
		return Result{}, false
	}

	lat, err := strconv.ParseFloat(coords[1], 64)
	if err != nil {
		return Result{}, false
	}
	lon, err := strconv.ParseFloat(coords[2], 64)
	if err != nil {
		return Result{}, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Result{}, false
	}

	if label == "" {
		label = query
	}
	result := Result{Latitude: lat, Longitude: lon, Label: label}
	if box, ok := parseBox(bbox); ok {
		result.BBox = &box
	} else {
		result.BBox = &BoundingBox{
			West:  lon - fallbackSpan,
			South: lat - fallbackSpan,
			East:  lon + fallbackSpan,
			North: lat + fallbackSpan,
		}
	}
	return result, true
}

func parseBox(match []string) (BoundingBox, bool) {
	if match == nil {
		return BoundingBox{}, false
	}
	values := make([]float64, 4)
	for i := range values {
		v, err := strconv.ParseFloat(match[i+1], 64)
		if err != nil {
			return BoundingBox{}, false
		}
		values[i] = v
	}
	return BoundingBox{West: values[0], South: values[1], East: values[2], North: values[3]}, true
}
