package scoutevents

import (
	"fmt"
	"strings"
)

// BaseURL is the public event listing site.
const BaseURL = "https://events.nsw.scouts.com.au"

// Region is a subscribable listing page.
type Region string

const (
	State                Region = "state"
	SouthMetropolitan    Region = "south_metropolitan"
	SydneyNorth          Region = "sydney_north"
	GreaterWesternSydney Region = "greater_western_sydney"
	Hume                 Region = "hume"
	SouthCoastTablelands Region = "south_coast_tablelands"
	Swash                Region = "swash"
)

var regionPaths = map[Region]string{
	State:                "/state/nsw",
	SouthMetropolitan:    "/region/sm",
	SydneyNorth:          "/region/sn",
	GreaterWesternSydney: "/region/gws",
	Hume:                 "/region/hume",
	SouthCoastTablelands: "/region/sct",
	Swash:                "/region/water-activities-centre",
}

// Regions lists every known region in declaration order.
func Regions() []Region {
	return []Region{State, SouthMetropolitan, SydneyNorth, GreaterWesternSydney, Hume, SouthCoastTablelands, Swash}
}

func (r Region) Valid() bool {
	_, ok := regionPaths[r]
	return ok
}

// Path is the listing path relative to BaseURL.
func (r Region) Path() string { return regionPaths[r] }

// ParseRegion accepts the config spelling of a region, case-insensitively.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown region %q", s)
	}
	return r, nil
}

