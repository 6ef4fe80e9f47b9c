package epanet

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type FlowUnits string

const (
	LPS  FlowUnits = "LPS"
	LPM  FlowUnits = "LPM"
	MLD  FlowUnits = "MLD"
	CMH  FlowUnits = "CMH"
	CMD  FlowUnits = "CMD"
	CFS  FlowUnits = "CFS"
	GPM  FlowUnits = "GPM"
	MGD  FlowUnits = "MGD"
	IMGD FlowUnits = "IMGD"
	AFD  FlowUnits = "AFD"
)

// flowToSI converts one unit of flow to m³/s.
var flowToSI = map[FlowUnits]float64{
	LPS:  1e-3,
	LPM:  1e-3 / 60,
	MLD:  1e3 / 86400,
	CMH:  1.0 / 3600,
	CMD:  1.0 / 86400,
	CFS:  0.028316846592,
	GPM:  6.30901964e-5,
	MGD:  0.0438126364,
	IMGD: 0.0526167042,
	AFD:  0.0142764101,
}

const (
	feet   = 0.3048
	inches = 0.0254
	hp     = 0.745699872
)

// US reports whether lengths are in feet and pipe diameters in inches.
func (u FlowUnits) US() bool {
	switch u {
	case CFS, GPM, MGD, IMGD, AFD:
		return true
	}
	return false
}

// Flow is the m³/s factor of the unit.
func (u FlowUnits) Flow() float64 { return flowToSI[u] }

// Length converts feet or metres to metres.
func (u FlowUnits) Length() float64 {
	if u.US() {
		return feet
	}
	return 1
}

// PipeDiameter converts inches or millimetres to metres.
func (u FlowUnits) PipeDiameter() float64 {
	if u.US() {
		return inches
	}
	return 1e-3
}

// Power converts horsepower or kW to kW.
func (u FlowUnits) Power() float64 {
	if u.US() {
		return hp
	}
	return 1
}

func parseUnits(s string) (FlowUnits, error) {
	u := FlowUnits(strings.ToUpper(s))
	if _, ok := flowToSI[u]; !ok {
		return "", fmt.Errorf("unknown flow units %q", s)
	}
	return u, nil
}

var timeUnits = map[string]time.Duration{
	"SEC": time.Second, "SECOND": time.Second, "SECONDS": time.Second,
	"MIN": time.Minute, "MINUTE": time.Minute, "MINUTES": time.Minute,
	"HOUR": time.Hour, "HOURS": time.Hour,
	"DAY": 24 * time.Hour, "DAYS": 24 * time.Hour,
}

// ParseDuration accepts H:MM[:SS], decimal hours, a value followed by a
// unit (SEC, MIN, HOURS, DAYS) or a clock time with AM/PM.
func ParseDuration(fields []string) (time.Duration, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("missing time value")
	}
	val := fields[0]
	unit := ""
	if len(fields) > 1 {
		unit = strings.ToUpper(fields[1])
	}

	var d time.Duration
	if strings.Contains(val, ":") {
		parts := strings.Split(val, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("bad time %q", val)
		}
		mult := []time.Duration{time.Hour, time.Minute, time.Second}
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 {
				return 0, fmt.Errorf("bad time %q", val)
			}
			d += time.Duration(n) * mult[i]
		}
	} else {
		x, err := strconv.ParseFloat(val, 64)
		if err != nil || x < 0 {
			return 0, fmt.Errorf("bad time %q", val)
		}
		scale := time.Hour
		if u, ok := timeUnits[unit]; ok {
			scale = u
		}
		d = time.Duration(x * float64(scale))
	}

	switch unit {
	case "AM", "PM":
		if d >= 13*time.Hour {
			return 0, fmt.Errorf("bad clock time %q %s", val, unit)
		}
		if d >= 12*time.Hour {
			d -= 12 * time.Hour
		}
		if unit == "PM" {
			d += 12 * time.Hour
		}
	}
	return d, nil
}
