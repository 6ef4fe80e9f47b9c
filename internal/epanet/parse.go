package epanet

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseError locates a problem in the input.
type ParseError struct {
	Line    int
	Section string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("epanet: line %d [%s]: %v", e.Line, e.Section, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type line struct {
	num    int
	fields []string
	raw    string
}

// Sections are applied in this order so units and referenced objects are
// known before they are needed.
var sectionOrder = []string{
	"TITLE", "OPTIONS", "TIMES",
	"JUNCTIONS", "RESERVOIRS", "TANKS",
	"PIPES", "PUMPS", "VALVES",
	"PATTERNS", "CURVES", "DEMANDS", "STATUS",
}

type sectionFunc func(p *parser, l line) error

var handlers = map[string]sectionFunc{
	"TITLE":      (*parser).title,
	"OPTIONS":    (*parser).option,
	"TIMES":      (*parser).times,
	"JUNCTIONS":  (*parser).junction,
	"RESERVOIRS": (*parser).reservoir,
	"TANKS":      (*parser).tank,
	"PIPES":      (*parser).pipe,
	"PUMPS":      (*parser).pump,
	"VALVES":     (*parser).valve,
	"PATTERNS":   (*parser).pattern,
	"CURVES":     (*parser).curve,
	"DEMANDS":    (*parser).demand,
	"STATUS":     (*parser).status,
}

type parser struct {
	net        *Network
	units      FlowUnits
	demandsSet map[string]bool
	headCurves map[string]bool
}

func ParseFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads an .inp file. Unknown sections are skipped.
func Parse(r io.Reader) (*Network, error) {
	sections := make(map[string][]line)
	current := ""
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	num := 0
	for sc.Scan() {
		num++
		text := sc.Text()
		if i := strings.IndexByte(text, ';'); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "[") {
			end := strings.IndexByte(text, ']')
			if end < 0 {
				return nil, &ParseError{Line: num, Section: current, Err: fmt.Errorf("unterminated section header %q", text)}
			}
			current = strings.ToUpper(strings.TrimSpace(text[1:end]))
			continue
		}
		if current == "" {
			return nil, &ParseError{Line: num, Section: "", Err: fmt.Errorf("data outside any section")}
		}
		sections[current] = append(sections[current], line{num: num, fields: strings.Fields(text), raw: text})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	p := &parser{
		net:        newNetwork(),
		demandsSet: make(map[string]bool),
		headCurves: make(map[string]bool),
	}
	p.units = p.net.Options.Units
	for _, name := range sectionOrder {
		h := handlers[name]
		for _, l := range sections[name] {
			if err := h(p, l); err != nil {
				return nil, &ParseError{Line: l.num, Section: name, Err: err}
			}
		}
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return p.net, nil
}

func (p *parser) finish() error {
	for id := range p.headCurves {
		c, ok := p.net.Curves[id]
		if !ok {
			return fmt.Errorf("epanet: pump head curve %s is not defined", id)
		}
		for i := range c.X {
			c.X[i] *= p.units.Flow()
			c.Y[i] *= p.units.Length()
		}
	}
	for _, l := range p.net.Links {
		if l.Kind == Pump && l.HeadCurve == "" && l.Power == 0 {
			return fmt.Errorf("epanet: pump %s has neither HEAD nor POWER", l.ID)
		}
	}
	return nil
}

func number(fields []string, i int, name string) (float64, error) {
	if i >= len(fields) {
		return 0, fmt.Errorf("missing %s", name)
	}
	v, err := strconv.ParseFloat(fields[i], 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", name, fields[i])
	}
	return v, nil
}

func optional(fields []string, i int, name string, def float64) (float64, error) {
	if i >= len(fields) {
		return def, nil
	}
	return number(fields, i, name)
}

func need(fields []string, n int, what string) error {
	if len(fields) < n {
		return fmt.Errorf("%s needs %d fields, got %d", what, n, len(fields))
	}
	return nil
}

func (p *parser) addNode(n *Node) error {
	if _, dup := p.net.nodeIdx[n.ID]; dup {
		return fmt.Errorf("duplicate node %s", n.ID)
	}
	p.net.nodeIdx[n.ID] = len(p.net.Nodes)
	p.net.Nodes = append(p.net.Nodes, n)
	return nil
}

func (p *parser) addLink(l *Link) error {
	if _, dup := p.net.linkIdx[l.ID]; dup {
		return fmt.Errorf("duplicate link %s", l.ID)
	}
	for _, id := range []string{l.From, l.To} {
		if _, ok := p.net.nodeIdx[id]; !ok {
			return fmt.Errorf("link %s references unknown node %s", l.ID, id)
		}
	}
	if l.From == l.To {
		return fmt.Errorf("link %s starts and ends at %s", l.ID, l.From)
	}
	p.net.linkIdx[l.ID] = len(p.net.Links)
	p.net.Links = append(p.net.Links, l)
	return nil
}

func (p *parser) title(l line) error {
	p.net.Title = append(p.net.Title, l.raw)
	return nil
}

func (p *parser) option(l line) error {
	f := l.fields
	key := strings.ToUpper(f[0])
	switch key {
	case "UNITS":
		if err := need(f, 2, "UNITS"); err != nil {
			return err
		}
		u, err := parseUnits(f[1])
		if err != nil {
			return err
		}
		p.units = u
		p.net.Options.Units = u
	case "HEADLOSS":
		if err := need(f, 2, "HEADLOSS"); err != nil {
			return err
		}
		p.net.Options.Headloss = strings.ToUpper(f[1])
	case "PATTERN":
		if err := need(f, 2, "PATTERN"); err != nil {
			return err
		}
		p.net.Options.DefaultPattern = f[1]
	case "DEMAND":
		if len(f) >= 3 && strings.EqualFold(f[1], "MULTIPLIER") {
			v, err := number(f, 2, "demand multiplier")
			if err != nil {
				return err
			}
			p.net.Options.DemandMultiplier = v
		}
	case "TRIALS":
		v, err := number(f, 1, "trials")
		if err != nil {
			return err
		}
		p.net.Options.Trials = int(v)
	case "ACCURACY":
		v, err := number(f, 1, "accuracy")
		if err != nil {
			return err
		}
		p.net.Options.Accuracy = v
	case "SPECIFIC":
		v, err := number(f, 2, "specific gravity")
		if err != nil {
			return err
		}
		p.net.Options.SpecificGravity = v
	case "VISCOSITY":
		v, err := number(f, 1, "viscosity")
		if err != nil {
			return err
		}
		p.net.Options.Viscosity = v
	}
	return nil
}

func (p *parser) times(l line) error {
	f := l.fields
	key := strings.ToUpper(f[0])
	rest := f[1:]
	if len(f) >= 2 {
		switch key + " " + strings.ToUpper(f[1]) {
		case "HYDRAULIC TIMESTEP", "QUALITY TIMESTEP", "PATTERN TIMESTEP", "PATTERN START",
			"REPORT TIMESTEP", "REPORT START", "START CLOCKTIME":
			key += " " + strings.ToUpper(f[1])
			rest = f[2:]
		}
	}
	t := &p.net.Times
	targets := map[string]*time.Duration{
		"DURATION":           &t.Duration,
		"HYDRAULIC TIMESTEP": &t.HydraulicStep,
		"QUALITY TIMESTEP":   &t.QualityStep,
		"PATTERN TIMESTEP":   &t.PatternStep,
		"PATTERN START":      &t.PatternStart,
		"REPORT TIMESTEP":    &t.ReportStep,
		"REPORT START":       &t.ReportStart,
		"START CLOCKTIME":    &t.StartClock,
	}
	target, ok := targets[key]
	if !ok {
		return nil
	}
	d, err := ParseDuration(rest)
	if err != nil {
		return err
	}
	*target = d
	return nil
}

func (p *parser) junction(l line) error {
	f := l.fields
	if err := need(f, 2, "junction"); err != nil {
		return err
	}
	elev, err := number(f, 1, "elevation")
	if err != nil {
		return err
	}
	base, err := optional(f, 2, "demand", 0)
	if err != nil {
		return err
	}
	n := &Node{ID: f[0], Kind: Junction, Elevation: elev * p.units.Length()}
	d := Demand{Base: base * p.units.Flow()}
	if len(f) > 3 {
		d.Pattern = f[3]
	}
	n.Demands = []Demand{d}
	return p.addNode(n)
}

func (p *parser) reservoir(l line) error {
	f := l.fields
	if err := need(f, 2, "reservoir"); err != nil {
		return err
	}
	head, err := number(f, 1, "head")
	if err != nil {
		return err
	}
	n := &Node{ID: f[0], Kind: Reservoir, Head: head * p.units.Length(), Elevation: head * p.units.Length()}
	if len(f) > 2 {
		n.HeadPattern = f[2]
	}
	return p.addNode(n)
}

func (p *parser) tank(l line) error {
	f := l.fields
	if err := need(f, 6, "tank"); err != nil {
		return err
	}
	vals := make([]float64, 5)
	for i, name := range []string{"elevation", "initial level", "minimum level", "maximum level", "diameter"} {
		v, err := number(f, i+1, name)
		if err != nil {
			return err
		}
		vals[i] = v * p.units.Length()
	}
	minVol, err := optional(f, 6, "minimum volume", 0)
	if err != nil {
		return err
	}
	n := &Node{
		ID: f[0], Kind: Tank,
		Elevation: vals[0], InitLevel: vals[1], MinLevel: vals[2], MaxLevel: vals[3], Diameter: vals[4],
		MinVolume: minVol * p.units.Length() * p.units.Length() * p.units.Length(),
	}
	if len(f) > 7 && f[7] != "*" {
		n.VolCurve = f[7]
	}
	if n.MinLevel > n.MaxLevel || n.InitLevel < n.MinLevel || n.InitLevel > n.MaxLevel {
		return fmt.Errorf("tank %s levels out of order", n.ID)
	}
	return p.addNode(n)
}

func parseStatus(s string) (LinkStatus, bool) {
	switch strings.ToUpper(s) {
	case "OPEN":
		return Open, true
	case "CLOSED":
		return Closed, true
	case "CV":
		return CheckValve, true
	}
	return Open, false
}

func (p *parser) pipe(l line) error {
	f := l.fields
	if err := need(f, 6, "pipe"); err != nil {
		return err
	}
	length, err := number(f, 3, "length")
	if err != nil {
		return err
	}
	diam, err := number(f, 4, "diameter")
	if err != nil {
		return err
	}
	rough, err := number(f, 5, "roughness")
	if err != nil {
		return err
	}
	minor, err := optional(f, 6, "minor loss", 0)
	if err != nil {
		return err
	}
	if length <= 0 || diam <= 0 || rough <= 0 {
		return fmt.Errorf("pipe %s needs positive length, diameter and roughness", f[0])
	}
	link := &Link{
		ID: f[0], Kind: Pipe, From: f[1], To: f[2],
		Length:    length * p.units.Length(),
		Diameter:  diam * p.units.PipeDiameter(),
		Roughness: rough,
		MinorLoss: minor,
	}
	if len(f) > 7 {
		st, ok := parseStatus(f[7])
		if !ok {
			return fmt.Errorf("bad pipe status %q", f[7])
		}
		link.Status = st
	}
	return p.addLink(link)
}

func (p *parser) pump(l line) error {
	f := l.fields
	if err := need(f, 3, "pump"); err != nil {
		return err
	}
	link := &Link{ID: f[0], Kind: Pump, From: f[1], To: f[2], Speed: 1}
	for i := 3; i+1 < len(f); i += 2 {
		switch strings.ToUpper(f[i]) {
		case "HEAD":
			link.HeadCurve = f[i+1]
			p.headCurves[f[i+1]] = true
		case "POWER":
			v, err := number(f, i+1, "power")
			if err != nil {
				return err
			}
			link.Power = v * p.units.Power()
		case "SPEED":
			v, err := number(f, i+1, "speed")
			if err != nil {
				return err
			}
			link.Speed = v
		case "PATTERN":
			link.Pattern = f[i+1]
		default:
			return fmt.Errorf("unknown pump keyword %q", f[i])
		}
	}
	return p.addLink(link)
}

func (p *parser) valve(l line) error {
	f := l.fields
	if err := need(f, 6, "valve"); err != nil {
		return err
	}
	diam, err := number(f, 3, "diameter")
	if err != nil {
		return err
	}
	setting, err := number(f, 5, "setting")
	if err != nil {
		return err
	}
	minor, err := optional(f, 6, "minor loss", 0)
	if err != nil {
		return err
	}
	return p.addLink(&Link{
		ID: f[0], Kind: Valve, From: f[1], To: f[2],
		Diameter:  diam * p.units.PipeDiameter(),
		ValveType: strings.ToUpper(f[4]),
		Setting:   setting,
		MinorLoss: minor,
	})
}

func (p *parser) pattern(l line) error {
	f := l.fields
	pat, ok := p.net.Patterns[f[0]]
	if !ok {
		pat = &Pattern{ID: f[0]}
		p.net.Patterns[f[0]] = pat
	}
	for i := 1; i < len(f); i++ {
		v, err := number(f, i, "multiplier")
		if err != nil {
			return err
		}
		pat.Multipliers = append(pat.Multipliers, v)
	}
	return nil
}

func (p *parser) curve(l line) error {
	f := l.fields
	if err := need(f, 3, "curve point"); err != nil {
		return err
	}
	x, err := number(f, 1, "x")
	if err != nil {
		return err
	}
	y, err := number(f, 2, "y")
	if err != nil {
		return err
	}
	c, ok := p.net.Curves[f[0]]
	if !ok {
		c = &Curve{ID: f[0]}
		p.net.Curves[f[0]] = c
	}
	c.X = append(c.X, x)
	c.Y = append(c.Y, y)
	return nil
}

// demand replaces the junction's demand on first mention, then appends
// further categories.
func (p *parser) demand(l line) error {
	f := l.fields
	if err := need(f, 2, "demand"); err != nil {
		return err
	}
	n, ok := p.net.Node(f[0])
	if !ok || n.Kind != Junction {
		return fmt.Errorf("demand for unknown junction %s", f[0])
	}
	base, err := number(f, 1, "demand")
	if err != nil {
		return err
	}
	d := Demand{Base: base * p.units.Flow()}
	if len(f) > 2 {
		d.Pattern = f[2]
	}
	if len(f) > 3 {
		d.Category = strings.Join(f[3:], " ")
	}
	if !p.demandsSet[n.ID] {
		n.Demands = nil
		p.demandsSet[n.ID] = true
	}
	n.Demands = append(n.Demands, d)
	return nil
}

func (p *parser) status(l line) error {
	f := l.fields
	if err := need(f, 2, "status"); err != nil {
		return err
	}
	link, ok := p.net.Link(f[0])
	if !ok {
		return fmt.Errorf("status for unknown link %s", f[0])
	}
	if st, ok := parseStatus(f[1]); ok {
		link.Status = st
		return nil
	}
	v, err := number(f, 1, "setting")
	if err != nil {
		return err
	}
	switch link.Kind {
	case Pump:
		link.Speed = v
		if v == 0 {
			link.Status = Closed
		}
	case Valve:
		link.Setting = v
	default:
		return fmt.Errorf("pipe %s takes OPEN, CLOSED or CV", link.ID)
	}
	return nil
}
