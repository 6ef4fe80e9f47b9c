package lpmodel

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
)

// WriteLP writes the model in CPLEX LP text format.
func (m *Model) WriteLP(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "\\ %s\nminimize\n obj:", m.Name)
	m.writeTerms(bw, m.obj)
	if m.objOff != 0 {
		fmt.Fprintf(bw, " %+g", m.objOff)
	}
	bw.WriteString("\nsubject to\n")
	for i, c := range m.cons {
		name := c.Name
		if name == "" {
			name = "c" + strconv.Itoa(i)
		}
		fmt.Fprintf(bw, " %s:", name)
		m.writeTerms(bw, c.Terms)
		fmt.Fprintf(bw, " %s %g\n", c.Sense, c.RHS)
	}

	bw.WriteString("bounds\n")
	var ints, bins []string
	for _, v := range m.vars {
		switch {
		case math.IsInf(v.Lower, -1) && math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s free\n", v.Name)
		case math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s >= %g\n", v.Name, v.Lower)
		case math.IsInf(v.Lower, -1):
			fmt.Fprintf(bw, " -inf <= %s <= %g\n", v.Name, v.Upper)
		default:
			fmt.Fprintf(bw, " %g <= %s <= %g\n", v.Lower, v.Name, v.Upper)
		}
		switch v.Kind {
		case Integer:
			ints = append(ints, v.Name)
		case Binary:
			bins = append(bins, v.Name)
		}
	}
	writeList(bw, "general", ints)
	writeList(bw, "binary", bins)
	bw.WriteString("end\n")
	return bw.Flush()
}

func (m *Model) writeTerms(w *bufio.Writer, terms []Term) {
	if len(terms) == 0 {
		w.WriteString(" 0")
		return
	}
	for _, t := range terms {
		fmt.Fprintf(w, " %+g %s", t.Coef, m.vars[t.Var].Name)
	}
}

func writeList(w *bufio.Writer, section string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(w, "%s\n", section)
	for _, n := range names {
		fmt.Fprintf(w, " %s\n", n)
	}
}
