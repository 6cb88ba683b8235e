package main

import (
	"fmt"
	"io"

	"github.com/gangulwar/rollX/pkg/rollx"
)

// statusPrinter writes state changes and, optionally, every new reading.
type statusPrinter struct {
	w       io.Writer
	samples bool

	state   string
	lastErr string
	lastSeq uint64
}

func newStatusPrinter(w io.Writer, samples bool) *statusPrinter {
	return &statusPrinter{w: w, samples: samples}
}

func (p *statusPrinter) print(st rollx.Status) {
	if st.State != p.state {
		p.state = st.State
		if st.Endpoint != "" {
			fmt.Fprintf(p.w, "state: %s (%s)\n", st.State, st.Endpoint)
		} else {
			fmt.Fprintf(p.w, "state: %s\n", st.State)
		}
	}
	if st.LastError != p.lastErr {
		p.lastErr = st.LastError
		if st.LastError != "" {
			fmt.Fprintf(p.w, "error: %s\n", st.LastError)
		}
	}
	if p.samples && st.LastSample != nil && st.LastSample.Seq != p.lastSeq {
		p.lastSeq = st.LastSample.Seq
		fmt.Fprintln(p.w, st.LastSample.Display())
	}
}
