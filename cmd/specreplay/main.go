// Command specreplay converts a captured document stream into a SPEC data
// file offline.  The capture is newline-delimited JSON, one document per
// line:
//
//	{"kind": "start", "doc": {"uid": "...", "time": ..., ...}}
//
// With -demo N a synthetic N-point run is generated instead of reading a
// capture, which is handy for smoke-testing downstream SPEC tooling.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/theckman/yacspin"
	"golang.org/x/time/rate"

	"github.com/bcda-aps/specd/document"
	"github.com/bcda-aps/specd/specfile"
	"github.com/bcda-aps/specd/specwriter"
)

type line struct {
	Kind string          `json:"kind"`
	Doc  json.RawMessage `json:"doc"`
}

func main() {
	var (
		input   = flag.String("f", "", "document capture to replay (JSON lines); - for stdin")
		output  = flag.String("o", "", "SPEC data file to write; empty generates a time-stamped name")
		appendF = flag.Bool("append", false, "continue a populated output file with a fresh header block")
		pace    = flag.Float64("rate", 0, "documents per second; 0 replays as fast as possible")
		demo    = flag.Int("demo", 0, "generate a synthetic run with this many points instead of reading a capture")
		plan    = flag.String("plan", "rel_scan", "plan name for the synthetic run")
	)
	flag.Parse()

	mode := specfile.ErrorOnExisting
	if *appendF {
		mode = specfile.AppendExisting
	}
	w := specwriter.New(specwriter.Config{Path: *output, Mode: mode, AutoWrite: true})
	router := &document.Router{H: w}

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " replaying",
		SuffixAutoColon: true,
		StopMessage:     "done",
	})
	if err != nil {
		log.Fatal(err)
	}

	var limiter *rate.Limiter
	if *pace > 0 {
		limiter = rate.NewLimiter(rate.Limit(*pace), 1)
	}

	if *demo > 0 {
		synth := document.Synthetic{PlanName: *plan, ScanID: 1, Points: *demo}
		spinner.Start()
		for _, msg := range synth.Documents() {
			wait(limiter)
			spinner.Message(msg.Kind)
			if err := router.Receive(msg.Kind, msg.Doc); err != nil {
				spinner.StopFail()
				log.Fatal(err)
			}
		}
		spinner.Stop()
		fmt.Println("wrote", w.Filename())
		return
	}

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}
	var src *os.File
	if *input == "-" {
		src = os.Stdin
	} else {
		src, err = os.Open(*input)
		if err != nil {
			log.Fatal(err)
		}
		defer src.Close()
	}

	spinner.Start()
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	n := 0
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			spinner.StopFail()
			log.Fatalf("line %d: %v", n+1, err)
		}
		wait(limiter)
		n++
		spinner.Message(fmt.Sprintf("%d documents", n))
		if err := router.ReceiveJSON(l.Kind, l.Doc); err != nil {
			spinner.StopFail()
			log.Fatalf("line %d (%s): %v", n, l.Kind, err)
		}
	}
	if err := scanner.Err(); err != nil {
		spinner.StopFail()
		log.Fatal(err)
	}
	spinner.Stop()
	fmt.Printf("replayed %d documents into %s\n", n, w.Filename())
}

func wait(l *rate.Limiter) {
	if l == nil {
		return
	}
	l.Wait(context.Background())
}
