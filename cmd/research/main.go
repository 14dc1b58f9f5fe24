// Command research is a thin CLI over agent.Runtime: it runs one turn
// of a research-agent conversation and prints the streamed envelopes
// to stdout as they arrive.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/dshills/deepgraph/agent"
	"github.com/dshills/deepgraph/stream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	thread := flag.String("thread", "", "existing thread id to resume (blank starts a new thread)")
	quiet := flag.Bool("quiet", false, "suppress intermediate envelopes, print only the final response")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	message := flag.Arg(0)
	if message == "" {
		fmt.Fprintln(os.Stderr, "usage: research [-thread id] [-quiet] [-metrics-addr addr] \"question\"")
		os.Exit(1)
	}

	cfg := agent.ConfigFromEnv()
	rt, err := agent.NewRuntime(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(rt.MetricsRegistry(), promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server error: %v", err)
			}
		}()
	}

	ctx := context.Background()
	bus := stream.NewBus(*thread)
	ch, unsub := bus.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range ch {
			printEnvelope(env, *quiet)
		}
	}()

	if err := rt.Run(ctx, bus, message, *thread); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	unsub()
	<-done
}

func printEnvelope(env stream.Envelope, quiet bool) {
	if quiet && env.Type != stream.TypeComplete && env.Type != stream.TypeError {
		return
	}
	payload, _ := json.Marshal(env.Payload)
	fmt.Printf("[%s] %s/%s %s\n", env.Node, env.Type, env.Event, payload)
}
