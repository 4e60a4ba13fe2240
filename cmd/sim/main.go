// Command sim runs an in-process gossip cluster on a simulated clock and
// prints every node's view of the membership.
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
	"github.com/ryandielhenn/zephyrgossip/pkg/transport/memtransport"
)

func main() {
	n := flag.Int("n", 5, "nodes")
	duration := flag.Duration("duration", 30*time.Second, "simulated run time")
	tick := flag.Duration("tick", 50*time.Millisecond, "simulated tick")
	kill := flag.Int("kill", -1, "index of a node to stop halfway through")
	cut := flag.String("cut", "", "one-way link cut as from,to node indices, e.g. 0,1")
	seed := flag.Uint64("seed", 1, "random seed")
	verbose := flag.Bool("v", false, "log protocol events")
	flag.Parse()

	log := zap.NewNop()
	if *verbose {
		dev, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		log = dev
	}
	defer log.Sync()

	clk := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	net := memtransport.NewNetwork(clk.Now)
	cfg := gossip.DefaultConfig()
	cfg.TickInterval = *tick

	nodes := make([]*gossip.Controller, *n)
	names := make([]string, *n)
	for i := range nodes {
		names[i] = fmt.Sprintf("node-%d:7946", i)
	}
	for i := range nodes {
		c := gossip.NewController(cfg, names[i], net.Transport(names[i]),
			gossip.WithClock(clk.Now),
			gossip.WithGeneration(1),
			gossip.WithRand(rand.New(rand.NewPCG(*seed, uint64(i)))),
			gossip.WithLogger(log.Named(names[i])))
		c.AddSeeds([]string{names[0]})
		net.Register(names[i], c)
		nodes[i] = c
	}

	if *cut != "" {
		var from, to int
		if _, err := fmt.Sscanf(strings.ReplaceAll(*cut, ",", " "), "%d %d", &from, &to); err != nil || !valid(from, *n) || !valid(to, *n) {
			fmt.Fprintf(os.Stderr, "invalid -cut %q\n", *cut)
			os.Exit(2)
		}
		net.Cut(names[from], names[to])
		fmt.Printf("cut %s -> %s\n", names[from], names[to])
	}

	alive := make([]bool, *n)
	for i := range alive {
		alive[i] = true
	}
	start := clk.Now()
	killed := false
	for clk.Now().Sub(start) < *duration {
		if !killed && valid(*kill, *n) && clk.Now().Sub(start) >= *duration/2 {
			net.Unregister(names[*kill])
			alive[*kill] = false
			killed = true
			fmt.Printf("t=%s stopped %s\n", clk.Now().Sub(start), names[*kill])
			printViews(nodes, alive)
		}
		for i, c := range nodes {
			if alive[i] {
				c.DoWork()
			}
		}
		clk.Advance(*tick)
	}
	fmt.Printf("t=%s\n", clk.Now().Sub(start))
	printViews(nodes, alive)
}

func valid(i, n int) bool { return i >= 0 && i < n }

func printViews(nodes []*gossip.Controller, alive []bool) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, c := range nodes {
		if !alive[i] {
			continue
		}
		a, s, d := c.Peers().Count()
		fmt.Fprintf(w, "%s\talive=%d suspect=%d dead=%d\t", c.Endpoint(), a, s, d)
		l := c.Peers()
		for j := 0; j < l.Len(); j++ {
			p := l.At(j)
			if p.Local {
				continue
			}
			fmt.Fprintf(w, "%s=%s ", strings.TrimSuffix(p.Endpoint, ":7946"), p.State)
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}
