package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cellgraph/cellgraph/reactive"
	"github.com/dustin/go-humanize"
	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

const iterationsKey = "iterations"

type intGetter interface {
	Get() (int, error)
}

func main() {
	cmd := &cli.Command{
		Name:  "cellbench",
		Usage: "Benchmarks for the cellgraph reactive runtime",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  iterationsKey,
				Usage: "Iterations per benchmark case",
				Value: 100,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "propagate",
				Usage:  "Write propagation latency across wide and deep graphs",
				Action: benchmarkPropagate,
			},
			{
				Name:   "layers",
				Usage:  "Recomputation throughput across layered graphs",
				Action: benchmarkLayers,
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newBenchRuntime(w, h int) *reactive.Runtime {
	return reactive.NewRuntime(
		reactive.WithErrorHandler(func(origin reactive.Dependent, err error) {
			log.Panic(err)
		}),
		reactive.WithMaxEvalDepth(h+64),
		reactive.WithMaxFlushPasses(w*h+64),
	)
}

func benchmarkPropagate(ctx context.Context, cmd *cli.Command) error {
	iters := int(cmd.Uint(iterationsKey))
	ww := []int{1, 10, 100}
	hh := []int{1, 10, 100}

	tbl := table.NewWriter()
	tbl.SetTitle("cellgraph propagate")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})

	for _, w := range ww {
		for _, h := range hh {
			tach := tachymeter.New(&tachymeter.Config{Size: iters})

			rt := newBenchRuntime(w, h)
			src := reactive.State(rt, 1)
			for i := 0; i < w; i++ {
				var last intGetter = src
				for j := 0; j < h; j++ {
					prev := last
					last = reactive.Computed(rt, func() (int, error) {
						v, err := prev.Get()
						return v + 1, err
					})
				}
				reactive.Effect(rt, func() (reactive.CleanupFunc, error) {
					_, err := last.Get()
					return nil, err
				})
			}
			log.Printf("propagate %dx%d fingerprint %016x", w, h, reactive.GraphFingerprint(rt))

			for i := 0; i < iters; i++ {
				v, err := src.Peek()
				if err != nil {
					return err
				}
				start := time.Now()
				if err := src.Set(v + 1); err != nil {
					return err
				}
				tach.AddTime(time.Since(start))
			}

			calc := tach.Calc()
			tbl.AppendRows([]table.Row{
				{
					fmt.Sprintf("propagate: %d * %d", w, h),
					calc.Time.Avg,
					calc.Time.Min,
					calc.Time.P75,
					calc.Time.P99,
					calc.Time.Max,
				},
			})
		}
	}

	tbl.Render()
	return nil
}

type layersCase struct {
	name   string
	width  int
	layers int
}

func benchmarkLayers(ctx context.Context, cmd *cli.Command) error {
	iters := int(cmd.Uint(iterationsKey))
	cases := []layersCase{
		{name: "shallow wide", width: 100, layers: 5},
		{name: "square", width: 30, layers: 30},
		{name: "deep narrow", width: 5, layers: 200},
	}

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.SetHeader([]string{"test", "size", "iterations", "recomputes", "time", "rate/ms"})

	for _, tc := range cases {
		log.Printf("running %q (%dx%d)", tc.name, tc.width, tc.layers)

		rt := newBenchRuntime(tc.width, tc.layers)
		var recomputes int64

		sources := make([]*reactive.StateCell[int], tc.width)
		prev := make([]intGetter, tc.width)
		for i := range sources {
			sources[i] = reactive.State(rt, i)
			prev[i] = sources[i]
		}
		for l := 0; l < tc.layers; l++ {
			next := make([]intGetter, tc.width)
			for i := 0; i < tc.width; i++ {
				above := prev[i]
				left := prev[(i+tc.width-1)%tc.width]
				next[i] = reactive.Computed(rt, func() (int, error) {
					recomputes++
					av, err := above.Get()
					if err != nil {
						return 0, err
					}
					lv, err := left.Get()
					return av + lv, err
				})
			}
			prev = next
		}
		tail := prev

		start := time.Now()
		var sum int
		for i := 0; i < iters; i++ {
			if err := sources[i%tc.width].Set(i); err != nil {
				return err
			}
			for _, c := range tail {
				v, err := c.Get()
				if err != nil {
					return err
				}
				sum += v
			}
		}
		elapsed := time.Since(start)

		rate := float64(recomputes) / (float64(elapsed) / float64(time.Millisecond))
		tbl.Append([]string{
			tc.name,
			fmt.Sprintf("%dx%d", tc.width, tc.layers),
			humanize.Comma(int64(iters)),
			humanize.Comma(recomputes),
			fmt.Sprint(elapsed),
			humanize.Comma(int64(rate)),
		})
		log.Printf("%q checksum %d", tc.name, sum)
	}

	tbl.Render()
	return nil
}
