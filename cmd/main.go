package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	sloglogrus "github.com/samber/slog-logrus/v2"
	"github.com/sirupsen/logrus"

	_ "net/http/pprof"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/urfave/cli/v3"
	_ "go.uber.org/automaxprocs"
)

func main() {
	app := &cli.Command{
		Name:  "autobuild",
		Usage: "Places buildings inside a parcel, away from restricted areas",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			setupLogging(cmd.Bool("verbose"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "place",
				Usage: "generate a building layout for a parcel",
				Flags: append(append(placementFlags(), layoutFileFlags()...),
					&cli.StringFlag{
						Name:      "output",
						Aliases:   []string{"o"},
						Usage:     "layout file, .geojson or .wkb, optionally .zst",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "png",
						Usage:     "render the layout to a png",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "background",
						Usage:     "image drawn under the rendered layout",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "stats",
						Usage:     "write a runtime statistics report",
						TakesFile: true,
					},
					&cli.BoolFlag{
						Name:  "progress",
						Value: true,
					},
					&cli.StringFlag{
						Name:    "otel.endpoint",
						Usage:   "OTLP/HTTP collector host:port",
						Sources: cli.EnvVars("AUTOBUILD_OTEL_ENDPOINT"),
					},
					&cli.StringFlag{
						Name: "pprof.listen",
					},
					&cli.BoolFlag{
						Name: "pprof.profile",
					},
					&cli.BoolFlag{
						Name: "pprof.heap",
					},
				),
				Action: place,
			},
			{
				Name:  "verify",
				Usage: "check a saved layout against its parcel and restrictions",
				Flags: append(layoutFileFlags(),
					&cli.StringFlag{
						Name:      "layout",
						Aliases:   []string{"l"},
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:  "layout-crs",
						Usage: "reference of the layout file, read from the file by default",
					},
					&cli.FloatFlag{
						Name:     "min-distance",
						Aliases:  []string{"m"},
						Required: true,
					},
					&cli.StringFlag{
						Name:  "working-crs",
						Value: "EPSG:3395",
					},
				),
				Action: verify,
			},
			{
				Name:  "serve",
				Usage: "serve the layout http api",
				Flags: append(placementFlags(),
					&cli.StringFlag{
						Name:    "listen",
						Value:   ":8080",
						Sources: cli.EnvVars("AUTOBUILD_LISTEN"),
					},
				),
				Action: serve,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
		logrus.SetLevel(logrus.DebugLevel)
	}
	slog.SetDefault(slog.New(sloglogrus.Option{Level: level, Logger: logrus.StandardLogger()}.NewLogrusHandler()))
}

// startProfiling handles the pprof.* flags. The returned stop must be
// called once the work is done.
func startProfiling(cmd *cli.Command) (func(), error) {
	log := slog.Default()

	if pprofListen := cmd.String("pprof.listen"); pprofListen != "" {
		go func() {
			log.Info("Starting pprof server", "address", pprofListen)
			err := http.ListenAndServe(pprofListen, nil)
			if err != nil {
				log.Error("Error starting pprof server", "error", err)
			}
		}()
	}

	stops := []func(){}
	if cmd.Bool("pprof.profile") {
		f, err := os.OpenFile("profile.cpu.pprof", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("error creating pprof file: %w", err)
		}
		err = pprof.StartCPUProfile(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("error starting pprof: %w", err)
		}
		stops = append(stops, func() {
			pprof.StopCPUProfile()
			f.Close()
		})
	}
	if cmd.Bool("pprof.heap") {
		stops = append(stops, func() {
			if err := writeHeapProfile("profile"); err != nil {
				log.Error("Error writing heap profile", "error", err)
			}
		})
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}

func writeHeapProfile(name string) error {
	f, err := os.Create(name + ".heap.prof")
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}
