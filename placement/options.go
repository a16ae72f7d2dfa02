package placement

import "log/slog"

// Progress is reported to an Observer after every accepted building,
// periodically while candidates are rejected and once more when the run
// stops.
type Progress struct {
	RunID           string
	Buildings       int
	Attempts        int
	Budget          float64
	BudgetRemaining float64
	// Final is set on the last report of a run that was not aborted.
	Final bool
}

// Observer is called from the goroutine running the placement loop and must
// not block.
type Observer func(Progress)

type options struct {
	logger   *slog.Logger
	observer Observer
}

type Option interface {
	apply(*options)
}

type loggerOption struct{ logger *slog.Logger }

func (o loggerOption) apply(opts *options) {
	opts.logger = o.logger
}

// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return loggerOption{logger: logger}
}

type observerOption Observer

func (o observerOption) apply(opts *options) {
	opts.observer = Observer(o)
}

func WithObserver(observer Observer) Option {
	return observerOption(observer)
}

func loadOptions(opts ...Option) options {
	options := options{
		logger:   slog.Default(),
		observer: func(Progress) {},
	}
	for _, o := range opts {
		o.apply(&options)
	}
	return options
}
