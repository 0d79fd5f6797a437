package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"tapflow/action"
	"tapflow/audit"
	"tapflow/dwell"
	"tapflow/eventpipe"
	"tapflow/events"
	"tapflow/indicator"
	"tapflow/mqtt"
	"tapflow/reader"
	"tapflow/store"
	"tapflow/workflow"
)

var myBuild string

const pingInterval = 120 * time.Second

// App holds the application state and dependencies.
type App struct {
	cfg       *Config
	resolver  *workflow.Resolver
	indicator indicator.Indicator
	mqtt      *mqtt.Client
	publisher events.Publisher
	journal   audit.Journal

	out io.Writer // operator-facing lines
	now func() time.Time
}

func main() {
	fmt.Printf("tapflow build %s\n", myBuild)

	cfgfile := pflag.String("cfg", defaultConfigFile, "Config file")
	mode := pflag.String("mode", "", "Override mode: ticket or register")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	listReaders := pflag.Bool("list-readers", false, "List PC/SC readers and exit")
	pflag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if *listReaders {
		if err := printReaders(os.Stdout); err != nil {
			log.Fatalf("List readers: %v", err)
		}
		return
	}

	cfg, err := LoadConfig(*cfgfile, pflag.CommandLine.Changed("cfg"))
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	if *mode != "" {
		if _, err := workflow.ParseMode(*mode); err != nil {
			log.Fatalf("--mode: %v", err)
		}
		cfg.Mode = *mode
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	// No reader means nothing to do
	tr, err := reader.New(cfg.Reader)
	if err != nil {
		log.Fatalf("Init reader: %v", err)
	}

	app, err := newApp(cfg)
	if err != nil {
		tr.Close()
		log.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pipe *eventpipe.EventPipe
	if sim, ok := tr.(*reader.Sim); ok {
		pipe, err = eventpipe.New(cfg.EventPipe, sim)
		if err != nil {
			log.Warnf("Event pipe: %v", err)
		}
		if pipe != nil {
			go pipe.Start(ctx)
		}
	}

	if err := app.mqtt.Connect(); err != nil {
		log.Warnf("MQTT connect: %v", err)
	}

	fmt.Printf("Mode %s, waiting for cards\n", cfg.Mode)
	app.indicator.Idle()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		app.newLoop(tr, dwell.RealWaiter{}).Run(ctx)
	}()
	go app.pingSender(ctx)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	cancel()
	<-loopDone

	// Cleanup
	if pipe != nil {
		pipe.Close()
	}
	tr.Close()
	app.Close()

	fmt.Println("Shutdown complete")
}

// newApp builds everything but the reader. Optional outputs that fail to
// start are logged and replaced by no-ops.
func newApp(cfg *Config) (*App, error) {
	mode, err := workflow.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	registry := store.NewRegistry(cfg.Store.CardsFile)
	tickets := store.NewTicketStore(cfg.Store.TicketsFile)

	var exec workflow.Executor
	if mode == workflow.ModeTicket {
		h, err := action.NewHTTP(cfg.API)
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		exec = h
	}

	resolver, err := workflow.NewResolver(mode, registry, tickets, exec)
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:      cfg,
		resolver: resolver,
		out:      os.Stdout,
		now:      time.Now,
	}

	app.indicator, err = indicator.New(cfg.Indicator)
	if err != nil {
		log.Warnf("Indicator disabled: %v", err)
		app.indicator = &indicator.Noop{}
	}

	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID)
	if err != nil {
		log.Warnf("MQTT disabled: %v", err)
		app.mqtt, _ = mqtt.New(mqtt.Config{}, cfg.ClientID)
	}

	var pubs events.Multi
	if app.mqtt.Enabled() {
		pubs = append(pubs, events.NewMQTT(app.mqtt))
	}
	if cfg.NATS.URL != "" {
		n, err := events.NewNATS(cfg.NATS, cfg.ClientID)
		if err != nil {
			log.Warnf("NATS disabled: %v", err)
		} else {
			pubs = append(pubs, n)
		}
	}
	app.publisher = pubs

	app.journal, err = audit.Open(cfg.Audit)
	if err != nil {
		log.Warnf("Audit journal disabled: %v", err)
		app.journal = audit.Noop{}
	}

	return app, nil
}

// newLoop wires the dwell engine to tr with the app as handler.
func (app *App) newLoop(tr reader.Transceiver, wait dwell.Waiter) *dwell.Loop {
	policy := app.cfg.Dwell
	loop := dwell.NewLoop(dwell.NewReader(tr, policy, wait), dwell.NewTracker(policy.Reset), app)
	loop.OnRemoved = func(reader.UID) {
		app.indicator.Idle()
	}
	return loop
}

// HandleDwell implements dwell.Handler.
func (app *App) HandleDwell(ctx context.Context, d dwell.Dwell) {
	app.indicator.Processing()

	out := app.resolver.Resolve(ctx, d.UID)
	app.report(d, out)
	log.WithFields(log.Fields{"dwell": d.ID, "uid": d.UID.String()}).Infof("Outcome %s", out)

	if cue, ok := cueFor(out); ok {
		app.indicator.Cue(cue)
	} else {
		app.indicator.Idle()
	}

	// Outcomes are recorded even when shutdown has started
	rec := context.WithoutCancel(ctx)
	e := events.FromOutcome(d, out, app.now())
	if err := app.publisher.Publish(rec, e); err != nil {
		log.Warnf("Publish dwell event: %v", err)
	}
	if err := app.journal.Record(rec, e); err != nil {
		log.Warnf("Audit record: %v", err)
	}
}

// cueFor maps an outcome to operator feedback. NoAction gets none.
func cueFor(out workflow.Outcome) (indicator.Cue, bool) {
	if out.Err != nil {
		return indicator.CueFailure, true
	}
	switch out.Kind {
	case workflow.WorkflowAdvance:
		if out.Transition == workflow.Start {
			return indicator.CueStart, true
		}
		return indicator.CueComplete, true
	case workflow.RegisterNew:
		return indicator.CueRegistered, true
	case workflow.Rejected:
		return indicator.CueFailure, true
	default:
		return "", false
	}
}

func (app *App) report(d dwell.Dwell, out workflow.Outcome) {
	uid := d.UID.String()
	switch {
	case out.Kind == workflow.WorkflowAdvance && out.Err != nil:
		fmt.Fprintf(app.out, "Card %s: %v\n", uid, out.Err)
	case out.Kind == workflow.WorkflowAdvance:
		fmt.Fprintf(app.out, "Card %s: ticket %d %s -> %s\n", uid, out.TicketID, out.From, out.To)
	case out.Kind == workflow.RegisterNew:
		fmt.Fprintf(app.out, "Card %s registered as #%d\n", uid, out.CardID)
	case out.Kind == workflow.NoAction && app.resolver.Mode() == workflow.ModeRegister:
		fmt.Fprintf(app.out, "Card %s already registered as #%d\n", uid, out.CardID)
	case out.Kind == workflow.NoAction:
		fmt.Fprintf(app.out, "Card %s: ticket %d already %s\n", uid, out.TicketID, out.From)
	case out.Err != nil:
		fmt.Fprintf(app.out, "Card %s rejected: %s: %v\n", uid, out.Reason, out.Err)
	default:
		fmt.Fprintf(app.out, "Card %s rejected: %s\n", uid, out.Reason)
	}
}

func (app *App) pingSender(ctx context.Context) {
	if !app.mqtt.Enabled() {
		return
	}
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	topic := events.StatusTopic(app.cfg.ClientID, "ping")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.mqtt.Publish(topic, []byte(`{"status":"ok"}`)); err != nil {
				log.Debugf("Ping: %v", err)
			}
		}
	}
}

// Close shuts down outputs in reverse order of use.
func (app *App) Close() {
	if err := app.journal.Close(); err != nil {
		log.Warnf("Close audit journal: %v", err)
	}
	app.publisher.Close()
	app.mqtt.Disconnect()
	app.indicator.Shutdown()
	if err := app.indicator.Release(); err != nil {
		log.Warnf("Release indicator: %v", err)
	}
}

func printReaders(w io.Writer) error {
	names, err := reader.ListPCSC()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(w, "%3d  %s\n", reader.ScoreReader(name), name)
	}
	best, err := reader.SelectReader(names, "")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Selected: %s\n", best)
	return nil
}
