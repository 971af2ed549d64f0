package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/physic"

	"eval_fpgaio/config"
	"eval_fpgaio/core"
	"eval_fpgaio/device/hchainio"
	"eval_fpgaio/device/irqout"
	"eval_fpgaio/device/line"
	"eval_fpgaio/device/uio"
	"eval_fpgaio/jsonrpc"
	"eval_fpgaio/log"
	"eval_fpgaio/regbus"
	"eval_fpgaio/script"
	"eval_fpgaio/sim"
	"eval_fpgaio/system"
	"eval_fpgaio/version"
)

const SHUTDOWN_TIMEOUT = 5 * time.Second

var (
	configPath = flag.String("config", "", "board config JSON file")
	backendArg = flag.String("backend", "", "register backend: sim, uio or remote")
	chainArg   = flag.Int("chain", -1, "chain index for the uio backend")
	listenArg  = flag.String("listen", "", "API listen address for serve")
	remoteArg  = flag.String("remote", "", "API address for the remote backend")
	linkArg    = flag.String("link", "", "simulated serial link: loopback, echo, peer or pins")
	baudArg    = flag.Int("baud", 0, "chain baud rate used by -init and console")
	doInit     = flag.Bool("init", false, "initialize the I/O block before running")
	debug      = flag.Bool("debug", false, "debug logging")
	showVer    = flag.Bool("version", false, "print version and exit")
	clockArg   physic.Frequency
)

func init() {
	flag.Var(&clockArg, "clock", "I/O block clock, for example 50MHz")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] serve | script <file.lua> | console | dump\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func loadConfig() (*config.BoardConfig, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *backendArg != "" {
		cfg.Backend = *backendArg
	}
	if *chainArg >= 0 {
		cfg.ChainIdx = *chainArg
	}
	if *listenArg != "" {
		cfg.Listen = *listenArg
	}
	if *remoteArg != "" {
		cfg.Remote = *remoteArg
	}
	if *linkArg != "" {
		cfg.SimLink = *linkArg
	}
	if *baudArg > 0 {
		cfg.BaudRate = *baudArg
	}
	if clockArg > 0 {
		cfg.Clock = clockArg.String()
	}
	cfg.Parse()
	if !cfg.Valid {
		return nil, errors.New(cfg.Reason)
	}
	return cfg, nil
}

// backend is an open register device and whatever keeps it alive.
type backend struct {
	dev     regbus.Device
	actor   *sim.Actor
	sink    *irqout.MultiSink
	closers []func() error
}

func (b *backend) close() {
	if b.sink != nil {
		if err := b.sink.Close(); err != nil {
			log.Errorf("irq outputs: %v", err)
		}
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Errorf("close: %v", err)
		}
	}
}

func openLink(cfg *config.BoardConfig) (sim.Link, error) {
	switch cfg.SimLink {
	case config.LINK_ECHO:
		return sim.NewEchoPeer(cfg.PeerDivisor), nil
	case config.LINK_PEER:
		return sim.NewPeer(cfg.PeerDivisor), nil
	case config.LINK_PINS:
		return line.OpenPinLink(cfg.TxPin, cfg.RxPin)
	}
	return sim.NewLoopback(cfg.LinkDelay), nil
}

func openIRQOutputs(cfg *config.BoardConfig) (*irqout.MultiSink, error) {
	ms := irqout.NewMultiSink(irqout.LogSink{})
	if cfg.IrqChip != "" && len(cfg.IrqOffsets) > 0 {
		gs, err := irqout.NewGpiodSink(cfg.IrqChip, config.IrqOffsetArray(cfg.IrqOffsets))
		if err != nil {
			return nil, err
		}
		ms.Add(gs)
	}
	if len(cfg.IrqSysfsPins) > 0 {
		ss, err := irqout.NewSysfsSink(config.IrqOffsetArray(cfg.IrqSysfsPins))
		if err != nil {
			ms.Close()
			return nil, err
		}
		ms.Add(ss)
	}
	return ms, nil
}

func openBackend(cfg *config.BoardConfig) (*backend, error) {
	b := &backend{}
	switch cfg.Backend {
	case config.BACKEND_UIO:
		c, err := uio.OpenChain(cfg.ChainIdx)
		if err != nil {
			return nil, err
		}
		b.dev = c
		b.closers = append(b.closers, c.Close)
	case config.BACKEND_REMOTE:
		rb := jsonrpc.NewRemoteBus(cfg.Remote)
		b.dev = rb
		b.closers = append(b.closers, func() error { rb.Close(); return nil })
	default:
		link, err := openLink(cfg)
		if err != nil {
			return nil, err
		}
		sink, err := openIRQOutputs(cfg)
		if err != nil {
			return nil, err
		}
		b.sink = sink
		b.actor = sim.NewActor(sim.NewBoard(core.New(cfg.Core.ToCore()), link))
		b.actor.Forward = sink
		b.dev = b.actor
	}
	return b, nil
}

// initChain brings the block up the way a miner would and returns its command channel.
func initChain(b *backend, cfg *config.BoardConfig) (*hchainio.Common, *hchainio.CommandRxTx, error) {
	hc, err := hchainio.NewCore(b.dev, cfg.ChainIdx, cfg.Midstates)
	if err != nil {
		return nil, nil, err
	}
	common, cmd, _, _, err := hc.InitAndSplit()
	if err != nil {
		return nil, nil, err
	}
	if _, err := common.SetBaudRate(cfg.BaudRate, cfg.ClockFrequency()); err != nil {
		return nil, nil, err
	}
	if b.actor != nil {
		div, err := b.dev.Read32(core.REG_BAUD)
		if err != nil {
			return nil, nil, err
		}
		err = b.actor.Inspect(func(bd *sim.Board) {
			if p, ok := bd.Link.(*sim.Peer); ok {
				p.SetDivisor(div)
			}
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return common, cmd, nil
}

func serve(ctx context.Context, b *backend, cfg *config.BoardConfig) error {
	api := jsonrpc.NewAPI(b.dev)
	if b.actor != nil {
		api.DeviceStatus = func() (interface{}, error) { return b.actor.Snapshot() }
	} else {
		api.DeviceStatus = func() (interface{}, error) { return system.GetSystemInfo() }
	}
	s, err := jsonrpc.NewServer(cfg.Listen, api.Handler(), true)
	if err != nil {
		return err
	}
	go s.ListenAndServe()
	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	return s.Shutdown(sctx)
}

func dump(b *backend) error {
	regs, err := regbus.Dump(b.dev)
	if err != nil {
		return err
	}
	for _, addr := range core.RegisterOffsets() {
		name := core.RegisterName(addr)
		if v, ok := regs[name]; ok {
			fmt.Printf("%#04x %-18s %#010x\n", addr, name, v)
		}
	}
	if b.actor != nil {
		snap, err := b.actor.Snapshot()
		if err != nil {
			return err
		}
		fmt.Printf("cycles %d irq %v queues %v stats %+v\n", snap.Cycle, snap.IRQ, snap.Queues, snap.Stats)
	}
	return nil
}

func runMode(ctx context.Context, b *backend, cfg *config.BoardConfig, args []string) error {
	mode := args[0]
	if *doInit && mode != "console" {
		if _, _, err := initChain(b, cfg); err != nil {
			return err
		}
	}
	switch mode {
	case "serve":
		return serve(ctx, b, cfg)
	case "script":
		if len(args) < 2 {
			return errors.New("script needs a file")
		}
		e := script.NewEngine(b.dev, os.Stdout)
		defer e.Close()
		return e.RunFile(ctx, args[1])
	case "console":
		common, cmd, err := initChain(b, cfg)
		if err != nil {
			return err
		}
		if err := common.SetRxMode(core.RX_MODE_CMD); err != nil {
			return err
		}
		return runConsole(ctx, cmd)
	case "dump":
		return dump(b)
	}
	return fmt.Errorf("unknown mode %q", mode)
}

func run(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	if b.actor != nil {
		g.Go(func() error { return b.actor.Run(ctx) })
		<-b.actor.Started()
	}
	g.Go(func() error {
		err := runMode(ctx, b, cfg, args)
		if err == nil {
			cancel()
		}
		return err
	})
	err = g.Wait()
	cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	flag.Parse()
	log.SetDebug(*debug)
	if *showVer {
		vc := version.GetVersionConfig()
		fmt.Printf("%s %s (%s) built %s\n", vc.Model, vc.Version, vc.GitHash, vc.BuildTS)
		return
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log.Infof("=============== fpgaio %s start ===============", version.Version)
	if err := run(flag.Args()); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	log.Infof("=============== fpgaio stop ===============")
}
