package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"eval_fpgaio/device/hchainio"
)

const (
	// Ctrl-]
	CONSOLE_ESCAPE = 0x1d
	CONSOLE_DRAIN  = 200 * time.Millisecond
)

// runConsole sends stdin bytes down the command channel and prints what comes back.
func runConsole(ctx context.Context, cmd *hchainio.CommandRxTx) error {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer term.Restore(fd, old)
		fmt.Fprint(os.Stderr, "console: Ctrl-] to quit\r\n")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	rxTime := make(chan time.Time, 1)
	g.Go(func() error {
		for {
			b, err := cmd.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			fmt.Printf("%02x ", b)
			select {
			case rxTime <- time.Now():
			default:
			}
		}
	})

	// Stdin reads cannot be cancelled, so they stay outside the group.
	chunks := make(chan []byte)
	go func() {
		defer close(chunks)
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					fmt.Fprintf(os.Stderr, "stdin: %v\r\n", err)
				}
				return
			}
		}
	}()

	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case chunk, ok := <-chunks:
				if !ok {
					drain(ctx, rxTime)
					return nil
				}
				quit := false
				if i := bytes.IndexByte(chunk, CONSOLE_ESCAPE); i >= 0 {
					chunk, quit = chunk[:i], true
				}
				if len(chunk) > 0 {
					if err := cmd.SendCommand(ctx, chunk, false); err != nil {
						return err
					}
				}
				if quit {
					return nil
				}
			}
		}
	})
	err := g.Wait()
	fmt.Print("\r\n")
	return err
}

// drain waits until no byte has arrived for CONSOLE_DRAIN.
func drain(ctx context.Context, rxTime <-chan time.Time) {
	t := time.NewTimer(CONSOLE_DRAIN)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rxTime:
			t.Reset(CONSOLE_DRAIN)
		case <-t.C:
			return
		}
	}
}
