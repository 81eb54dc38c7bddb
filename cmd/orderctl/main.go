// Command orderctl submits and follows orders against a running order desk.
//
//	orderctl [-u URL] submit  < order.json
//	orderctl [-u URL] check   ID
//	orderctl [-u URL] wait    ID
//	orderctl [-u URL] approve ID   (needs ADMIN_USER / ADMIN_PASS)
//	orderctl [-u URL] reject  ID
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/wellywell/orderdesk/internal/client"
	"github.com/wellywell/orderdesk/internal/types"
	"github.com/wellywell/orderdesk/internal/validate"
)

var errUsage = errors.New("usage: orderctl [-u URL] [-i interval] [-t timeout] submit|check|wait|approve|reject [ID]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	flags := flag.NewFlagSet("orderctl", flag.ContinueOnError)
	url := flags.String("u", envOr("ORDERDESK_URL", "http://localhost:3000"), "order desk base URL")
	interval := flags.Duration("i", 2*time.Second, "poll interval for wait")
	timeout := flags.Duration("t", 10*time.Minute, "give up waiting after this long")
	if err := flags.Parse(args); err != nil {
		return err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		return errUsage
	}
	c := client.New(*url)

	switch cmd := rest[0]; cmd {
	case "submit":
		var sub validate.Submission
		if err := json.NewDecoder(in).Decode(&sub); err != nil {
			return fmt.Errorf("reading order from stdin: %w", err)
		}
		id, err := c.Submit(ctx, &sub)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id)
		return nil

	case "check", "wait":
		if len(rest) != 2 {
			return errUsage
		}
		var (
			view any
			err  error
		)
		if cmd == "check" {
			view, err = c.Check(ctx, rest[1])
		} else {
			waitCtx, cancel := context.WithTimeout(ctx, *timeout)
			defer cancel()
			view, err = c.WaitForDecision(waitCtx, rest[1], *interval)
		}
		if err != nil {
			return err
		}
		return json.NewEncoder(out).Encode(view)

	case "approve", "reject":
		if len(rest) != 2 {
			return errUsage
		}
		act, _ := types.ParseAction(cmd)
		c.WithAdmin(envOr("ADMIN_USER", "admin"), envOr("ADMIN_PASS", "1234"))
		if err := c.Act(ctx, rest[1], act); err != nil {
			return err
		}
		view, err := c.Check(ctx, rest[1])
		if err != nil {
			return err
		}
		return json.NewEncoder(out).Encode(view)

	default:
		return errUsage
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
