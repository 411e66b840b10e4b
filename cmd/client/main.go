package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/erain9/pairbook/pkg/api"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	serverAddr = flag.String("addr", "http://localhost:8080", "The server base URL")
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := newClient(*serverAddr)
	if err := run(ctx, c, os.Stdout, args); err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("Command failed")
	}
}

// run executes one command against the API and prints its result to w
func run(ctx context.Context, c *client, w io.Writer, args []string) error {
	command, rest := args[0], args[1:]

	need := func(n int, usage string) error {
		if len(rest) < n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}

	switch command {
	case "pair":
		var pair api.PairInfo
		if err := c.get(ctx, "/api/v1/pair", nil, &pair); err != nil {
			return err
		}
		return printJSON(w, pair)
	case "market":
		var market api.MarketInfo
		if err := c.get(ctx, "/api/v1/market", nil, &market); err != nil {
			return err
		}
		return printJSON(w, market)
	case "prices":
		if err := need(1, "prices <bid|ask>"); err != nil {
			return err
		}
		var prices api.PricesResponse
		if err := c.get(ctx, "/api/v1/book/"+rest[0]+"/prices", nil, &prices); err != nil {
			return err
		}
		return printJSON(w, prices)
	case "level":
		if err := need(2, "level <bid|ask> <price>"); err != nil {
			return err
		}
		var orders []api.OrderInfo
		if err := c.get(ctx, "/api/v1/book/"+rest[0]+"/"+rest[1]+"/orders", nil, &orders); err != nil {
			return err
		}
		return printJSON(w, orders)
	case "order":
		if err := need(2, "order <bid|ask> <id>"); err != nil {
			return err
		}
		var order api.OrderInfo
		if err := c.get(ctx, "/api/v1/orders/"+rest[0]+"/"+rest[1], nil, &order); err != nil {
			return err
		}
		return printJSON(w, order)
	case "convert":
		if err := need(3, "convert <price> <amount> <quote|base>"); err != nil {
			return err
		}
		query := url.Values{"price": {rest[0]}, "amount": {rest[1]}, "toward": {rest[2]}}
		var result api.ConvertResponse
		if err := c.get(ctx, "/api/v1/convert", query, &result); err != nil {
			return err
		}
		return printJSON(w, result)
	case "state":
		return printState(ctx, c, w)
	default:
		printUsage(w)
		return fmt.Errorf("unknown command %q", command)
	}
}

// client is a thin JSON client for the market data API
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// get decodes the response of path into out, turning API errors into Go
// errors
func (c *client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("%s: status %d", path, resp.StatusCode)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s: %s: %s", path, apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("%s: %s", path, apiErr.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printState renders both sides of the book, asks above bids
func printState(ctx context.Context, c *client, w io.Writer) error {
	var asks, bids api.BookSide
	if err := c.get(ctx, "/api/v1/book/ask", nil, &asks); err != nil {
		return err
	}
	if err := c.get(ctx, "/api/v1/book/bid", nil, &bids); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan).SprintfFunc()
	red := color.New(color.FgRed).SprintfFunc()
	green := color.New(color.FgGreen).SprintfFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', tabwriter.AlignRight)
	separator := "---------------\t---------------\t-------\t----\t\n"

	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", cyan("Price"), cyan("Deposit"), cyan("Orders"), cyan("Side"))
	fmt.Fprint(tw, separator)

	// Asks are listed worst first so the spread sits in the middle
	for i := len(asks.Levels) - 1; i >= 0; i-- {
		level := asks.Levels[i]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t\n", level.PriceDecimal, level.DepositDecimal, level.Orders, red("ASK"))
	}
	fmt.Fprint(tw, separator)
	for _, level := range bids.Levels {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t\n", level.PriceDecimal, level.DepositDecimal, level.Orders, green("BID"))
	}

	return tw.Flush()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: client [-addr=http://host:port] <command> [args]")
	fmt.Fprintln(w, "  pair")
	fmt.Fprintln(w, "  market")
	fmt.Fprintln(w, "  prices <bid|ask>")
	fmt.Fprintln(w, "  level <bid|ask> <price>")
	fmt.Fprintln(w, "  order <bid|ask> <id>")
	fmt.Fprintln(w, "  convert <price> <amount> <quote|base>")
	fmt.Fprintln(w, "  state")
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintln(w, "  client state")
	fmt.Fprintln(w, "  client order bid 1")
	fmt.Fprintln(w, "  client convert 200000000000 1000000000000000000 quote")
}
