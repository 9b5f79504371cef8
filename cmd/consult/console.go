package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"lexmeet/internal/core/domain"
)

// console stands in for the browser's router and toast area.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) Navigate(route domain.Route) {
	c.printf("navigate: %s\n", route)
}

func (c *console) Error(message string) {
	c.printf("error: %s\n", message)
}

func (c *console) Success(message string) {
	c.printf("ok: %s\n", message)
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// stdinCheckout prints the checkout options and reads the gateway's handler
// response as one JSON line. An empty line cancels the payment.
type stdinCheckout struct {
	in  *bufio.Reader
	out io.Writer
}

func newStdinCheckout(in io.Reader, out io.Writer) *stdinCheckout {
	return &stdinCheckout{in: bufio.NewReader(in), out: out}
}

func (g *stdinCheckout) Open(ctx context.Context, options domain.CheckoutOptions) (domain.PaymentResult, error) {
	data, err := json.MarshalIndent(options, "", "  ")
	if err != nil {
		return domain.PaymentResult{}, err
	}
	fmt.Fprintf(g.out, "checkout options:\n%s\npaste the payment response JSON (empty line cancels):\n", data)

	type lineResult struct {
		line string
		err  error
	}
	lines := make(chan lineResult, 1)
	go func() {
		line, err := g.in.ReadString('\n')
		lines <- lineResult{line: line, err: err}
	}()

	var res lineResult
	select {
	case <-ctx.Done():
		return domain.PaymentResult{}, ctx.Err()
	case res = <-lines:
	}
	if res.err != nil && res.err != io.EOF {
		return domain.PaymentResult{}, res.err
	}

	line := strings.TrimSpace(res.line)
	if line == "" {
		return domain.PaymentResult{}, domain.ErrPaymentCancelled
	}
	var result domain.PaymentResult
	if err := json.Unmarshal([]byte(line), &result); err != nil {
		return domain.PaymentResult{}, fmt.Errorf("parse payment response: %w", err)
	}
	return result, nil
}
