// Command client drives one aggregation client against a running
// aggregator: it registers, follows the protocol for the configured
// variant, submits its input vector, and prints the round's aggregate.
//
// # Usage
//
//	go run ./cmd/client --url=http://localhost:8080 --id=1 --values=1,2,3
//	go run ./cmd/client --url=http://localhost:8080 --id=1 --values=1,2,3 --mode=owl
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rtaiello/let-them-drop/cmd/common"
	"github.com/rtaiello/let-them-drop/crypto"
	"github.com/rtaiello/let-them-drop/protocol"
	"github.com/rtaiello/let-them-drop/services"
)

var errNotReady = errors.New("not ready")

func main() {
	var (
		url           = flag.String("url", "http://localhost:8080", "Aggregator URL")
		clientID      = flag.Uint64("id", 0, "Client id (must be unique per deployment)")
		values        = flag.String("values", "", "Comma-separated input coefficients")
		mode          = flag.String("mode", "eagle", "Protocol variant: eagle or owl")
		signingKeyHex = flag.String("signing-key", "", "Ed25519 signing key (hex, generates if empty)")
		timeout       = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
		poll          = flag.Duration("poll", 500*time.Millisecond, "Poll interval")
	)
	flag.Parse()

	if *clientID == 0 || *values == "" {
		fmt.Println("Error: --id and --values are required")
		os.Exit(1)
	}

	coeffs, err := parseValues(*values)
	if err != nil {
		fmt.Printf("Invalid values: %v\n", err)
		os.Exit(1)
	}

	signingKey, err := common.LoadOrGenerateSigningKey(*signingKeyHex)
	if err != nil {
		fmt.Printf("Signing key error: %v\n", err)
		os.Exit(1)
	}

	params := protocol.DefaultParams()
	params.VectorLength = len(coeffs)
	field, err := params.Field()
	if err != nil {
		fmt.Printf("Field error: %v\n", err)
		os.Exit(1)
	}
	input := crypto.NewVectorFromInt64(field, coeffs)

	c := &runner{
		url:      *url,
		id:       protocol.ClientID(*clientID),
		params:   params,
		deadline: time.Now().Add(*timeout),
		poll:     *poll,
	}

	var result *protocol.AggregationResult
	switch *mode {
	case "eagle":
		result, err = c.runEagle(signingKey, input)
	case "owl":
		result, err = c.runOwl(signingKey, input)
	default:
		fmt.Printf("Unknown mode %q\n", *mode)
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Protocol error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Round %d aggregate over %d clients:\n", result.Round, len(result.OnlineSet))
	for i, el := range result.Sum {
		fmt.Printf("  [%d] %s\n", i, el.String())
	}
}

type runner struct {
	url      string
	id       protocol.ClientID
	params   *protocol.Params
	deadline time.Time
	poll     time.Duration
}

func (c *runner) runEagle(signingKey crypto.PrivateKey, input crypto.Vector) (*protocol.AggregationResult, error) {
	session, err := protocol.NewClientSession(c.id, signingKey, c.params)
	if err != nil {
		return nil, err
	}

	reg, err := session.RegisterMessage()
	if err != nil {
		return nil, err
	}
	if err := c.post("/register", reg); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	// Wait for a key agreement phase to begin.
	var round uint64
	err = c.waitFor(func() error {
		status, err := getMessage[services.RoundStatus](c.url + "/status")
		if err != nil || status.Phase != "key_agreement" {
			return errNotReady
		}
		round = status.Round
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for key agreement: %w", err)
	}

	ke, err := session.BeginRound(round)
	if err != nil {
		return nil, err
	}
	if err := c.post("/key-exchange", ke); err != nil {
		return nil, fmt.Errorf("key exchange: %w", err)
	}

	// Wait for the keyed set broadcast.
	var info *protocol.RoundInfo
	err = c.waitFor(func() error {
		info, err = getMessage[protocol.RoundInfo](c.url + "/round")
		if err != nil || info.Round != round {
			return errNotReady
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for round info: %w", err)
	}

	if err := session.ProcessRoundInfo(info); err != nil {
		return nil, err
	}
	shares, err := session.DealShares()
	if err != nil {
		return nil, err
	}
	for _, sub := range shares {
		if err := c.post("/shares", sub); err != nil {
			return nil, fmt.Errorf("submit shares: %w", err)
		}
	}

	// Wait for input collection to open, then submit.
	err = c.waitFor(func() error {
		status, err := getMessage[services.RoundStatus](c.url + "/status")
		if err != nil || status.Round != round || status.Phase != "masked_input_collection" {
			return errNotReady
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for input collection: %w", err)
	}

	masked, err := session.MaskInput(input)
	if err != nil {
		return nil, err
	}
	if err := c.post("/input", masked); err != nil {
		return nil, fmt.Errorf("submit input: %w", err)
	}

	return c.waitForResult(round)
}

func (c *runner) runOwl(signingKey crypto.PrivateKey, input crypto.Vector) (*protocol.AggregationResult, error) {
	session, err := protocol.NewOwlClientSession(c.id, signingKey, c.params)
	if err != nil {
		return nil, err
	}

	reg, err := session.RegisterMessage()
	if err != nil {
		return nil, err
	}
	if err := c.post("/register", reg); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	// Contribute to the open window; if it closes under us, remask for the
	// next one and retry.
	for {
		var info *protocol.WindowInfo
		err = c.waitFor(func() error {
			info, err = getMessage[protocol.WindowInfo](c.url + "/window")
			if err != nil {
				return errNotReady
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("wait for window: %w", err)
		}

		msg, err := session.Contribute(input, info)
		if err != nil {
			if errors.Is(err, protocol.ErrRoundClosed) {
				// Not in this window's member set; wait for the next one.
				time.Sleep(c.poll)
				continue
			}
			return nil, err
		}

		err = c.post("/contribution", msg)
		if err == nil {
			return c.waitForResult(info.Window)
		}
		var httpErr *httpStatusError
		if errors.As(err, &httpErr) && httpErr.status == http.StatusGone {
			continue
		}
		return nil, fmt.Errorf("contribute: %w", err)
	}
}

func (c *runner) waitForResult(round uint64) (*protocol.AggregationResult, error) {
	var result *protocol.AggregationResult
	err := c.waitFor(func() error {
		var err error
		result, err = getMessage[protocol.AggregationResult](fmt.Sprintf("%s/result/%d", c.url, round))
		if err != nil {
			return errNotReady
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wait for result: %w", err)
	}
	return result, nil
}

// waitFor polls fn until it succeeds or the deadline passes.
func (c *runner) waitFor(fn func() error) error {
	for {
		if err := fn(); err == nil {
			return nil
		}
		if time.Now().After(c.deadline) {
			return fmt.Errorf("timed out")
		}
		time.Sleep(c.poll)
	}
}

func parseValues(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	coeffs := make([]int64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("coefficient %d: %w", i, err)
		}
		coeffs[i] = v
	}
	return coeffs, nil
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, strings.TrimSpace(e.body))
}

func (c *runner) post(path string, msg any) error {
	body, err := protocol.SerializeMessage(&msg)
	if err != nil {
		return err
	}
	resp, err := http.Post(c.url+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		buf := make([]byte, 512)
		n, _ := resp.Body.Read(buf)
		return &httpStatusError{status: resp.StatusCode, body: string(buf[:n])}
	}
	return nil
}

func getMessage[T any](url string) (*T, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.StatusCode}
	}
	return protocol.DecodeMessage[T](resp.Body)
}
