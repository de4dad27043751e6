// Command chat drives the concierge pipeline from a terminal. Each line read
// from stdin is processed as an inbound WhatsApp message and the reply is
// printed instead of being sent through the gateway.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-concierge/cmd/mainconfig"
	"github.com/wolfman30/clinic-concierge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/internal/conversation"
	"github.com/wolfman30/clinic-concierge/internal/events"
	"github.com/wolfman30/clinic-concierge/internal/inbox"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

type options struct {
	instance string
	phone    string
	name     string
	mock     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.instance, "instance", "demo", "gateway instance name")
	flag.StringVar(&opts.phone, "phone", "5511999990001", "patient phone (digits)")
	flag.StringVar(&opts.name, "name", "Paciente", "patient display name")
	flag.BoolVar(&opts.mock, "mock", true, "use canned Clinicorp data")
	flag.Parse()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("chat session failed", "error", err)
		os.Exit(1)
	}
}

// prepareConfig keeps the session in-process: memory stores, no queue
// consumer and, unless disabled, mock scheduling data.
func prepareConfig(cfg *appconfig.Config, opts options) {
	cfg.StoreBackend = "memory"
	cfg.QueueBackend = bootstrap.QueueMemory
	if strings.TrimSpace(cfg.InstanceMapJSON) == "" {
		cfg.InstanceMapJSON = fmt.Sprintf(`{%q:"demo"}`, opts.instance)
	}
	if opts.mock {
		cfg.ClinicorpForceMock = true
	}
}

type printMessenger struct {
	out  io.Writer
	sent atomic.Int64
}

func (m *printMessenger) SendReply(_ context.Context, reply conversation.OutboundReply) (string, error) {
	m.sent.Add(1)
	fmt.Fprintf(m.out, "concierge> %s\n", reply.Body)
	return fmt.Sprintf("local-%d", m.sent.Load()), nil
}

func run(ctx context.Context, cfg *appconfig.Config, opts options, in io.Reader, out io.Writer, logger *logging.Logger) error {
	return runWith(ctx, cfg, opts, in, out, logger, bootstrap.Overrides{})
}

func runWith(ctx context.Context, cfg *appconfig.Config, opts options, in io.Reader, out io.Writer, logger *logging.Logger, overrides bootstrap.Overrides) error {
	prepareConfig(cfg, opts)
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	overrides.Messenger = &printMessenger{out: out}
	app, err := bootstrap.Build(ctx, cfg, awsCfg, logger, overrides)
	if err != nil {
		return err
	}
	defer app.Close()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		outcome, err := app.Pipeline.Process(ctx, events.WhatsAppMessageReceivedV1{
			EventID:           uuid.NewString(),
			Instance:          opts.instance,
			Phone:             opts.phone,
			DisplayName:       opts.name,
			Text:              text,
			MessageType:       inbox.TypeText,
			ExternalMessageID: uuid.NewString(),
			Origin:            events.OriginRealtime,
			ReceivedAt:        time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if outcome != conversation.OutcomeReplied {
			fmt.Fprintf(out, "(no reply: %s)\n", outcome)
		}
	}
}
