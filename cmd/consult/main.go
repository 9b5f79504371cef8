package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/services"
	"lexmeet/internal/infrastructure/backend"
	relay "lexmeet/internal/infrastructure/signal"
	"lexmeet/internal/infrastructure/storage"
	webrtcinfra "lexmeet/internal/infrastructure/webrtc"
	"lexmeet/pkg/config"
	apperrors "lexmeet/pkg/errors"
	"lexmeet/pkg/logger"
	"lexmeet/pkg/retry"
	"lexmeet/pkg/tracing"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const usage = `usage: consult <command> [flags]

commands:
  call      join a consultation room as lawyer or user (default)
  rules     list booking rules, optionally toggling one
  add-rule  create a booking rule from a YAML file
  pay       pay for an appointment through the checkout
  dm        send a direct message and print the conversation`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "call"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "call":
		return runCall(args)
	case "rules":
		return runRules(args)
	case "add-rule":
		return runAddRule(args)
	case "pay":
		return runPay(args)
	case "dm":
		return runDirect(args)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

type app struct {
	cfg     *config.Config
	zap     *zap.Logger
	log     *zap.SugaredLogger
	tp      *tracing.TracerProvider
	backend *backend.Client
	console *console
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	zapLogger := logger.FromFormat(cfg.Logging.Level, cfg.Logging.Format)
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "lexmeet-consult",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	return &app{
		cfg:     cfg,
		zap:     zapLogger,
		log:     zapLogger.Sugar(),
		tp:      tp,
		backend: backend.NewClient(backend.ConfigFrom(cfg), zapLogger),
		console: &console{out: os.Stdout},
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tp.Shutdown(ctx); err != nil {
		a.log.Warnw("tracer shutdown failed", "error", err)
	}
	_ = a.zap.Sync()
}

func (a *app) dial(ctx context.Context, token string) (*relay.Client, error) {
	if token == "" {
		token = a.cfg.Auth.ClientToken
	}
	return relay.Dial(ctx, relay.ClientConfig{
		URL:   a.cfg.Signal.URL,
		Token: token,
		Retry: retry.Config{
			MaxAttempts:  a.cfg.Signal.DialAttempts,
			InitialDelay: a.cfg.Signal.DialBackoff,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
			Jitter:       true,
		},
		WriteTimeout: a.cfg.Signal.WriteTimeout,
	}, a.log)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCall(args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "config file")
	roleFlag := fs.String("role", "user", "participant role: lawyer or user")
	room := fs.String("room", "", "appointment id of the consultation")
	token := fs.String("token", "", "relay access token")
	ivf := fs.String("ivf", "", "VP8 IVF file to send as camera")
	ogg := fs.String("ogg", "", "Opus Ogg file to send as microphone")
	duration := fs.Duration("duration", 0, "end the call after this long (0 waits for a signal)")
	say := fs.String("say", "", "chat message to send once connected")
	attach := fs.String("attach", "", "file to share in the chat once connected")
	note := fs.String("note", "", "lawyer: final note submitted after the call")
	rating := fs.Int("rating", 0, "user: star rating 1-5 submitted after the call")
	feedback := fs.String("feedback", "", "user: feedback submitted after the call")
	if err := fs.Parse(args); err != nil {
		return err
	}

	role, err := domain.ParseRole(*roleFlag)
	if err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	client, err := a.dial(ctx, *token)
	if err != nil {
		return err
	}
	defer client.Close()

	factory, err := webrtcinfra.NewPeerFactory(webrtcinfra.ConfigFrom(a.cfg), a.log)
	if err != nil {
		return err
	}
	files, err := storage.NewFileStore(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	sink := webrtcinfra.NewRemoteSink(a.log)

	session, err := services.NewCallSession(services.CallSessionConfig{
		RoomID:     domain.RoomID(*room),
		Role:       role,
		Transport:  client,
		Devices:    webrtcinfra.SampleDevices{},
		Factory:    factory,
		LocalView:  sink,
		RemoteView: sink,
		Backend:    a.backend,
		Files:      files,
		Navigator:  a.console,
		Notifier:   a.console,
		TimeFormat: a.cfg.Call.TimeFormat,
		Logger:     a.log,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return err
	}
	a.log.Infow("joined consultation", "room_id", *room, "role", role)

	stream := session.Peer().Stream()
	feed(ctx, a.log, stream, domain.TrackVideo, *ivf, webrtcinfra.FeedIVF)
	feed(ctx, a.log, stream, domain.TrackAudio, *ogg, webrtcinfra.FeedOgg)

	if *say != "" {
		if _, err := session.SendText(ctx, *say); err != nil {
			a.log.Warnw("chat message not sent", "error", err)
		}
	}
	if *attach != "" {
		if err := sendAttachment(ctx, session, *attach); err != nil {
			a.log.Warnw("attachment not sent", "error", err)
		}
	}

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-client.Done():
		a.log.Warnw("signaling connection closed, ending call")
	}

	outcome := session.EndCall()
	for _, m := range session.Messages() {
		fmt.Printf("[%s] %s: %s%s\n", m.Time, m.Sender, m.Text, m.FileName)
	}
	for id, st := range sink.Stats() {
		fmt.Printf("remote %s %s: %d packets, %d bytes\n", st.Kind, id, st.Packets, st.Bytes)
	}

	submitCtx, cancel := context.WithTimeout(context.Background(), 2*a.cfg.Backend.Timeout)
	defer cancel()

	switch o := outcome.(type) {
	case *services.LawyerOutcome:
		if *note == "" {
			o.Cancel()
			return nil
		}
		return o.SubmitNote(submitCtx, *note)
	case *services.UserOutcome:
		if *rating == 0 {
			o.Cancel()
			return nil
		}
		if err := o.SetRating(*rating); err != nil {
			return err
		}
		return o.SubmitFeedback(submitCtx, *feedback)
	}
	return nil
}

type feeder func(ctx context.Context, r io.Reader, track webrtcinfra.SampleWriter) error

// feed streams the media file at path into the local track of kind until the track stops.
func feed(ctx context.Context, log *zap.SugaredLogger, stream *domain.MediaStream, kind domain.TrackKind, path string, fn feeder) {
	if path == "" {
		return
	}
	track, ok := webrtcinfra.LocalTrackOf(stream, kind)
	if !ok {
		log.Warnw("no local track to feed", "kind", kind)
		return
	}
	go func() {
		f, err := os.Open(path)
		if err != nil {
			log.Errorw("open media file", "path", path, "error", err)
			return
		}
		defer f.Close()
		if err := fn(ctx, f, track); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("media feed stopped", "path", path, "error", err)
		}
	}()
}

func sendAttachment(ctx context.Context, session *services.CallSession, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = session.SendFile(ctx, filepath.Base(path), contentType, info.Size(), f)
	return err
}

func runRules(args []string) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "config file")
	status := fs.String("status", "", "filter by status: active or inactive")
	toggle := fs.String("toggle", "", "rule id whose status to flip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	svc := services.NewBookingRuleService(a.backend, a.console, a.log)
	if *toggle != "" {
		if _, err := svc.Toggle(ctx, *toggle); err != nil {
			return err
		}
	}

	rules, err := svc.List(ctx, domain.RuleStatus(*status))
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDAYS\tHOURS\tPRIORITY\tSTATUS")
	for _, r := range rules {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s-%s\t%d\t%s\n",
			r.ID, r.Name, strings.Join(r.Days, ","), r.StartTime, r.EndTime, r.Priority, r.Status)
	}
	return w.Flush()
}

func runAddRule(args []string) error {
	fs := flag.NewFlagSet("add-rule", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "config file")
	file := fs.String("file", "", "booking rule YAML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}

	rf, err := loadRuleFile(*file)
	if err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	form := services.NewBookingRuleForm(a.backend, a.console, a.console, nil, a.log)
	if err := rf.fill(form); err != nil {
		return err
	}

	err = form.Submit(ctx)
	if errors.Is(err, domain.ErrValidationFailed) {
		fieldErrs := form.Errors()
		keys := lo.Keys(fieldErrs)
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, fieldErrs[k])
		}
		return errors.New(apperrors.UserMessage(err, "Invalid booking rule"))
	}
	return err
}

func runPay(args []string) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "config file")
	appointment := fs.String("appointment", "", "appointment id")
	amount := fs.Int64("amount", 0, "amount in the smallest currency unit")
	name := fs.String("name", "", "payer name")
	email := fs.String("email", "", "payer email")
	contact := fs.String("contact", "", "payer phone")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	payments := services.NewPaymentService(services.PaymentConfig{
		KeyID:      a.cfg.Payment.KeyID,
		Merchant:   a.cfg.Payment.Merchant,
		ThemeColor: a.cfg.Payment.ThemeColor,
	}, a.backend, newStdinCheckout(os.Stdin, os.Stdout), a.log)

	result, err := payments.Checkout(ctx, *appointment, *amount, domain.CheckoutPrefill{
		Name:    *name,
		Email:   *email,
		Contact: *contact,
	})
	if err != nil {
		a.console.Error(apperrors.UserMessage(err, "Payment failed"))
		return err
	}
	msg := result.Message
	if msg == "" {
		msg = "Payment successful"
	}
	a.console.Success(msg)
	return nil
}

func runDirect(args []string) error {
	fs := flag.NewFlagSet("dm", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "config file")
	token := fs.String("token", "", "relay access token")
	self := fs.String("self", "", "your user id")
	to := fs.String("to", "", "receiver user id")
	text := fs.String("text", "", "message to send")
	wait := fs.Duration("wait", 5*time.Second, "how long to wait for replies")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *self == "" || *to == "" {
		return errors.New("-self and -to are required")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()

	client, err := a.dial(ctx, *token)
	if err != nil {
		return err
	}
	defer client.Close()

	chat := services.NewDirectChat(client, *self, a.log)
	defer chat.Close()
	if err := chat.Register(ctx); err != nil {
		return err
	}
	if *text != "" {
		if _, err := chat.Send(ctx, *to, *text); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
	case <-time.After(*wait):
	}
	for _, m := range chat.Conversation(*to) {
		fmt.Printf("[%s] %s: %s\n", m.SentAt, m.SenderID, m.Message)
	}
	return nil
}
