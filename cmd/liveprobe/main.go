// Command liveprobe drives the live endpoints from the client side: as a
// student it joins a batch, heartbeats and walks through positions; as a
// scholar it watches the merged roster and prints every change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tilawah-live-api/internal/models"
	"github.com/noah-isme/tilawah-live-api/internal/service"
	"github.com/noah-isme/tilawah-live-api/pkg/liveclient"
)

type options struct {
	base      string
	secret    string
	issuer    string
	mode      string
	userID    string
	name      string
	batchID   string
	positions string
	step      time.Duration
	heartbeat time.Duration
	debounce  time.Duration
	poll      time.Duration
	duration  time.Duration
	end       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.base, "base", "http://localhost:8080/api/v1", "API base URL including prefix")
	flag.StringVar(&opts.secret, "secret", "dev_secret", "JWT signing secret")
	flag.StringVar(&opts.issuer, "issuer", "", "JWT issuer")
	flag.StringVar(&opts.mode, "mode", "student", "student or scholar")
	flag.StringVar(&opts.userID, "user", "", "user id of the student or scholar")
	flag.StringVar(&opts.name, "name", "", "display name")
	flag.StringVar(&opts.batchID, "batch", "", "batch to join (student mode)")
	flag.StringVar(&opts.positions, "positions", "1:1,1:2,1:3", "comma separated surah:ayah walk (student mode)")
	flag.DurationVar(&opts.step, "step", 200*time.Millisecond, "delay between simulated position changes")
	flag.DurationVar(&opts.heartbeat, "heartbeat", 10*time.Second, "heartbeat interval")
	flag.DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "position debounce window")
	flag.DurationVar(&opts.poll, "poll", 2*time.Second, "roster poll interval (scholar mode)")
	flag.DurationVar(&opts.duration, "duration", 30*time.Second, "how long to run")
	flag.BoolVar(&opts.end, "end", false, "end the session when leaving (student mode)")
	flag.Parse()

	logr, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if opts.userID == "" {
		logr.Fatal("-user is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	switch opts.mode {
	case "student":
		err = runStudent(ctx, opts, logr)
	case "scholar":
		err = runScholar(ctx, opts, logr)
	default:
		err = fmt.Errorf("unknown mode %q", opts.mode)
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		logr.Fatal("probe failed", zap.Error(err))
	}
}

func newClient(opts options, role models.UserRole) (*liveclient.Client, error) {
	tokens := service.NewTokenService(service.TokenConfig{Secret: opts.secret, Issuer: opts.issuer})
	token, err := tokens.Issue(opts.userID, role, opts.name, opts.duration+time.Minute)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return liveclient.NewClient(opts.base, token, 5*time.Second), nil
}

func runStudent(ctx context.Context, opts options, logr *zap.Logger) error {
	if opts.batchID == "" {
		return errors.New("-batch is required in student mode")
	}
	walk, err := parsePositions(opts.positions)
	if err != nil {
		return err
	}
	client, err := newClient(opts, models.RoleStudent)
	if err != nil {
		return err
	}

	session, created, err := client.StartSession(ctx, opts.batchID, "", opts.name)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	logr.Info("joined batch", zap.String("session_id", session.ID), zap.Bool("created", created))

	publisher := liveclient.NewPositionPublisher(client, session.ID, opts.debounce, logr)
	if session.CurrentSurah != nil && session.CurrentAyah != nil {
		publisher.Seed(liveclient.Position{Surah: *session.CurrentSurah, Ayah: *session.CurrentAyah})
	}
	heartbeat := liveclient.NewHeartbeat(client, opts.batchID, "", opts.name, opts.heartbeat, logr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return publisher.Run(gctx) })
	g.Go(func() error { return heartbeat.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(opts.step)
		defer ticker.Stop()
		for _, pos := range walk {
			publisher.Set(pos)
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
		<-gctx.Done()
		return gctx.Err()
	})
	err = g.Wait()

	sent, ok := publisher.Sent()
	logr.Info("student probe finished",
		zap.Int("writes", publisher.Writes()),
		zap.Bool("position_sent", ok),
		zap.Stringer("last_position", sent))

	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if leaveErr := client.Leave(leaveCtx, opts.batchID, "", opts.end); leaveErr != nil {
		logr.Warn("leave failed", zap.Error(leaveErr))
	}
	return err
}

func runScholar(ctx context.Context, opts options, logr *zap.Logger) error {
	client, err := newClient(opts, models.RoleScholar)
	if err != nil {
		return err
	}
	watcher := liveclient.NewRosterWatcher(client, opts.userID, opts.poll, liveclient.RosterHandlers{
		OnUpdate: func(p liveclient.Participant) {
			position := "-"
			if pos, ok := p.Position(); ok {
				position = pos.String()
			}
			fmt.Printf("%s  %-12s %-20s %s\n", time.Now().Format("15:04:05"), p.BatchID, p.ChildName, position)
		},
		OnLeave: func(p liveclient.Participant) {
			fmt.Printf("%s  %-12s %-20s left\n", time.Now().Format("15:04:05"), p.BatchID, p.ChildName)
		},
	}, logr)
	return watcher.Run(ctx)
}

func parsePositions(raw string) ([]liveclient.Position, error) {
	var out []liveclient.Position
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		surahRaw, ayahRaw, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("invalid position %q, want surah:ayah", item)
		}
		surah, err := strconv.Atoi(surahRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid surah in %q: %w", item, err)
		}
		ayah, err := strconv.Atoi(ayahRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid ayah in %q: %w", item, err)
		}
		out = append(out, liveclient.Position{Surah: surah, Ayah: ayah})
	}
	if len(out) == 0 {
		return nil, errors.New("no positions given")
	}
	return out, nil
}
