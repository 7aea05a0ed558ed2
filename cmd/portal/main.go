package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"elevate/portal/internal/api"
	"elevate/portal/internal/auth"
	"elevate/portal/internal/config"
	"elevate/portal/internal/model"
	"elevate/portal/internal/notify"
	"elevate/portal/internal/push"
	"elevate/portal/internal/route"
	"elevate/portal/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	deps := build(cfg)
	defer deps.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "login":
		runLogin(ctx, deps, os.Args[2:])
	case "whoami":
		runWhoami(ctx, deps)
	case "logout":
		runLogout(ctx, deps)
	case "notifications":
		runNotifications(ctx, deps, cfg)
	case "watch":
		runWatch(ctx, deps, cfg)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: portal <login|whoami|logout|notifications|watch> [flags]")
}

type deps struct {
	store   *session.Store
	client  *api.Client
	gateway *auth.Gateway
	sync    *notify.Synchronizer
	redis   *redis.Client
}

func build(cfg config.Config) *deps {
	d := &deps{}

	var persist session.Persister
	clientID := session.ClientID(cfg.SessionFile)
	if cfg.RedisAddr != "" {
		d.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.redis.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		persist = session.NewRedisPersister(d.redis, clientID, 0)
	} else {
		persist = session.NewFilePersister(cfg.SessionFile)
	}

	d.store = session.NewStore(persist)
	d.client = api.New(cfg.APIBaseURL, cfg.HTTPTimeout, clientID, d.store.Token)
	d.gateway = auth.NewGateway(d.client, d.store)
	d.sync = notify.NewSynchronizer(&guardedFeed{client: d.client, store: d.store}, cfg.NotificationLimit, cfg.PollInterval, cfg.PollTimeout)
	return d
}

func (d *deps) close() {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}
}

// guardedFeed applies the forced-logout policy to the polling path: a 401
// from the feed clears the session (which stops the synchronizer), unless
// the cached identity is known-unverified, in which case routing handles it.
type guardedFeed struct {
	client *api.Client
	store  *session.Store
}

func (g *guardedFeed) Notifications(ctx context.Context, limit int) (*api.Feed, error) {
	feed, err := g.client.Notifications(ctx, limit)
	if err != nil && api.IsUnauthorized(err) {
		if sess := g.store.Current(); sess != nil && sess.Identity.Verified {
			log.Printf("session rejected by portal, logging out")
			g.store.Clear()
		}
	}
	return feed, err
}

func (g *guardedFeed) MarkRead(ctx context.Context, ids []string) error {
	return g.client.MarkRead(ctx, ids)
}

func (g *guardedFeed) MarkAllRead(ctx context.Context) error {
	return g.client.MarkAllRead(ctx)
}

func runLogin(ctx context.Context, d *deps, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	_ = fs.Parse(args)
	if *email == "" || *password == "" {
		log.Fatalf("login requires -email and -password")
	}

	result, err := d.gateway.Login(ctx, *email, *password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			log.Fatalf("login failed: %v", err)
		}
		log.Fatalf("login error: %v", err)
	}

	switch result.Step {
	case auth.StepVerifyEmail:
		identity, err := promptOTP(ctx, d, result.UserID)
		if err != nil {
			log.Fatalf("verification failed: %v", err)
		}
		printDestination(route.Resolve(identity))
	case auth.StepAwaitApproval:
		if result.Identity != nil {
			printDestination(route.Resolve(result.Identity))
			return
		}
		// Partial result: no session, only the role for the waiting view.
		printDestination(route.Destination{View: route.ViewAwaitingApproval, Role: result.Role})
	default:
		fmt.Printf("logged in as %s (%s)\n", result.Email, result.Role)
		printDestination(route.Resolve(result.Identity))
	}
}

func promptOTP(ctx context.Context, d *deps, userID string) (*model.Identity, error) {
	fmt.Println("verification required: enter the emailed code, or 'resend'")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		code := strings.TrimSpace(scanner.Text())
		if code == "" {
			continue
		}
		if code == "resend" {
			if err := d.gateway.ResendOTP(ctx, userID); err != nil {
				fmt.Printf("resend failed: %v\n", err)
			} else {
				fmt.Println("code resent")
			}
			continue
		}
		identity, err := d.gateway.VerifyOTP(ctx, userID, code)
		if err != nil {
			fmt.Printf("code rejected: %v\n", err)
			continue
		}
		return identity, nil
	}
	return nil, errors.New("input closed before verification")
}

func runWhoami(ctx context.Context, d *deps) {
	if err := d.store.Hydrate(ctx, d.gateway); err != nil {
		log.Printf("session confirmation failed: %v", err)
	}
	sess := d.store.Current()
	if sess == nil {
		fmt.Println("not logged in")
		return
	}
	fmt.Printf("%s <%s> role=%s state=%s\n", sess.Identity.Name, sess.Identity.Email, sess.Identity.Role, sess.Identity.Composite())
	printDestination(route.Resolve(sess.Identity))
}

func runLogout(ctx context.Context, d *deps) {
	if err := d.store.Hydrate(ctx, d.gateway); err != nil {
		log.Printf("session confirmation failed: %v", err)
	}
	d.gateway.Logout(ctx)
	fmt.Println("logged out")
}

func runNotifications(ctx context.Context, d *deps, cfg config.Config) {
	if err := d.store.Hydrate(ctx, d.gateway); err != nil {
		log.Printf("session confirmation failed: %v", err)
	}
	if d.store.Current() == nil {
		fmt.Println("not logged in")
		return
	}

	feed, err := d.client.Notifications(ctx, cfg.NotificationLimit)
	if err != nil {
		log.Fatalf("notification fetch failed: %v", err)
	}
	fmt.Printf("%d unread\n", feed.UnreadCount)
	for _, n := range feed.Notifications {
		marker := " "
		if !n.Read {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, n.CreatedAt.Local().Format(time.RFC822), n.Message)
	}
}

func runWatch(ctx context.Context, d *deps, cfg config.Config) {
	if err := d.store.Hydrate(ctx, d.gateway); err != nil {
		log.Printf("session confirmation failed: %v", err)
	}

	unsubscribe := d.store.Subscribe(func(sess *model.Session) {
		dest := route.Resolve(identityOf(sess))
		log.Printf("destination: %s", describe(dest))
	})
	defer unsubscribe()
	log.Printf("destination: %s", describe(route.Resolve(identityOf(d.store.Current()))))

	unbind := d.sync.BindTo(ctx, d.store)
	defer unbind()

	pushServer := &http.Server{
		Addr:              cfg.PushAddr,
		Handler:           push.NewServer(d.sync, cfg.PushAuthToken).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("push listener on %s", cfg.PushAddr)
		if err := pushServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("push listener error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pushServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	d.sync.Stop()
}

func identityOf(sess *model.Session) *model.Identity {
	if sess == nil {
		return nil
	}
	return sess.Identity
}

func describe(dest route.Destination) string {
	out := string(dest.View)
	if dest.Role != "" {
		out += " role=" + string(dest.Role)
	}
	if dest.Rejected {
		out += " (rejected)"
	}
	return out
}

func printDestination(dest route.Destination) {
	fmt.Printf("next: %s\n", describe(dest))
}
