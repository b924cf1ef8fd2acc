package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"taskeer/internal/alert"
	"taskeer/internal/collab"
	"taskeer/internal/config"
	"taskeer/internal/credential"
	"taskeer/internal/live"
	"taskeer/internal/localstate"
	"taskeer/internal/models"
	"taskeer/internal/restclient"
	"taskeer/internal/session"
)

const lastListKey = "last_list"

// logPresenter renders dispatcher alerts as log lines.
type logPresenter struct {
	sink alert.LogSink
}

func (p logPresenter) Permission() bool        { return true }
func (p logPresenter) Native(a alert.Alert)    { p.sink.Alert(a) }
func (p logPresenter) Interrupt(a alert.Alert) { p.sink.Alert(a) }

func main() {
	if err := run(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultClientConfigPath(), "path to the client config file")
	listFlag := flag.Int("list", 0, "list to open; defaults to the last one opened")
	emailFlag := flag.String("email", "", "account email, overrides the config file")
	passwordFlag := flag.String("password", os.Getenv("TASKEER_PASSWORD"), "password, only needed when no token is stored")
	logout := flag.Bool("logout", false, "forget the stored token and exit")
	flag.Parse()

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		return err
	}
	if *emailFlag != "" {
		cfg.Email = *emailFlag
	}
	if cfg.Email == "" {
		return errors.New("no account email configured, pass -email")
	}

	logger := log.New()
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	creds, err := credential.Open(cfg.Keyring)
	if err != nil {
		return err
	}
	if *logout {
		return creds.Forget(cfg.Email)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.New()
	client := restclient.New(cfg.APIURL, sess, logger)
	if err := signIn(ctx, client, sess, creds, cfg.Email, *passwordFlag); err != nil {
		return err
	}
	logger.WithField("user", sess.UserID()).Info("signed in")

	state, err := localstate.Open(cfg.StatePath)
	if err != nil {
		return err
	}
	defer state.Close()
	pruneProcessed(ctx, client, state, cfg.Retention, logger)

	socket := live.NewSocket(live.SocketConfig{URL: cfg.SocketURL}, sess, logger)
	sink := alert.LogSink{Log: logger}
	ws := collab.New(collab.Options{
		API:        client,
		Session:    sess,
		Socket:     socket,
		Store:      state,
		Presenter:  logPresenter{sink: sink},
		Alerts:     sink,
		Feed:       live.FeedConfig{Interval: cfg.Feed.PollInterval, ProbeInterval: cfg.Feed.ProbeInterval},
		GraceDelay: cfg.Grace,
		Navigate: func(path string) {
			logger.WithField("path", path).Info("navigate")
		},
		Log: logger,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ws.Run(ctx)
	}()

	listID := *listFlag
	if listID == 0 {
		if v, err := state.Preference(ctx, lastListKey); err == nil && v != "" {
			listID, _ = strconv.Atoi(v)
		}
	}
	if listID > 0 {
		b, err := ws.OpenList(ctx, listID)
		if err != nil {
			logger.WithError(err).WithField("list", listID).Error("opening list")
		} else {
			logger.WithFields(log.Fields{"list": listID, "name": b.List().Name, "role": b.Access().Role}).Info("list opened")
			if err := state.SetPreference(ctx, lastListKey, strconv.Itoa(listID)); err != nil {
				logger.WithError(err).Warn("saving last list")
			}
		}
	}

	<-ctx.Done()
	ws.CloseList()
	<-done
	return nil
}

// signIn reuses the stored token when the server still accepts it and
// otherwise logs in with the password and stores the new token.
func signIn(ctx context.Context, client *restclient.Client, sess *session.Session, creds *credential.Store, email, password string) error {
	token, err := creds.Token(email)
	switch {
	case err == nil:
		sess.Login(token, models.User{Email: email})
		user, err := client.Me(ctx)
		if err == nil {
			sess.Login(token, *user)
			return nil
		}
		sess.Logout()
		if restclient.StatusOf(err) != http.StatusUnauthorized {
			return fmt.Errorf("checking stored token: %w", err)
		}
		if err := creds.Forget(email); err != nil {
			return err
		}
	case !errors.Is(err, credential.ErrNoToken):
		return err
	}

	if password == "" {
		return errors.New("no stored token, pass -password or set TASKEER_PASSWORD")
	}
	resp, err := client.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	sess.Login(resp.Token, resp.User)
	return creds.SaveToken(email, resp.Token)
}

// pruneProcessed forgets old processed ids, keeping every id the server still
// lists as unread. Without a snapshot nothing is pruned.
func pruneProcessed(ctx context.Context, client *restclient.Client, state *localstate.Store, retention time.Duration, logger log.FieldLogger) {
	snapshot, err := client.Notifications(ctx)
	if err != nil {
		logger.WithError(err).Warn("skipping prune, notifications unavailable")
		return
	}
	var unread []int
	for _, n := range snapshot.Notifications {
		if !n.Read {
			unread = append(unread, n.ID)
		}
	}
	n, err := state.Prune(ctx, time.Now().Add(-retention), unread)
	if err != nil {
		logger.WithError(err).Warn("pruning processed notifications")
		return
	}
	if n > 0 {
		logger.WithField("removed", n).Debug("pruned processed notifications")
	}
}
