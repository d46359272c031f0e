package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-collab/internal/config"
	"school-collab/internal/domain"
	"school-collab/internal/engine"
	"school-collab/internal/eventbus"
	"school-collab/internal/sync"

	"github.com/docopt/docopt-go"
)

const CollabClientVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `School collaboration client.

The websocket url and token default to COLLAB_WS_URL and COLLAB_TOKEN.
The internal secret defaults to INTERNAL_SECRET.

Usage:
    collab-client watch [options] [--page=<page>]
    collab-client edit [options] <entity_type> <entity_id>
        [--op=<op>] [--field=<field>] [--content=<json>]
    collab-client notify [options] --to=<user_id>... --title=<title>
        [--message=<message>] [--type=<type>]
    collab-client alert [--api_url=<api_url>] [--secret=<secret>]
        --title=<title> [--message=<message>] [--severity=<severity>]
    collab-client sync [--api_url=<api_url>] [--secret=<secret>]
        [--user_id=<user_id>] <payload>
    collab-client presence [--api_url=<api_url>] [--secret=<secret>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --url=<url>              Relay websocket url.
    --token=<token>          JWT issued by the school backend.
    --user_id=<user_id>      Local user id [default: cli].
    --name=<name>            Local user name [default: CLI].
    --role=<role>            admin, teacher, parent or student [default: teacher].
    --page=<page>            Page reported in presence [default: /].
    --op=<op>                insert, delete, update or move [default: update].
    --field=<field>
    --content=<json>
    --to=<user_id>           Target user, repeatable.
    --title=<title>
    --message=<message>
    --type=<type>            Notification type [default: info].
    --severity=<severity>    Alert severity [default: system].
    --api_url=<api_url>      Relay http url [default: http://localhost:8080].
    --secret=<secret>
    --verbose                Log engine diagnostics to stderr.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], CollabClientVersion)
	if err != nil {
		panic(err)
	}
	config.LoadConfig()

	if verbose, _ := opts.Bool("--verbose"); verbose {
		flag.Set("logtostderr", "true")
		flag.Set("v", "1")
	}

	if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(opts)
	} else if edit_, _ := opts.Bool("edit"); edit_ {
		err = edit(opts)
	} else if notify_, _ := opts.Bool("notify"); notify_ {
		err = notify(opts)
	} else if alert_, _ := opts.Bool("alert"); alert_ {
		err = alert(opts)
	} else if sync_, _ := opts.Bool("sync"); sync_ {
		err = pushSync(opts)
	} else if presence_, _ := opts.Bool("presence"); presence_ {
		err = presence(opts)
	}
	if err != nil {
		Err.Printf("%s", err)
		os.Exit(1)
	}
}

func localUser(opts docopt.Opts) domain.CollaborationUser {
	id, _ := opts.String("--user_id")
	name, _ := opts.String("--name")
	role, _ := opts.String("--role")
	page, _ := opts.String("--page")
	return domain.CollaborationUser{
		ID:          id,
		Name:        name,
		Role:        domain.Role(role),
		CurrentPage: page,
	}
}

// connect starts an engine and waits for the first connection
func connect(ctx context.Context, opts docopt.Opts) (*engine.Engine, error) {
	url, err := opts.String("--url")
	if err != nil || url == "" {
		url = config.AppConfig.WSURL
	}
	token, err := opts.String("--token")
	if err != nil || token == "" {
		token = config.AppConfig.Token
	}

	settings := engine.DefaultSettings(url)
	settings.Token = token
	e := engine.New(settings)

	connected := make(chan struct{}, 1)
	failed := make(chan int, 1)
	connectedSub := eventbus.Subscribe(e.Bus(), func(eventbus.Connected) {
		select {
		case connected <- struct{}{}:
		default:
		}
	})
	failedSub := eventbus.Subscribe(e.Bus(), func(ev eventbus.ConnectionFailed) {
		failed <- ev.Attempts
	})
	defer e.Bus().Off(connectedSub)
	defer e.Bus().Off(failedSub)

	if err := e.Initialize(ctx, localUser(opts)); err != nil {
		return nil, err
	}
	select {
	case <-connected:
		return e, nil
	case attempts := <-failed:
		e.Disconnect()
		return nil, fmt.Errorf("could not connect to %s after %d attempts", url, attempts)
	case <-ctx.Done():
		e.Disconnect()
		return nil, ctx.Err()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// watch prints every engine event until interrupted
func watch(opts docopt.Opts) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer e.Disconnect()

	printEvent := func(event eventbus.Event) {
		data, _ := json.Marshal(event)
		Out.Printf("%s %s", event.Type(), data)
	}
	for _, eventType := range []eventbus.EventType{
		eventbus.EventConnected,
		eventbus.EventDisconnected,
		eventbus.EventUserJoined,
		eventbus.EventUserLeft,
		eventbus.EventEditOperation,
		eventbus.EventNotification,
		eventbus.EventPresenceUpdate,
		eventbus.EventDataSync,
		eventbus.EventSystemAlert,
		eventbus.EventConnectionFailed,
	} {
		e.Bus().On(eventType, printEvent)
	}

	for _, u := range e.ConnectedUsers() {
		Out.Printf("online %s (%s)", u.Name, u.ID)
	}
	<-ctx.Done()
	return nil
}

func edit(opts docopt.Opts) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	op := domain.EditOperation{}
	kind, _ := opts.String("--op")
	op.Type = domain.OperationType(kind)
	op.EntityType, _ = opts.String("<entity_type>")
	op.EntityID, _ = opts.String("<entity_id>")
	op.Field, _ = opts.String("--field")
	if content, err := opts.String("--content"); err == nil && content != "" {
		if !json.Valid([]byte(content)) {
			return errors.New("--content must be valid json")
		}
		op.Content = json.RawMessage(content)
	}

	e, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer e.Disconnect()

	submitted, err := e.SubmitOperation(op)
	if err != nil {
		return err
	}
	Out.Printf("submitted %s at %d", submitted.ID, submitted.Timestamp)
	return nil
}

func notify(opts docopt.Opts) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n := domain.NotificationMessage{}
	kind, _ := opts.String("--type")
	n.Type = domain.NotificationType(kind)
	n.Title, _ = opts.String("--title")
	n.Message, _ = opts.String("--message")
	if targets, ok := opts["--to"].([]string); ok {
		n.TargetUsers = targets
	}

	e, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer e.Disconnect()

	sent, err := e.SendNotification(n)
	if err != nil {
		return err
	}
	Out.Printf("sent %s to %v", sent.ID, sent.TargetUsers)
	return nil
}

func syncClient(opts docopt.Opts) *sync.SyncClient {
	apiURL, _ := opts.String("--api_url")
	secret, err := opts.String("--secret")
	if err != nil || secret == "" {
		secret = config.AppConfig.InternalSecret
	}
	return sync.NewSyncClient(apiURL, secret)
}

func alert(opts docopt.Opts) error {
	a := domain.SystemAlert{}
	severity, _ := opts.String("--severity")
	a.Severity = domain.NotificationType(severity)
	a.Title, _ = opts.String("--title")
	a.Message, _ = opts.String("--message")

	delivered, err := syncClient(opts).PushSystemAlert(context.Background(), a)
	if err != nil {
		return err
	}
	Out.Printf("delivered to %d connections", delivered)
	return nil
}

func pushSync(opts docopt.Opts) error {
	payload, _ := opts.String("<payload>")
	if !json.Valid([]byte(payload)) {
		return errors.New("payload must be valid json")
	}
	userID, _ := opts.String("--user_id")

	delivered, err := syncClient(opts).PushDataSync(context.Background(), userID, json.RawMessage(payload))
	if err != nil {
		return err
	}
	Out.Printf("delivered to %d connections", delivered)
	return nil
}

func presence(opts docopt.Opts) error {
	users, err := syncClient(opts).ListPresence(context.Background())
	if err != nil {
		return err
	}
	for _, u := range users {
		Out.Printf("%s\t%s\t%s\t%s", u.ID, u.Name, u.Role, u.CurrentPage)
	}
	return nil
}
