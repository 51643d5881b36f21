package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/erazemk/assetflow/internal/acceptance"
	"github.com/erazemk/assetflow/internal/client"
	"github.com/erazemk/assetflow/internal/config"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/session"
	"github.com/erazemk/assetflow/internal/transfers"
)

const usage = `Usage: assetctl <command> [flags]

Commands:
  login <username>                 sign in (password read from ASSETFLOW_PASSWORD or stdin)
  logout                           revoke the saved session
  outgoing                         list transfers you initiated
  incoming                         list items awaiting your acceptance
  show <transfer> <item>           show an item and its checklist
  accept <transfer> <item>         accept an item
      -c, -check <ids>             checked checklist ids, e.g. 1,3,5
      -a, -attach <file>           attachment (JPEG, PNG or PDF)
      -r, -remarks <text>          acceptance remarks
  resend approval|acceptance <transfer>
                                   resend a notification
  open <query>                     open the form a receive_transfer/receive_item link points to

Environment: ASSETFLOW_SERVER_URL (default http://localhost:8080),
ASSETFLOW_USERNAME and ASSETFLOW_TOKEN override the saved session.
`

type app struct {
	cfg         *config.Client
	api         *client.Client
	sessionPath string
	out         io.Writer
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "-help" || os.Args[1] == "help" {
		fmt.Fprint(os.Stdout, usage)
		os.Exit(0)
	}

	if err := config.LoadDotEnv(""); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	sessionPath, err := session.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	a := &app{cfg: cfg, api: client.New(cfg.ServerURL, nil), sessionPath: sessionPath, out: os.Stdout}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			slog.Warn("request failed", "status", apiErr.Status)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	}

	sess, err := a.session()
	if err != nil {
		return err
	}
	api := a.api.For(sess)

	switch cmd {
	case "outgoing":
		return a.outgoing(ctx, transfers.New(api, sess))
	case "incoming":
		return a.incoming(ctx, transfers.New(api, sess))
	case "show":
		return a.show(ctx, api, sess, args)
	case "accept":
		return a.accept(ctx, api, sess, args)
	case "resend":
		return a.resend(ctx, transfers.New(api, sess), args)
	case "open":
		return a.open(ctx, api, sess, args)
	}
	return fmt.Errorf("unknown command %q, see assetctl -help", cmd)
}

// session returns the session from the environment, or the saved one.
func (a *app) session() (*session.Session, error) {
	if a.cfg.Token != "" {
		return session.New(a.cfg.Username, a.cfg.Token)
	}
	sess, err := session.Load(a.sessionPath)
	if errors.Is(err, session.ErrNoSession) {
		return nil, fmt.Errorf("%w, run assetctl login first", err)
	}
	return sess, err
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: assetctl login <username>")
	}
	password := os.Getenv("ASSETFLOW_PASSWORD")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := readLine(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = line
	}

	sess, err := a.api.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	if err := sess.Save(a.sessionPath); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s.\n", sess.Username)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	sess, err := session.Load(a.sessionPath)
	if errors.Is(err, session.ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := a.api.For(sess).Logout(ctx); err != nil && !client.IsStatus(err, 401) {
		return err
	}
	return session.Remove(a.sessionPath)
}

func (a *app) outgoing(ctx context.Context, c *transfers.Controller) error {
	if err := c.LoadInitiated(ctx); err != nil {
		return errors.New(c.Notice())
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREQUEST\tDATE\tSTATUS\tITEMS\tEDIT")
	for _, t := range c.Initiated() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			t.ID, t.RequestNo, t.TransferDate, t.ApprovalStatus, len(t.Items), transfers.ActivateTransfer(t))
	}
	return w.Flush()
}

func (a *app) incoming(ctx context.Context, c *transfers.Controller) error {
	if err := c.LoadIncoming(ctx); err != nil {
		return errors.New(c.Notice())
	}

	counts := c.Counts()
	fmt.Fprintf(a.out, "Pending approval: %d  Pending acceptance: %d  Accepted: %d  Rejected: %d\n\n",
		counts.PendingApproval, counts.PendingAcceptance, counts.Accepted, counts.Rejected)

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSFER\tITEM\tASSET\tFROM\tSTATUS\tOPEN")
	for _, r := range c.Incoming() {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
			r.TransferID, r.ID, r.Asset.RegisterNumber, r.TransferBy, transfers.Classify(r),
			transfers.ActivateRow(r, nil))
	}
	return w.Flush()
}

func parseIDs(args []string) (transfers.Link, error) {
	if len(args) < 2 {
		return transfers.Link{}, fmt.Errorf("transfer and item ids required")
	}
	transferID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return transfers.Link{}, fmt.Errorf("invalid transfer id %q", args[0])
	}
	itemID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return transfers.Link{}, fmt.Errorf("invalid item id %q", args[1])
	}
	return transfers.Link{TransferID: transferID, ItemID: itemID}, nil
}

func (a *app) openForm(ctx context.Context, api *client.Client, sess *session.Session, link transfers.Link) (*acceptance.Form, error) {
	form := acceptance.New(api, sess)
	if err := form.Load(ctx, acceptance.Source{TransferID: link.TransferID, ItemID: link.ItemID}); err != nil {
		form.Close()
		return nil, err
	}
	return form, nil
}

func (a *app) show(ctx context.Context, api *client.Client, sess *session.Session, args []string) error {
	link, err := parseIDs(args)
	if err != nil {
		return err
	}
	form, err := a.openForm(ctx, api, sess, link)
	if err != nil {
		return err
	}
	defer form.Close()
	a.printForm(form)
	return nil
}

func (a *app) printForm(form *acceptance.Form) {
	item := form.Item()
	fmt.Fprintf(a.out, "Item %d of transfer %d: %s (%s)\n", item.ID, item.TransferID,
		item.Asset.RegisterNumber, item.Asset.Type.Name)
	if item.CurrentOwner != nil {
		fmt.Fprintf(a.out, "From: %s\n", item.CurrentOwner.RamcoID)
	}
	if item.Reason != "" {
		fmt.Fprintf(a.out, "Reason: %s\n", item.Reason)
	}

	switch form.State() {
	case acceptance.StateAwaitingApproval:
		fmt.Fprintln(a.out, "Awaiting approval. Nothing can be done yet.")
	case acceptance.StateAccepted:
		fmt.Fprintf(a.out, "Accepted by %s on %s.\n", item.AcceptanceBy, item.AcceptanceDate)
		if item.AcceptanceRemarks != "" {
			fmt.Fprintf(a.out, "Remarks: %s\n", item.AcceptanceRemarks)
		}
		if item.AcceptanceAttachments != "" {
			fmt.Fprintf(a.out, "Attachment: %s\n", item.AcceptanceAttachments)
		}
	default:
		fmt.Fprintf(a.out, "Approved by %s on %s. Pending your acceptance.\n", item.ApprovedBy, item.ApprovedDate)
	}

	if notice := form.Notice(); notice != "" {
		fmt.Fprintln(a.out, notice)
	}
	for _, e := range form.Entries() {
		mark := " "
		if e.Done {
			mark = "x"
		}
		req := ""
		if e.IsRequired {
			req = " (required)"
		}
		fmt.Fprintf(a.out, "  [%s] %d %s%s\n", mark, e.ID, e.Item, req)
	}
}

func (a *app) accept(ctx context.Context, api *client.Client, sess *session.Session, args []string) error {
	link, err := parseIDs(args)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("accept", flag.ContinueOnError)
	var check, attach, remarks string
	fs.StringVar(&check, "check", "", "")
	fs.StringVar(&check, "c", "", "")
	fs.StringVar(&attach, "attach", "", "")
	fs.StringVar(&attach, "a", "", "")
	fs.StringVar(&remarks, "remarks", "", "")
	fs.StringVar(&remarks, "r", "", "")
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args[2:]); err != nil {
		return fmt.Errorf("accept: %w", err)
	}

	form, err := a.openForm(ctx, api, sess, link)
	if err != nil {
		return err
	}
	defer form.Close()

	ids, err := model.DecodeChecklistIDs(check)
	if err != nil {
		return fmt.Errorf("accept: -check: %w", err)
	}
	for _, id := range ids {
		if err := form.SetChecked(id, true); err != nil {
			return err
		}
	}
	if remarks != "" {
		if err := form.SetRemarks(remarks); err != nil {
			return err
		}
	}
	if attach != "" {
		data, err := os.ReadFile(attach)
		if err != nil {
			return fmt.Errorf("reading attachment: %w", err)
		}
		if err := form.SetAttachment(&client.File{Name: filepath.Base(attach), Data: data}); err != nil {
			return err
		}
	}

	item, err := form.Submit(ctx)
	if err != nil {
		var verr *acceptance.ValidationError
		if errors.As(err, &verr) {
			a.printForm(form)
		}
		return err
	}
	fmt.Fprintf(a.out, "Accepted %s on %s.\n", item.Asset.RegisterNumber, item.AcceptanceDate)
	form.Dismiss()
	return nil
}

func (a *app) resend(ctx context.Context, c *transfers.Controller, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: assetctl resend approval|acceptance <transfer>")
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid transfer id %q", args[1])
	}

	msg, err := c.Resend(ctx, id, args[0])
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			return fmt.Errorf("%w (retry in %s)", err, apiErr.RetryAfter)
		}
		return err
	}
	fmt.Fprintf(a.out, "Sent %s notification for %s to %s.\n", msg.Kind, msg.RequestNo, strings.Join(msg.Recipients, ", "))
	return nil
}

// open restores the form a deep link points to, accepting either a full
// URL or just its query.
func (a *app) open(ctx context.Context, api *client.Client, sess *session.Session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: assetctl open <query>")
	}
	raw := args[0]
	if u, err := url.Parse(raw); err == nil && u.RawQuery != "" {
		raw = u.RawQuery
	}
	q, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}
	link, ok := transfers.ParseLink(q)
	if !ok {
		return fmt.Errorf("query has no %s and %s", transfers.ParamTransfer, transfers.ParamItem)
	}

	c := transfers.New(api, sess)
	if err := c.LoadIncoming(ctx); err != nil {
		slog.Warn("could not load incoming transfers", "error", err)
	}
	form := acceptance.New(api, sess)
	defer form.Close()
	if err := form.Load(ctx, c.Source(link)); err != nil {
		return err
	}
	a.printForm(form)

	if prev, ok := c.Prev(link.ItemID); ok {
		fmt.Fprintf(a.out, "Previous: %s\n", transfers.ActivateRow(prev, transfers.ClearLink(q)))
	}
	if next, ok := c.Next(link.ItemID); ok {
		fmt.Fprintf(a.out, "Next: %s\n", transfers.ActivateRow(next, transfers.ClearLink(q)))
	}
	return nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
