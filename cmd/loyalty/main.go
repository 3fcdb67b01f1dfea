// Command loyalty drives the loyalty client from a terminal: sign in, check
// points and rewards, and manage notifications. The session persists between
// runs in LOYALTY_DATA_FILE.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/loyalty/app"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/domain"
	"github.com/aussiebroadwan/loyalty/internal/loyalty/guard"
)

const usage = `usage: loyalty <command> [flags]

commands:
  login -u USER [-p PASS]       sign in (password falls back to LOYALTY_PASSWORD)
  logout                        sign out
  whoami                        show the signed-in user
  points add|redeem -points N   change a customer's points
  rewards -outlet ID            list rewards for a customer at an outlet
  notifications list|read ID|read-all|delete ID
  transactions                  list points transactions
`

var errSignedOut = errors.New("not signed in; run 'loyalty login'")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "loyalty:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return login(ctx, a, rest, out)
	case "logout":
		a.Session.Logout(ctx)
		fmt.Fprintln(out, "signed out")
		return nil
	case "whoami":
		u, err := protect(ctx, a, "/(tabs)/profile")
		if err != nil {
			return err
		}
		return printJSON(out, profileOf(u))
	case "points":
		return points(ctx, a, rest, out)
	case "rewards":
		return rewards(ctx, a, rest, out)
	case "notifications":
		return notifications(ctx, a, rest, out)
	case "transactions":
		return transactions(ctx, a, rest, out)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// protect runs the route guard for location and returns the signed-in user.
// A redirect back to sign-in means the command cannot proceed.
func protect(ctx context.Context, a *app.Application, location string) (*domain.UserProfile, error) {
	a.Nav.Push(location)

	st := a.Guard.Validate(ctx)
	a.Guard.Navigate()

	snap := a.Session.Snapshot()
	if st != guard.Authenticated || snap.User == nil || a.Nav.Location() == guard.DefaultRoutes.Login {
		if snap.Error != "" {
			return nil, fmt.Errorf("%w (%s)", errSignedOut, snap.Error)
		}
		return nil, errSignedOut
	}
	return snap.User, nil
}

func login(ctx context.Context, a *app.Application, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", os.Getenv("LOYALTY_PASSWORD"), "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.Session.Login(ctx, *username, *password); err != nil {
		if msg := a.Session.Snapshot().Error; msg != "" {
			return errors.New(msg)
		}
		return err
	}

	a.Guard.Navigate()
	u := a.Session.Snapshot().User
	fmt.Fprintf(out, "signed in as %s\n", u.DisplayName())
	return nil
}

func points(ctx context.Context, a *app.Application, args []string, out io.Writer) error {
	if len(args) == 0 || (args[0] != "add" && args[0] != "redeem") {
		return errors.New("usage: loyalty points add|redeem -points N [-customer CODE] [-reward ID] [-vendor ID] [-outlet ID] [-order ID]")
	}
	action := args[0]

	u, err := protect(ctx, a, "/(tabs)/points")
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("points "+action, flag.ContinueOnError)
	customer := fs.Int("customer", u.UserCode, "customer code")
	pts := fs.Int("points", 0, "points to add or redeem")
	reward := fs.Int("reward", 0, "reward id")
	vendor := fs.Int("vendor", 0, "vendor id")
	outlet := fs.Int("outlet", 0, "outlet id")
	order := fs.Int("order", 0, "order id")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	req := domain.UpdatePoints{
		CustomerCode: *customer,
		RewardID:     *reward,
		VendorID:     *vendor,
		OutletID:     *outlet,
		OrderID:      *order,
		Point:        *pts,
	}

	var bal domain.PointsBalance
	if action == "redeem" {
		bal, err = a.Points.Redeem(ctx, *customer, req)
	} else {
		bal, err = a.Points.Add(ctx, *customer, req)
	}
	if err != nil {
		return err
	}
	return printJSON(out, bal)
}

func rewards(ctx context.Context, a *app.Application, args []string, out io.Writer) error {
	u, err := protect(ctx, a, "/(tabs)/rewards")
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("rewards", flag.ContinueOnError)
	outlet := fs.Int("outlet", 0, "outlet id")
	customer := fs.Int("customer", u.UserCode, "customer code")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rs, err := a.Rewards.ForCustomer(ctx, *outlet, *customer)
	if err != nil {
		return err
	}
	return printJSON(out, rs)
}

func notifications(ctx context.Context, a *app.Application, args []string, out io.Writer) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	u, err := protect(ctx, a, "/(tabs)/notifications")
	if err != nil {
		return err
	}

	switch sub {
	case "list":
		fs := flag.NewFlagSet("notifications list", flag.ContinueOnError)
		page := fs.Int("page", 1, "page number")
		size := fs.Int("size", 20, "page size")
		latest := fs.Bool("latest", true, "newest first")
		if err := fs.Parse(args); err != nil {
			return err
		}

		res, err := a.Notifications.List(ctx, domain.NotificationQuery{
			Page:     *page,
			PageSize: *size,
			IsLatest: *latest,
			UserCode: u.UserCode,
		})
		if err != nil {
			return err
		}
		return printJSON(out, res)

	case "read", "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: loyalty notifications %s ID", sub)
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid notification id %q", args[0])
		}

		if sub == "read" {
			err = a.Notifications.MarkRead(ctx, id)
		} else {
			err = a.Notifications.Delete(ctx, id)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil

	case "read-all":
		if err := a.Notifications.MarkAllRead(ctx, u.UserCode); err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil

	default:
		return fmt.Errorf("unknown notifications command %q", sub)
	}
}

func transactions(ctx context.Context, a *app.Application, args []string, out io.Writer) error {
	u, err := protect(ctx, a, "/(tabs)/transactions")
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	role := fs.String("role", "customer", "role to query as")
	vendor := fs.Int("vendor", 0, "vendor id")
	outlet := fs.Int("outlet", 0, "outlet id")
	latest := fs.Bool("latest", true, "newest first")
	since := fs.String("since", "", "only transactions on or after this date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := domain.TransactionQuery{
		Role:     *role,
		UserCode: u.UserCode,
		VendorID: *vendor,
		OutletID: *outlet,
		IsLatest: *latest,
	}
	if *since != "" {
		d, err := time.Parse(time.DateOnly, *since)
		if err != nil {
			return fmt.Errorf("invalid -since: %w", err)
		}
		q.CreatedDate = d
	}

	txs, err := a.Transactions.List(ctx, q)
	if err != nil {
		return err
	}
	return printJSON(out, txs)
}

// profile is what whoami prints; tokens stay in the data file.
type profile struct {
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	UserName  string          `json:"userName"`
	UserCode  int             `json:"userCode"`
	Email     string          `json:"email"`
	Vendor    json.RawMessage `json:"vendor,omitempty"`
	Roles     []string        `json:"roles"`
}

func profileOf(u *domain.UserProfile) profile {
	return profile{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		UserName:  u.UserName,
		UserCode:  u.UserCode,
		Email:     u.Email,
		Vendor:    u.Vendor,
		Roles:     u.Roles,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
