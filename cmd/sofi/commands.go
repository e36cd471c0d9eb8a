package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	sofi "github.com/socialfinance/sofi-go"
	"github.com/socialfinance/sofi-go/analyses"
	"github.com/socialfinance/sofi-go/session"
	"github.com/socialfinance/sofi-go/tokens"
)

type cli struct {
	app *sofi.App
	out io.Writer
}

func (c *cli) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return c.login(ctx, args)
	case "register":
		return c.register(ctx, args)
	case "logout":
		c.app.Session.Logout()
		fmt.Fprintln(c.out, "logged out")
		return nil
	case "whoami":
		return c.whoami(ctx)
	case "refresh":
		return c.refresh(ctx)
	case "users":
		return c.users(ctx)
	case "analyses":
		return c.analyses(ctx, args)
	case "subscribe":
		return c.subscribe(ctx, args)
	case "check":
		return c.check(ctx, args)
	default:
		usage()
		return errors.Errorf("unknown command %q", command)
	}
}

func (c *cli) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login requires -email and -password")
	}

	if err := c.app.Session.Login(ctx, *email, *password); err != nil {
		return err
	}
	u := c.app.Session.CurrentUser()
	fmt.Fprintf(c.out, "logged in as %s (#%d)\n", u.Username, u.ID)
	return nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	username := fs.String("username", "", "desired username")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	fullName := fs.String("full-name", "", "display name")
	bio := fs.String("bio", "", "profile bio")
	fee := fs.Float64("monthly-fee", 0, "monthly subscription price, 0 for free content")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" || *password == "" {
		return errors.New("register requires -username, -email and -password")
	}

	err := c.app.Session.Register(ctx, session.Registration{
		Username:   *username,
		Email:      *email,
		Password:   *password,
		FullName:   *fullName,
		Bio:        *bio,
		MonthlyFee: *fee,
	})
	if errors.Is(err, session.ErrPostRegisterLogin) {
		// The account exists; only the follow-up login failed.
		fmt.Fprintln(c.out, "account created; log in manually with: sofi login")
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered and logged in as %s\n", *username)
	return nil
}

func (c *cli) whoami(ctx context.Context) error {
	if err := c.app.Session.Bootstrap(ctx); err != nil {
		return err
	}
	u := c.app.Session.CurrentUser()
	if u == nil {
		fmt.Fprintln(c.out, "not logged in")
		return nil
	}

	fmt.Fprintf(c.out, "#%d %s <%s>\n", u.ID, u.Username, u.Email)
	if u.FullName != "" {
		fmt.Fprintf(c.out, "  name: %s\n", u.FullName)
	}
	if u.MonthlyFee > 0 {
		fmt.Fprintf(c.out, "  monthly fee: %.2f\n", u.MonthlyFee)
	}
	if exp, err := tokens.Expiry(c.app.Session.AccessToken()); err == nil {
		fmt.Fprintf(c.out, "  token expires: %s\n", exp.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (c *cli) refresh(ctx context.Context) error {
	if _, err := c.app.Session.RefreshAccessToken(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "access token refreshed")
	return nil
}

func (c *cli) users(ctx context.Context) error {
	list, err := c.app.Users.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range list {
		fmt.Fprintf(c.out, "#%-4d %-20s analyses=%d subscribers=%d fee=%.2f\n",
			u.ID, u.Username, u.TotalAnalyses, u.SubscriberCount, u.MonthlyFee)
	}
	return nil
}

func (c *cli) analyses(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("analyses requires a subcommand: list, show, create, delete")
	}
	switch args[0] {
	case "list":
		return c.analysesList(ctx, args[1:])
	case "show":
		return c.analysesShow(ctx, args[1:])
	case "create":
		return c.analysesCreate(ctx, args[1:])
	case "delete":
		return c.analysesDelete(ctx, args[1:])
	default:
		return errors.Errorf("unknown analyses subcommand %q", args[0])
	}
}

func (c *cli) analysesList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyses list", flag.ContinueOnError)
	author := fs.Int("author", 0, "filter by author id")
	ticker := fs.String("ticker", "", "filter by ticker symbol")
	limit := fs.Int("limit", 0, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := c.app.Analyses.List(ctx, analyses.ListOptions{
		AuthorID:     *author,
		TickerSymbol: *ticker,
		Limit:        *limit,
	})
	if err != nil {
		return err
	}
	for _, a := range list {
		fmt.Fprintf(c.out, "#%-4d [%s] %s by %s (target %.2f, %s)\n",
			a.ID, a.TickerSymbol, a.Title, a.Author.Username, a.TargetPrice, a.TimeHorizon)
	}
	return nil
}

func (c *cli) analysesShow(ctx context.Context, args []string) error {
	id, err := idArg(args, "analyses show")
	if err != nil {
		return err
	}

	a, err := c.app.Analyses.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\n", a.Title)
	fmt.Fprintf(c.out, "by %s, target %.2f over %s\n", a.Author.Username, a.TargetPrice, a.TimeHorizon)
	for _, t := range a.Tags {
		fmt.Fprintf(c.out, "  tag: %s\n", t.Name)
	}
	fmt.Fprintf(c.out, "\n%s\n", a.Content)
	return nil
}

func (c *cli) analysesCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyses create", flag.ContinueOnError)
	title := fs.String("title", "", "analysis title")
	content := fs.String("content", "", "analysis body")
	target := fs.Float64("target", 0, "target price")
	horizon := fs.String("horizon", "", "time horizon, e.g. 6m")
	ticker := fs.String("ticker", "", "ticker symbol")
	var imagePaths stringList
	fs.Var(&imagePaths, "image", "chart image to attach (repeatable, max 5)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" || *content == "" || *horizon == "" {
		return errors.New("analyses create requires -title, -content and -horizon")
	}

	var uploads []analyses.ImageUpload
	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()
	for _, p := range imagePaths {
		f, err := os.Open(p)
		if err != nil {
			return errors.Wrapf(err, "open image %s", p)
		}
		closers = append(closers, f)
		uploads = append(uploads, analyses.ImageUpload{Filename: filepath.Base(p), Content: f})
	}

	a, err := c.app.Analyses.Create(ctx, analyses.Draft{
		Title:        *title,
		Content:      *content,
		TargetPrice:  *target,
		TimeHorizon:  *horizon,
		TickerSymbol: *ticker,
	}, uploads...)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "published analysis #%d\n", a.ID)
	return nil
}

func (c *cli) analysesDelete(ctx context.Context, args []string) error {
	id, err := idArg(args, "analyses delete")
	if err != nil {
		return err
	}
	if err := c.app.Analyses.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "deleted analysis #%d\n", id)
	return nil
}

func (c *cli) subscribe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subscribe", flag.ContinueOnError)
	creator := fs.Int("creator", 0, "creator user id")
	price := fs.Float64("price", 0, "monthly price shown at checkout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *creator == 0 {
		return errors.New("subscribe requires -creator")
	}

	res, err := c.app.Subscriptions.Create(ctx, *creator, *price)
	if err != nil {
		return err
	}
	if res.StripeCheckoutURL != "" {
		fmt.Fprintf(c.out, "complete payment at: %s\n", res.StripeCheckoutURL)
		return nil
	}
	fmt.Fprintf(c.out, "subscribed to creator #%d\n", *creator)
	return nil
}

func (c *cli) check(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	creator := fs.Int("creator", 0, "creator user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *creator == 0 {
		return errors.New("check requires -creator")
	}

	res, err := c.app.Subscriptions.Check(ctx, *creator)
	if err != nil {
		return err
	}
	if res.IsSubscribed {
		fmt.Fprintf(c.out, "subscribed (%.2f/month)\n", res.MonthlyPrice)
	} else {
		fmt.Fprintf(c.out, "not subscribed (%.2f/month)\n", res.MonthlyPrice)
	}
	return nil
}

func idArg(args []string, command string) (int, error) {
	if len(args) != 1 {
		return 0, errors.Errorf("%s requires exactly one id argument", command)
	}
	var id int
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil || id <= 0 {
		return 0, errors.Errorf("%s: invalid id %q", command, args[0])
	}
	return id, nil
}

// stringList collects a repeatable flag value.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
