// Command shortlinkctl manages URL mappings directly against the configured
// store, bypassing the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fonsecaaso/shortlink/go-server/config"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	"github.com/fonsecaaso/shortlink/go-server/internal/service"
	"github.com/fonsecaaso/shortlink/go-server/internal/shortcode"
)

type globalOptions struct {
	Backend    string `short:"b" long:"backend" description:"store backend (postgres, redis, sqlite, memory); overrides STORE_BACKEND"`
	SQLitePath string `short:"f" long:"file" description:"path to the sqlite database; overrides SQLITE_PATH"`
	RedisAddr  string `long:"redis-addr" description:"redis address; overrides REDIS_ADDR"`
	Postgres   string `long:"postgres-url" description:"postgres connection URL; overrides POSTGRES_URL"`
	Verbose    bool   `short:"v" long:"verbose" description:"log to stderr at debug level"`
}

// app carries what every command needs; svc is opened on first use
type app struct {
	opts  globalOptions
	out   io.Writer
	svc   *service.URLService
	close func()
}

func (a *app) service(ctx context.Context) (*service.URLService, error) {
	if a.svc != nil {
		return a.svc, nil
	}

	overrides := map[string]string{
		"STORE_BACKEND": a.opts.Backend,
		"SQLITE_PATH":   a.opts.SQLitePath,
		"REDIS_ADDR":    a.opts.RedisAddr,
		"POSTGRES_URL":  a.opts.Postgres,
	}
	for key, value := range overrides {
		if value != "" {
			if err := os.Setenv(key, value); err != nil {
				return nil, err
			}
		}
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}

	repo, closeStore, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gen, err := shortcode.New(cfg.ShortCodeStrategy, nil)
	if err != nil {
		closeStore()
		return nil, err
	}

	a.svc = service.NewURLService(repo, gen,
		service.WithCodeLength(cfg.ShortCodeLength),
		service.WithMaxAttempts(cfg.MaxGenerationAttempts),
	)
	a.close = closeStore
	return a.svc, nil
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type createCommand struct {
	app  *app
	Code string `short:"c" long:"code" description:"custom short code"`
	Args struct {
		URL string `positional-arg-name:"url" required:"true"`
	} `positional-args:"yes"`
}

func (c *createCommand) Execute([]string) error {
	ctx := context.Background()
	svc, err := c.app.service(ctx)
	if err != nil {
		return err
	}
	url, err := svc.CreateURL(ctx, c.Args.URL, c.Code)
	if err != nil {
		return err
	}
	return c.app.print(url)
}

type codeArgs struct {
	Code string `positional-arg-name:"code" required:"true"`
}

type getCommand struct {
	app  *app
	Args codeArgs `positional-args:"yes"`
}

func (c *getCommand) Execute([]string) error {
	ctx := context.Background()
	svc, err := c.app.service(ctx)
	if err != nil {
		return err
	}
	url, err := svc.GetURL(ctx, c.Args.Code)
	if err != nil {
		return err
	}
	return c.app.print(url)
}

type listCommand struct {
	app *app
}

func (c *listCommand) Execute([]string) error {
	ctx := context.Background()
	svc, err := c.app.service(ctx)
	if err != nil {
		return err
	}
	urls, err := svc.GetAllURLs(ctx)
	if err != nil {
		return err
	}
	return c.app.print(urls)
}

type clickCommand struct {
	app  *app
	Args codeArgs `positional-args:"yes"`
}

func (c *clickCommand) Execute([]string) error {
	ctx := context.Background()
	svc, err := c.app.service(ctx)
	if err != nil {
		return err
	}
	url, err := svc.RedirectURL(ctx, c.Args.Code)
	if err != nil {
		return err
	}
	return c.app.print(url)
}

type updateCommand struct {
	app     *app
	URL     string   `short:"u" long:"url" description:"new original URL"`
	NewCode string   `short:"n" long:"new-code" description:"new short code"`
	Args    codeArgs `positional-args:"yes"`
}

func (c *updateCommand) Execute([]string) error {
	ctx := context.Background()
	svc, err := c.app.service(ctx)
	if err != nil {
		return err
	}

	var originalURL, newCode *string
	if c.URL != "" {
		originalURL = &c.URL
	}
	if c.NewCode != "" {
		newCode = &c.NewCode
	}

	url, err := svc.UpdateURL(ctx, c.Args.Code, originalURL, newCode)
	if err != nil {
		return err
	}
	return c.app.print(url)
}

type deleteCommand struct {
	app  *app
	Args struct {
		ID string `positional-arg-name:"id" required:"true"`
	} `positional-args:"yes"`
}

func (c *deleteCommand) Execute([]string) error {
	ctx := context.Background()
	svc, err := c.app.service(ctx)
	if err != nil {
		return err
	}
	result, err := svc.DeleteURL(ctx, c.Args.ID)
	if err != nil {
		return err
	}
	return c.app.print(result)
}

func newParser(a *app) (*flags.Parser, error) {
	parser := flags.NewParser(&a.opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		level := zapcore.WarnLevel
		if a.opts.Verbose {
			level = zapcore.DebugLevel
		}
		zap.ReplaceGlobals(newStderrLogger(level))
		return cmd.Execute(args)
	}

	commands := []struct {
		name, short string
		data        interface{}
	}{
		{"create", "Create a mapping", &createCommand{app: a}},
		{"get", "Show a mapping without counting a click", &getCommand{app: a}},
		{"list", "List all mappings", &listCommand{app: a}},
		{"click", "Count a click on a mapping", &clickCommand{app: a}},
		{"update", "Change the URL and/or the code of a mapping", &updateCommand{app: a}},
		{"delete", "Delete a mapping by id", &deleteCommand{app: a}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			return nil, err
		}
	}
	return parser, nil
}

func newStderrLogger(level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

func run(args []string, out io.Writer) error {
	a := &app{out: out}
	defer func() {
		if a.close != nil {
			a.close()
		}
	}()

	parser, err := newParser(a)
	if err != nil {
		return err
	}
	_, err = parser.ParseArgs(args)
	return err
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)
			return
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
