package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-bsky-client/bsky"
	"github.com/jrsteele09/go-bsky-client/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const appName = "bsky"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	var envFile, identifier, baseURL string
	var verbose, noBanner bool
	flagSet := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "read BSKY_* settings from this file when it exists")
	flagSet.StringVarP(&identifier, "identifier", "i", "", "handle or email to log in as (default $BSKY_IDENTIFIER)")
	flagSet.StringVar(&baseURL, "base-url", "", "PDS base URL (default $BSKY_BASE_URL or https://bsky.social)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flagSet.BoolVar(&noBanner, "no-banner", false, "do not print the banner")
	flagSet.Usage = func() { printUsage(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() == 0 {
		printUsage(flagSet)
		return errors.New("no command given")
	}

	opts, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	if identifier != "" {
		opts.Identifier = identifier
	}
	if verbose {
		opts.EnableLogging = true
	}

	if !noBanner {
		displayAppname(appName)
	}

	logger := newLogger(opts.GetEnableLogging())
	client, err := bsky.New(opts, bsky.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	password, err := resolvePassword(opts.GetPassword())
	if err != nil {
		return err
	}
	if _, err := client.Login(ctx, opts.GetIdentifier(), password); err != nil {
		return err
	}
	defer client.Logout()

	return runCommand(ctx, client, flagSet.Args(), os.Stdout)
}

func newLogger(debugEnabled bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debugEnabled {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// resolvePassword prompts on the terminal when no password is configured.
func resolvePassword(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	stdin := int(os.Stdin.Fd())
	if !term.IsTerminal(stdin) {
		return "", errors.New("no password configured: set BSKY_PASSWORD or run interactively")
	}
	fmt.Fprint(os.Stderr, "App password: ")
	password, err := term.ReadPassword(stdin)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(os.Stderr, myFigure.String())
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  whoami                       show the logged in account
  post <text>                  create a post
  reply <uri> <cid> <text>     reply to a post
  image <path> <alt> <text>    create a post with one image
  delete <uri>                 delete a post

Flags:
%s`, appName, flagSet.FlagUsages())
}
