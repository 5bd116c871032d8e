// cloudpilot - command-line browser for the cloud file storage API.
//
// Sub-commands:
//
//	cloudpilot login                 Sign in and save the session
//	cloudpilot register              Create an account and sign in
//	cloudpilot logout                Revoke the token and clear local state
//	cloudpilot whoami                Print the resolved user id
//	cloudpilot ls [flags]            List a directory (folders first)
//	cloudpilot upload [flags] f...   Upload files into a directory
//	cloudpilot mkdir [flags] name    Create a folder
//	cloudpilot rm <file-id>          Delete a file
//	cloudpilot rmdir <folder-id>     Delete a folder (and descendants)
//	cloudpilot get [flags] <file-id> Download a file
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/bycloud/cloudpilot/internal/config"
	"github.com/bycloud/cloudpilot/internal/logging"
	"github.com/bycloud/cloudpilot/internal/metrics"
	"github.com/bycloud/cloudpilot/pkg/api"
	"github.com/bycloud/cloudpilot/pkg/browser"
	"github.com/bycloud/cloudpilot/pkg/session"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "login":
		cmdLogin(args)
	case "register":
		cmdRegister(args)
	case "logout":
		cmdLogout(args)
	case "whoami":
		cmdWhoami(args)
	case "ls":
		cmdLs(args)
	case "upload":
		cmdUpload(args)
	case "mkdir":
		cmdMkdir(args)
	case "rm":
		cmdRm(args)
	case "rmdir":
		cmdRmdir(args)
	case "get":
		cmdGet(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cloudpilot <login|register|logout|whoami|ls|upload|mkdir|rm|rmdir|get> [flags]")
}

// app bundles the wired-up components each sub-command needs.
type app struct {
	cfg     *config.Config
	store   *session.Store
	client  *api.Client
	browser *browser.Browser
}

func setup() *app {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: logging: %v\n", err)
		os.Exit(1)
	}

	store, err := session.Open(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	client := api.New(api.Config{
		BaseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		Timeout: cfg.HTTPTimeout,
		Tokens:  store,
	})

	b := browser.New(browser.Config{
		Client:            client,
		Resolver:          session.NewResolver(store, client),
		Store:             store,
		PageSize:          cfg.ListPageSize,
		UploadSettleDelay: cfg.UploadSettleDelay,
	})

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logging.Warn("metrics endpoint stopped: " + err.Error())
			}
		}()
	}

	return &app{cfg: cfg, store: store, client: client, browser: b}
}

func fail(err error) {
	if errors.Is(err, api.ErrUnauthenticated) {
		fmt.Fprintln(os.Stderr, "Error: not signed in (or the session expired). Run 'cloudpilot login'.")
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Account email (prompted when empty)")
	fs.Parse(args)

	a := setup()
	defer logging.Sync()

	reader := bufio.NewReader(os.Stdin)
	if *email == "" {
		fmt.Print("Email: ")
		line, _ := reader.ReadString('\n')
		*email = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fail(fmt.Errorf("reading password: %w", err))
	}

	pair, err := a.client.Login(context.Background(), *email, string(passwordBytes))
	if err != nil {
		fail(err)
	}
	if err := a.store.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		fail(err)
	}
	fmt.Printf("Signed in. Session saved to %s\n", a.cfg.StatePath)
}

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("email", "", "Account email")
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	phone := fs.String("phone", "", "Phone number")
	fs.Parse(args)

	a := setup()
	defer logging.Sync()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "Error: -email is required")
		os.Exit(2)
	}

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fail(fmt.Errorf("reading password: %w", err))
	}
	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fail(fmt.Errorf("reading password: %w", err))
	}

	pair, err := a.client.Register(context.Background(), api.RegisterRequest{
		Email:           *email,
		Password:        string(password),
		ConfirmPassword: string(confirm),
		FirstName:       *first,
		LastName:        *last,
		PhoneNumber:     *phone,
	})
	if err != nil {
		fail(err)
	}
	if err := a.store.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
		fail(err)
	}
	fmt.Println("Account created and signed in.")
}

func cmdLogout(args []string) {
	flag.NewFlagSet("logout", flag.ExitOnError).Parse(args)

	a := setup()
	defer logging.Sync()

	if a.store.Token() != "" {
		a.client.Logout(context.Background())
	}
	if err := a.store.Clear(); err != nil {
		fail(err)
	}
	fmt.Println("Signed out.")
}

func cmdWhoami(args []string) {
	flag.NewFlagSet("whoami", flag.ExitOnError).Parse(args)

	a := setup()
	defer logging.Sync()

	id, err := session.NewResolver(a.store, a.client).Resolve(context.Background())
	if err != nil {
		fail(err)
	}
	fmt.Println(id)
}

func cmdLs(args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	dir := fs.String("dir", "", "Directory id (empty = root)")
	sortKey := fs.String("sort", "", "Sort key: name, size, date (persisted)")
	desc := fs.Bool("desc", false, "Sort descending (persisted with -sort)")
	long := fs.Bool("l", false, "Long listing with ids and sizes")
	fs.Parse(args)

	a := setup()
	defer logging.Sync()

	if *sortKey != "" {
		a.browser.SetSort(browser.SortKey(*sortKey), *desc)
	}

	listing, err := a.browser.Load(context.Background(), *dir)
	if err != nil {
		fail(err)
	}

	for _, d := range listing.Folders {
		if *long {
			fmt.Printf("d %-36s  %s/\n", d.ID, d.Name)
		} else {
			fmt.Printf("%s/\n", d.Name)
		}
	}
	for _, f := range listing.Files {
		if *long {
			fmt.Printf("- %-36s  %10s  %s\n", f.ID, formatSize(f.FileSize), f.FileName)
		} else {
			fmt.Println(f.FileName)
		}
	}
	if len(listing.Folders) == 0 && len(listing.Files) == 0 {
		fmt.Fprintln(os.Stderr, "(empty)")
	}
}

func cmdUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	dir := fs.String("dir", "", "Target directory id (empty = root)")
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: no files given")
		os.Exit(2)
	}

	a := setup()
	defer logging.Sync()

	var parts []api.UploadPart
	for _, path := range fs.Args() {
		content, err := os.ReadFile(path)
		if err != nil {
			fail(err)
		}
		parts = append(parts, api.UploadPart{Name: filepath.Base(path), Content: content})
	}

	result, err := a.browser.Upload(context.Background(), *dir, parts)
	if err != nil {
		fail(err)
	}
	for _, f := range result.Files {
		fmt.Printf("uploaded %s (%s)\n", f.FileName, f.ID)
	}
}

func cmdMkdir(args []string) {
	fs := flag.NewFlagSet("mkdir", flag.ExitOnError)
	parent := fs.String("parent", "", "Parent directory id (empty = root)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cloudpilot mkdir [-parent id] <name>")
		os.Exit(2)
	}

	a := setup()
	defer logging.Sync()

	id, err := a.browser.CreateFolder(context.Background(), *parent, fs.Arg(0))
	if err != nil {
		fail(err)
	}
	fmt.Printf("created %s (%s)\n", fs.Arg(0), id)
}

func cmdRm(args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cloudpilot rm <file-id>")
		os.Exit(2)
	}

	a := setup()
	defer logging.Sync()

	if err := a.browser.DeleteFile(context.Background(), fs.Arg(0)); err != nil {
		fail(err)
	}
	fmt.Println("deleted")
}

func cmdRmdir(args []string) {
	fs := flag.NewFlagSet("rmdir", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cloudpilot rmdir <folder-id>")
		os.Exit(2)
	}

	a := setup()
	defer logging.Sync()

	if err := a.browser.DeleteFolder(context.Background(), fs.Arg(0)); err != nil {
		fail(err)
	}
	fmt.Println("deleted")
}

func cmdGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	out := fs.String("o", "", "Output path (default: server-provided filename)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cloudpilot get [-o path] <file-id>")
		os.Exit(2)
	}

	a := setup()
	defer logging.Sync()

	rc, info, err := a.browser.Download(context.Background(), fs.Arg(0))
	if err != nil {
		fail(err)
	}
	defer rc.Close()

	target := *out
	if target == "" {
		target = info.FileName
	}
	if target == "" {
		target = fs.Arg(0)
	}

	f, err := os.Create(target)
	if err != nil {
		fail(err)
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fail(err)
	}
	metrics.RecordDownloadBytes(n)
	fmt.Printf("saved %s (%s)\n", target, formatSize(n))
}

func formatSize(n int64) string {
	switch {
	case n < 1<<10:
		return fmt.Sprintf("%d B", n)
	case n < 1<<20:
		return fmt.Sprintf("%.2f KB", float64(n)/(1<<10))
	case n < 1<<30:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/(1<<30))
	}
}
