package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jrsteele09/go-desktop-handoff/handoff"
	"github.com/jrsteele09/go-desktop-handoff/host"
	"github.com/jrsteele09/go-desktop-handoff/host/ipc"
	"github.com/jrsteele09/go-desktop-handoff/internal/config"
	"github.com/jrsteele09/go-desktop-handoff/internal/logging"
	"github.com/jrsteele09/go-desktop-handoff/renderer"
	"github.com/jrsteele09/go-desktop-handoff/verifier"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shellHelp = `commands:
  login <provider>   open the provider sign-in in the system browser
  <deep link>        deliver an ${scheme}:// link as the OS would
  focus              refetch the session
  session            print the current session
  cookies            print the cookies held for the backend
  clear-cookies      clear the cookie storage
  sign-out           end the backend session
  quit`

func runShell(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	appPath, _ := cmd.Flags().GetString("app-path")
	loginProvider, _ := cmd.Flags().GetString("login")
	uiAddr, _ := cmd.Flags().GetString("ui-addr")

	c, err := config.Load(envFile)
	if err != nil {
		return err
	}
	opts := config.HandoffOptions(c)
	if dataDir == "" {
		if dataDir, err = defaultDataDir(opts.AppName); err != nil {
			return err
		}
	}
	if err := logging.Setup(logging.Options{
		Level:   c.GetLogLevel(),
		File:    filepath.Join(dataDir, "logs", "desktop.log"),
		Console: true,
	}); err != nil {
		return err
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := verifier.NewStore(dataDir,
		verifier.WithVerifierLength(opts.VerifierLength),
		verifier.WithFileName(opts.VerifierFileName),
	)
	if err != nil {
		return err
	}

	plat := newPlatform(ctx, filepath.Join(dataDir, "instance.lock"), uiAddr, opts.AppHost)
	defer plat.Close()

	hostPort, uiPort := ipc.NewPair("host", "renderer")
	cookies := host.NewJarCookieStore()
	h, err := host.NewHost(opts, plat, hostPort, store,
		host.WithCookieStore(cookies),
		host.WithAppPath(appPath),
	)
	if err != nil {
		return err
	}

	injection := h.Setup()
	select {
	case <-plat.Done():
		return nil // another instance took the arguments
	default:
	}
	injection.WhenReady()

	window := host.NewHeadlessWindow(hostPort)
	injection.WindowInjection(window)
	window.FinishLoad()

	httpClient := &http.Client{Jar: cookies}
	if opts.InjectBackendHeaders {
		transport, err := renderer.NewHeaderTransport(opts, cookies)
		if err != nil {
			return err
		}
		httpClient.Transport = transport
	}
	client := renderer.NewClient(opts, httpClient)
	negotiator, err := renderer.NewNegotiator(opts, uiPort, client)
	if err != nil {
		return err
	}
	negotiator.OnSuccess(func(us renderer.UserSession) {
		fmt.Printf("signed in as %s (session expires %s)\n", us.User.Email, us.Session.ExpiresAt.Format("2006-01-02 15:04"))
	})
	negotiator.OnNewUser(func(us renderer.UserSession) {
		fmt.Printf("welcome %s, your account was created\n", us.User.Email)
	})
	negotiator.OnFailure(func(err error) {
		fmt.Printf("sign-in failed: %v\n", err)
	})
	negotiator.Attach()

	focus := make(chan struct{}, 1)
	negotiator.WatchFocus(ctx, focus, client)

	sh := &shell{
		opts:       opts,
		out:        os.Stdout,
		platform:   plat,
		window:     window,
		uiPort:     uiPort,
		client:     client,
		negotiator: negotiator,
		focus:      focus,
	}
	if loginProvider != "" {
		sh.exec(ctx, "login "+loginProvider)
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)
	fmt.Fprintln(sh.out, strings.ReplaceAll(shellHelp, "${scheme}", opts.Scheme))
	for {
		select {
		case <-plat.Done():
			negotiator.Wait()
			return nil
		case line, ok := <-lines:
			if !ok {
				negotiator.Wait()
				return nil
			}
			if quit := sh.exec(ctx, line); quit {
				plat.Quit()
			}
		}
	}
}

func defaultDataDir(appName string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "[defaultDataDir]")
	}
	return filepath.Join(base, appName), nil
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

type shell struct {
	opts       handoff.Options
	out        io.Writer
	platform   *platform
	window     *host.HeadlessWindow
	uiPort     *ipc.Port
	client     *renderer.Client
	negotiator *renderer.Negotiator
	focus      chan struct{}
}

// exec runs one shell command and reports whether the shell should quit.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch {
	case strings.HasPrefix(fields[0], s.opts.SchemePrefix()):
		s.platform.OpenURL(fields[0])
		s.negotiator.Wait()
	case fields[0] == "login" && len(fields) == 2:
		action := s.window.RequestOpen(s.negotiator.LoginURL(fields[1]))
		fmt.Fprintf(s.out, "login window request: %s, continue in the browser\n", action)
	case fields[0] == "focus":
		select {
		case s.focus <- struct{}{}:
		default:
		}
	case fields[0] == "session":
		us, err := s.client.Session(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "no session: %v\n", err)
			return false
		}
		s.printJSON(us)
	case fields[0] == "cookies":
		out, err := s.uiPort.Invoke(ctx, s.opts.GetCookiesEvent, nil)
		if err != nil {
			fmt.Fprintf(s.out, "cookies: %v\n", err)
			return false
		}
		fmt.Fprintln(s.out, string(out))
	case fields[0] == "clear-cookies":
		ok, err := s.negotiator.ClearCookies(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "clear cookies: %v\n", err)
			return false
		}
		fmt.Fprintf(s.out, "cookies cleared: %t\n", ok)
	case fields[0] == "sign-out":
		if err := s.client.SignOut(ctx); err != nil {
			fmt.Fprintf(s.out, "sign out: %v\n", err)
			return false
		}
		s.negotiator.State().SetSession(nil)
		fmt.Fprintln(s.out, "signed out")
	case fields[0] == "quit" || fields[0] == "exit":
		return true
	default:
		fmt.Fprintln(s.out, strings.ReplaceAll(shellHelp, "${scheme}", s.opts.Scheme))
	}
	return false
}

func (s *shell) printJSON(v any) {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Err(err).Msg("failed to print")
	}
}
