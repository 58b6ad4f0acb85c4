package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/drivescan/internal/tokenfile"
)

// callbackPath is the HTTP path the OAuth2 redirect hits on the loopback server.
const callbackPath = "/"

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// LoginWithBrowser performs the interactive authorization code + PKCE flow
// on a loopback redirect:
//  1. Binds a localhost HTTP server on a random port
//  2. Calls openURL with the consent URL (the CLI launches a browser)
//  3. Receives the callback with the authorization code
//  4. Exchanges the code, saves the token, and fills the credential slot
//
// If openURL fails, printURL receives the URL so the user can open it by hand.
func (a *Authenticator) LoginWithBrowser(
	ctx context.Context,
	openURL func(string) error,
	printURL func(string),
) error {
	a.logger.Info("starting browser auth flow (authorization code + PKCE)",
		slog.String("path", a.tokenPath),
	)

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, a.logger)
	if err != nil {
		return err
	}

	defer shutdownCallbackServer(srv, a.logger)

	// Loopback redirects are accepted on any port for installed-app clients.
	cfg := *a.oauth
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", port, callbackPath)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return fmt.Errorf("gdrive: generating state token: %w", err)
	}

	registerCallbackHandler(mux, state, resultCh)

	authURL := a.authURL(&cfg, state, verifier)

	a.logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		a.logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		printURL(authURL)
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return err
	}

	tok, err := cfg.Exchange(a.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("gdrive: token exchange failed: %w", err)
	}

	return a.store(&tokenfile.File{Token: tok})
}

// startCallbackServer binds to 127.0.0.1:0 and starts an HTTP server with the
// given mux. Returns the server, the port, and any error.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("gdrive: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("gdrive: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{err: fmt.Errorf("gdrive: callback server error: %w", serveErr)}
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux.
func registerCallbackHandler(mux *http.ServeMux, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("gdrive: OAuth2 state mismatch (possible CSRF)")}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("gdrive: authorization failed: %s", errParam)}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{err: fmt.Errorf("gdrive: callback missing authorization code")}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("gdrive: browser auth canceled: %w", ctx.Err())
	}
}
