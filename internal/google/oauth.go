package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

// Credentials locates the OAuth client. A credentials file wins over an explicit
// client id and secret.
type Credentials struct {
	Path         string
	ClientID     string
	ClientSecret string
}

// OAuthConfig reads the client and returns an OAuth2 config with full calendar scope.
func (c Credentials) OAuthConfig() (*oauth2.Config, error) {
	if c.Path != "" {
		b, err := os.ReadFile(c.Path)
		switch {
		case err == nil:
			config, err := google.ConfigFromJSON(b, gcal.CalendarScope)
			if err != nil {
				return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
			}
			return config, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("unable to read client secret file: %w", err)
		}
	}

	if c.ClientID != "" && c.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Scopes:       []string{gcal.CalendarScope},
			Endpoint:     google.Endpoint,
		}, nil
	}
	return nil, fmt.Errorf("%s not found; download the OAuth client file or set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET", c.Path)
}

// AuthFlow obtains a fresh token from the user.
type AuthFlow func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error)

// LocalServerFlow runs the installed-app consent flow: it listens on a loopback
// port, prints the consent URL to out, and exchanges the code delivered to the
// callback.
func LocalServerFlow(logger *slog.Logger, out io.Writer) AuthFlow {
	return func(ctx context.Context, config *oauth2.Config) (*oauth2.Token, error) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, fmt.Errorf("failed to start callback listener: %w", err)
		}

		cfg := *config
		cfg.RedirectURL = fmt.Sprintf("http://%s/", listener.Addr().String())
		state := uuid.NewString()

		codes := make(chan string, 1)
		failures := make(chan error, 1)
		srv := &http.Server{Handler: callbackHandler(state, codes, failures)}
		go func() {
			if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				failures <- err
			}
		}()
		defer srv.Close()

		authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		fmt.Fprintf(out, "Go to the following link in your browser to authorize calendar access:\n%v\n", authURL)
		logger.Info("Waiting for OAuth callback", "redirect", cfg.RedirectURL)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-failures:
			return nil, err
		case code := <-codes:
			token, err := cfg.Exchange(ctx, code)
			if err != nil {
				return nil, fmt.Errorf("unable to retrieve token from web: %w", err)
			}
			return token, nil
		}
	}
}

func callbackHandler(state string, codes chan<- string, failures chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if msg := r.FormValue("error"); msg != "" {
			http.Error(w, "authorization denied", http.StatusForbidden)
			select {
			case failures <- fmt.Errorf("authorization denied: %s", msg):
			default:
			}
			return
		}
		code := r.FormValue("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		select {
		case codes <- code:
		default:
		}
	})
}
